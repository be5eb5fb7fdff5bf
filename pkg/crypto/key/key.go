// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-keywrap.
//
// go-keywrap is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package key defines the capability set a key needs to protect a keystore's
// master key.
//
// The master key is always a symmetric.Key, but a user key can be anything
// that implements Key: a password-derived key, a raw key file, or a key
// held by a remote KMS.
package key

import (
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
)

// Key encrypts and decrypts with authentication and identifies itself by a
// stable digest.
type Key interface {
	// Digest is a deterministic function of the key material. It is the
	// key's identifier inside a keystore.
	Digest() digest.Digest

	// Encrypt seals plaintext. Keys that use nonces generate a random one
	// when n is nil and return a supplied n unchanged. Keys that use no
	// nonce return n as given, which may be nil.
	Encrypt(plaintext []byte, n *nonce.Nonce) (*nonce.Nonce, []byte, error)

	// Decrypt opens ciphertext into locked memory. Failure never reveals
	// whether the key was wrong or the ciphertext tampered with.
	Decrypt(n *nonce.Nonce, ciphertext []byte) (*secret.Buffer, error)

	// Serialize returns the key's persistent form in locked memory.
	Serialize() (*secret.Buffer, error)
}
