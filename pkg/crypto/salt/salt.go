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

// Package salt provides the 32-byte salt used for password derivation.
package salt

import (
	"encoding/hex"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Size is the salt width in bytes.
const Size = 32

// Salt is password-hash input. The zero value is the all-zero salt.
type Salt [Size]byte

// New samples a salt from the process random source.
func New() (Salt, error) {
	var s Salt
	if err := rand.Fill(s[:]); err != nil {
		return Salt{}, err
	}
	return s, nil
}

// FromBytes copies a salt out of b, which must be exactly Size bytes.
func FromBytes(b []byte) (Salt, error) {
	var s Salt
	if len(b) != Size {
		return s, types.InvalidArgumentf("salt: want %d bytes, got %d", Size, len(b))
	}
	copy(s[:], b)
	return s, nil
}

// Bytes returns a copy of the salt.
func (s Salt) Bytes() []byte {
	return append([]byte(nil), s[:]...)
}

func (s Salt) String() string {
	return hex.EncodeToString(s[:])
}

// EncodeMsgpack writes the salt as a raw bin blob.
func (s *Salt) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encoding.EncodeBlob(enc, s[:])
}

// DecodeMsgpack reads a salt of exactly Size bytes.
func (s *Salt) DecodeMsgpack(dec *msgpack.Decoder) error {
	return encoding.DecodeFixed(dec, s[:], "salt")
}
