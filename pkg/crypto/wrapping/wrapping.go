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

// Package wrapping encrypts one key under another and records which key was
// used, so the right outer key can be matched without trial decryption.
package wrapping

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

const (
	fieldData           = "data"
	fieldNonce          = "nonce"
	fieldWrappingDigest = "wrapping_digest"
)

var (
	// ErrWrongWrappingKey is returned by Unwrap when the outer key's
	// digest does not match the one recorded at wrap time. No decryption
	// is attempted in that case.
	ErrWrongWrappingKey = types.InvalidArgument("wrong wrapping key")

	// ErrUnwrapFailed is returned when the outer key matched by digest but
	// could not decrypt the wrapped data.
	ErrUnwrapFailed = types.Crypto("unwrap failed")
)

// WrappedKey is a symmetric key encrypted under an outer key.
//
// Invariant: WrappingDigest equals the outer key's digest at wrap time, and
// Data decrypts only under a key with that digest.
type WrappedKey struct {
	// Data is the ciphertext of the inner key's serialized form.
	Data []byte

	// Nonce is the nonce used to produce Data, or nil for outer keys that
	// take no nonce.
	Nonce *nonce.Nonce

	wrappingDigest digest.Digest
}

// Wrap encrypts inner under outer.
//
// Parameters:
//   - inner: The key to protect
//   - outer: The key to protect it with
//
// Returns:
//   - The wrapped key, carrying outer's digest
//   - An error if serialization or encryption fails
func Wrap(inner *symmetric.Key, outer key.Key) (*WrappedKey, error) {
	plaintext, err := inner.Serialize()
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()

	n, data, err := outer.Encrypt(plaintext.UnsafeBytes(), nil)
	if err != nil {
		return nil, err
	}
	return &WrappedKey{
		Data:           data,
		Nonce:          n,
		wrappingDigest: outer.Digest(),
	}, nil
}

// Unwrap recovers the inner key with outer.
//
// The digest check runs before any decryption, so a mismatched key yields
// ErrWrongWrappingKey and a matched key that fails to decrypt yields
// ErrUnwrapFailed.
//
// Parameters:
//   - outer: The key Data was wrapped under
//
// Returns:
//   - The inner key, in locked memory, owned by the caller
//   - ErrWrongWrappingKey, ErrUnwrapFailed, or a decode error
func (w *WrappedKey) Unwrap(outer key.Key) (*symmetric.Key, error) {
	if !outer.Digest().Equal(w.wrappingDigest) {
		return nil, ErrWrongWrappingKey
	}

	plaintext, err := outer.Decrypt(w.Nonce, w.Data)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	defer plaintext.Close()

	return symmetric.Deserialize(plaintext.UnsafeBytes())
}

// Digest identifies the wrapped blob itself: the digest of Data.
func (w *WrappedKey) Digest() digest.Digest {
	return digest.Of(w.Data)
}

// WrappingDigest returns the digest of the key Data was wrapped under.
func (w *WrappedKey) WrappingDigest() digest.Digest {
	return w.wrappingDigest
}

// EncodeMsgpack writes {"data", "nonce", "wrapping_digest"} in that order.
func (w *WrappedKey) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldData); err != nil {
		return err
	}
	if err := encoding.EncodeByteSeq(enc, w.Data); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldNonce); err != nil {
		return err
	}
	if err := nonce.EncodeOptional(enc, w.Nonce); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldWrappingDigest); err != nil {
		return err
	}
	return w.wrappingDigest.EncodeMsgpack(enc)
}

// DecodeMsgpack reads a wrapped key. Unknown fields are skipped; data and
// wrapping_digest are required, nonce may be absent or nil.
func (w *WrappedKey) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := encoding.DecodeMapHeader(dec, "wrapped key")
	if err != nil {
		return err
	}

	var (
		out                    WrappedKey
		haveData, haveWrapping bool
	)
	for range n {
		name, err := dec.DecodeString()
		if err != nil {
			return types.Decode("wrapped key: field name", err)
		}
		switch name {
		case fieldData:
			if out.Data, err = encoding.DecodeByteSeq(dec, "wrapped key: data"); err != nil {
				return err
			}
			haveData = true
		case fieldNonce:
			if out.Nonce, err = nonce.DecodeOptional(dec); err != nil {
				return err
			}
		case fieldWrappingDigest:
			if err := out.wrappingDigest.DecodeMsgpack(dec); err != nil {
				return err
			}
			haveWrapping = true
		default:
			if err := dec.Skip(); err != nil {
				return types.Decode("wrapped key: "+name, err)
			}
		}
	}

	switch {
	case !haveData:
		return types.Decode(`wrapped key: missing field "data"`, nil)
	case !haveWrapping:
		return types.Decode(`wrapped key: missing field "wrapping_digest"`, nil)
	}
	*w = out
	return nil
}
