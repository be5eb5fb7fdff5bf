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

// Package nonce provides the 24-byte nonce used by XSalsa20-Poly1305.
//
// A (key, nonce) pair must never encrypt twice. Random nonces are the
// default; callers that need a deterministic sequence start from a nonce and
// call Increment.
package nonce

import (
	"encoding/hex"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Size is the nonce width in bytes.
const Size = 24

// Nonce is a single-use number.
type Nonce [Size]byte

// Zero returns the all-zero nonce.
func Zero() *Nonce {
	return &Nonce{}
}

// New samples a nonce from the process random source.
func New() (*Nonce, error) {
	n := &Nonce{}
	if err := rand.Fill(n[:]); err != nil {
		return nil, err
	}
	return n, nil
}

// FromBytes copies a nonce out of b, which must be exactly Size bytes.
func FromBytes(b []byte) (*Nonce, error) {
	if len(b) != Size {
		return nil, types.InvalidArgumentf("nonce: want %d bytes, got %d", Size, len(b))
	}
	n := &Nonce{}
	copy(n[:], b)
	return n, nil
}

// Increment adds one, treating the nonce as a little-endian integer.
// The all-ones nonce wraps to zero.
func (n *Nonce) Increment() {
	for i := range n {
		n[i]++
		if n[i] != 0 {
			return
		}
	}
}

// Bytes returns the nonce bytes. The slice aliases n.
func (n *Nonce) Bytes() []byte {
	return n[:]
}

// Array returns the nonce as the array form secretbox expects.
func (n *Nonce) Array() *[Size]byte {
	return (*[Size]byte)(n)
}

// Clone returns an independent copy.
func (n *Nonce) Clone() *Nonce {
	c := *n
	return &c
}

func (n *Nonce) String() string {
	return hex.EncodeToString(n[:])
}

// EncodeMsgpack writes the nonce as a raw bin blob.
func (n *Nonce) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encoding.EncodeBlob(enc, n[:])
}

// DecodeMsgpack reads a nonce of exactly Size bytes.
func (n *Nonce) DecodeMsgpack(dec *msgpack.Decoder) error {
	return encoding.DecodeFixed(dec, n[:], "nonce")
}

// EncodeOptional writes n, or nil when n is nil.
func EncodeOptional(enc *msgpack.Encoder, n *Nonce) error {
	if n == nil {
		return enc.EncodeNil()
	}
	return n.EncodeMsgpack(enc)
}

// DecodeOptional reads a nonce or nil.
func DecodeOptional(dec *msgpack.Decoder) (*Nonce, error) {
	present, err := encoding.DecodeNilOr(dec)
	if err != nil {
		return nil, types.Decode("nonce", err)
	}
	if !present {
		return nil, nil
	}
	n := &Nonce{}
	if err := n.DecodeMsgpack(dec); err != nil {
		return nil, err
	}
	return n, nil
}
