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

// Package digest provides the 64-byte SHA-512 digest that identifies keys
// and wrapped blobs.
package digest

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Size is the digest width in bytes.
const Size = sha512.Size

// Digest is a SHA-512 hash. The zero value is the all-zero digest, which
// no real input produces.
type Digest [Size]byte

// Of hashes b.
func Of(b []byte) Digest {
	return Digest(sha512.Sum512(b))
}

// FromBytes copies a digest out of b, which must be exactly Size bytes.
func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, types.InvalidArgumentf("digest: want %d bytes, got %d", Size, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Equal compares two digests in constant time.
func (d Digest) Equal(other Digest) bool {
	return subtle.ConstantTimeCompare(d[:], other[:]) == 1
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Bytes returns a copy of the digest bytes.
func (d Digest) Bytes() []byte {
	return append([]byte(nil), d[:]...)
}

// String returns lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// GoString implements fmt.GoStringer for %#v.
func (d Digest) GoString() string {
	return "Digest(" + d.String() + ")"
}

// Short returns the first 8 bytes in hex, for logs and listings.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:8])
}

// EncodeMsgpack writes the digest as a 64-element byte sequence.
func (d *Digest) EncodeMsgpack(enc *msgpack.Encoder) error {
	return encoding.EncodeByteSeq(enc, d[:])
}

// DecodeMsgpack reads a digest, rejecting any length other than Size.
func (d *Digest) DecodeMsgpack(dec *msgpack.Decoder) error {
	return encoding.DecodeFixed(dec, d[:], "digest")
}
