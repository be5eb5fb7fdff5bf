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

// Package encoding holds the MessagePack framing helpers shared by the
// digest, nonce, salt, key and keystore codecs.
//
// Two byte layouts appear in persisted containers. Nonces and salts are raw
// bin blobs. Digests, key material, tokens and ciphertext are sequences of
// unsigned integers, one per byte. Decoders accept either layout for every
// byte field so older and newer writers interoperate.
package encoding

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// MaxSeqLen bounds integer-array byte fields so a corrupt length prefix
// cannot force a huge allocation.
const MaxSeqLen = 16 << 20

// Encodable is implemented by every persisted go-keywrap type.
type Encodable interface {
	EncodeMsgpack(enc *msgpack.Encoder) error
}

// Decodable is implemented by every persisted go-keywrap type.
type Decodable interface {
	DecodeMsgpack(dec *msgpack.Decoder) error
}

// Marshal encodes v into a new byte slice.
func Marshal(v Encodable) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes v onto w.
func Write(w io.Writer, v Encodable) error {
	enc := msgpack.NewEncoder(w)
	if err := v.EncodeMsgpack(enc); err != nil {
		return wrapEncode(err)
	}
	return nil
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v Decodable) error {
	return Read(bytes.NewReader(data), v)
}

// Read decodes a single value from r into v.
func Read(r io.Reader, v Decodable) error {
	dec := msgpack.NewDecoder(r)
	if err := v.DecodeMsgpack(dec); err != nil {
		return wrapDecode(err)
	}
	return nil
}

// EncodeByteSeq writes b as an array of unsigned integers.
func EncodeByteSeq(enc *msgpack.Encoder, b []byte) error {
	if err := enc.EncodeArrayLen(len(b)); err != nil {
		return err
	}
	for _, c := range b {
		if err := enc.EncodeUint(uint64(c)); err != nil {
			return err
		}
	}
	return nil
}

// EncodeBlob writes b as a bin blob. A nil slice is written as an empty
// blob, never as nil.
func EncodeBlob(enc *msgpack.Encoder, b []byte) error {
	if b == nil {
		b = []byte{}
	}
	return enc.EncodeBytes(b)
}

// DecodeByteSeq reads a byte field written either as a bin blob or as an
// array of unsigned integers.
func DecodeByteSeq(dec *msgpack.Decoder, what string) ([]byte, error) {
	isBin, n, err := peekByteField(dec, what)
	if err != nil {
		return nil, err
	}
	if isBin {
		b, err := dec.DecodeBytes()
		if err != nil {
			return nil, types.Decode(what, err)
		}
		if b == nil {
			b = []byte{}
		}
		return b, nil
	}

	if n > MaxSeqLen {
		return nil, types.Decode(fmt.Sprintf("%s: %d elements exceeds limit", what, n), nil)
	}
	out := make([]byte, n)
	if err := decodeElements(dec, out, what); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeFixed reads a byte field of exactly len(dst) bytes into dst. Array
// input is decoded straight into dst, so dst may be locked memory; bin
// input passes through a heap copy that is zeroed afterwards.
func DecodeFixed(dec *msgpack.Decoder, dst []byte, what string) error {
	isBin, n, err := peekByteField(dec, what)
	if err != nil {
		return err
	}
	if isBin {
		b, err := dec.DecodeBytes()
		if err != nil {
			return types.Decode(what, err)
		}
		defer clear(b)
		if len(b) != len(dst) {
			return types.Decode(fmt.Sprintf("%s: want %d bytes, got %d", what, len(dst), len(b)), nil)
		}
		copy(dst, b)
		return nil
	}

	if n != len(dst) {
		return types.Decode(fmt.Sprintf("%s: want %d bytes, got %d", what, len(dst), n), nil)
	}
	return decodeElements(dec, dst, what)
}

// DecodeNilOr consumes a nil and reports false, or leaves a non-nil value
// in place and reports true.
func DecodeNilOr(dec *msgpack.Decoder) (present bool, err error) {
	c, err := dec.PeekCode()
	if err != nil {
		return false, err
	}
	if c == msgpcode.Nil {
		return false, dec.DecodeNil()
	}
	return true, nil
}

// DecodeMapHeader reads a map header and rejects nil or non-map values.
func DecodeMapHeader(dec *msgpack.Decoder, what string) (int, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return 0, types.Decode(what, err)
	}
	if n < 0 {
		return 0, types.Decode(what+": unexpected nil", nil)
	}
	return n, nil
}

// peekByteField reports whether the next value is bin, or returns the
// length of the array that follows.
func peekByteField(dec *msgpack.Decoder, what string) (isBin bool, n int, err error) {
	c, err := dec.PeekCode()
	if err != nil {
		return false, 0, types.Decode(what, err)
	}
	switch {
	case c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32:
		return true, 0, nil
	case c == msgpcode.Nil:
		return false, 0, types.Decode(what+": unexpected nil", nil)
	}

	n, err = dec.DecodeArrayLen()
	if err != nil {
		return false, 0, types.Decode(what, err)
	}
	return false, n, nil
}

func decodeElements(dec *msgpack.Decoder, dst []byte, what string) error {
	for i := range dst {
		v, err := dec.DecodeUint64()
		if err != nil {
			return types.Decode(what, err)
		}
		if v > 0xff {
			return types.Decode(fmt.Sprintf("%s: element %d out of byte range", what, i), nil)
		}
		dst[i] = byte(v)
	}
	return nil
}

func wrapDecode(err error) error {
	if types.Kind(err) != nil {
		return err
	}
	return types.Decode("msgpack", err)
}

func wrapEncode(err error) error {
	if types.Kind(err) != nil {
		return err
	}
	return types.Encode("msgpack", err)
}
