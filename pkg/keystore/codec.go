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

package keystore

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

const (
	fieldTokenNonce  = "token_nonce"
	fieldToken       = "token"
	fieldWrappedKeys = "wrapped_keys"

	// maxWrappedKeys bounds the entry count read from untrusted input.
	maxWrappedKeys = 1 << 16
)

// container is the persisted part of a keystore:
//
//	{"token_nonce": bin(24) | nil, "token": [uint], "wrapped_keys": [WrappedKey]}
type container struct {
	tokenNonce *nonce.Nonce
	token      []byte
	wrapped    []*wrapping.WrappedKey
}

func (c *container) indexOf(d digest.Digest) int {
	for i, w := range c.wrapped {
		if w.WrappingDigest().Equal(d) {
			return i
		}
	}
	return -1
}

// EncodeMsgpack writes the fields in a fixed order.
func (c *container) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldTokenNonce); err != nil {
		return err
	}
	if err := nonce.EncodeOptional(enc, c.tokenNonce); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldToken); err != nil {
		return err
	}
	if err := encoding.EncodeByteSeq(enc, c.token); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldWrappedKeys); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(c.wrapped)); err != nil {
		return err
	}
	for _, w := range c.wrapped {
		if err := w.EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a container. token and wrapped_keys are required; a
// missing token_nonce reads as nil. Unknown fields are skipped.
func (c *container) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := encoding.DecodeMapHeader(dec, "keystore")
	if err != nil {
		return err
	}

	var (
		out                    container
		haveToken, haveWrapped bool
	)
	for range n {
		name, err := dec.DecodeString()
		if err != nil {
			return types.Decode("keystore: field name", err)
		}
		switch name {
		case fieldTokenNonce:
			if out.tokenNonce, err = nonce.DecodeOptional(dec); err != nil {
				return err
			}
		case fieldToken:
			if out.token, err = encoding.DecodeByteSeq(dec, "keystore: token"); err != nil {
				return err
			}
			haveToken = true
		case fieldWrappedKeys:
			if out.wrapped, err = decodeWrapped(dec); err != nil {
				return err
			}
			haveWrapped = true
		default:
			if err := dec.Skip(); err != nil {
				return types.Decode("keystore: "+name, err)
			}
		}
	}

	switch {
	case !haveToken:
		return types.Decode(`keystore: missing field "token"`, nil)
	case !haveWrapped:
		return types.Decode(`keystore: missing field "wrapped_keys"`, nil)
	}
	*c = out
	return nil
}

func decodeWrapped(dec *msgpack.Decoder) ([]*wrapping.WrappedKey, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, types.Decode("keystore: wrapped_keys", err)
	}
	if n < 0 {
		return nil, types.Decode("keystore: wrapped_keys: unexpected nil", nil)
	}
	if n > maxWrappedKeys {
		return nil, types.Decode("keystore: wrapped_keys: too many entries", nil)
	}

	out := make([]*wrapping.WrappedKey, 0, n)
	for range n {
		w := &wrapping.WrappedKey{}
		if err := w.DecodeMsgpack(dec); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
