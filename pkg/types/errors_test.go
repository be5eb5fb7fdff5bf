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

package types

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
		msg  string
	}{
		{"crypto", Crypto("decryption failed"), ErrCrypto, "crypto error: decryption failed"},
		{"invalid argument", InvalidArgument("bad nonce"), ErrInvalidArgument, "invalid argument: bad nonce"},
		{"invalid argument formatted", InvalidArgumentf("want %d bytes", 24), ErrInvalidArgument, "invalid argument: want 24 bytes"},
		{"precondition", Precondition("last key"), ErrPrecondition, "precondition failed: last key"},
		{"internal", Internal("scrypt"), ErrInternal, "internal error: scrypt"},
		{"io", IO("mlock", io.ErrUnexpectedEOF), ErrIO, "i/o error: mlock: unexpected EOF"},
		{"decode", Decode("keystore", nil), ErrDecode, "decode error: keystore"},
		{"encode", Encode("keystore", io.ErrShortWrite), ErrEncode, "encode error: keystore: short write"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.Equal(t, tt.kind, Kind(tt.err))
		})
	}
}

func TestIOKeepsCause(t *testing.T) {
	err := IO("read", io.ErrUnexpectedEOF)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrDecode)
}

func TestKindUnknown(t *testing.T) {
	assert.Nil(t, Kind(errors.New("plain")))
	assert.Nil(t, Kind(nil))
}
