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

package digest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func TestOf(t *testing.T) {
	// SHA-512("abc")
	const want = "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a" +
		"2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"

	d := Of([]byte("abc"))
	assert.Equal(t, want, d.String())
	assert.Equal(t, want[:16], d.Short())
	assert.Equal(t, "Digest("+want+")", fmt.Sprintf("%#v", d))
	assert.Equal(t, d, Of([]byte("abc")))
	assert.NotEqual(t, d, Of([]byte("abd")))
}

func TestEqual(t *testing.T) {
	a := Of([]byte("a"))
	b := Of([]byte("b"))
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
	assert.True(t, Digest{}.IsZero())
	assert.False(t, a.IsZero())
}

func TestFromBytes(t *testing.T) {
	d := Of([]byte("key"))

	got, err := FromBytes(d.Bytes())
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = FromBytes(d.Bytes()[:63])
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestMsgpack(t *testing.T) {
	d := Of([]byte("key"))

	data, err := encoding.Marshal(&d)
	require.NoError(t, err)
	// array16 header: 64 elements do not fit a fixarray
	assert.Equal(t, []byte{0xdc, 0x00, 0x40}, data[:3])

	var got Digest
	require.NoError(t, encoding.Unmarshal(data, &got))
	assert.Equal(t, d, got)

	t.Run("bin accepted", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, msgpack.NewEncoder(&buf).EncodeBytes(d[:]))
		var got Digest
		require.NoError(t, encoding.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, d, got)
	})

	t.Run("wrong length rejected", func(t *testing.T) {
		for _, n := range []int{0, 32, 63, 65} {
			var buf bytes.Buffer
			require.NoError(t, encoding.EncodeByteSeq(msgpack.NewEncoder(&buf), make([]byte, n)))
			var got Digest
			assert.ErrorIs(t, encoding.Unmarshal(buf.Bytes(), &got), types.ErrDecode, "length %d", n)
		}
	})
}
