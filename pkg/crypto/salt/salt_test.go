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

package salt

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func TestMain(m *testing.M) {
	if err := rand.Init(nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestNew(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, Salt{}, a)
}

func TestFromBytes(t *testing.T) {
	s, err := FromBytes(make([]byte, Size))
	require.NoError(t, err)
	assert.Equal(t, Salt{}, s)

	_, err = FromBytes(make([]byte, Size+1))
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = FromBytes(nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestMsgpackIsRawBlob(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	data, err := encoding.Marshal(&s)
	require.NoError(t, err)
	require.Len(t, data, 2+Size)
	assert.Equal(t, []byte{0xc4, Size}, data[:2])
	assert.Equal(t, s[:], data[2:])

	var got Salt
	require.NoError(t, encoding.Unmarshal(data, &got))
	assert.Equal(t, s, got)
	assert.Equal(t, s.String(), got.String())
}
