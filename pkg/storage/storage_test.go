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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend(t *testing.T) {
	b := NewMemory()

	t.Run("put and get copy values", func(t *testing.T) {
		value := []byte("sealed")
		require.NoError(t, b.Put("keystores/a.kws", value, nil))
		value[0] = 'X'

		got, err := b.Get("keystores/a.kws")
		require.NoError(t, err)
		assert.Equal(t, "sealed", string(got))

		got[0] = 'Y'
		again, err := b.Get("keystores/a.kws")
		require.NoError(t, err)
		assert.Equal(t, "sealed", string(again))
	})

	t.Run("missing", func(t *testing.T) {
		_, err := b.Get("nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, b.Delete("nope"), ErrNotFound)

		ok, err := b.Exists("nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty key", func(t *testing.T) {
		assert.ErrorIs(t, b.Put("", nil, nil), ErrInvalidID)
	})

	t.Run("list sorted by prefix", func(t *testing.T) {
		require.NoError(t, b.Put("keystores/c.kws", nil, nil))
		require.NoError(t, b.Put("keystores/b.kws", nil, nil))
		require.NoError(t, b.Put("other", nil, nil))

		keys, err := b.List("keystores/")
		require.NoError(t, err)
		assert.Equal(t, []string{"keystores/a.kws", "keystores/b.kws", "keystores/c.kws"}, keys)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, b.Delete("other"))
		ok, err := b.Exists("other")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("closed", func(t *testing.T) {
		require.NoError(t, b.Close())
		_, err := b.Get("keystores/a.kws")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, b.Put("k", nil, nil), ErrClosed)
		_, err = b.List("")
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "keystores/vault.kws", KeystorePath("vault"))
	assert.Equal(t, "keystores/vault.salt", SaltPath("vault"))

	b := NewMemory()
	require.NoError(t, b.Put(KeystorePath("alpha"), []byte{1}, nil))
	require.NoError(t, b.Put(SaltPath("alpha"), []byte{2}, nil))
	require.NoError(t, b.Put(KeystorePath("beta"), []byte{3}, nil))

	names, err := ListKeystores(b)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.EqualValues(t, 0600, opts.Permissions)
	assert.NotNil(t, opts.Metadata)
}
