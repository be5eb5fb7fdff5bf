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

package symmetric

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/salt"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func TestParams(t *testing.T) {
	tests := []struct {
		name string
		ops  uint64
		mem  uint64
		want ScryptParams
	}{
		{"interactive", OpsLimitInteractive, MemLimitInteractive, ScryptParams{N: 1 << 14, R: 8, P: 1}},
		{"sensitive", OpsLimitSensitive, MemLimitSensitive, ScryptParams{N: 1 << 20, R: 8, P: 1}},
		{"ops bound", 1 << 20, 1 << 30, ScryptParams{N: 1 << 15, R: 8, P: 1}},
		{"ops floor", 0, 1 << 30, ScryptParams{N: 1 << 10, R: 8, P: 1}},
		{"mem bound raises p", 1 << 24, 1 << 20, ScryptParams{N: 1 << 10, R: 8, P: 512}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Params(tt.ops, tt.mem))
		})
	}
}

func TestProfileLimits(t *testing.T) {
	ops, mem, err := ProfileInteractive.Limits()
	require.NoError(t, err)
	assert.Equal(t, OpsLimitInteractive, ops)
	assert.Equal(t, MemLimitInteractive, mem)

	ops, mem, err = ProfileSensitive.Limits()
	require.NoError(t, err)
	assert.Equal(t, OpsLimitSensitive, ops)
	assert.Equal(t, MemLimitSensitive, mem)

	_, _, err = Profile("paranoid").Limits()
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func password(t *testing.T, s string) *secret.Buffer {
	t.Helper()
	pw, err := secret.NewFromBytes([]byte(s))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pw.Close() })
	return pw
}

func TestFromPassword(t *testing.T) {
	var zero salt.Salt

	a, err := FromPassword(password(t, "foo"), zero, OpsLimitInteractive, MemLimitInteractive)
	require.NoError(t, err)
	defer a.Close()

	b, err := FromPasswordProfile(password(t, "foo"), zero, ProfileInteractive)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, a.Digest(), b.Digest(), "derivation must be deterministic")

	other, err := FromPassword(password(t, "bar"), zero, OpsLimitInteractive, MemLimitInteractive)
	require.NoError(t, err)
	defer other.Close()
	assert.NotEqual(t, a.Digest(), other.Digest())

	s, err := salt.New()
	require.NoError(t, err)
	salted, err := FromPassword(password(t, "foo"), s, OpsLimitInteractive, MemLimitInteractive)
	require.NoError(t, err)
	defer salted.Close()
	assert.NotEqual(t, a.Digest(), salted.Digest())

	n, ct, err := a.Encrypt([]byte("hello"), nil)
	require.NoError(t, err)
	pt, err := b.Decrypt(n, ct)
	require.NoError(t, err)
	defer pt.Close()
	assert.Equal(t, "hello", string(pt.UnsafeBytes()))
}

func TestFromPasswordKnownVector(t *testing.T) {
	// scrypt("foo", 32 zero bytes, N=2^14, r=8, p=1)
	want, err := hex.DecodeString("79b517973924cf699219b4a426b1fee5cd079dde781a75003d819c1a0638eb44")
	require.NoError(t, err)

	k, err := FromPasswordProfile(password(t, "foo"), salt.Salt{}, ProfileInteractive)
	require.NoError(t, err)
	defer k.Close()
	assert.Equal(t, want, k.UnsafeBytes())
}

func TestFromPasswordUnknownProfile(t *testing.T) {
	_, err := FromPasswordProfile(password(t, "foo"), salt.Salt{}, "bogus")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}
