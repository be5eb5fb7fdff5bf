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

package userkey

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/ratelimit"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func TestParse(t *testing.T) {
	tests := []struct {
		ref    string
		scheme string
		id     string
		ok     bool
	}{
		{"awskms:alias/keywrap", SchemeAWSKMS, "alias/keywrap", true},
		{"gcpkms:projects/p/locations/l/keyRings/r/cryptoKeys/k", SchemeGCPKMS, "projects/p/locations/l/keyRings/r/cryptoKeys/k", true},
		{"azurekv:https://v.vault.azure.net/keys/k", SchemeAzureKV, "https://v.vault.azure.net/keys/k", true},
		{"vault:transit/keywrap", SchemeVault, "transit/keywrap", true},
		{"pkcs11:slot", "", "", false},
		{"awskms:", "", "", false},
		{"keyfile.bin", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			scheme, id, err := Parse(tt.ref)
			if !tt.ok {
				assert.ErrorIs(t, err, types.ErrInvalidArgument)
				assert.False(t, IsReference(tt.ref))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.id, id)
			assert.True(t, IsReference(tt.ref))
		})
	}
}

func TestDigest(t *testing.T) {
	assert.Equal(t, digest.Of([]byte("awskms:k")), Digest(SchemeAWSKMS, "k"))
	assert.NotEqual(t, Digest(SchemeAWSKMS, "k"), Digest(SchemeVault, "k"))

	buf, err := SerializeReference(SchemeVault, "transit/k")
	require.NoError(t, err)
	defer buf.Close()
	assert.Equal(t, "vault:transit/k", string(buf.UnsafeBytes()))
}

func TestCall(t *testing.T) {
	err := Call(context.Background(), 0, "test", ErrRemoteDecrypt, "vault:k", func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)

	err = Call(context.Background(), time.Second, "test", ErrRemoteDecrypt, "vault:k", func(context.Context) error {
		return errors.New("permission denied for token s.abc")
	})
	assert.ErrorIs(t, err, ErrRemoteDecrypt)
	assert.ErrorIs(t, err, types.ErrCrypto)
	assert.NotContains(t, err.Error(), "s.abc")

	err = Call(context.Background(), time.Millisecond, "test", ErrRemoteEncrypt, "vault:k", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrRemoteEncrypt)
}

func TestCall_RateLimit(t *testing.T) {
	SetRateLimit(&ratelimit.Config{Enabled: true, RequestsPerMinute: 1, Burst: 1})
	t.Cleanup(func() { SetRateLimit(nil) })

	calls := 0
	fn := func(context.Context) error {
		calls++
		return nil
	}

	require.NoError(t, Call(context.Background(), time.Second, "test", ErrRemoteDecrypt, "vault:k", fn))

	// the next token is a minute away, past the timeout
	err := Call(context.Background(), 50*time.Millisecond, "test", ErrRemoteDecrypt, "vault:k", fn)
	assert.ErrorIs(t, err, ErrRemoteDecrypt)
	assert.Equal(t, 1, calls)

	// other references have their own budget
	require.NoError(t, Call(context.Background(), time.Second, "test", ErrRemoteDecrypt, "vault:other", fn))
	assert.Equal(t, 2, calls)

	SetRateLimit(nil)
	require.NoError(t, Call(context.Background(), time.Second, "test", ErrRemoteDecrypt, "vault:k", fn))
	assert.Equal(t, 3, calls)
}
