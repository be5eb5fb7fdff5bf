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

package azurekv

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/keystore"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

func TestMain(m *testing.M) {
	if err := rand.Init(nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// mockClient XORs the value with a fixed pattern, keyed by name.
type mockClient struct {
	keys    map[string]byte
	lastAlg azkeys.EncryptionAlgorithm
	err     error
}

func (m *mockClient) xor(name string, in []byte) ([]byte, error) {
	pad, ok := m.keys[name]
	if !ok {
		return nil, errors.New("KeyNotFound")
	}
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ pad
	}
	return out, nil
}

func (m *mockClient) WrapKey(_ context.Context, name, _ string, params azkeys.KeyOperationParameters, _ *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error) {
	if m.err != nil {
		return azkeys.WrapKeyResponse{}, m.err
	}
	m.lastAlg = *params.Algorithm
	out, err := m.xor(name, params.Value)
	if err != nil {
		return azkeys.WrapKeyResponse{}, err
	}
	return azkeys.WrapKeyResponse{KeyOperationResult: azkeys.KeyOperationResult{Result: out}}, nil
}

func (m *mockClient) UnwrapKey(_ context.Context, name, _ string, params azkeys.KeyOperationParameters, _ *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error) {
	if m.err != nil {
		return azkeys.UnwrapKeyResponse{}, m.err
	}
	out, err := m.xor(name, params.Value)
	if err != nil {
		return azkeys.UnwrapKeyResponse{}, err
	}
	return azkeys.UnwrapKeyResponse{KeyOperationResult: azkeys.KeyOperationResult{Result: out}}, nil
}

func newMock() *mockClient {
	return &mockClient{keys: map[string]byte{"wrap": 0x5a, "other": 0xa5}}
}

func TestConfig(t *testing.T) {
	assert.ErrorIs(t, (&Config{KeyName: "k"}).Validate(), types.ErrInvalidArgument)
	assert.ErrorIs(t, (&Config{VaultURL: "https://v.vault.azure.net"}).Validate(), types.ErrInvalidArgument)

	cfg := &Config{VaultURL: "https://v.vault.azure.net/", KeyName: "wrap", KeyVersion: "abc"}
	assert.Equal(t, "https://v.vault.azure.net/keys/wrap/abc", cfg.ID())

	parsed, err := ParseID(cfg.ID())
	require.NoError(t, err)
	assert.Equal(t, "https://v.vault.azure.net", parsed.VaultURL)
	assert.Equal(t, "wrap", parsed.KeyName)
	assert.Equal(t, "abc", parsed.KeyVersion)

	_, err = ParseID("https://v.vault.azure.net")
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestAlgorithm(t *testing.T) {
	client := newMock()
	k, err := NewWithClient(&Config{VaultURL: "https://v", KeyName: "wrap"}, client)
	require.NoError(t, err)
	_, _, err = k.Encrypt([]byte("m"), nil)
	require.NoError(t, err)
	assert.Equal(t, azkeys.EncryptionAlgorithmRSAOAEP256, client.lastAlg)

	k, err = NewWithClient(&Config{VaultURL: "https://v", KeyName: "wrap", Algorithm: "A256KW"}, client)
	require.NoError(t, err)
	_, _, err = k.Encrypt([]byte("m"), nil)
	require.NoError(t, err)
	assert.Equal(t, azkeys.EncryptionAlgorithmA256KW, client.lastAlg)

	_, err = NewWithClient(&Config{VaultURL: "https://v", KeyName: "wrap", Algorithm: "ROT13"}, client)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestEncryptDecrypt(t *testing.T) {
	k, err := NewWithClient(&Config{VaultURL: "https://v", KeyName: "wrap"}, newMock())
	require.NoError(t, err)
	assert.Equal(t, userkey.Digest(userkey.SchemeAzureKV, "https://v/keys/wrap"), k.Digest())

	n, ct, err := k.Encrypt([]byte("master"), nil)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.NotEqual(t, "master", string(ct))

	pt, err := k.Decrypt(nil, ct)
	require.NoError(t, err)
	defer pt.Close()
	assert.Equal(t, "master", string(pt.UnsafeBytes()))

	missing, err := NewWithClient(&Config{VaultURL: "https://v", KeyName: "missing"}, newMock())
	require.NoError(t, err)
	_, _, err = missing.Encrypt([]byte("master"), nil)
	assert.ErrorIs(t, err, userkey.ErrRemoteEncrypt)
	_, err = missing.Decrypt(nil, ct)
	assert.ErrorIs(t, err, userkey.ErrRemoteDecrypt)
}

func TestWrapsKeystore(t *testing.T) {
	client := newMock()
	a, err := NewWithClient(&Config{VaultURL: "https://v", KeyName: "wrap"}, client)
	require.NoError(t, err)
	b, err := NewWithClient(&Config{VaultURL: "https://v", KeyName: "other"}, client)
	require.NoError(t, err)

	ks, err := keystore.Create(a)
	require.NoError(t, err)
	defer ks.Close()
	added, err := ks.AddUserKey(b)
	require.NoError(t, err)
	assert.True(t, added)

	data, err := ks.Serialize()
	require.NoError(t, err)
	opened, err := keystore.Open(data, b)
	require.NoError(t, err)
	defer opened.Close()
	assert.True(t, ks.MasterKey().Equal(opened.MasterKey()))
}
