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

package vault

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"

	vault "github.com/hashicorp/vault/api"
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

// mockTransit mimics the Transit encrypt/decrypt endpoints without any
// real cryptography: the ciphertext is "vault:v1:" plus the key name and
// the base64 plaintext.
type mockTransit struct {
	paths []string
	err   error
}

func (m *mockTransit) Write(_ context.Context, path string, data map[string]any) (*vault.Secret, error) {
	m.paths = append(m.paths, path)
	if m.err != nil {
		return nil, m.err
	}
	parts := strings.Split(path, "/")
	op, name := parts[len(parts)-2], parts[len(parts)-1]

	switch op {
	case "encrypt":
		return &vault.Secret{Data: map[string]any{
			"ciphertext": "vault:v1:" + name + ":" + data["plaintext"].(string),
		}}, nil
	case "decrypt":
		ct := data["ciphertext"].(string)
		prefix := "vault:v1:" + name + ":"
		if !strings.HasPrefix(ct, prefix) {
			return nil, errors.New("cipher: message authentication failed")
		}
		return &vault.Secret{Data: map[string]any{"plaintext": strings.TrimPrefix(ct, prefix)}}, nil
	}
	return nil, errors.New("unsupported path")
}

func TestConfig(t *testing.T) {
	assert.ErrorIs(t, (&Config{}).Validate(), types.ErrInvalidArgument)
	assert.ErrorIs(t, (&Config{KeyName: "a/b"}).Validate(), types.ErrInvalidArgument)

	k, err := NewWithClient(&Config{KeyName: "keywrap"}, &mockTransit{})
	require.NoError(t, err)
	assert.Equal(t, userkey.Digest(userkey.SchemeVault, "transit/keywrap"), k.Digest())

	cfg, err := ParseID("team/transit/keywrap")
	require.NoError(t, err)
	assert.Equal(t, "team/transit", cfg.TransitPath)
	assert.Equal(t, "keywrap", cfg.KeyName)

	for _, bad := range []string{"keywrap", "/keywrap", "transit/"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, types.ErrInvalidArgument, bad)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	client := &mockTransit{}
	k, err := NewWithClient(&Config{TransitPath: "/kw/", KeyName: "main"}, client)
	require.NoError(t, err)

	n, ct, err := k.Encrypt([]byte("master"), nil)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Equal(t, "vault:v1:main:"+base64.StdEncoding.EncodeToString([]byte("master")), string(ct))

	pt, err := k.Decrypt(nil, ct)
	require.NoError(t, err)
	defer pt.Close()
	assert.Equal(t, "master", string(pt.UnsafeBytes()))
	assert.Equal(t, []string{"kw/encrypt/main", "kw/decrypt/main"}, client.paths)
}

func TestFailures(t *testing.T) {
	k, err := NewWithClient(&Config{KeyName: "main"}, &mockTransit{err: errors.New("permission denied")})
	require.NoError(t, err)
	_, _, err = k.Encrypt([]byte("master"), nil)
	assert.ErrorIs(t, err, userkey.ErrRemoteEncrypt)

	k, err = NewWithClient(&Config{KeyName: "main"}, &mockTransit{})
	require.NoError(t, err)
	_, err = k.Decrypt(nil, []byte("vault:v1:other:AAAA"))
	assert.ErrorIs(t, err, types.ErrCrypto)
}

func TestWrapsKeystore(t *testing.T) {
	remote, err := NewWithClient(&Config{KeyName: "main"}, &mockTransit{})
	require.NoError(t, err)

	ks, err := keystore.Create(remote)
	require.NoError(t, err)
	defer ks.Close()
	data, err := ks.Serialize()
	require.NoError(t, err)

	opened, err := keystore.Open(data, remote)
	require.NoError(t, err)
	defer opened.Close()
	assert.True(t, ks.MasterKey().Equal(opened.MasterKey()))
}
