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

package awskms

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/wrapping"
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

// mockClient "encrypts" by prefixing the key ID, which is enough to check
// that ciphertext round-trips through the right key.
type mockClient struct {
	encryptErr error
	decryptErr error
	calls      int
}

func (m *mockClient) Encrypt(_ context.Context, in *kms.EncryptInput, _ ...func(*kms.Options)) (*kms.EncryptOutput, error) {
	m.calls++
	if m.encryptErr != nil {
		return nil, m.encryptErr
	}
	blob := append([]byte(*in.KeyId+"|"), in.Plaintext...)
	return &kms.EncryptOutput{CiphertextBlob: blob, KeyId: in.KeyId}, nil
}

func (m *mockClient) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	m.calls++
	if m.decryptErr != nil {
		return nil, m.decryptErr
	}
	prefix := []byte(*in.KeyId + "|")
	if !bytes.HasPrefix(in.CiphertextBlob, prefix) {
		return nil, errors.New("InvalidCiphertextException")
	}
	return &kms.DecryptOutput{Plaintext: bytes.Clone(in.CiphertextBlob[len(prefix):]), KeyId: in.KeyId}, nil
}

func TestConfigValidate(t *testing.T) {
	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), types.ErrInvalidArgument)
	assert.ErrorIs(t, (&Config{}).Validate(), types.ErrInvalidArgument)
	assert.ErrorIs(t, (&Config{KeyID: "k", AccessKeyID: "AKIA"}).Validate(), types.ErrInvalidArgument)
	assert.NoError(t, (&Config{KeyID: "alias/keywrap"}).Validate())

	_, err := NewWithClient(&Config{KeyID: "k"}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestDigest(t *testing.T) {
	a, err := NewWithClient(&Config{KeyID: "alias/a"}, &mockClient{})
	require.NoError(t, err)
	b, err := NewWithClient(&Config{KeyID: "alias/b"}, &mockClient{})
	require.NoError(t, err)

	assert.Equal(t, userkey.Digest(userkey.SchemeAWSKMS, "alias/a"), a.Digest())
	assert.NotEqual(t, a.Digest(), b.Digest())

	ref, err := a.Serialize()
	require.NoError(t, err)
	defer ref.Close()
	assert.Equal(t, "awskms:alias/a", string(ref.UnsafeBytes()))
}

func TestEncryptDecrypt(t *testing.T) {
	k, err := NewWithClient(&Config{KeyID: "alias/a"}, &mockClient{})
	require.NoError(t, err)

	n, ct, err := k.Encrypt([]byte("master"), nil)
	require.NoError(t, err)
	assert.Nil(t, n)

	pt, err := k.Decrypt(nil, ct)
	require.NoError(t, err)
	defer pt.Close()
	assert.Equal(t, "master", string(pt.UnsafeBytes()))
}

func TestFailuresAreCrypto(t *testing.T) {
	client := &mockClient{
		encryptErr: errors.New("AccessDeniedException"),
		decryptErr: errors.New("AccessDeniedException"),
	}
	k, err := NewWithClient(&Config{KeyID: "alias/a"}, client)
	require.NoError(t, err)

	_, _, err = k.Encrypt([]byte("x"), nil)
	assert.ErrorIs(t, err, userkey.ErrRemoteEncrypt)
	_, err = k.Decrypt(nil, []byte("x"))
	assert.ErrorIs(t, err, types.ErrCrypto)
	assert.NotContains(t, err.Error(), "AccessDenied")
}

func TestWrapsKeystore(t *testing.T) {
	client := &mockClient{}
	remote, err := NewWithClient(&Config{KeyID: "alias/a"}, client)
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

	// A different KMS key is rejected on digest alone, without a call.
	other, err := NewWithClient(&Config{KeyID: "alias/b"}, client)
	require.NoError(t, err)
	before := client.calls
	_, err = keystore.Open(data, other)
	assert.ErrorIs(t, err, keystore.ErrKeyNotPresent)
	assert.Equal(t, before, client.calls)

	master, err := symmetric.Random()
	require.NoError(t, err)
	defer master.Close()
	w, err := wrapping.Wrap(master, remote)
	require.NoError(t, err)
	assert.Nil(t, w.Nonce)
}
