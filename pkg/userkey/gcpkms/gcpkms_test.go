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

package gcpkms

import (
	"bytes"
	"context"
	"os"
	"testing"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/keystore"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

const keyName = "projects/p/locations/global/keyRings/r/cryptoKeys/keywrap"

func TestMain(m *testing.M) {
	if err := rand.Init(nil); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// mockClient reverses bytes and reports checksums the way Cloud KMS does.
type mockClient struct {
	err            error
	corruptCRC     bool
	skipVerifyFlag bool
	closed         bool
}

func reverse(b []byte) []byte {
	out := bytes.Clone(b)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (m *mockClient) Encrypt(_ context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	ct := reverse(req.Plaintext)
	crc := checksum(ct)
	if m.corruptCRC {
		crc++
	}
	return &kmspb.EncryptResponse{
		Name:                    req.Name,
		Ciphertext:              ct,
		CiphertextCrc32C:        wrapperspb.Int64(crc),
		VerifiedPlaintextCrc32C: !m.skipVerifyFlag && req.PlaintextCrc32C.GetValue() == checksum(req.Plaintext),
	}, nil
}

func (m *mockClient) Decrypt(_ context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	if req.CiphertextCrc32C.GetValue() != checksum(req.Ciphertext) {
		return nil, status.Error(codes.InvalidArgument, "checksum mismatch")
	}
	pt := reverse(req.Ciphertext)
	crc := checksum(pt)
	if m.corruptCRC {
		crc++
	}
	return &kmspb.DecryptResponse{Plaintext: pt, PlaintextCrc32C: wrapperspb.Int64(crc)}, nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func TestNewWithClient(t *testing.T) {
	_, err := NewWithClient(&Config{}, &mockClient{})
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
	_, err = NewWithClient(&Config{KeyName: keyName}, nil)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)

	client := &mockClient{}
	k, err := NewWithClient(&Config{KeyName: keyName}, client)
	require.NoError(t, err)
	assert.Equal(t, userkey.Digest(userkey.SchemeGCPKMS, keyName), k.Digest())
	require.NoError(t, k.Close())
	assert.True(t, client.closed)
}

func TestEncryptDecrypt(t *testing.T) {
	k, err := NewWithClient(&Config{KeyName: keyName}, &mockClient{})
	require.NoError(t, err)

	n, ct, err := k.Encrypt([]byte("master"), nil)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Equal(t, "retsam", string(ct))

	pt, err := k.Decrypt(nil, ct)
	require.NoError(t, err)
	defer pt.Close()
	assert.Equal(t, "master", string(pt.UnsafeBytes()))
}

func TestChecksumFailures(t *testing.T) {
	tests := map[string]*mockClient{
		"corrupt response":   {corruptCRC: true},
		"unverified request": {skipVerifyFlag: true},
		"rpc error":          {err: status.Error(codes.PermissionDenied, "denied")},
	}
	for name, client := range tests {
		t.Run(name, func(t *testing.T) {
			k, err := NewWithClient(&Config{KeyName: keyName}, client)
			require.NoError(t, err)
			_, _, err = k.Encrypt([]byte("master"), nil)
			assert.ErrorIs(t, err, userkey.ErrRemoteEncrypt)
		})
	}

	k, err := NewWithClient(&Config{KeyName: keyName}, &mockClient{corruptCRC: true})
	require.NoError(t, err)
	_, err = k.Decrypt(nil, []byte("x"))
	assert.ErrorIs(t, err, userkey.ErrRemoteDecrypt)
}

func TestWrapsKeystore(t *testing.T) {
	remote, err := NewWithClient(&Config{KeyName: keyName}, &mockClient{})
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
