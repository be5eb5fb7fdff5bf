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

// Package gcpkms provides a user key held in Google Cloud KMS.
//
// Requests and responses carry CRC32C checksums, which are verified on
// both sides as the service recommends.
package gcpkms

import (
	"context"
	"fmt"
	"hash/crc32"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// Client is the subset of the KMS API used to wrap and unwrap.
type Client interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
	Close() error
}

// realClient adapts *kms.KeyManagementClient to Client.
type realClient struct {
	*kms.KeyManagementClient
}

func (r *realClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error) {
	return r.KeyManagementClient.Encrypt(ctx, req)
}

func (r *realClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error) {
	return r.KeyManagementClient.Decrypt(ctx, req)
}

// Config holds Cloud KMS settings.
type Config struct {
	// KeyName is the full CryptoKey resource name:
	// projects/P/locations/L/keyRings/R/cryptoKeys/K
	KeyName string `yaml:"key_name" json:"key_name" mapstructure:"key_name"`

	// CredentialsFile is a service account JSON file. Optional - Application
	// Default Credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty" mapstructure:"credentials_file"`

	// Endpoint overrides the API endpoint, e.g. for an emulator.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" mapstructure:"endpoint"`

	// Timeout bounds each KMS call. Zero means userkey.DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return types.InvalidArgument("gcpkms: config is required")
	}
	if c.KeyName == "" {
		return types.InvalidArgument("gcpkms: key_name is required")
	}
	return nil
}

// Key is a user key held in Cloud KMS.
type Key struct {
	client  Client
	name    string
	timeout time.Duration
	digest  digest.Digest
}

var _ key.Key = (*Key)(nil)

// New dials Cloud KMS and returns a key backed by a real client. Close the
// key to release the connection.
func New(ctx context.Context, cfg *Config) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: gcpkms: failed to create KMS client: %w", types.ErrIO, err)
	}
	return NewWithClient(cfg, &realClient{KeyManagementClient: client})
}

// NewWithClient returns a key that talks to KMS through client.
func NewWithClient(cfg *Config, client Client) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, types.InvalidArgument("gcpkms: client is required")
	}
	return &Key{
		client:  client,
		name:    cfg.KeyName,
		timeout: cfg.Timeout,
		digest:  userkey.Digest(userkey.SchemeGCPKMS, cfg.KeyName),
	}, nil
}

// Digest returns the digest of the key reference.
func (k *Key) Digest() digest.Digest {
	return k.digest
}

// Encrypt encrypts plaintext under the CryptoKey's primary version. The
// returned nonce is always nil.
func (k *Key) Encrypt(plaintext []byte, _ *nonce.Nonce) (*nonce.Nonce, []byte, error) {
	var resp *kmspb.EncryptResponse
	err := userkey.Call(context.Background(), k.timeout, metrics.OpRemoteEncrypt, userkey.ErrRemoteEncrypt, k.ref(),
		func(ctx context.Context) (err error) {
			resp, err = k.client.Encrypt(ctx, &kmspb.EncryptRequest{
				Name:            k.name,
				Plaintext:       plaintext,
				PlaintextCrc32C: wrapperspb.Int64(checksum(plaintext)),
			})
			if err != nil {
				return withCode(err)
			}
			switch {
			case !resp.VerifiedPlaintextCrc32C:
				return fmt.Errorf("request corrupted in transit")
			case resp.CiphertextCrc32C != nil && resp.CiphertextCrc32C.Value != checksum(resp.Ciphertext):
				return fmt.Errorf("ciphertext checksum mismatch")
			}
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	return nil, resp.Ciphertext, nil
}

// Decrypt asks KMS to decrypt ciphertext. KMS picks the key version from
// the ciphertext, so entries survive key rotation.
func (k *Key) Decrypt(_ *nonce.Nonce, ciphertext []byte) (*secret.Buffer, error) {
	var resp *kmspb.DecryptResponse
	err := userkey.Call(context.Background(), k.timeout, metrics.OpRemoteDecrypt, userkey.ErrRemoteDecrypt, k.ref(),
		func(ctx context.Context) (err error) {
			resp, err = k.client.Decrypt(ctx, &kmspb.DecryptRequest{
				Name:             k.name,
				Ciphertext:       ciphertext,
				CiphertextCrc32C: wrapperspb.Int64(checksum(ciphertext)),
			})
			if err != nil {
				return withCode(err)
			}
			if resp.PlaintextCrc32C != nil && resp.PlaintextCrc32C.Value != checksum(resp.Plaintext) {
				secret.Zero(resp.Plaintext)
				return fmt.Errorf("plaintext checksum mismatch")
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return secret.NewFromBytes(resp.Plaintext)
}

// Serialize returns the key reference. No key material is exported.
func (k *Key) Serialize() (*secret.Buffer, error) {
	return userkey.SerializeReference(userkey.SchemeGCPKMS, k.name)
}

// Close releases the client connection.
func (k *Key) Close() error {
	if err := k.client.Close(); err != nil {
		logging.Default().Warn("gcpkms: failed to close client", "error", err)
		return err
	}
	return nil
}

func (k *Key) ref() string {
	return userkey.Reference(userkey.SchemeGCPKMS, k.name)
}

func checksum(b []byte) int64 {
	return int64(crc32.Checksum(b, crc32cTable))
}

// withCode prefixes the gRPC status code for the debug log.
func withCode(err error) error {
	return fmt.Errorf("%s: %w", status.Code(err), err)
}
