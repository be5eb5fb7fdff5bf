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

// Package awskms provides a user key held in AWS KMS.
package awskms

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmstypes "github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

// Client is the subset of the KMS API used to wrap and unwrap. It is
// satisfied by *kms.Client.
type Client interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Config holds AWS KMS settings.
type Config struct {
	// KeyID is a key ID, key ARN, alias name or alias ARN.
	KeyID string `yaml:"key_id" json:"key_id" mapstructure:"key_id"`

	// Region is the AWS region. Optional when set in the environment.
	Region string `yaml:"region,omitempty" json:"region,omitempty" mapstructure:"region"`

	// AccessKeyID, SecretAccessKey and SessionToken are static credentials.
	// Optional - if not provided, will use IAM role or environment credentials.
	AccessKeyID     string `yaml:"access_key_id,omitempty" json:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" json:"-" mapstructure:"secret_access_key"`
	SessionToken    string `yaml:"session_token,omitempty" json:"-" mapstructure:"session_token"`

	// Endpoint is a custom KMS endpoint URL, e.g. "http://localhost:4566"
	// for LocalStack.
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty" mapstructure:"endpoint"`

	// Timeout bounds each KMS call. Zero means userkey.DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return types.InvalidArgument("awskms: config is required")
	}
	if c.KeyID == "" {
		return types.InvalidArgument("awskms: key_id is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return types.InvalidArgument("awskms: access_key_id and secret_access_key must be set together")
	}
	return nil
}

// Key is a user key held in AWS KMS.
type Key struct {
	client  Client
	keyID   string
	timeout time.Duration
	digest  digest.Digest
}

var _ key.Key = (*Key)(nil)

// New loads the default AWS configuration, applies cfg on top and returns
// a key backed by a real KMS client.
func New(ctx context.Context, cfg *Config) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: awskms: failed to load AWS config: %w", types.ErrIO, err)
	}

	var clientOpts []func(*kms.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *kms.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	return NewWithClient(cfg, kms.NewFromConfig(awsCfg, clientOpts...))
}

// NewWithClient returns a key that talks to KMS through client.
func NewWithClient(cfg *Config, client Client) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, types.InvalidArgument("awskms: client is required")
	}
	return &Key{
		client:  client,
		keyID:   cfg.KeyID,
		timeout: cfg.Timeout,
		digest:  userkey.Digest(userkey.SchemeAWSKMS, cfg.KeyID),
	}, nil
}

// Digest returns the digest of the key reference.
func (k *Key) Digest() digest.Digest {
	return k.digest
}

// Encrypt encrypts plaintext under the KMS key. KMS manages its own IV, so
// the returned nonce is always nil and n is ignored.
func (k *Key) Encrypt(plaintext []byte, _ *nonce.Nonce) (*nonce.Nonce, []byte, error) {
	var out *kms.EncryptOutput
	err := userkey.Call(context.Background(), k.timeout, metrics.OpRemoteEncrypt, userkey.ErrRemoteEncrypt, k.ref(),
		func(ctx context.Context) (err error) {
			out, err = k.client.Encrypt(ctx, &kms.EncryptInput{
				KeyId:               aws.String(k.keyID),
				Plaintext:           plaintext,
				EncryptionAlgorithm: kmstypes.EncryptionAlgorithmSpecSymmetricDefault,
			})
			if err == nil && len(out.CiphertextBlob) == 0 {
				err = fmt.Errorf("empty ciphertext")
			}
			return err
		})
	if err != nil {
		return nil, nil, err
	}
	return nil, out.CiphertextBlob, nil
}

// Decrypt asks KMS to decrypt ciphertext. The plaintext is moved into
// locked memory.
func (k *Key) Decrypt(_ *nonce.Nonce, ciphertext []byte) (*secret.Buffer, error) {
	var out *kms.DecryptOutput
	err := userkey.Call(context.Background(), k.timeout, metrics.OpRemoteDecrypt, userkey.ErrRemoteDecrypt, k.ref(),
		func(ctx context.Context) (err error) {
			out, err = k.client.Decrypt(ctx, &kms.DecryptInput{
				KeyId:               aws.String(k.keyID),
				CiphertextBlob:      ciphertext,
				EncryptionAlgorithm: kmstypes.EncryptionAlgorithmSpecSymmetricDefault,
			})
			return err
		})
	if err != nil {
		return nil, err
	}
	return secret.NewFromBytes(out.Plaintext)
}

// Serialize returns the key reference. No key material is exported.
func (k *Key) Serialize() (*secret.Buffer, error) {
	return userkey.SerializeReference(userkey.SchemeAWSKMS, k.keyID)
}

func (k *Key) ref() string {
	return userkey.Reference(userkey.SchemeAWSKMS, k.keyID)
}
