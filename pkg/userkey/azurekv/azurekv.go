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

// Package azurekv provides a user key held in Azure Key Vault. The master
// key is wrapped with the vault key's WrapKey operation.
package azurekv

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

// DefaultAlgorithm is used when Config.Algorithm is empty.
const DefaultAlgorithm = azkeys.EncryptionAlgorithmRSAOAEP256

// Client is the subset of the Key Vault API used to wrap and unwrap. It is
// satisfied by *azkeys.Client.
type Client interface {
	WrapKey(ctx context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error)
	UnwrapKey(ctx context.Context, keyName, keyVersion string, params azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

// Config holds Key Vault settings.
type Config struct {
	// VaultURL is the vault endpoint, e.g. https://myvault.vault.azure.net
	VaultURL string `yaml:"vault_url" json:"vault_url" mapstructure:"vault_url"`

	// KeyName is the name of the key in the vault.
	KeyName string `yaml:"key_name" json:"key_name" mapstructure:"key_name"`

	// KeyVersion pins a key version. Empty means the current version for
	// wrapping; unwrapping always uses the version recorded at wrap time.
	KeyVersion string `yaml:"key_version,omitempty" json:"key_version,omitempty" mapstructure:"key_version"`

	// Algorithm is the wrap algorithm, e.g. RSA-OAEP-256 or A256KW.
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty" mapstructure:"algorithm"`

	// TenantID, ClientID and ClientSecret select service principal
	// authentication. DefaultAzureCredential is used when any is empty.
	TenantID     string `yaml:"tenant_id,omitempty" json:"tenant_id,omitempty" mapstructure:"tenant_id"`
	ClientID     string `yaml:"client_id,omitempty" json:"client_id,omitempty" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret,omitempty" json:"-" mapstructure:"client_secret"`

	// Timeout bounds each vault call. Zero means userkey.DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return types.InvalidArgument("azurekv: config is required")
	}
	if c.VaultURL == "" {
		return types.InvalidArgument("azurekv: vault_url is required")
	}
	if c.KeyName == "" {
		return types.InvalidArgument("azurekv: key_name is required")
	}
	return nil
}

// ID returns the key identifier used as the reference: the vault URL,
// key name and, if pinned, the version.
func (c *Config) ID() string {
	id := strings.TrimSuffix(c.VaultURL, "/") + "/keys/" + c.KeyName
	if c.KeyVersion != "" {
		id += "/" + c.KeyVersion
	}
	return id
}

// ParseID splits a key identifier of the form
// https://VAULT/keys/NAME[/VERSION] into a Config.
func ParseID(id string) (*Config, error) {
	vaultURL, rest, ok := strings.Cut(id, "/keys/")
	if !ok || vaultURL == "" || rest == "" {
		return nil, types.InvalidArgumentf("azurekv: malformed key id %q", id)
	}
	name, version, _ := strings.Cut(rest, "/")
	return &Config{VaultURL: vaultURL, KeyName: name, KeyVersion: version}, nil
}

// Key is a user key held in Azure Key Vault.
type Key struct {
	client    Client
	cfg       Config
	algorithm azkeys.EncryptionAlgorithm
	digest    digest.Digest
}

var _ key.Key = (*Key)(nil)

// New builds a credential from cfg and returns a key backed by a real
// Key Vault client.
func New(cfg *Config) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		cred azcore.TokenCredential
		err  error
	)
	if cfg.TenantID != "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
		cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	} else {
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: azurekv: failed to create credential: %w", types.ErrIO, err)
	}

	client, err := azkeys.NewClient(cfg.VaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: azurekv: failed to create client: %w", types.ErrIO, err)
	}
	return NewWithClient(cfg, client)
}

// NewWithClient returns a key that talks to Key Vault through client.
func NewWithClient(cfg *Config, client Client) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, types.InvalidArgument("azurekv: client is required")
	}

	alg := DefaultAlgorithm
	if cfg.Algorithm != "" {
		alg = azkeys.EncryptionAlgorithm(cfg.Algorithm)
		if !supported(alg) {
			return nil, types.InvalidArgumentf("azurekv: unsupported algorithm %q", cfg.Algorithm)
		}
	}
	return &Key{
		client:    client,
		cfg:       *cfg,
		algorithm: alg,
		digest:    userkey.Digest(userkey.SchemeAzureKV, cfg.ID()),
	}, nil
}

func supported(alg azkeys.EncryptionAlgorithm) bool {
	for _, a := range azkeys.PossibleEncryptionAlgorithmValues() {
		if a == alg {
			return true
		}
	}
	return false
}

// Digest returns the digest of the key reference.
func (k *Key) Digest() digest.Digest {
	return k.digest
}

// Encrypt wraps plaintext with the vault key. The returned nonce is always
// nil.
func (k *Key) Encrypt(plaintext []byte, _ *nonce.Nonce) (*nonce.Nonce, []byte, error) {
	var resp azkeys.WrapKeyResponse
	err := userkey.Call(context.Background(), k.cfg.Timeout, metrics.OpRemoteEncrypt, userkey.ErrRemoteEncrypt, k.ref(),
		func(ctx context.Context) (err error) {
			resp, err = k.client.WrapKey(ctx, k.cfg.KeyName, k.cfg.KeyVersion, azkeys.KeyOperationParameters{
				Algorithm: to.Ptr(k.algorithm),
				Value:     plaintext,
			}, nil)
			if err == nil && len(resp.Result) == 0 {
				err = fmt.Errorf("empty result")
			}
			return err
		})
	if err != nil {
		return nil, nil, err
	}
	return nil, resp.Result, nil
}

// Decrypt unwraps ciphertext with the vault key.
func (k *Key) Decrypt(_ *nonce.Nonce, ciphertext []byte) (*secret.Buffer, error) {
	var resp azkeys.UnwrapKeyResponse
	err := userkey.Call(context.Background(), k.cfg.Timeout, metrics.OpRemoteDecrypt, userkey.ErrRemoteDecrypt, k.ref(),
		func(ctx context.Context) (err error) {
			resp, err = k.client.UnwrapKey(ctx, k.cfg.KeyName, k.cfg.KeyVersion, azkeys.KeyOperationParameters{
				Algorithm: to.Ptr(k.algorithm),
				Value:     ciphertext,
			}, nil)
			return err
		})
	if err != nil {
		return nil, err
	}
	return secret.NewFromBytes(resp.Result)
}

// Serialize returns the key reference. No key material is exported.
func (k *Key) Serialize() (*secret.Buffer, error) {
	return userkey.SerializeReference(userkey.SchemeAzureKV, k.cfg.ID())
}

func (k *Key) ref() string {
	return userkey.Reference(userkey.SchemeAzureKV, k.cfg.ID())
}
