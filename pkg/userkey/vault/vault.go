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

// Package vault provides a user key held in a HashiCorp Vault Transit
// secrets engine.
package vault

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

// DefaultTransitPath is the default mount of the Transit engine.
const DefaultTransitPath = "transit"

// Client writes to a Vault path. *vault.Logical is adapted to it by New.
type Client interface {
	Write(ctx context.Context, path string, data map[string]any) (*vault.Secret, error)
}

type logicalClient struct {
	logical *vault.Logical
}

func (c logicalClient) Write(ctx context.Context, path string, data map[string]any) (*vault.Secret, error) {
	return c.logical.WriteWithContext(ctx, path, data)
}

// Config holds Vault settings.
type Config struct {
	// Address is the Vault server address. Defaults to VAULT_ADDR.
	Address string `yaml:"address,omitempty" json:"address,omitempty" mapstructure:"address"`

	// Token authenticates to Vault. Defaults to VAULT_TOKEN.
	Token string `yaml:"token,omitempty" json:"-" mapstructure:"token"`

	// Namespace is the Vault Enterprise namespace.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty" mapstructure:"namespace"`

	// TransitPath is the Transit mount. Defaults to "transit".
	TransitPath string `yaml:"transit_path,omitempty" json:"transit_path,omitempty" mapstructure:"transit_path"`

	// KeyName is the Transit key name.
	KeyName string `yaml:"key_name" json:"key_name" mapstructure:"key_name"`

	// TLSSkipVerify disables server certificate verification.
	TLSSkipVerify bool `yaml:"tls_skip_verify,omitempty" json:"tls_skip_verify,omitempty" mapstructure:"tls_skip_verify"`

	// Timeout bounds each Vault call. Zero means userkey.DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty" mapstructure:"timeout"`
}

// SetDefaults fills in default values.
func (c *Config) SetDefaults() {
	if c.TransitPath == "" {
		c.TransitPath = DefaultTransitPath
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return types.InvalidArgument("vault: config is required")
	}
	if c.KeyName == "" {
		return types.InvalidArgument("vault: key_name is required")
	}
	if strings.Contains(c.KeyName, "/") {
		return types.InvalidArgumentf("vault: invalid key name %q", c.KeyName)
	}
	return nil
}

// ID returns "<transit path>/<key name>".
func (c *Config) ID() string {
	return strings.Trim(c.TransitPath, "/") + "/" + c.KeyName
}

// ParseID splits "<transit path>/<key name>" into a Config.
func ParseID(id string) (*Config, error) {
	i := strings.LastIndex(id, "/")
	if i <= 0 || i == len(id)-1 {
		return nil, types.InvalidArgumentf("vault: malformed key id %q", id)
	}
	return &Config{TransitPath: id[:i], KeyName: id[i+1:]}, nil
}

// Key is a user key held in Vault Transit.
type Key struct {
	client Client
	cfg    Config
	digest digest.Digest
}

var _ key.Key = (*Key)(nil)

// New creates a Vault client from cfg and the VAULT_* environment.
func New(cfg *Config) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vaultConfig := vault.DefaultConfig()
	if vaultConfig.Error != nil {
		return nil, fmt.Errorf("%w: vault: %w", types.ErrIO, vaultConfig.Error)
	}
	if cfg.Address != "" {
		vaultConfig.Address = cfg.Address
	}
	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("%w: vault: failed to configure TLS: %w", types.ErrIO, err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: vault: failed to create client: %w", types.ErrIO, err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return NewWithClient(cfg, logicalClient{logical: client.Logical()})
}

// NewWithClient returns a key that talks to Vault through client.
func NewWithClient(cfg *Config, client Client) (*Key, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, types.InvalidArgument("vault: client is required")
	}
	c := *cfg
	c.SetDefaults()
	return &Key{
		client: client,
		cfg:    c,
		digest: userkey.Digest(userkey.SchemeVault, c.ID()),
	}, nil
}

// Digest returns the digest of the key reference.
func (k *Key) Digest() digest.Digest {
	return k.digest
}

// Encrypt encrypts plaintext with the Transit key. The stored ciphertext
// is Vault's own "vault:vN:..." string; the returned nonce is always nil.
func (k *Key) Encrypt(plaintext []byte, _ *nonce.Nonce) (*nonce.Nonce, []byte, error) {
	var ciphertext string
	err := userkey.Call(context.Background(), k.cfg.Timeout, metrics.OpRemoteEncrypt, userkey.ErrRemoteEncrypt, k.ref(),
		func(ctx context.Context) error {
			s, err := k.client.Write(ctx, k.path("encrypt"), map[string]any{
				"plaintext": base64.StdEncoding.EncodeToString(plaintext),
			})
			if err != nil {
				return err
			}
			ciphertext, err = field(s, "ciphertext")
			return err
		})
	if err != nil {
		return nil, nil, err
	}
	return nil, []byte(ciphertext), nil
}

// Decrypt asks Vault to decrypt ciphertext.
func (k *Key) Decrypt(_ *nonce.Nonce, ciphertext []byte) (*secret.Buffer, error) {
	var plaintext []byte
	err := userkey.Call(context.Background(), k.cfg.Timeout, metrics.OpRemoteDecrypt, userkey.ErrRemoteDecrypt, k.ref(),
		func(ctx context.Context) error {
			s, err := k.client.Write(ctx, k.path("decrypt"), map[string]any{
				"ciphertext": string(ciphertext),
			})
			if err != nil {
				return err
			}
			encoded, err := field(s, "plaintext")
			if err != nil {
				return err
			}
			plaintext, err = base64.StdEncoding.DecodeString(encoded)
			return err
		})
	if err != nil {
		return nil, err
	}
	return secret.NewFromBytes(plaintext)
}

// Serialize returns the key reference. No key material is exported.
func (k *Key) Serialize() (*secret.Buffer, error) {
	return userkey.SerializeReference(userkey.SchemeVault, k.cfg.ID())
}

func (k *Key) path(op string) string {
	return fmt.Sprintf("%s/%s/%s", strings.Trim(k.cfg.TransitPath, "/"), op, k.cfg.KeyName)
}

func (k *Key) ref() string {
	return userkey.Reference(userkey.SchemeVault, k.cfg.ID())
}

func field(s *vault.Secret, name string) (string, error) {
	if s == nil || s.Data == nil {
		return "", fmt.Errorf("empty response")
	}
	v, ok := s.Data[name].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("no %s in response", name)
	}
	return v, nil
}
