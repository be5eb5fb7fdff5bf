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

// Package config loads the keywrap tool configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/ratelimit"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/awskms"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/azurekv"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/gcpkms"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/vault"
)

// Storage backends
const (
	StorageFile   = "file"
	StorageMemory = "memory"
)

// Config represents the complete tool configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	RNG     rand.Config   `yaml:"rng"`
	KDF     KDFConfig     `yaml:"kdf"`
	Remote  RemoteConfig  `yaml:"remote"`
}

// StorageConfig selects where keystores and password salts are kept
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls metrics collection. The CLI is short-lived, so
// metrics are written to a node_exporter textfile on exit rather than
// served.
type MetricsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile"`
}

// KDFConfig selects the password derivation profile
type KDFConfig struct {
	Profile symmetric.Profile `yaml:"profile"`
}

// RemoteConfig holds connection settings for remote user keys. The key
// itself is named by the reference given on the command line.
type RemoteConfig struct {
	AWSKMS  *awskms.Config  `yaml:"awskms,omitempty"`
	GCPKMS  *gcpkms.Config  `yaml:"gcpkms,omitempty"`
	AzureKV *azurekv.Config `yaml:"azurekv,omitempty"`
	Vault   *vault.Config   `yaml:"vault,omitempty"`

	// RateLimit throttles calls per remote key reference.
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{Backend: StorageFile, Path: DefaultDataDir()},
		Logging: LoggingConfig{Level: "info", Format: string(logging.FormatText)},
		RNG:     rand.Config{Mode: rand.ModeAuto},
		KDF:     KDFConfig{Profile: symmetric.ProfileInteractive},
	}
}

// DefaultDataDir returns $XDG_DATA_HOME/keywrap, falling back to
// ~/.local/share/keywrap.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "keywrap")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "keywrap")
	}
	return "keywrap"
}

// Load reads configuration from a YAML file over the defaults and applies
// environment variable overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if backend := os.Getenv("KEYWRAP_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataDir := os.Getenv("KEYWRAP_DATA_DIR"); dataDir != "" {
		cfg.Storage.Path = dataDir
	}

	// Logging
	if level := os.Getenv("KEYWRAP_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("KEYWRAP_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	// Metrics
	if enabled := os.Getenv("KEYWRAP_METRICS_ENABLED"); enabled != "" {
		v, err := strconv.ParseBool(enabled)
		if err != nil {
			logging.Default().Warnf("invalid KEYWRAP_METRICS_ENABLED value %q, keeping %t: %v",
				enabled, cfg.Metrics.Enabled, err)
		} else {
			cfg.Metrics.Enabled = v
		}
	}
	if textfile := os.Getenv("KEYWRAP_METRICS_TEXTFILE"); textfile != "" {
		cfg.Metrics.Textfile = textfile
	}

	if profile := os.Getenv("KEYWRAP_KDF_PROFILE"); profile != "" {
		cfg.KDF.Profile = symmetric.Profile(profile)
	}

	// RNG
	if mode := os.Getenv("KEYWRAP_RNG_MODE"); mode != "" {
		cfg.RNG.Mode = rand.Mode(mode)
	}
	if tpmPath := os.Getenv("TPM_DEVICE_PATH"); tpmPath != "" && cfg.RNG.TPM2 != nil {
		cfg.RNG.TPM2.Device = tpmPath
	}
	if pkcs11Lib := os.Getenv("PKCS11_LIBRARY"); pkcs11Lib != "" && cfg.RNG.PKCS11 != nil {
		cfg.RNG.PKCS11.Module = pkcs11Lib
	}
	if pin := os.Getenv("KEYWRAP_PKCS11_PIN"); pin != "" && cfg.RNG.PKCS11 != nil {
		cfg.RNG.PKCS11.PIN = pin
	}

	applyRemoteEnv(&cfg.Remote)
}

// applyRemoteEnv fills remote settings from the variables each service's
// own tooling uses. A section is created when any of its variables is set.
func applyRemoteEnv(r *RemoteConfig) {
	if region, endpoint := os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT"); region != "" || endpoint != "" {
		if r.AWSKMS == nil {
			r.AWSKMS = &awskms.Config{}
		}
		if region != "" {
			r.AWSKMS.Region = region
		}
		if endpoint != "" {
			r.AWSKMS.Endpoint = endpoint
		}
	}

	if credsFile := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credsFile != "" {
		if r.GCPKMS == nil {
			r.GCPKMS = &gcpkms.Config{}
		}
		r.GCPKMS.CredentialsFile = credsFile
	}

	if url, tenant, id, secret := os.Getenv("AZURE_KEYVAULT_URL"), os.Getenv("AZURE_TENANT_ID"),
		os.Getenv("AZURE_CLIENT_ID"), os.Getenv("AZURE_CLIENT_SECRET"); url != "" || tenant != "" || id != "" || secret != "" {
		if r.AzureKV == nil {
			r.AzureKV = &azurekv.Config{}
		}
		if url != "" {
			r.AzureKV.VaultURL = url
		}
		if tenant != "" {
			r.AzureKV.TenantID = tenant
		}
		if id != "" {
			r.AzureKV.ClientID = id
		}
		if secret != "" {
			r.AzureKV.ClientSecret = secret
		}
	}

	if addr, token, ns := os.Getenv("VAULT_ADDR"), os.Getenv("VAULT_TOKEN"), os.Getenv("VAULT_NAMESPACE"); addr != "" || token != "" || ns != "" {
		if r.Vault == nil {
			r.Vault = &vault.Config{}
		}
		if addr != "" {
			r.Vault.Address = addr
		}
		if token != "" {
			r.Vault.Token = token
		}
		if ns != "" {
			r.Vault.Namespace = ns
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path must be specified for the file backend")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage backend: %q (must be file or memory)", c.Storage.Backend)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch logging.Format(strings.ToLower(c.Logging.Format)) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Metrics.Textfile != "" && !c.Metrics.Enabled {
		return fmt.Errorf("metrics textfile is set but metrics are disabled")
	}

	if _, _, err := c.KDF.Profile.Limits(); err != nil {
		return err
	}

	if rl := c.Remote.RateLimit; rl.Enabled && rl.RequestsPerMinute <= 0 {
		return fmt.Errorf("remote.rate_limit.requests_per_minute must be positive when enabled")
	}

	switch c.RNG.Mode {
	case "", rand.ModeAuto, rand.ModeSoftware:
	case rand.ModeTPM2:
		if c.RNG.TPM2 == nil {
			return fmt.Errorf("rng mode tpm2 requires an rng.tpm2 section")
		}
	case rand.ModePKCS11:
		if c.RNG.PKCS11 == nil || c.RNG.PKCS11.Module == "" {
			return fmt.Errorf("rng mode pkcs11 requires rng.pkcs11.module")
		}
	default:
		return fmt.Errorf("invalid rng mode: %q", c.RNG.Mode)
	}
	return nil
}

// Logger builds a logger from the logging section.
func (c *Config) Logger() *logging.Logger {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level, _ = logging.ParseLevel("info")
	}
	return logging.NewWithLevel(os.Stderr, logging.Format(strings.ToLower(c.Logging.Format)), level)
}
