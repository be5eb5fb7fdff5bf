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

package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-keywrap/internal/config"
	"github.com/jeremyhahn/go-keywrap/internal/password"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/keystore"
	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/storage"
	"github.com/jeremyhahn/go-keywrap/pkg/storage/file"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the configuration file
	ConfigFile string

	// DataDir overrides storage.path from the configuration file
	DataDir string

	// OutputFormat controls output formatting (text, json)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool

	// fs is the filesystem for key files and file storage
	fs afero.Fs

	settings *config.Config
	backend  storage.Backend
	log      *logging.Logger
	prompter *password.Prompter
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: string(OutputFormatText),
		fs:           afero.NewOsFs(),
	}
}

// load reads flag values from v, loads the configuration file and
// initializes the process-wide logger, metrics and random source. Every
// log line of the run carries runID.
func (c *Config) load(v *viper.Viper, runID string) error {
	c.ConfigFile = v.GetString("config")
	c.DataDir = v.GetString("data-dir")
	c.OutputFormat = v.GetString("output")
	c.Verbose = v.GetBool("verbose")

	switch OutputFormat(c.OutputFormat) {
	case OutputFormatText, OutputFormatJSON:
	default:
		return fmt.Errorf("unknown output format: %s", c.OutputFormat)
	}

	settings, err := config.Load(c.ConfigFile)
	if err != nil {
		return err
	}
	if c.DataDir != "" {
		settings.Storage.Path = c.DataDir
	}
	if c.Verbose {
		settings.Logging.Level = "debug"
	}
	c.settings = settings

	c.log = settings.Logger().With("run", runID)
	logging.SetDefault(c.log)

	if settings.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	userkey.SetRateLimit(&settings.Remote.RateLimit)

	if err := rand.Init(&settings.RNG); err != nil {
		return err
	}

	c.backend, err = c.createBackend()
	return err
}

// createBackend creates the keystore storage backend
func (c *Config) createBackend() (storage.Backend, error) {
	switch c.settings.Storage.Backend {
	case config.StorageMemory:
		return storage.NewMemory(), nil
	case config.StorageFile:
		backend, err := file.New(c.fs, c.settings.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage backend: %w", err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", c.settings.Storage.Backend)
	}
}

// close releases the backend and writes the metrics textfile if one is
// configured.
func (c *Config) close() error {
	if c.backend != nil {
		if err := c.backend.Close(); err != nil {
			return err
		}
	}
	if c.settings != nil && c.settings.Metrics.Enabled && c.settings.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(c.settings.Metrics.Textfile); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (c *Config) keystoreOptions() []keystore.Option {
	return []keystore.Option{keystore.WithLogger(c.log)}
}
