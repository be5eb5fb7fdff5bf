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

// Package cli implements the keywrap command-line tool.
package cli

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-keywrap/pkg/correlation"
)

// Execute runs the root command
func Execute() error {
	cfg := NewConfig()
	cmd := NewRootCmd(cfg)
	if err := cmd.Execute(); err != nil {
		handleError(cfg, err)
		return err
	}
	return nil
}

// NewRootCmd builds the command tree around cfg. Flags may also be set
// through KEYWRAP_* environment variables, e.g. KEYWRAP_DATA_DIR.
func NewRootCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("KEYWRAP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:   "keywrap",
		Short: "keywrap - multi-key wrapping keystore",
		Long: `keywrap manages keystores: a random master key wrapped under any
number of independent user keys. Any one user key opens the keystore,
and user keys can be added or revoked without re-encrypting data
protected by the master key.

User keys can be:
  - a key file created with "keywrap keygen"
  - a password (prompted, or read from a file or stdin)
  - a key held in AWS KMS, Google Cloud KMS, Azure Key Vault or
    HashiCorp Vault Transit, given as awskms:, gcpkms:, azurekv: or
    vault: references`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			runID := correlation.GetOrGenerate(ctx)
			cmd.SetContext(correlation.WithID(ctx, runID))
			return cfg.load(v, runID)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.close()
		},
	}

	// Persistent flags (available to all commands)
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (YAML)")
	flags.String("data-dir", "", "directory for keystores (default $XDG_DATA_HOME/keywrap)")
	flags.StringP("output", "o", string(OutputFormatText), "output format (text, json)")
	flags.BoolP("verbose", "v", false, "verbose output")
	_ = v.BindPFlags(flags)

	rootCmd.AddCommand(
		newVersionCmd(cfg),
		newKeygenCmd(cfg),
		newCreateCmd(cfg),
		newAddCmd(cfg),
		newRemoveCmd(cfg),
		newVerifyCmd(cfg),
		newInspectCmd(cfg),
		newListCmd(cfg),
		newStatusCmd(cfg),
	)
	return rootCmd
}

// handleError prints an error to stderr in the selected format
func handleError(cfg *Config, err error) {
	printer := NewPrinter(cfg.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
}
