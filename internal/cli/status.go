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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/rand"
	"github.com/jeremyhahn/go-keywrap/pkg/health"
	"github.com/jeremyhahn/go-keywrap/pkg/storage"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func newStatusCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the random source, storage and key derivation settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := cfg.checker().Run(cmd.Context())
			status := health.AggregateStatus(results)

			if err := NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintStatus(status, results); err != nil {
				return err
			}
			if status == health.StatusUnhealthy {
				return fmt.Errorf("%w: status %s", types.ErrPrecondition, status)
			}
			return nil
		},
	}
}

// checker registers a check for everything a keystore operation needs.
func (c *Config) checker() *health.Checker {
	checker := health.NewChecker()

	checker.RegisterCheck("rng", func(ctx context.Context) health.CheckResult {
		var probe [32]byte
		if err := rand.Fill(probe[:]); err != nil {
			return health.Unhealthy("rng", "random source failed", err)
		}
		name := rand.SourceName()
		mode := c.settings.RNG.Mode
		if (mode == rand.ModeTPM2 || mode == rand.ModePKCS11) && !strings.HasPrefix(name, string(mode)) {
			return health.CheckResult{
				Name:    "rng",
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("configured %s, using %s", mode, name),
			}
		}
		return health.Healthy("rng", "source "+name)
	})

	checker.RegisterCheck("storage", func(ctx context.Context) health.CheckResult {
		names, err := storage.ListKeystores(c.backend)
		if err != nil {
			return health.Unhealthy("storage", "cannot list keystores", err)
		}
		return health.Healthy("storage", fmt.Sprintf("%s backend, %d keystores", c.settings.Storage.Backend, len(names)))
	})

	checker.RegisterCheck("kdf", func(ctx context.Context) health.CheckResult {
		ops, mem, err := c.settings.KDF.Profile.Limits()
		if err != nil {
			return health.Unhealthy("kdf", "invalid password profile", err)
		}
		return health.Healthy("kdf", fmt.Sprintf("profile %s (ops %d, mem %d MiB)", c.settings.KDF.Profile, ops, mem>>20))
	})

	return checker
}
