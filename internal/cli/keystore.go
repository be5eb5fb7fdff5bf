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
	"bytes"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keywrap/pkg/keystore"
	"github.com/jeremyhahn/go-keywrap/pkg/storage"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/validation"
)

// openKeystore resolves the unlock key and opens keystore name with it.
func openKeystore(cmd *cobra.Command, cfg *Config, name string, unlock *keyFlags) (*keystore.Keystore, error) {
	k, err := unlock.resolve(cmd, cfg, name, false)
	if err != nil {
		return nil, err
	}
	defer k.Close()

	return keystore.Load(cfg.backend, name, k, cfg.keystoreOptions()...)
}

func newCreateCmd(cfg *Config) *cobra.Command {
	var force bool
	var kf *keyFlags

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a keystore",
		Long: `Create a keystore with a new random master key wrapped under the
given user key.`,
		Example: `  keywrap keygen alice.key
  keywrap create secrets --key-file alice.key
  keywrap create secrets --password`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validation.ValidateKeystoreName(name); err != nil {
				return err
			}

			if !force {
				exists, err := cfg.backend.Exists(storage.KeystorePath(name))
				if err != nil {
					return types.IO("check keystore "+name, err)
				}
				if exists {
					return types.InvalidArgumentf("keystore %q already exists (use --force to overwrite)", name)
				}
			}

			k, err := kf.resolve(cmd, cfg, name, true)
			if err != nil {
				return err
			}
			defer k.Close()

			ks, err := keystore.Create(k, cfg.keystoreOptions()...)
			if err != nil {
				return err
			}
			defer ks.Close()

			if err := ks.Save(cfg.backend, name); err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintKeystore(newSummary(name, ks))
		},
	}

	kf = addKeyFlags(cmd, "", "user")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing keystore")
	return cmd
}

func newAddCmd(cfg *Config) *cobra.Command {
	var unlock, added *keyFlags

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a user key to a keystore",
		Long: `Open a keystore with an existing user key and wrap its master key
under one more. Adding a key that is already present changes nothing.`,
		Example: `  keywrap add secrets --key-file alice.key --new-key-file bob.key
  keywrap add secrets --key-file alice.key --new-remote awskms:alias/keywrap`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validation.ValidateKeystoreName(name); err != nil {
				return err
			}

			ks, err := openKeystore(cmd, cfg, name, unlock)
			if err != nil {
				return err
			}
			defer ks.Close()

			k, err := added.resolve(cmd, cfg, name, true)
			if err != nil {
				return err
			}
			defer k.Close()

			changed, err := ks.AddUserKey(k)
			if err != nil {
				return err
			}
			if changed {
				if err := ks.Save(cfg.backend, name); err != nil {
					return err
				}
			}

			summary := newSummary(name, ks)
			summary.Changed = &changed
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintKeystore(summary)
		},
	}

	unlock = addKeyFlags(cmd, "", "unlock")
	added = addKeyFlags(cmd, "new-", "new")
	return cmd
}

func newRemoveCmd(cfg *Config) *cobra.Command {
	var unlock, target *keyFlags

	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a user key from a keystore",
		Long: `Open a keystore with any user key and drop the entry wrapped under
the target key. The last remaining entry cannot be removed.`,
		Example: `  keywrap remove secrets --key-file alice.key --target-key-file bob.key`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validation.ValidateKeystoreName(name); err != nil {
				return err
			}

			ks, err := openKeystore(cmd, cfg, name, unlock)
			if err != nil {
				return err
			}
			defer ks.Close()

			k, err := target.resolve(cmd, cfg, name, false)
			if err != nil {
				return err
			}
			defer k.Close()

			changed, err := ks.RemoveUserKey(k)
			if err != nil {
				return err
			}
			if changed {
				if err := ks.Save(cfg.backend, name); err != nil {
					return err
				}
			}

			summary := newSummary(name, ks)
			summary.Changed = &changed
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintKeystore(summary)
		},
	}

	unlock = addKeyFlags(cmd, "", "unlock")
	target = addKeyFlags(cmd, "target-", "target")
	return cmd
}

func newVerifyCmd(cfg *Config) *cobra.Command {
	var unlock *keyFlags

	cmd := &cobra.Command{
		Use:   "verify NAME",
		Short: "Check that a user key opens a keystore",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := validation.ValidateKeystoreName(name); err != nil {
				return err
			}

			ks, err := openKeystore(cmd, cfg, name, unlock)
			if err != nil {
				return err
			}
			defer ks.Close()

			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintKeystore(newSummary(name, ks))
		},
	}

	unlock = addKeyFlags(cmd, "", "unlock")
	return cmd
}

func newInspectCmd(cfg *Config) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "inspect [NAME]",
		Short: "Show the layout of a keystore without opening it",
		Long: `Decode a keystore and list its entries by digest. No key is needed
and nothing is decrypted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				name string
				data []byte
				err  error
			)
			switch {
			case file != "" && len(args) == 0:
				name = file
				data, err = afero.ReadFile(cfg.fs, file)
				if err != nil {
					return types.IO("read "+file, err)
				}
			case file == "" && len(args) == 1:
				name = args[0]
				if err := validation.ValidateKeystoreName(name); err != nil {
					return err
				}
				data, err = cfg.backend.Get(storage.KeystorePath(name))
				if err != nil {
					return types.IO("load keystore "+name, err)
				}
			default:
				return types.InvalidArgument("inspect takes either NAME or --file")
			}

			info, err := keystore.Inspect(bytes.NewReader(data))
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintInspect(name, info)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "inspect a keystore file instead of a stored keystore")
	return cmd
}

func newListCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keystores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := storage.ListKeystores(cfg.backend)
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintList(names)
		},
	}
}
