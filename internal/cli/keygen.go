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
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func newKeygenCmd(cfg *Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen PATH",
		Short: "Generate a random user key file",
		Long: `Generate a random 32-byte key and write it to PATH. The file can be
used with --key-file to create, open or extend a keystore.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]

			k, err := symmetric.Random()
			if err != nil {
				return err
			}
			defer k.Close()

			buf, err := k.Serialize()
			if err != nil {
				return err
			}
			defer buf.Close()

			flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
			if force {
				flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			}
			f, err := cfg.fs.OpenFile(path, flag, 0600)
			if err != nil {
				if os.IsExist(err) {
					return types.InvalidArgumentf("%s already exists (use --force to overwrite)", path)
				}
				return types.IO("create key file "+path, err)
			}
			if _, err := f.Write(buf.UnsafeBytes()); err != nil {
				_ = f.Close()
				return types.IO("write key file "+path, err)
			}
			if err := f.Close(); err != nil {
				return types.IO("close key file "+path, err)
			}

			cfg.log.Infof("generated key %s", k.Digest().Short())
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintKeygen(path, k.Digest())
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
