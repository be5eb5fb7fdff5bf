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
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-keywrap/internal/password"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/awskms"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/azurekv"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/gcpkms"
	"github.com/jeremyhahn/go-keywrap/pkg/userkey/vault"
	"github.com/jeremyhahn/go-keywrap/pkg/validation"
)

// ErrKeySource is returned when a command is not given exactly one user
// key source.
var ErrKeySource = types.InvalidArgument("exactly one of --key-file, --password, --password-file or --remote is required")

// keyFlags selects one user key. The same set is registered with
// different prefixes when a command needs two keys.
type keyFlags struct {
	prefix       string
	label        string
	keyFile      string
	password     bool
	passwordFile string
	remote       string
}

func addKeyFlags(cmd *cobra.Command, prefix, label string) *keyFlags {
	kf := &keyFlags{prefix: prefix, label: label}
	flags := cmd.Flags()
	flags.StringVar(&kf.keyFile, prefix+"key-file", "", label+" key file created by keygen")
	flags.BoolVar(&kf.password, prefix+"password", false, "derive the "+label+" key from a password read from the terminal or stdin")
	flags.StringVar(&kf.passwordFile, prefix+"password-file", "", "derive the "+label+" key from a password file (- for stdin)")
	flags.StringVar(&kf.remote, prefix+"remote", "", label+" key reference (awskms:ID, gcpkms:NAME, azurekv:URL/keys/NAME, vault:PATH/NAME)")
	return kf
}

func (kf *keyFlags) sources() int {
	n := 0
	for _, set := range []bool{kf.keyFile != "", kf.password, kf.passwordFile != "", kf.remote != ""} {
		if set {
			n++
		}
	}
	return n
}

// resolvedKey is a user key plus whatever must be released after use.
type resolvedKey struct {
	key.Key
	close func() error
}

func (r *resolvedKey) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// resolve builds the key selected by kf for keystore name. When create is
// set a password salt is generated if the keystore has none yet and the
// password is confirmed on a terminal.
func (kf *keyFlags) resolve(cmd *cobra.Command, cfg *Config, name string, create bool) (*resolvedKey, error) {
	if kf.sources() != 1 {
		if kf.prefix == "" {
			return nil, ErrKeySource
		}
		return nil, types.InvalidArgumentf("exactly one of --%skey-file, --%spassword, --%spassword-file or --%sremote is required",
			kf.prefix, kf.prefix, kf.prefix, kf.prefix)
	}

	switch {
	case kf.keyFile != "":
		k, err := readKeyFile(cfg.fs, kf.keyFile)
		if err != nil {
			return nil, err
		}
		return &resolvedKey{Key: k, close: k.Close}, nil

	case kf.password, kf.passwordFile != "":
		pw, err := kf.readPassword(cmd, cfg, create)
		if err != nil {
			return nil, err
		}
		defer pw.Close()

		ps, err := loadSalt(cfg.backend, name, create, cfg.settings.KDF.Profile)
		if err != nil {
			return nil, err
		}
		ops, mem, err := ps.limits(cfg.settings.KDF.Profile)
		if err != nil {
			return nil, err
		}
		cfg.log.Debugf("deriving %s key with ops=%d mem=%d (stored=%t)", kf.label, ops, mem, ps.pinned())
		k, err := symmetric.FromPassword(pw, ps.Salt, ops, mem)
		if err != nil {
			return nil, err
		}
		return &resolvedKey{Key: k, close: k.Close}, nil

	default:
		return cfg.remoteKey(cmd.Context(), kf.remote)
	}
}

func (kf *keyFlags) readPassword(cmd *cobra.Command, cfg *Config, confirm bool) (*secret.Buffer, error) {
	if kf.passwordFile != "" && kf.passwordFile != "-" {
		data, err := afero.ReadFile(cfg.fs, kf.passwordFile)
		if err != nil {
			return nil, types.IO("read password file "+kf.passwordFile, err)
		}
		defer secret.Zero(data)
		trimmed := bytes.TrimRight(data, "\r\n")
		if len(trimmed) == 0 {
			return nil, password.ErrEmptyPassword
		}
		return secret.NewFromBytes(trimmed)
	}

	p := cfg.passwordPrompter(cmd)
	prompt := fmt.Sprintf("Enter %s password: ", kf.label)
	if confirm && p.Interactive() {
		return p.ReadConfirmed(prompt, fmt.Sprintf("Confirm %s password: ", kf.label))
	}
	return p.Read(prompt)
}

// passwordPrompter returns the prompter shared by every password read in
// one command run, since it buffers its input.
func (c *Config) passwordPrompter(cmd *cobra.Command) *password.Prompter {
	if c.prompter != nil {
		return c.prompter
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		c.prompter = password.NewPrompter(f, cmd.ErrOrStderr())
	} else {
		c.prompter = password.NewReaderPrompter(in)
	}
	return c.prompter
}

// readKeyFile loads a key written by keygen. The file holds the
// serialized key bytes and is not trimmed.
func readKeyFile(fs afero.Fs, path string) (*symmetric.Key, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, types.IO("open key file "+path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, types.IO("read key file "+path, err)
	}
	defer secret.Zero(data)
	return symmetric.Deserialize(data)
}

// remoteKey builds a remote user key from a scheme:id reference. Settings
// other than the key identity come from the remote section of the
// configuration.
func (c *Config) remoteKey(ctx context.Context, ref string) (*resolvedKey, error) {
	if err := validation.ValidateReference(ref); err != nil {
		return nil, err
	}
	scheme, id, err := userkey.Parse(ref)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	remote := c.settings.Remote
	c.log.Debug("resolving remote key", "ref", validation.SanitizeForLog(ref))

	switch scheme {
	case userkey.SchemeAWSKMS:
		kc := awskms.Config{}
		if remote.AWSKMS != nil {
			kc = *remote.AWSKMS
		}
		kc.KeyID = id
		k, err := awskms.New(ctx, &kc)
		if err != nil {
			return nil, err
		}
		return &resolvedKey{Key: k}, nil

	case userkey.SchemeGCPKMS:
		kc := gcpkms.Config{}
		if remote.GCPKMS != nil {
			kc = *remote.GCPKMS
		}
		kc.KeyName = id
		k, err := gcpkms.New(ctx, &kc)
		if err != nil {
			return nil, err
		}
		return &resolvedKey{Key: k, close: k.Close}, nil

	case userkey.SchemeAzureKV:
		parsed, err := azurekv.ParseID(id)
		if err != nil {
			return nil, err
		}
		kc := azurekv.Config{}
		if remote.AzureKV != nil {
			kc = *remote.AzureKV
		}
		kc.VaultURL, kc.KeyName, kc.KeyVersion = parsed.VaultURL, parsed.KeyName, parsed.KeyVersion
		k, err := azurekv.New(&kc)
		if err != nil {
			return nil, err
		}
		return &resolvedKey{Key: k}, nil

	case userkey.SchemeVault:
		parsed, err := vault.ParseID(id)
		if err != nil {
			return nil, err
		}
		kc := vault.Config{}
		if remote.Vault != nil {
			kc = *remote.Vault
		}
		kc.TransitPath, kc.KeyName = parsed.TransitPath, parsed.KeyName
		k, err := vault.New(&kc)
		if err != nil {
			return nil, err
		}
		return &resolvedKey{Key: k}, nil
	}
	return nil, types.InvalidArgumentf("unsupported key scheme %q", scheme)
}
