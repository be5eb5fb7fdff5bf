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
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/health"
	"github.com/jeremyhahn/go-keywrap/pkg/keystore"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// KeystoreSummary describes an opened keystore. Only digests are shown;
// key material never reaches output.
type KeystoreSummary struct {
	Name         string   `json:"name"`
	MasterDigest string   `json:"master_digest"`
	UserKeys     []string `json:"user_keys"`
	Changed      *bool    `json:"changed,omitempty"`
}

func newSummary(name string, ks *keystore.Keystore) *KeystoreSummary {
	digests := ks.WrappingDigests()
	keys := make([]string, len(digests))
	for i, d := range digests {
		keys[i] = d.String()
	}
	return &KeystoreSummary{
		Name:         name,
		MasterDigest: ks.MasterKey().Digest().String(),
		UserKeys:     keys,
	}
}

// PrintKeystore prints an opened keystore summary
func (p *Printer) PrintKeystore(s *KeystoreSummary) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(s)
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Keystore: %s\n", s.Name)
		if s.Changed != nil {
			fmt.Fprintf(p.writer, "  Changed:   %t\n", *s.Changed)
		}
		fmt.Fprintf(p.writer, "  Master:    %s\n", short(s.MasterDigest))
		fmt.Fprintf(p.writer, "  User keys: %d\n", len(s.UserKeys))
		for _, k := range s.UserKeys {
			fmt.Fprintf(p.writer, "    - %s\n", short(k))
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintInspect prints the layout of a keystore read without a key
func (p *Printer) PrintInspect(name string, info *keystore.Info) error {
	switch p.format {
	case OutputFormatJSON:
		entries := make([]map[string]interface{}, len(info.Entries))
		for i, e := range info.Entries {
			entries[i] = map[string]interface{}{
				"digest":          e.Digest.String(),
				"wrapping_digest": e.WrappingDigest.String(),
				"data_len":        e.DataLen,
				"has_nonce":       e.HasNonce,
			}
		}
		return p.printJSON(map[string]interface{}{
			"name":            name,
			"has_token_nonce": info.HasTokenNonce,
			"token_len":       info.TokenLen,
			"entries":         entries,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Keystore: %s\n", name)
		fmt.Fprintf(p.writer, "  Token:   %d bytes (nonce: %t)\n", info.TokenLen, info.HasTokenNonce)
		fmt.Fprintf(p.writer, "  Entries: %d\n", len(info.Entries))
		for _, e := range info.Entries {
			fmt.Fprintf(p.writer, "    - key %s  blob %s  %d bytes  nonce: %t\n",
				e.WrappingDigest.Short(), e.Digest.Short(), e.DataLen, e.HasNonce)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintKeygen prints the digest of a generated key
func (p *Printer) PrintKeygen(path string, d digest.Digest) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"path":   path,
			"digest": d.String(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Wrote key to %s\n", path)
		fmt.Fprintf(p.writer, "  Digest: %s\n", d.Short())
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintList prints keystore names
func (p *Printer) PrintList(names []string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"keystores": names,
		})
	case OutputFormatText:
		if len(names) == 0 {
			fmt.Fprintln(p.writer, "No keystores found")
			return nil
		}
		fmt.Fprintln(p.writer, "Keystores:")
		for _, n := range names {
			fmt.Fprintf(p.writer, "  - %s\n", n)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintStatus prints health check results
func (p *Printer) PrintStatus(status health.Status, results []health.CheckResult) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": status,
			"checks": results,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Status: %s\n", status)
		for _, r := range results {
			fmt.Fprintf(p.writer, "  %-8s %-9s %s\n", r.Name, r.Status, r.Message)
			if r.Error != "" {
				fmt.Fprintf(p.writer, "           error: %s\n", r.Error)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// short truncates a hex digest for display.
func short(hex string) string {
	const n = 16
	if len(hex) <= n {
		return hex
	}
	return hex[:n]
}
