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

package rand

// newAutoSource returns the first available hardware source, or software.
func newAutoSource(cfg *Config) (Source, error) {
	if pkcs11Available() && cfg.PKCS11 != nil {
		if src, err := newPKCS11Source(cfg.PKCS11); err == nil {
			if src.Available() {
				return src, nil
			}
			_ = src.Close()
		}
	}

	if tpm2Available() {
		if src, err := newTPM2Source(cfg.TPM2); err == nil {
			if src.Available() {
				return src, nil
			}
			_ = src.Close()
		}
	}

	return softwareSource{}, nil
}
