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

//go:build !tpm2

package rand

import "errors"

func newTPM2Source(*TPM2Config) (Source, error) {
	return nil, errors.New("rand: TPM2 support not compiled, rebuild with -tags tpm2")
}

func tpm2Available() bool {
	return false
}
