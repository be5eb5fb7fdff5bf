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

package aead

import (
	"fmt"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// ErrNonceReuse is returned when a key is asked to encrypt with a nonce it
// has already used. XSalsa20-Poly1305 under a repeated nonce leaks the XOR
// of both plaintexts and lets an attacker forge messages.
var ErrNonceReuse = fmt.Errorf("%w: aead: nonce reuse detected, encryption rejected", types.ErrInvalidArgument)
