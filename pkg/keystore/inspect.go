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

package keystore

import (
	"io"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
)

// Info describes a serialized keystore without unlocking it.
type Info struct {
	HasTokenNonce bool        `json:"has_token_nonce"`
	TokenLen      int         `json:"token_len"`
	Entries       []EntryInfo `json:"entries"`
}

// EntryInfo describes one wrapped entry.
type EntryInfo struct {
	Digest         digest.Digest `json:"-"`
	WrappingDigest digest.Digest `json:"-"`
	DataLen        int           `json:"data_len"`
	HasNonce       bool          `json:"has_nonce"`
}

// Inspect decodes a keystore from r and reports its layout. No key is
// needed and nothing is decrypted.
func Inspect(r io.Reader) (*Info, error) {
	var sealed container
	if err := encoding.Read(r, &sealed); err != nil {
		return nil, err
	}

	info := &Info{
		HasTokenNonce: sealed.tokenNonce != nil,
		TokenLen:      len(sealed.token),
		Entries:       make([]EntryInfo, len(sealed.wrapped)),
	}
	for i, w := range sealed.wrapped {
		info.Entries[i] = EntryInfo{
			Digest:         w.Digest(),
			WrappingDigest: w.WrappingDigest(),
			DataLen:        len(w.Data),
			HasNonce:       w.Nonce != nil,
		}
	}
	return info, nil
}
