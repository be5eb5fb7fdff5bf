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

package storage

import (
	"strings"
)

const (
	keystorePrefix = "keystores/"
	keystoreSuffix = ".kws"
	saltSuffix     = ".salt"
)

// KeystorePath returns the storage path for a named keystore:
// keystores/{name}.kws
func KeystorePath(name string) string {
	return keystorePrefix + name + keystoreSuffix
}

// SaltPath returns the storage path for the password salt kept next to a
// keystore: keystores/{name}.salt
func SaltPath(name string) string {
	return keystorePrefix + name + saltSuffix
}

// ListKeystores returns the names of every keystore in backend.
func ListKeystores(backend Backend) ([]string, error) {
	keys, err := backend.List(keystorePrefix)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, keystoreSuffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(k, keystorePrefix), keystoreSuffix)
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
