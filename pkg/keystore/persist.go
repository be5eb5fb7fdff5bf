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
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/storage"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Save serializes the keystore into backend under storage.KeystorePath(name).
func (ks *Keystore) Save(backend storage.Backend, name string) error {
	data, err := ks.Serialize()
	if err != nil {
		return err
	}
	if err := backend.Put(storage.KeystorePath(name), data, storage.DefaultOptions()); err != nil {
		return types.IO("keystore: save "+name, err)
	}
	ks.log.Debug("keystore saved", "name", name, "bytes", len(data))
	return nil
}

// Load reads the named keystore from backend and opens it with userKey.
// A missing keystore fails with an error matching both types.ErrIO and
// storage.ErrNotFound.
func Load(backend storage.Backend, name string, userKey key.Key, opts ...Option) (*Keystore, error) {
	data, err := backend.Get(storage.KeystorePath(name))
	if err != nil {
		return nil, types.IO("keystore: load "+name, err)
	}
	return Open(data, userKey, opts...)
}
