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
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/salt"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/storage"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

const (
	fieldSalt     = "salt"
	fieldOpsLimit = "ops_limit"
	fieldMemLimit = "mem_limit"
)

// passwordSalt is the record stored at storage.SaltPath. It pins the
// derivation limits chosen when the salt was generated so later changes to
// the configured profile do not alter the derived key.
//
// Records written before the limits were stored hold a bare salt; those
// decode with zero limits.
type passwordSalt struct {
	Salt     salt.Salt
	OpsLimit uint64
	MemLimit uint64
}

func newPasswordSalt(profile symmetric.Profile) (*passwordSalt, error) {
	ops, mem, err := profile.Limits()
	if err != nil {
		return nil, err
	}
	s, err := salt.New()
	if err != nil {
		return nil, err
	}
	return &passwordSalt{Salt: s, OpsLimit: ops, MemLimit: mem}, nil
}

// pinned reports whether the record carries its own limits.
func (ps *passwordSalt) pinned() bool {
	return ps.OpsLimit != 0 && ps.MemLimit != 0
}

// limits returns the stored limits, or those of fallback for a bare salt.
func (ps *passwordSalt) limits(fallback symmetric.Profile) (ops, mem uint64, err error) {
	if ps.pinned() {
		return ps.OpsLimit, ps.MemLimit, nil
	}
	return fallback.Limits()
}

// EncodeMsgpack writes {"salt": bin, "ops_limit": uint, "mem_limit": uint}.
func (ps *passwordSalt) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldSalt); err != nil {
		return err
	}
	if err := ps.Salt.EncodeMsgpack(enc); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldOpsLimit); err != nil {
		return err
	}
	if err := enc.EncodeUint(ps.OpsLimit); err != nil {
		return err
	}
	if err := enc.EncodeString(fieldMemLimit); err != nil {
		return err
	}
	return enc.EncodeUint(ps.MemLimit)
}

// DecodeMsgpack reads either the map form or a bare salt.
func (ps *passwordSalt) DecodeMsgpack(dec *msgpack.Decoder) error {
	c, err := dec.PeekCode()
	if err != nil {
		return types.Decode("password salt", err)
	}
	if !msgpcode.IsFixedMap(c) && c != msgpcode.Map16 && c != msgpcode.Map32 {
		*ps = passwordSalt{}
		return ps.Salt.DecodeMsgpack(dec)
	}

	n, err := encoding.DecodeMapHeader(dec, "password salt")
	if err != nil {
		return err
	}
	var out passwordSalt
	var haveSalt bool
	for range n {
		name, err := dec.DecodeString()
		if err != nil {
			return types.Decode("password salt: field name", err)
		}
		switch name {
		case fieldSalt:
			if err := out.Salt.DecodeMsgpack(dec); err != nil {
				return err
			}
			haveSalt = true
		case fieldOpsLimit:
			if out.OpsLimit, err = dec.DecodeUint64(); err != nil {
				return types.Decode("password salt: "+name, err)
			}
		case fieldMemLimit:
			if out.MemLimit, err = dec.DecodeUint64(); err != nil {
				return types.Decode("password salt: "+name, err)
			}
		default:
			if err := dec.Skip(); err != nil {
				return types.Decode("password salt: "+name, err)
			}
		}
	}
	if !haveSalt {
		return types.Decode(`password salt: missing field "salt"`, nil)
	}
	*ps = out
	return nil
}

// loadSalt reads the password salt stored next to keystore name. When
// create is set and there is none, a new salt pinned to profile is
// generated and stored.
func loadSalt(backend storage.Backend, name string, create bool, profile symmetric.Profile) (*passwordSalt, error) {
	path := storage.SaltPath(name)
	data, err := backend.Get(path)
	switch {
	case err == nil:
		var ps passwordSalt
		if err := encoding.Unmarshal(data, &ps); err != nil {
			return nil, err
		}
		return &ps, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, types.IO("read salt "+path, err)
	case !create:
		return nil, fmt.Errorf("%w: keystore %q has no password salt", types.ErrPrecondition, name)
	}

	ps, err := newPasswordSalt(profile)
	if err != nil {
		return nil, err
	}
	data, err = encoding.Marshal(ps)
	if err != nil {
		return nil, err
	}
	if err := backend.Put(path, data, storage.DefaultOptions()); err != nil {
		return nil, types.IO("write salt "+path, err)
	}
	return ps, nil
}
