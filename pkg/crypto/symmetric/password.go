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

package symmetric

import (
	"fmt"
	"math/bits"
	"time"

	"golang.org/x/crypto/scrypt"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/salt"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Password hashing profiles, as (ops, mem) limits.
const (
	// OpsLimitInteractive and MemLimitInteractive suit passwords typed
	// by a person: 16 MiB and well under a second.
	OpsLimitInteractive uint64 = 524288
	MemLimitInteractive uint64 = 16777216

	// OpsLimitSensitive and MemLimitSensitive suit long-lived high-value
	// secrets: 1 GiB and several seconds.
	OpsLimitSensitive uint64 = 33554432
	MemLimitSensitive uint64 = 1073741824

	minOpsLimit uint64 = 32768
)

// Profile names a pair of password hashing limits.
type Profile string

const (
	ProfileInteractive Profile = "interactive"
	ProfileSensitive   Profile = "sensitive"
)

// Limits returns the (ops, mem) pair for p.
func (p Profile) Limits() (ops, mem uint64, err error) {
	switch p {
	case ProfileInteractive, "":
		return OpsLimitInteractive, MemLimitInteractive, nil
	case ProfileSensitive:
		return OpsLimitSensitive, MemLimitSensitive, nil
	default:
		return 0, 0, types.InvalidArgumentf("unknown password profile %q", string(p))
	}
}

// ScryptParams are the scrypt cost parameters derived from (ops, mem).
type ScryptParams struct {
	N int
	R int
	P int
}

// Params maps (ops, mem) limits onto scrypt parameters the same way
// libsodium's scryptsalsa208sha256 does, so a salt and profile always derive
// the same key across implementations.
func Params(ops, mem uint64) ScryptParams {
	ops = max(ops, minOpsLimit)
	const r = 8

	if ops < mem/32 {
		maxN := ops / (r * 4)
		return ScryptParams{N: 1 << nLog2(maxN), R: r, P: 1}
	}

	maxN := mem / (r * 128)
	logN := nLog2(maxN)
	maxRP := min((ops/4)>>logN, 0x3fffffff)
	return ScryptParams{N: 1 << logN, R: r, P: int(uint32(maxRP) / r)}
}

// nLog2 returns the smallest n in [1, 63] with 2^n > maxN/2.
func nLog2(maxN uint64) uint {
	half := maxN / 2
	if half == 0 {
		return 1
	}
	return uint(min(max(bits.Len64(half), 1), 63))
}

// FromPassword derives a key from password and s with the given limits.
// Derivation is CPU and memory bound and cannot be interrupted.
func FromPassword(password *secret.Buffer, s salt.Salt, ops, mem uint64) (k *Key, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpDeriveKey, start, err) }(time.Now())

	p := Params(ops, mem)
	if p.P < 1 {
		return nil, types.InvalidArgumentf("password limits too small: ops=%d mem=%d", ops, mem)
	}

	raw, err := scrypt.Key(password.UnsafeBytes(), s[:], p.N, p.R, p.P, KeySize)
	if err != nil {
		return nil, fmt.Errorf("%w: password derivation: %w", types.ErrInternal, err)
	}
	return FromBytes(raw)
}

// FromPasswordProfile derives a key with a named profile.
func FromPasswordProfile(password *secret.Buffer, s salt.Salt, profile Profile) (*Key, error) {
	ops, mem, err := profile.Limits()
	if err != nil {
		return nil, err
	}
	return FromPassword(password, s, ops, mem)
}
