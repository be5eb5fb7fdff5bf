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

//go:build linux

package secret

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// region is a locked memfd mapping.
type region struct {
	fd   int
	data []byte
}

func allocRegion(n int) (r *region, err error) {
	fd, err := unix.MemfdCreate("keywrap-secret", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, types.IO("secret: memfd_create", err)
	}
	r = &region{fd: fd}
	defer func() {
		if err != nil {
			_ = r.release()
		}
	}()

	if err := unix.Ftruncate(fd, int64(n)); err != nil {
		return nil, types.IO("secret: ftruncate", err)
	}

	data, err := unix.Mmap(fd, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, types.IO("secret: mmap", err)
	}
	r.data = data

	if err := unix.Mlock(data); err != nil {
		return nil, types.IO("secret: mlock", err)
	}
	if err := unix.Madvise(data, unix.MADV_DONTDUMP); err != nil {
		return nil, types.IO("secret: madvise(MADV_DONTDUMP)", err)
	}
	return r, nil
}

// release zeroes the mapping, then unlocks, unmaps and closes it. It
// tolerates partially constructed regions and keeps going after a failure
// so every resource gets a release attempt.
func (r *region) release() error {
	var errs []error
	if r.data != nil {
		Zero(r.data)
		// munlock fails with ENOMEM when mlock never succeeded; the
		// pages are unlocked by munmap either way.
		if err := unix.Munlock(r.data); err != nil && !errors.Is(err, unix.ENOMEM) {
			errs = append(errs, types.IO("secret: munlock", err))
		}
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, types.IO("secret: munmap", err))
		}
		r.data = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			errs = append(errs, types.IO("secret: close", err))
		}
		r.fd = -1
	}
	return errors.Join(errs...)
}
