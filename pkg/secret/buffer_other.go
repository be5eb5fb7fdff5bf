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

//go:build !linux

package secret

import (
	"errors"
	"runtime"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

var errUnsupported = errors.New("locked memory is not supported on " + runtime.GOOS)

type region struct {
	data []byte
}

func allocRegion(int) (*region, error) {
	return nil, types.IO("secret: allocate", errUnsupported)
}

func (r *region) release() error {
	Zero(r.data)
	r.data = nil
	return nil
}
