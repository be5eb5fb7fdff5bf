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

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

var (
	mu      sync.RWMutex
	current Source
)

// Init selects the process random source and verifies it produces output.
// Once Init has succeeded later calls are no-ops. A failed Init leaves the
// package uninitialized, so it may be retried.
func Init(cfg *Config) error {
	mu.Lock()
	defer mu.Unlock()

	if current != nil {
		return nil
	}

	src, err := NewSource(cfg)
	if err != nil {
		return fmt.Errorf("%w: rand: %w", types.ErrInternal, err)
	}
	if err := healthCheck(src); err != nil {
		_ = src.Close()
		return fmt.Errorf("%w: rand: %s: %w", types.ErrInternal, src.Name(), err)
	}

	logging.Default().Debug("random source initialized", "source", src.Name())
	current = src
	return nil
}

// InitDone reports whether Init has succeeded.
func InitDone() bool {
	mu.RLock()
	defer mu.RUnlock()
	return current != nil
}

// SourceName returns the name of the initialized source, or "" before
// Init has succeeded.
func SourceName() string {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return ""
	}
	return current.Name()
}

// Fill overwrites p with random bytes.
func Fill(p []byte) error {
	mu.RLock()
	defer mu.RUnlock()

	if current == nil {
		return types.Precondition("rand: Init has not been called")
	}
	if len(p) == 0 {
		return nil
	}
	if _, err := io.ReadFull(current, p); err != nil {
		return fmt.Errorf("%w: rand: %s: %w", types.ErrInternal, current.Name(), err)
	}
	return nil
}

// FillSecret overwrites the contents of b with random bytes.
func FillSecret(b *secret.Buffer) error {
	return Fill(b.UnsafeBytes())
}

// Reader returns an io.Reader backed by Fill.
func Reader() io.Reader {
	return reader{}
}

type reader struct{}

func (reader) Read(p []byte) (int, error) {
	if err := Fill(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

var errStuck = errors.New("health check failed: repeated or zero output")

// healthCheck rejects sources that return constant output.
func healthCheck(src Source) error {
	var a, b [32]byte
	if _, err := io.ReadFull(src, a[:]); err != nil {
		return err
	}
	if _, err := io.ReadFull(src, b[:]); err != nil {
		return err
	}
	var zero [32]byte
	if bytes.Equal(a[:], b[:]) || bytes.Equal(a[:], zero[:]) {
		return errStuck
	}
	return nil
}
