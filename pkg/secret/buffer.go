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

// Package secret provides a page-locked byte buffer for key material and
// passwords.
//
// On Linux a non-empty Buffer is backed by an anonymous memfd mapping that
// is mlock'ed into RAM and excluded from core dumps with MADV_DONTDUMP. The
// region lives outside the Go heap, so the garbage collector never copies
// it. Contents are zeroed before the region is released. Platforms without
// locked-memory support fail at construction with an ErrIO error rather
// than falling back to ordinary heap memory.
//
// An empty Buffer owns no OS resources. Buffers are never copied
// implicitly: TryClone is the only way to duplicate one, and it can fail.
package secret

import (
	"crypto/subtle"
	"runtime"
	"sync"

	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Buffer holds sensitive bytes in locked memory. The zero value is an empty
// buffer ready for use. A Buffer must not be copied after first use.
type Buffer struct {
	mu      sync.Mutex
	region  *region
	cleanup runtime.Cleanup
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// WithLen returns a buffer of exactly n zeroed bytes.
func WithLen(n int) (*Buffer, error) {
	if n < 0 {
		return nil, types.InvalidArgumentf("secret: negative length %d", n)
	}
	b := New()
	if n == 0 {
		return b, nil
	}
	r, err := allocRegion(n)
	if err != nil {
		return nil, err
	}
	b.attach(r)
	return b, nil
}

// NewFromBytes copies src into a new buffer and zeroes src, so the
// caller's slice no longer holds the secret.
func NewFromBytes(src []byte) (*Buffer, error) {
	b, err := WithLen(len(src))
	if err != nil {
		Zero(src)
		return nil, err
	}
	copy(b.UnsafeBytes(), src)
	Zero(src)
	return b, nil
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.region == nil {
		return 0
	}
	return len(b.region.data)
}

// IsEmpty reports whether the buffer holds no bytes.
func (b *Buffer) IsEmpty() bool {
	return b.Len() == 0
}

// UnsafeBytes exposes the locked region for reading and writing. The slice
// aliases the buffer and is invalid after Resize or Close; never retain it
// or copy it onto the heap. Every call site is an exposure of secret
// material and should be audited as such.
//
// An empty buffer returns a non-nil empty slice.
func (b *Buffer) UnsafeBytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.region == nil {
		return []byte{}
	}
	return b.region.data
}

// Resize changes the length to n, preserving the first min(Len(), n) bytes.
// New trailing bytes are zero. A locked region cannot grow in place, so a
// new region is allocated and the prefix copied before the old region is
// zeroed, released and replaced. When allocation fails the buffer is
// unchanged. When releasing the old region fails the resize has still
// taken effect and the release error is returned.
func (b *Buffer) Resize(n int) error {
	if n < 0 {
		return types.InvalidArgumentf("secret: negative length %d", n)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.region
	oldLen := 0
	if old != nil {
		oldLen = len(old.data)
	}
	if n == oldLen {
		return nil
	}

	var next *region
	if n > 0 {
		r, err := allocRegion(n)
		if err != nil {
			return err
		}
		if old != nil {
			copy(r.data, old.data)
		}
		next = r
	}

	if old != nil {
		b.cleanup.Stop()
		b.region = nil
	}
	if next != nil {
		b.attachLocked(next)
	}
	if old != nil {
		return old.release()
	}
	return nil
}

// TryClone allocates a new buffer holding a copy of the contents.
func (b *Buffer) TryClone() (*Buffer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.region == nil {
		return New(), nil
	}
	r, err := allocRegion(len(b.region.data))
	if err != nil {
		return nil, err
	}
	copy(r.data, b.region.data)

	clone := New()
	clone.attach(r)
	return clone, nil
}

// Equal reports whether both buffers hold the same bytes, in constant time
// with respect to their contents.
func (b *Buffer) Equal(other *Buffer) bool {
	if other == nil {
		return false
	}
	if b == other {
		return true
	}
	return subtle.ConstantTimeCompare(b.UnsafeBytes(), other.UnsafeBytes()) == 1
}

// Close zeroes and releases the locked region. The buffer is empty
// afterwards. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.region == nil {
		return nil
	}
	b.cleanup.Stop()
	r := b.region
	b.region = nil
	return r.release()
}

func (b *Buffer) attach(r *region) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attachLocked(r)
}

// attachLocked installs r and registers a cleanup that releases it if the
// buffer is garbage collected without Close.
func (b *Buffer) attachLocked(r *region) {
	b.region = r
	b.cleanup = runtime.AddCleanup(b, releaseLeaked, r)
}

func releaseLeaked(r *region) {
	if err := r.release(); err != nil {
		logging.Default().Error(err, "component", "secret")
	}
}

// Zero overwrites p with zeros.
func Zero(p []byte) {
	clear(p)
	runtime.KeepAlive(p)
}
