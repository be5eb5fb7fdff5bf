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

// Package aead tracks nonce use for authenticated encryption keys.
package aead

import (
	"sync"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/nonce"
)

// NonceTracker records every nonce a key has encrypted with during the
// life of the process. It is safe for concurrent use.
//
// Memory grows by one entry per recorded nonce. Record only nonces chosen by
// a caller; freshly drawn random 24-byte nonces do not need tracking.
//
//	tracker := aead.NewNonceTracker(true)
//	if err := tracker.CheckAndRecord(n); err != nil {
//	    return err
//	}
type NonceTracker struct {
	mu      sync.RWMutex
	enabled bool
	nonces  map[nonce.Nonce]struct{}
}

// NewNonceTracker creates a tracker. A disabled tracker accepts everything.
func NewNonceTracker(enabled bool) *NonceTracker {
	return &NonceTracker{
		enabled: enabled,
		nonces:  make(map[nonce.Nonce]struct{}),
	}
}

// CheckAndRecord atomically rejects a previously seen nonce or records n.
func (nt *NonceTracker) CheckAndRecord(n *nonce.Nonce) error {
	nt.mu.Lock()
	defer nt.mu.Unlock()

	if !nt.enabled {
		return nil
	}
	if _, seen := nt.nonces[*n]; seen {
		return ErrNonceReuse
	}
	nt.nonces[*n] = struct{}{}
	return nil
}

// Contains reports whether n has been recorded.
func (nt *NonceTracker) Contains(n *nonce.Nonce) bool {
	nt.mu.RLock()
	defer nt.mu.RUnlock()

	_, seen := nt.nonces[*n]
	return nt.enabled && seen
}

// Count returns the number of recorded nonces.
func (nt *NonceTracker) Count() int {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return len(nt.nonces)
}

// Clear forgets every recorded nonce. Only call this when the key the
// tracker belongs to is being destroyed.
func (nt *NonceTracker) Clear() {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	clear(nt.nonces)
}

// IsEnabled reports whether tracking is active.
func (nt *NonceTracker) IsEnabled() bool {
	nt.mu.RLock()
	defer nt.mu.RUnlock()
	return nt.enabled
}

// SetEnabled toggles tracking. Recorded nonces are kept.
func (nt *NonceTracker) SetEnabled(enabled bool) {
	nt.mu.Lock()
	defer nt.mu.Unlock()
	nt.enabled = enabled
}
