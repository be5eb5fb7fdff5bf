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

// Package keystore stores one random master key so that any of several
// independent user keys can unlock it.
//
// A keystore holds the master key wrapped once per user key, plus an
// authentication token: a fixed 64-byte constant encrypted under the master
// key. Opening a keystore tries each wrapped entry with the caller's key and
// accepts the first candidate that decrypts the token. User keys can be
// added and revoked without touching data already encrypted under the
// master key.
//
// The master key is never persisted. It lives in locked memory while the
// keystore is open and is zeroed by Close.
//
//	ks, err := keystore.Create(userKey)
//	if err != nil {
//	    return err
//	}
//	defer ks.Close()
//	data, err := ks.Serialize()
//
//	ks, err = keystore.Open(data, userKey)
package keystore

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/jeremyhahn/go-keywrap/internal/encoding"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/key"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/symmetric"
	"github.com/jeremyhahn/go-keywrap/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// AuthToken is the constant encrypted under the master key at creation.
// Decrypting the stored token to exactly these bytes proves a candidate
// master key is the right one.
const AuthToken = "3c017f717b39247c351154a41d2850e4187284da4b928f13c723d54440ba2dfe"

var (
	// ErrKeyNotPresent is returned by Open when no wrapped entry yields a
	// master key that validates against the token. It does not say which
	// entry, if any, decrypted.
	ErrKeyNotPresent = types.InvalidArgument("the given key is not present in this keystore")

	// ErrLastKey is returned by RemoveUserKey when the removal would leave
	// the keystore with no way to open it.
	ErrLastKey = types.Precondition("refusing to remove the last valid key")

	// ErrClosed is returned by operations on a closed keystore.
	ErrClosed = types.Precondition("keystore is closed")
)

// Option configures a Keystore.
type Option func(*Keystore)

// WithLogger sets the logger for debug output. Defaults to
// logging.Default().
func WithLogger(l *logging.Logger) Option {
	return func(ks *Keystore) {
		if l != nil {
			ks.log = l
		}
	}
}

// Keystore is an opened keystore. It is safe for concurrent use: reads
// share a lock and mutations are exclusive.
type Keystore struct {
	mu     sync.RWMutex
	master *symmetric.Key
	sealed container
	log    *logging.Logger
}

func newKeystore(opts []Option) *Keystore {
	ks := &Keystore{log: logging.Default()}
	for _, opt := range opts {
		opt(ks)
	}
	ks.log = ks.log.With("component", "keystore")
	return ks
}

// Create generates a master key, seals the auth token under it and wraps it
// under initial.
func Create(initial key.Key, opts ...Option) (ks *Keystore, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpCreate, start, err) }(time.Now())

	master, err := symmetric.Random()
	if err != nil {
		return nil, err
	}

	tokenNonce, token, err := master.Encrypt([]byte(AuthToken), nil)
	if err != nil {
		_ = master.Close()
		return nil, err
	}

	ks = newKeystore(opts)
	ks.master = master
	ks.sealed = container{tokenNonce: tokenNonce, token: token}

	if _, err := ks.AddUserKey(initial); err != nil {
		_ = master.Close()
		return nil, err
	}

	ks.log.Debug("keystore created", "master", master.Digest().Short())
	return ks, nil
}

// Open decodes a serialized keystore and unlocks it with userKey.
func Open(data []byte, userKey key.Key, opts ...Option) (*Keystore, error) {
	return OpenReader(bytes.NewReader(data), userKey, opts...)
}

// OpenReader decodes a keystore from r and unlocks it with userKey.
func OpenReader(r io.Reader, userKey key.Key, opts ...Option) (ks *Keystore, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpOpen, start, err) }(time.Now())

	var sealed container
	if err := encoding.Read(r, &sealed); err != nil {
		return nil, err
	}

	ks = newKeystore(opts)
	master, tried := sealed.unlock(userKey)
	if master == nil {
		ks.log.Debug("keystore open failed", "entries", len(sealed.wrapped), "tried", tried)
		return nil, ErrKeyNotPresent
	}

	ks.master = master
	ks.sealed = sealed
	metrics.SetWrappedKeys(len(sealed.wrapped))
	ks.log.Debug("keystore opened", "entries", len(sealed.wrapped), "tried", tried)
	return ks, nil
}

// unlock tries each entry in order and returns the first master key that
// decrypts the token to AuthToken, with the number of entries tried.
// Failures are counted but never surfaced.
func (c *container) unlock(userKey key.Key) (*symmetric.Key, int) {
	for i, w := range c.wrapped {
		candidate, err := w.Unwrap(userKey)
		if err != nil {
			if errors.Is(err, wrapping.ErrWrongWrappingKey) {
				metrics.RecordUnwrapAttempt(metrics.UnwrapDigestMismatch)
			} else {
				metrics.RecordUnwrapAttempt(metrics.UnwrapFailed)
			}
			continue
		}

		if c.validates(candidate) {
			metrics.RecordUnwrapAttempt(metrics.UnwrapMatched)
			return candidate, i + 1
		}
		metrics.RecordUnwrapAttempt(metrics.UnwrapTokenMismatch)
		_ = candidate.Close()
	}
	return nil, len(c.wrapped)
}

// validates reports whether m decrypts the token to AuthToken.
func (c *container) validates(m *symmetric.Key) bool {
	plaintext, err := m.Decrypt(c.tokenNonce, c.token)
	if err != nil {
		return false
	}
	defer plaintext.Close()
	return subtle.ConstantTimeCompare(plaintext.UnsafeBytes(), []byte(AuthToken)) == 1
}

// Serialize encodes the keystore. The master key is not included.
func (ks *Keystore) Serialize() (data []byte, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpSerialize, start, err) }(time.Now())

	ks.mu.RLock()
	defer ks.mu.RUnlock()

	if ks.master == nil {
		return nil, ErrClosed
	}
	return encoding.Marshal(&ks.sealed)
}

// WriteTo writes the serialized keystore to w.
func (ks *Keystore) WriteTo(w io.Writer) (int64, error) {
	data, err := ks.Serialize()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), types.IO("keystore: write", err)
	}
	return int64(n), nil
}

// MasterKey returns the opened master key. It remains owned by the
// keystore: do not Close it, and do not use it after the keystore is
// closed. Returns nil after Close.
func (ks *Keystore) MasterKey() *symmetric.Key {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.master
}

// AddUserKey wraps the master key under userKey. It returns false without
// changing anything when a key with the same digest is already present.
func (ks *Keystore) AddUserKey(userKey key.Key) (added bool, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpAddUserKey, start, err) }(time.Now())

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.master == nil {
		return false, ErrClosed
	}

	w, err := wrapping.Wrap(ks.master, userKey)
	if err != nil {
		return false, err
	}
	if ks.sealed.indexOf(w.WrappingDigest()) >= 0 {
		ks.log.Debug("user key already present", "key", w.WrappingDigest().Short())
		return false, nil
	}

	ks.sealed.wrapped = append(ks.sealed.wrapped, w)
	metrics.SetWrappedKeys(len(ks.sealed.wrapped))
	ks.log.Debug("user key added", "key", w.WrappingDigest().Short(), "entries", len(ks.sealed.wrapped))
	return true, nil
}

// RemoveUserKey removes every entry wrapped under userKey and reports
// whether anything was removed. Removing a key that is not present is not
// an error.
//
// A removal that would leave no entries fails with ErrLastKey and changes
// nothing. For a well-formed keystore this is exactly the case of a single
// matching entry. A container holding several entries that all share one
// wrapping digest is also refused, rather than emptied.
func (ks *Keystore) RemoveUserKey(userKey key.Key) (removed bool, err error) {
	defer func(start time.Time) { metrics.Observe(metrics.OpRemoveUserKey, start, err) }(time.Now())

	d := userKey.Digest()

	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.master == nil {
		return false, ErrClosed
	}

	kept := slices.DeleteFunc(slices.Clone(ks.sealed.wrapped), func(w *wrapping.WrappedKey) bool {
		return w.WrappingDigest().Equal(d)
	})
	if len(kept) == len(ks.sealed.wrapped) {
		return false, nil
	}
	if len(kept) == 0 {
		return false, ErrLastKey
	}

	ks.sealed.wrapped = kept
	metrics.SetWrappedKeys(len(kept))
	ks.log.Debug("user key removed", "key", d.Short(), "entries", len(kept))
	return true, nil
}

// Contains reports whether userKey has a wrapped entry, by digest.
func (ks *Keystore) Contains(userKey key.Key) bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.sealed.indexOf(userKey.Digest()) >= 0
}

// Len returns the number of wrapped entries.
func (ks *Keystore) Len() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.sealed.wrapped)
}

// WrappingDigests returns the user key digests in insertion order.
func (ks *Keystore) WrappingDigests() []digest.Digest {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	out := make([]digest.Digest, len(ks.sealed.wrapped))
	for i, w := range ks.sealed.wrapped {
		out[i] = w.WrappingDigest()
	}
	return out
}

// Close zeroes the master key. The keystore cannot be used afterwards.
func (ks *Keystore) Close() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.master == nil {
		return nil
	}
	err := ks.master.Close()
	ks.master = nil
	return err
}
