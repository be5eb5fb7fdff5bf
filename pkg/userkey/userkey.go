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

// Package userkey holds the pieces shared by user keys that live in a
// remote key management service.
//
// A remote user key never leaves its service. Wrapping the master key sends
// the serialized master key to the service for encryption and stores the
// returned ciphertext; unwrapping sends it back. The service manages its
// own nonces, so remote keys never produce one.
//
// A remote key's digest is the SHA-512 of its canonical reference, for
// example "awskms:arn:aws:kms:us-east-1:111122223333:key/abcd". The same
// reference always yields the same digest, so a keystore recognizes the
// key across processes without contacting the service.
package userkey

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jeremyhahn/go-keywrap/pkg/crypto/digest"
	"github.com/jeremyhahn/go-keywrap/pkg/logging"
	"github.com/jeremyhahn/go-keywrap/pkg/metrics"
	"github.com/jeremyhahn/go-keywrap/pkg/ratelimit"
	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

// Reference schemes.
const (
	SchemeAWSKMS  = "awskms"
	SchemeGCPKMS  = "gcpkms"
	SchemeAzureKV = "azurekv"
	SchemeVault   = "vault"
)

// DefaultTimeout bounds a single remote call.
const DefaultTimeout = 30 * time.Second

var (
	// ErrRemoteEncrypt is returned when the service rejects or fails a wrap.
	ErrRemoteEncrypt = types.Crypto("remote encrypt failed")

	// ErrRemoteDecrypt is returned when the service rejects or fails an
	// unwrap. The cause is logged, never returned.
	ErrRemoteDecrypt = types.Crypto("remote decrypt failed")
)

// Reference formats a canonical key reference.
func Reference(scheme, id string) string {
	return scheme + ":" + id
}

// Digest returns the digest of a canonical key reference.
func Digest(scheme, id string) digest.Digest {
	return digest.Of([]byte(Reference(scheme, id)))
}

// SerializeReference returns the canonical reference in a secret buffer.
func SerializeReference(scheme, id string) (*secret.Buffer, error) {
	return secret.NewFromBytes([]byte(Reference(scheme, id)))
}

// Parse splits "scheme:id" and rejects unknown schemes.
func Parse(ref string) (scheme, id string, err error) {
	scheme, id, ok := strings.Cut(ref, ":")
	if !ok || id == "" {
		return "", "", types.InvalidArgumentf("userkey: malformed reference %q", ref)
	}
	switch scheme {
	case SchemeAWSKMS, SchemeGCPKMS, SchemeAzureKV, SchemeVault:
		return scheme, id, nil
	}
	return "", "", types.InvalidArgumentf("userkey: unknown scheme %q", scheme)
}

// IsReference reports whether s looks like a remote key reference.
func IsReference(s string) bool {
	_, _, err := Parse(s)
	return err == nil
}

var (
	limiterMu sync.RWMutex
	limiter   *ratelimit.Limiter
)

// SetRateLimit throttles remote calls per key reference. A nil or
// disabled cfg removes the limit.
func SetRateLimit(cfg *ratelimit.Config) {
	next := ratelimit.New(cfg)

	limiterMu.Lock()
	prev := limiter
	limiter = next
	limiterMu.Unlock()

	prev.Stop()
}

func currentLimiter() *ratelimit.Limiter {
	limiterMu.RLock()
	defer limiterMu.RUnlock()
	return limiter
}

// Call runs fn under a timeout, records the operation and hides the cause
// of a failure behind sentinel. A zero timeout means DefaultTimeout. Time
// spent waiting on the rate limit counts against the timeout.
func Call(ctx context.Context, timeout time.Duration, op string, sentinel error, ref string, fn func(context.Context) error) (err error) {
	defer func(start time.Time) { metrics.Observe(op, start, err) }(time.Now())

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := currentLimiter().Wait(ctx, ref); err != nil {
		logging.Default().Debug("remote key operation throttled", "op", op, "key", ref, "error", err)
		return fmt.Errorf("%w: %s: rate limited", sentinel, ref)
	}

	if cause := fn(ctx); cause != nil {
		logging.Default().Debug("remote key operation failed", "op", op, "key", ref, "error", cause)
		return fmt.Errorf("%w: %s", sentinel, ref)
	}
	return nil
}
