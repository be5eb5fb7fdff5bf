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

// Package types holds the error taxonomy shared by every go-keywrap package.
//
// Each error returned by the library wraps exactly one of the sentinel kinds
// below, so callers can branch on the kind with errors.Is without parsing
// messages:
//
//	if errors.Is(err, types.ErrInvalidArgument) {
//	    // wrong user key
//	}
package types

import (
	"errors"
	"fmt"
)

var (
	// ErrCrypto is reported by a failing cryptographic primitive. Messages
	// never distinguish a wrong key from tampered ciphertext.
	ErrCrypto = errors.New("crypto error")

	// ErrInvalidArgument indicates caller-supplied data failed a length or
	// content check.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPrecondition indicates an operation was refused because it would
	// violate an invariant.
	ErrPrecondition = errors.New("precondition failed")

	// ErrInternal indicates an underlying dependency failed unexpectedly.
	ErrInternal = errors.New("internal error")

	// ErrIO is returned by the secret-memory layer and byte streams.
	ErrIO = errors.New("i/o error")

	// ErrDecode indicates the framing layer could not decode its input.
	ErrDecode = errors.New("decode error")

	// ErrEncode indicates the framing layer could not encode a value.
	ErrEncode = errors.New("encode error")
)

// Crypto returns an ErrCrypto error carrying msg.
func Crypto(msg string) error {
	return fmt.Errorf("%w: %s", ErrCrypto, msg)
}

// InvalidArgument returns an ErrInvalidArgument error carrying msg.
func InvalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}

// InvalidArgumentf formats an ErrInvalidArgument error.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Precondition returns an ErrPrecondition error carrying msg.
func Precondition(msg string) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, msg)
}

// Internal returns an ErrInternal error carrying msg.
func Internal(msg string) error {
	return fmt.Errorf("%w: %s", ErrInternal, msg)
}

// IO wraps cause as an ErrIO error. The cause stays reachable through
// errors.Is and errors.As.
func IO(op string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrIO, op, cause)
}

// Decode wraps a framing failure as an ErrDecode error.
func Decode(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrDecode, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrDecode, what, cause)
}

// Encode wraps a framing failure as an ErrEncode error.
func Encode(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrEncode, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrEncode, what, cause)
}

// Kind returns the sentinel kind wrapped by err, or nil when err carries none.
func Kind(err error) error {
	for _, kind := range []error{
		ErrCrypto, ErrInvalidArgument, ErrPrecondition, ErrInternal,
		ErrIO, ErrDecode, ErrEncode,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
