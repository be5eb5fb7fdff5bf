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

// Package validation checks names and references that reach the
// filesystem, remote services or logs from user input.
package validation

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

const (
	maxNameLen      = 128
	maxSchemeLen    = 32
	maxReferenceLen = 1024
	maxLogLen       = 256
)

var (
	// namePattern matches safe keystore names
	namePattern = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

	// schemePattern matches reference schemes (lowercase alphanumeric)
	schemePattern = regexp.MustCompile(`^[a-z0-9]+$`)
)

// ValidateKeystoreName validates a keystore name. Names become storage
// paths, so anything that could escape the keystore directory is
// rejected:
// - empty strings and null bytes
// - absolute paths and parent directory references
// - control characters
// - a leading dot, which would hide the file or collide with temp files
func ValidateKeystoreName(name string) error {
	if name == "" {
		return types.InvalidArgument("keystore name cannot be empty")
	}

	// Check for null bytes (can bypass some path checks)
	if strings.Contains(name, "\x00") {
		return types.InvalidArgument("keystore name contains null byte")
	}

	// Check length before other validations (prevent ReDoS)
	if len(name) > maxNameLen {
		return types.InvalidArgumentf("keystore name too long (max %d characters)", maxNameLen)
	}

	if filepath.IsAbs(name) {
		return types.InvalidArgument("keystore name cannot be an absolute path")
	}

	cleaned := filepath.Clean(name)
	if strings.HasPrefix(cleaned, "..") || strings.Contains(cleaned, string(filepath.Separator)+"..") {
		return types.InvalidArgument("keystore name contains path traversal attempt")
	}

	if hasControl(name) {
		return types.InvalidArgument("keystore name contains control characters")
	}

	if strings.HasPrefix(name, ".") {
		return types.InvalidArgument("keystore name cannot start with a dot")
	}

	// Only allow safe characters
	if !namePattern.MatchString(name) {
		return types.InvalidArgument("keystore name contains invalid characters (allowed: a-z, A-Z, 0-9, -, _, .)")
	}

	return nil
}

// ValidateReference validates the shape of a remote key reference,
// "scheme:id". The id is opaque here: ARNs, resource names and URLs all
// contain separators, so only its length and characters are checked.
func ValidateReference(ref string) error {
	if ref == "" {
		return types.InvalidArgument("key reference cannot be empty")
	}
	if strings.Contains(ref, "\x00") {
		return types.InvalidArgument("key reference contains null byte")
	}
	if len(ref) > maxReferenceLen {
		return types.InvalidArgumentf("key reference too long (max %d characters)", maxReferenceLen)
	}
	if hasControl(ref) {
		return types.InvalidArgument("key reference contains control characters")
	}

	scheme, id, ok := strings.Cut(ref, ":")
	if !ok || id == "" {
		return types.InvalidArgumentf("key reference must have the form scheme:id, got %q", SanitizeForLog(ref))
	}
	return ValidateScheme(scheme)
}

// ValidateScheme validates a reference scheme name.
// Scheme names must be simple lowercase identifiers.
func ValidateScheme(scheme string) error {
	if scheme == "" {
		return types.InvalidArgument("key scheme cannot be empty")
	}
	if len(scheme) > maxSchemeLen {
		return types.InvalidArgumentf("key scheme too long (max %d characters)", maxSchemeLen)
	}
	if !schemePattern.MatchString(scheme) {
		return types.InvalidArgument("key scheme contains invalid characters (allowed: a-z, 0-9)")
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	// Remove control characters and null bytes
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	// Limit length to prevent log flooding
	if len(s) > maxLogLen {
		s = s[:maxLogLen] + "...[truncated]"
	}

	return s
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}
