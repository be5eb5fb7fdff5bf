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

// Package rand is the random source for key material, salts and nonces.
//
// The process selects one Source at startup with Init. Software randomness
// (crypto/rand) is always available; TPM 2.0 and PKCS#11 hardware sources
// are compiled in with the tpm2 and pkcs11 build tags. Auto mode prefers
// PKCS#11, then TPM2, then software.
//
//	if err := rand.Init(&rand.Config{Mode: rand.ModeAuto}); err != nil {
//	    return err
//	}
//	var n [24]byte
//	if err := rand.Fill(n[:]); err != nil {
//	    return err
//	}
//
// Fill and FillSecret are safe for concurrent use. Calling either before
// Init is a programming error reported as types.ErrPrecondition.
package rand

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Mode specifies which RNG source to use.
type Mode string

const (
	// ModeAuto selects the best available source: PKCS#11 > TPM2 > software.
	ModeAuto Mode = "auto"

	// ModeSoftware uses crypto/rand
	ModeSoftware Mode = "software"

	// ModeTPM2 uses the TPM 2.0 GetRandom command
	ModeTPM2 Mode = "tpm2"

	// ModePKCS11 uses C_GenerateRandom on an HSM slot
	ModePKCS11 Mode = "pkcs11"
)

// Config selects and configures the process random source.
type Config struct {
	// Mode defaults to ModeAuto.
	Mode Mode `yaml:"mode"`

	// FallbackMode is used when a read from the primary source fails.
	FallbackMode Mode `yaml:"fallback_mode"`

	TPM2   *TPM2Config   `yaml:"tpm2"`
	PKCS11 *PKCS11Config `yaml:"pkcs11"`
}

// TPM2Config configures the TPM 2.0 source.
type TPM2Config struct {
	// Device path, default /dev/tpmrm0
	Device string `yaml:"device"`

	// MaxRequestSize caps the bytes requested per GetRandom call.
	// Default 32.
	MaxRequestSize int `yaml:"max_request_size"`

	// SimulatorHost and SimulatorPort, when the host is set, connect to
	// a TCP simulator such as swtpm instead of Device.
	SimulatorHost string `yaml:"simulator_host"`
	SimulatorPort int    `yaml:"simulator_port"`
}

// PKCS11Config configures the PKCS#11 source.
type PKCS11Config struct {
	// Module is the path to the PKCS#11 library
	Module string `yaml:"module"`
	SlotID uint   `yaml:"slot_id"`
	PIN    string `yaml:"-"`
}

// Source produces cryptographically secure random bytes. Read fills p
// completely or returns an error.
type Source interface {
	io.Reader

	// Available reports whether the source can serve reads.
	Available() bool

	// Name identifies the source in logs.
	Name() string

	Close() error
}

// NewSource opens the source described by cfg. A nil cfg selects auto mode.
func NewSource(cfg *Config) (Source, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = ModeAuto
	}

	var (
		primary Source
		err     error
	)
	switch mode {
	case ModeAuto:
		primary, err = newAutoSource(cfg)
	case ModeSoftware:
		primary = softwareSource{}
	case ModeTPM2:
		primary, err = newTPM2Source(cfg.TPM2)
	case ModePKCS11:
		primary, err = newPKCS11Source(cfg.PKCS11)
	default:
		return nil, fmt.Errorf("rand: unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	if cfg.FallbackMode == "" || cfg.FallbackMode == mode {
		return primary, nil
	}
	fallback, err := NewSource(&Config{
		Mode:   cfg.FallbackMode,
		TPM2:   cfg.TPM2,
		PKCS11: cfg.PKCS11,
	})
	if err != nil {
		_ = primary.Close()
		return nil, fmt.Errorf("rand: fallback %s: %w", cfg.FallbackMode, err)
	}
	return &fallbackSource{primary: primary, fallback: fallback}, nil
}

// softwareSource reads from crypto/rand.
type softwareSource struct{}

func (softwareSource) Read(p []byte) (int, error) {
	return rand.Read(p)
}

func (softwareSource) Available() bool { return true }
func (softwareSource) Name() string    { return string(ModeSoftware) }
func (softwareSource) Close() error    { return nil }

// fallbackSource retries failed reads on a second source.
type fallbackSource struct {
	primary  Source
	fallback Source
}

func (f *fallbackSource) Read(p []byte) (int, error) {
	n, err := f.primary.Read(p)
	if err == nil && n == len(p) {
		return n, nil
	}
	return f.fallback.Read(p)
}

func (f *fallbackSource) Available() bool {
	return f.primary.Available() || f.fallback.Available()
}

func (f *fallbackSource) Name() string {
	return f.primary.Name() + "+" + f.fallback.Name()
}

func (f *fallbackSource) Close() error {
	err := f.primary.Close()
	if ferr := f.fallback.Close(); err == nil {
		err = ferr
	}
	return err
}
