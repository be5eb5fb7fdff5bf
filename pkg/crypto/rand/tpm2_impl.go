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

//go:build tpm2

package rand

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/tcp"
	"github.com/google/go-tpm/tpmutil"
)

// tpm2Source reads from the TPM's GetRandom command, chunked to the
// configured request size.
type tpm2Source struct {
	mu      sync.Mutex
	tpm     transport.TPMCloser
	maxRead int
}

func newTPM2Source(cfg *TPM2Config) (Source, error) {
	c := TPM2Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.Device == "" {
		c.Device = "/dev/tpmrm0"
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = 32
	}

	var tpm transport.TPMCloser
	if c.SimulatorHost != "" {
		port := c.SimulatorPort
		if port <= 0 {
			port = 2321
		}
		sim, err := tcp.Open(tcp.Config{
			CommandAddress:  fmt.Sprintf("%s:%d", c.SimulatorHost, port),
			PlatformAddress: fmt.Sprintf("%s:%d", c.SimulatorHost, port+1),
		})
		if err != nil {
			return nil, fmt.Errorf("rand: connect TPM simulator %s:%d: %w", c.SimulatorHost, port, err)
		}
		tpm = sim
	} else {
		dev, err := tpmutil.OpenTPM(c.Device)
		if err != nil {
			return nil, fmt.Errorf("rand: open TPM %s: %w", c.Device, err)
		}
		tpm = transport.FromReadWriteCloser(dev)
	}

	return &tpm2Source{tpm: tpm, maxRead: c.MaxRequestSize}, nil
}

func tpm2Available() bool {
	return true
}

func (s *tpm2Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tpm == nil {
		return 0, errors.New("rand: TPM2 source closed")
	}

	n := 0
	for n < len(p) {
		want := min(len(p)-n, s.maxRead)
		cmd := tpm2.GetRandom{BytesRequested: uint16(want)}
		rsp, err := cmd.Execute(s.tpm)
		if err != nil {
			return n, fmt.Errorf("rand: TPM2 GetRandom: %w", err)
		}
		got := rsp.RandomBytes.Buffer
		if len(got) == 0 {
			return n, errors.New("rand: TPM2 GetRandom returned no bytes")
		}
		n += copy(p[n:], got)
		clear(got)
	}
	return n, nil
}

func (s *tpm2Source) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tpm != nil
}

func (s *tpm2Source) Name() string {
	return string(ModeTPM2)
}

func (s *tpm2Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tpm == nil {
		return nil
	}
	err := s.tpm.Close()
	s.tpm = nil
	return err
}
