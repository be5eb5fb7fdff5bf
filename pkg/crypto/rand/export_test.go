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

import "sync"

// resetForTest closes the process source so Init can be exercised again.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		_ = current.Close()
	}
	current = nil
}

// stubSource returns scripted output.
type stubSource struct {
	mu     sync.Mutex
	fill   byte
	step   byte
	err    error
	closed bool
}

func (s *stubSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	for i := range p {
		p[i] = s.fill
	}
	s.fill += s.step
	return len(p), nil
}

func (s *stubSource) Available() bool { return s.err == nil }
func (s *stubSource) Name() string    { return "stub" }
func (s *stubSource) Close() error {
	s.closed = true
	return nil
}
