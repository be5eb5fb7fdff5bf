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

//go:build pkcs11

package rand

import (
	"errors"
	"fmt"
	"sync"

	"github.com/miekg/pkcs11"
)

// pkcs11Source reads from C_GenerateRandom on a single session.
type pkcs11Source struct {
	mu       sync.Mutex
	ctx      *pkcs11.Ctx
	session  pkcs11.SessionHandle
	loggedIn bool
}

func newPKCS11Source(cfg *PKCS11Config) (Source, error) {
	if cfg == nil || cfg.Module == "" {
		return nil, errors.New("rand: PKCS#11 module path is required")
	}

	ctx := pkcs11.New(cfg.Module)
	if ctx == nil {
		return nil, fmt.Errorf("rand: load PKCS#11 module %s", cfg.Module)
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, fmt.Errorf("rand: initialize PKCS#11: %w", err)
	}

	fail := func(err error) (Source, error) {
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}

	// Some tokens only expose their slots after C_GetSlotList.
	if _, err := ctx.GetSlotList(true); err != nil {
		return fail(fmt.Errorf("rand: PKCS#11 slot list: %w", err))
	}

	session, err := ctx.OpenSession(cfg.SlotID, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		return fail(fmt.Errorf("rand: open PKCS#11 session on slot %d: %w", cfg.SlotID, err))
	}

	src := &pkcs11Source{ctx: ctx, session: session}
	if cfg.PIN != "" {
		if err := ctx.Login(session, pkcs11.CKU_USER, cfg.PIN); err != nil {
			_ = ctx.CloseSession(session)
			return fail(fmt.Errorf("rand: PKCS#11 login: %w", err))
		}
		src.loggedIn = true
	}
	return src, nil
}

func pkcs11Available() bool {
	return true
}

func (s *pkcs11Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return 0, errors.New("rand: PKCS#11 source closed")
	}
	out, err := s.ctx.GenerateRandom(s.session, len(p))
	if err != nil {
		return 0, fmt.Errorf("rand: PKCS#11 GenerateRandom: %w", err)
	}
	n := copy(p, out)
	clear(out)
	if n != len(p) {
		return n, fmt.Errorf("rand: PKCS#11 returned %d of %d bytes", n, len(p))
	}
	return n, nil
}

func (s *pkcs11Source) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx != nil
}

func (s *pkcs11Source) Name() string {
	return string(ModePKCS11)
}

func (s *pkcs11Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx == nil {
		return nil
	}
	if s.loggedIn {
		_ = s.ctx.Logout(s.session)
	}
	_ = s.ctx.CloseSession(s.session)
	err := s.ctx.Finalize()
	s.ctx.Destroy()
	s.ctx = nil
	return err
}
