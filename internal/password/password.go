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

// Package password reads passwords into locked memory, from a terminal
// without echo or line by line from a pipe.
package password

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/jeremyhahn/go-keywrap/pkg/secret"
	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

var (
	// ErrEmptyPassword is returned when an empty password is provided.
	ErrEmptyPassword = types.InvalidArgument("password cannot be empty")

	// ErrMismatch is returned when a confirmation does not match.
	ErrMismatch = types.InvalidArgument("passwords do not match")
)

// Prompter reads passwords. On a terminal the prompt is written to out
// and echo is disabled; otherwise each call consumes one line of input.
type Prompter struct {
	out    io.Writer
	fd     int
	tty    bool
	reader *bufio.Reader
}

// NewPrompter reads from in, prompting on out when in is a terminal.
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	fd := int(in.Fd())
	return &Prompter{
		out:    out,
		fd:     fd,
		tty:    term.IsTerminal(fd),
		reader: bufio.NewReader(in),
	}
}

// NewReaderPrompter reads one password per line from r and never prompts.
func NewReaderPrompter(r io.Reader) *Prompter {
	return &Prompter{out: io.Discard, reader: bufio.NewReader(r)}
}

// Interactive reports whether input comes from a terminal.
func (p *Prompter) Interactive() bool {
	return p.tty
}

// Read reads one password. The caller owns the returned buffer.
func (p *Prompter) Read(prompt string) (*secret.Buffer, error) {
	if p.tty {
		fmt.Fprint(p.out, prompt)
		pw, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, types.IO("password: read", err)
		}
		return fromBytes(pw)
	}

	line, err := p.reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		secret.Zero(line)
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyPassword
		}
		return nil, types.IO("password: read", err)
	}
	return fromBytes(line)
}

// ReadConfirmed reads a password twice and fails with ErrMismatch unless
// both entries match.
func (p *Prompter) ReadConfirmed(prompt, confirm string) (*secret.Buffer, error) {
	first, err := p.Read(prompt)
	if err != nil {
		return nil, err
	}
	second, err := p.Read(confirm)
	if err != nil {
		_ = first.Close()
		return nil, err
	}
	defer second.Close()

	if !first.Equal(second) {
		_ = first.Close()
		return nil, ErrMismatch
	}
	return first, nil
}

// fromBytes trims b into a secret buffer and zeroes b.
func fromBytes(b []byte) (*secret.Buffer, error) {
	defer secret.Zero(b)
	trimmed := bytes.TrimRight(b, "\r\n")
	if len(trimmed) == 0 {
		return nil, ErrEmptyPassword
	}
	return secret.NewFromBytes(trimmed)
}
