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

package password

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-keywrap/pkg/types"
)

func TestRead(t *testing.T) {
	p := NewReaderPrompter(strings.NewReader("first pass\r\nsecond\nlast"))
	assert.False(t, p.Interactive())

	for _, want := range []string{"first pass", "second", "last"} {
		pw, err := p.Read("Password: ")
		require.NoError(t, err)
		assert.Equal(t, want, string(pw.UnsafeBytes()))
		require.NoError(t, pw.Close())
	}

	_, err := p.Read("Password: ")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestReadEmptyLine(t *testing.T) {
	p := NewReaderPrompter(strings.NewReader("\n"))
	_, err := p.Read("Password: ")
	assert.ErrorIs(t, err, ErrEmptyPassword)
	assert.ErrorIs(t, err, types.ErrInvalidArgument)
}

func TestReadError(t *testing.T) {
	p := NewReaderPrompter(iotest.ErrReader(errors.New("broken pipe")))
	_, err := p.Read("Password: ")
	assert.ErrorIs(t, err, types.ErrIO)
}

func TestReadConfirmed(t *testing.T) {
	p := NewReaderPrompter(strings.NewReader("foo\nfoo\n"))
	pw, err := p.ReadConfirmed("Password: ", "Confirm: ")
	require.NoError(t, err)
	defer pw.Close()
	assert.Equal(t, "foo", string(pw.UnsafeBytes()))

	p = NewReaderPrompter(strings.NewReader("foo\nbar\n"))
	_, err = p.ReadConfirmed("Password: ", "Confirm: ")
	assert.ErrorIs(t, err, ErrMismatch)

	p = NewReaderPrompter(strings.NewReader("foo\n"))
	_, err = p.ReadConfirmed("Password: ", "Confirm: ")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
