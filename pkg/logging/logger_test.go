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

package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	t.Run("debug suppressed by default", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, FormatText, false)
		l.Debug("hidden")
		l.Debugf("hidden %d", 1)
		assert.Empty(t, buf.String())
		assert.False(t, l.DebugEnabled())
	})

	t.Run("debug enabled", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, FormatText, true)
		l.Debug("visible", "entries", 2)
		assert.Contains(t, buf.String(), "visible")
		assert.Contains(t, buf.String(), "entries=2")
	})

	t.Run("errors", func(t *testing.T) {
		var buf bytes.Buffer
		l := New(&buf, FormatText, false)
		l.MaybeError(nil)
		assert.Empty(t, buf.String())
		l.MaybeError(errors.New("boom"))
		assert.Contains(t, buf.String(), "boom")
	})
}

func TestLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, FormatJSON, false).With("component", "keystore")
	l.Info("opened", "wrapped_keys", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "opened", record["msg"])
	assert.Equal(t, "keystore", record["component"])
	assert.EqualValues(t, 3, record["wrapped_keys"])
}

func TestDefault(t *testing.T) {
	orig := Default()
	t.Cleanup(func() { SetDefault(orig) })

	require.NotNil(t, orig)
	l := Discard()
	SetDefault(l)
	assert.Same(t, l, Default())

	SetDefault(nil)
	assert.Same(t, l, Default())
}

func TestNewWithLevel(t *testing.T) {
	level, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	var buf bytes.Buffer
	l := NewWithLevel(&buf, FormatText, level)
	l.Info("dropped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
	assert.False(t, l.DebugEnabled())

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
