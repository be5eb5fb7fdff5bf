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

package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
		want string
	}{
		{
			name: "Add run ID to context",
			ctx:  context.Background(),
			id:   "test-run-id",
			want: "test-run-id",
		},
		{
			name: "Add run ID to nil context",
			ctx:  nil,
			id:   "test-run-id-2",
			want: "test-run-id-2",
		},
		{
			name: "Add empty run ID",
			ctx:  context.Background(),
			id:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithID(tt.ctx, tt.id)
			if ctx == nil {
				t.Fatal("WithID returned nil context")
			}
			if got := ID(ctx); got != tt.want {
				t.Errorf("ID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestID_Missing(t *testing.T) {
	if got := ID(context.Background()); got != "" {
		t.Errorf("ID() = %q, want empty", got)
	}
	//nolint:staticcheck // nil context is handled explicitly
	if got := ID(nil); got != "" {
		t.Errorf("ID(nil) = %q, want empty", got)
	}

	// a value of the wrong type is ignored
	ctx := context.WithValue(context.Background(), IDKey, 42)
	if got := ID(ctx); got != "" {
		t.Errorf("ID() = %q, want empty", got)
	}
}

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("NewID() = %q is not a UUID: %v", id, err)
		}
		if seen[id] {
			t.Fatalf("NewID() returned duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestGetOrGenerate(t *testing.T) {
	ctx := WithID(context.Background(), "existing")
	if got := GetOrGenerate(ctx); got != "existing" {
		t.Errorf("GetOrGenerate() = %q, want existing", got)
	}

	got := GetOrGenerate(context.Background())
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("GetOrGenerate() = %q is not a UUID", got)
	}
}
