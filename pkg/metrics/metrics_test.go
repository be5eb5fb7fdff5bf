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

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordOperation(t *testing.T) {
	Enable()
	OperationsTotal.Reset()
	OperationDuration.Reset()

	RecordOperation(OpCreate, StatusSuccess, 0.5)
	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpCreate, StatusSuccess)); got != 1 {
		t.Errorf("Expected 1 create recorded, got %v", got)
	}
	if count := testutil.CollectAndCount(OperationDuration); count != 1 {
		t.Errorf("Expected 1 histogram series, got %d", count)
	}

	RecordOperation(OpOpen, StatusError, 0.1)
	if count := testutil.CollectAndCount(OperationsTotal); count != 2 {
		t.Errorf("Expected 2 counter series, got %d", count)
	}
}

func TestRecordOperationWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()
	OperationsTotal.Reset()

	RecordOperation(OpCreate, StatusSuccess, 0.5)
	RecordUnwrapAttempt(UnwrapMatched)
	if count := testutil.CollectAndCount(OperationsTotal); count != 0 {
		t.Errorf("Expected no operations when disabled, got %d", count)
	}
}

func TestObserve(t *testing.T) {
	Enable()
	OperationsTotal.Reset()

	Observe(OpAddUserKey, time.Now(), nil)
	Observe(OpAddUserKey, time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpAddUserKey, StatusSuccess)); got != 1 {
		t.Errorf("Expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(OperationsTotal.WithLabelValues(OpAddUserKey, StatusError)); got != 1 {
		t.Errorf("Expected 1 error, got %v", got)
	}
}

func TestUnwrapAttemptsAndGauge(t *testing.T) {
	Enable()
	UnwrapAttemptsTotal.Reset()

	RecordUnwrapAttempt(UnwrapDigestMismatch)
	RecordUnwrapAttempt(UnwrapDigestMismatch)
	RecordUnwrapAttempt(UnwrapMatched)
	if got := testutil.ToFloat64(UnwrapAttemptsTotal.WithLabelValues(UnwrapDigestMismatch)); got != 2 {
		t.Errorf("Expected 2 digest mismatches, got %v", got)
	}

	SetWrappedKeys(3)
	if got := testutil.ToFloat64(WrappedKeys); got != 3 {
		t.Errorf("Expected gauge 3, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	Enable()
	RecordOperation(OpSerialize, StatusSuccess, 0.01)

	path := filepath.Join(t.TempDir(), "keywrap.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "keywrap_operations_total") {
		t.Error("Expected textfile to contain keywrap_operations_total")
	}
}
