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

// Package metrics provides Prometheus instrumentation for keystore
// operations, password derivation and unwrap attempts.
//
// The CLI is short-lived, so instead of serving /metrics it can dump the
// default registry to a node_exporter textfile with WriteTextfile.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all keywrap metrics
	Namespace = "keywrap"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelResult    = "result"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpCreate        = "create"
	OpOpen          = "open"
	OpSerialize     = "serialize"
	OpAddUserKey    = "add_user_key"
	OpRemoveUserKey = "remove_user_key"
	OpDeriveKey     = "derive_key"
	OpRemoteEncrypt = "remote_encrypt"
	OpRemoteDecrypt = "remote_decrypt"

	// Unwrap attempt results
	UnwrapMatched        = "matched"
	UnwrapDigestMismatch = "digest_mismatch"
	UnwrapFailed         = "unwrap_failed"
	UnwrapTokenMismatch  = "token_mismatch"
)

var (
	// OperationsTotal counts operations by name and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of keywrap operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks operation latency. Buckets stretch to a
	// minute because sensitive-profile derivation takes seconds.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of keywrap operations in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{LabelOperation},
	)

	// UnwrapAttemptsTotal counts wrapped entries tried while opening a
	// keystore, by outcome.
	UnwrapAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "unwrap_attempts_total",
			Help:      "Wrapped master key entries tried during open, by result",
		},
		[]string{LabelResult},
	)

	// WrappedKeys is the number of user keys in the last keystore touched.
	WrappedKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "wrapped_keys",
			Help:      "Number of wrapped master key entries in the last keystore touched",
		},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records an operation with its status and duration in
// seconds.
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

// Observe records operation as started at start, with the status taken
// from err. It is meant to be deferred:
//
//	defer func(start time.Time) { metrics.Observe(metrics.OpOpen, start, err) }(time.Now())
func Observe(operation string, start time.Time, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	RecordOperation(operation, status, time.Since(start).Seconds())
}

// RecordUnwrapAttempt counts one wrapped entry tried during open.
func RecordUnwrapAttempt(result string) {
	if !enabled.Load() {
		return
	}
	UnwrapAttemptsTotal.WithLabelValues(result).Inc()
}

// SetWrappedKeys publishes the entry count of a keystore.
func SetWrappedKeys(n int) {
	if !enabled.Load() {
		return
	}
	WrappedKeys.Set(float64(n))
}

// WriteTextfile writes every metric in the default registry to path in the
// node_exporter textfile format. The file is replaced atomically.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}

// Enable turns recording on
func Enable() {
	enabled.Store(true)
}

// Disable turns recording off. Already recorded values are kept.
func Disable() {
	enabled.Store(false)
}

// IsEnabled reports whether recording is on
func IsEnabled() bool {
	return enabled.Load()
}
