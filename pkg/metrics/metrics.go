// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-enclave.
//
// go-enclave is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for enclave
// operations: operation counters, latency histograms, and error counters,
// labeled by operation and keystore backend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all enclave metrics
	Namespace = "enclave"

	// Label names
	LabelOperation = "operation"
	LabelBackend   = "backend"
	LabelStatus    = "status"
	LabelErrorType = "error_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpResolve = "resolve"
	OpDelete  = "delete"
	OpSign    = "sign"
	OpVerify  = "verify"
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
)

var (
	// OperationsTotal tracks the total number of enclave operations by type,
	// backend, and status. Use RecordOperation to increment this counter.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of enclave operations by type, backend, and status",
		},
		[]string{LabelOperation, LabelBackend, LabelStatus},
	)

	// OperationDuration tracks the duration of enclave operations in seconds.
	// Buckets extend to tens of seconds because first-use resolution can
	// block on a user-presence prompt.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of enclave operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{LabelOperation, LabelBackend},
	)

	// ErrorsTotal tracks the total number of errors by operation, backend,
	// and error type (e.g. "key_unavailable", "message_too_large").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, backend, and error type",
		},
		[]string{LabelOperation, LabelBackend, LabelErrorType},
	)
)

// RecordOperation increments the operation counter with the given outcome.
func RecordOperation(operation, backend, status string) {
	OperationsTotal.WithLabelValues(operation, backend, status).Inc()
}

// RecordError increments the error counter for the given error type.
func RecordError(operation, backend, errorType string) {
	ErrorsTotal.WithLabelValues(operation, backend, errorType).Inc()
}

// ObserveDuration records the elapsed time since started for an operation.
// Intended for use with defer:
//
//	defer metrics.ObserveDuration(metrics.OpSign, backend, time.Now())
func ObserveDuration(operation, backend string, started time.Time) {
	OperationDuration.WithLabelValues(operation, backend).Observe(time.Since(started).Seconds())
}
