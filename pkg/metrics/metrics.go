// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for ceremony and HTTP
// traffic: ceremony counters and latency histograms, credential gauges, and
// request-level HTTP metrics.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelCeremony   = "ceremony"
	LabelPhase      = "phase"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Ceremony values
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Phase values
	PhaseStart  = "start"
	PhaseFinish = "finish"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// CeremoniesTotal tracks ceremony operations by type, phase, and status.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony operations by type, phase, and status",
		},
		[]string{LabelCeremony, LabelPhase, LabelStatus},
	)

	// CeremonyDuration tracks the server-side duration of ceremony operations.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelCeremony, LabelPhase},
	)

	// CeremonyErrorsTotal tracks ceremony failures by type and error category.
	CeremonyErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremony_errors_total",
			Help:      "Total number of ceremony failures by type and error category",
		},
		[]string{LabelCeremony, LabelErrorType},
	)

	// CounterAnomaliesTotal counts authentications that completed with a
	// non-advancing signature counter (possible cloned authenticator).
	CounterAnomaliesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "counter_anomalies_total",
			Help:      "Total number of authentications flagged with a signature counter anomaly",
		},
	)

	// CredentialsRegistered counts credentials committed to the registry.
	CredentialsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credentials_registered_total",
			Help:      "Total number of credentials committed to the registry",
		},
	)

	// CredentialsRemoved counts credentials removed from the registry.
	CredentialsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credentials_removed_total",
			Help:      "Total number of credentials removed from the registry",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a ceremony operation with its duration and status.
//
// Parameters:
//   - ceremony: Ceremony* constant
//   - phase: Phase* constant
//   - status: Status* constant
//   - duration: operation duration in seconds
func RecordCeremony(ceremony, phase, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, phase, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony, phase).Observe(duration)
}

// RecordCeremonyError records a ceremony failure with a specific error
// category (e.g. "no_such_ceremony", "verification_failed").
func RecordCeremonyError(ceremony, errorType string) {
	if !enabled.Load() {
		return
	}
	CeremonyErrorsTotal.WithLabelValues(ceremony, errorType).Inc()
}

// RecordCounterAnomaly records a cloned-authenticator signal.
func RecordCounterAnomaly() {
	if !enabled.Load() {
		return
	}
	CounterAnomaliesTotal.Inc()
}

// RecordCredentialRegistered records a committed registration.
func RecordCredentialRegistered() {
	if !enabled.Load() {
		return
	}
	CredentialsRegistered.Inc()
}

// RecordCredentialsRemoved records credential removals.
func RecordCredentialsRemoved(count int) {
	if !enabled.Load() || count <= 0 {
		return
	}
	CredentialsRemoved.Add(float64(count))
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
