// SPDX-License-Identifier: MIT

// Package metrics exposes the upload pipeline's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationcast_upload_sessions_initiated_total",
		Help: "Total number of upload sessions created",
	})

	sessionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationcast_upload_sessions_cancelled_total",
		Help: "Total number of upload sessions cancelled by clients",
	})

	sessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationcast_upload_sessions_reaped_total",
		Help: "Total number of stale upload sessions removed by the reaper",
	})

	chunksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationcast_upload_chunks_received_total",
		Help: "Total number of chunks accepted",
	})

	chunkBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stationcast_upload_chunk_bytes_total",
		Help: "Total chunk payload bytes accepted",
	})

	finalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationcast_upload_finalize_total",
		Help: "Finalize attempts by outcome",
	}, []string{"outcome"}) // outcome=success|missing_chunks|size_mismatch|insufficient_funds|error

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stationcast_upload_active_sessions",
		Help: "Upload sessions currently staged on disk",
	})

	rateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stationcast_ratelimit_exceeded_total",
		Help: "Total rate limit rejections",
	}, []string{"limit_type"}) // limit_type=ip|station
)

// SessionInitiated records a freshly created upload session.
func SessionInitiated() {
	sessionsInitiated.Inc()
	activeSessions.Inc()
}

// SessionCancelled records an explicit client cancel.
func SessionCancelled() {
	sessionsCancelled.Inc()
	activeSessions.Dec()
}

// SessionReaped records a stale session removed by the background sweep.
func SessionReaped() {
	sessionsReaped.Inc()
	activeSessions.Dec()
}

// SessionFinalized records a session consumed by a successful finalize.
func SessionFinalized() {
	activeSessions.Dec()
}

// ChunkReceived records one accepted chunk of the given size.
func ChunkReceived(bytes int64) {
	chunksReceived.Inc()
	chunkBytes.Add(float64(bytes))
}

// FinalizeOutcome records the result class of a finalize attempt.
func FinalizeOutcome(outcome string) {
	finalizeTotal.WithLabelValues(outcome).Inc()
}

// RateLimitExceeded records a rejected request per limiter type.
func RateLimitExceeded(limitType string) {
	rateLimitExceeded.WithLabelValues(limitType).Inc()
}
