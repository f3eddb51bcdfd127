// Package observability holds the process-wide Prometheus metrics and the
// structured logger used by every component of the payment pipeline.
package observability

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ═══════════════════════════════════════════════════════════════════════════
// Logging
// ═══════════════════════════════════════════════════════════════════════════

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string // debug | info | warn | error
	Format string // json | console
}

// NewLogger builds the root logger. Components derive their own with
// logger.Named("consumer") and so on.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "", "json":
		zc = zap.NewProductionConfig()
	case "console":
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("log format %q: want json or console", cfg.Format)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Consumer Metrics ───────────────────────────────────────────────────────

// MessagesHandled counts deliveries by final outcome
// (processed, duplicate, retried, dead_lettered).
var MessagesHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caseflow",
	Subsystem: "consumer",
	Name:      "messages_total",
	Help:      "Payment deliveries handled, by outcome.",
}, []string{"outcome"})

// HandleDuration tracks end-to-end handling latency per delivery.
var HandleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "caseflow",
	Subsystem: "consumer",
	Name:      "handle_seconds",
	Help:      "Time spent handling one payment delivery.",
	Buckets:   prometheus.DefBuckets,
})

// ─── Reconciliation Metrics ─────────────────────────────────────────────────

// PaymentsApplied counts payments that changed a case balance.
var PaymentsApplied = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "caseflow",
	Subsystem: "reconcile",
	Name:      "payments_applied_total",
	Help:      "Payments applied to a case balance.",
})

// DuplicatesSuppressed counts suppressed re-applications by layer
// (event, payment).
var DuplicatesSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caseflow",
	Subsystem: "reconcile",
	Name:      "duplicates_suppressed_total",
	Help:      "Duplicate deliveries or payments that were not re-applied.",
}, []string{"layer"})

// StatusTransitions counts engine-driven status changes.
var StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caseflow",
	Subsystem: "reconcile",
	Name:      "status_transitions_total",
	Help:      "Case status transitions caused by payments.",
}, []string{"from", "to"})

// LedgerSize reports the resident size of the payment ledger.
var LedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "caseflow",
	Subsystem: "ledger",
	Name:      "entries",
	Help:      "Idempotency keys currently resident in the payment ledger.",
})

// ─── Publisher Metrics ──────────────────────────────────────────────────────

// EventsPublished counts derived events handed to the sink, by event type.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caseflow",
	Subsystem: "publisher",
	Name:      "events_total",
	Help:      "Derived events published, by event type.",
}, []string{"event_type"})

// PublishFailures counts swallowed publish errors, by event type.
var PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "caseflow",
	Subsystem: "publisher",
	Name:      "failures_total",
	Help:      "Derived events that could not be published.",
}, []string{"event_type"})
