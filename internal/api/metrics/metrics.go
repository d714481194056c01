// Package metrics defines the Prometheus metrics for the session subsystem.
// It is the single source of truth for metric names, labels, and help
// strings; counters register themselves with the default registry via
// promauto at package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sessionkit"

// RequestsTotal counts authenticated requests through the gateway.
// Label:
//   - outcome: "ok", "unauthorized", "retried_ok", "expired", "error"
var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Total authenticated requests issued through the gateway, by outcome.",
	},
	[]string{"outcome"},
)

// TokenRetriesTotal counts 401-triggered single retries with a refreshed
// cookie token.
var TokenRetriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_retries_total",
		Help:      "Total requests retried once after a cookie token refresh.",
	},
)

// AutoLogoutsTotal counts forced session invalidations (token rejected twice).
var AutoLogoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_logouts_total",
		Help:      "Total automatic logouts triggered by unrecoverable 401s.",
	},
)

// CookieSyncTotal counts provider-cookie token reads.
// Label:
//   - result: "hit" (token recovered) or "miss" (absent/unparseable)
var CookieSyncTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cookie_sync_total",
		Help:      "Total provider-cookie token reads, labelled by result (hit/miss).",
	},
	[]string{"result"},
)

// HydrationDuration measures the full rehydration cycle, vault load through
// revalidation.
// Label:
//   - result: "authenticated", "rejected", "empty", "error"
var HydrationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hydration_duration_seconds",
		Help:      "Duration of session rehydration from vault load to resolution.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)
