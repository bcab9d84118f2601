// Package metrics provides Prometheus metrics for the sync layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Subscription

	// FramesDroppedTotal counts inbound frames the subscription client
	// could not use, by reason.
	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rusty_subscription_frames_dropped_total",
		Help: "Inbound subscription frames dropped, by reason.",
	}, []string{"reason"})

	ReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rusty_subscription_reconnects_total",
		Help: "Reconnect attempts scheduled after a transport failure.",
	})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rusty_subscription_state_transitions_total",
		Help: "Subscription state machine transitions, by target state.",
	}, []string{"state"})

	EventsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rusty_subscription_events_delivered_total",
		Help: "Pipeline events handed to subscribers, by kind.",
	}, []string{"kind"})

	// Paging

	FetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rusty_pager_fetches_total",
		Help: "Page fetches, by collection and outcome (ok, error, stale).",
	}, []string{"collection", "outcome"})

	// API

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rusty_api_request_duration_seconds",
		Help:    "Query API round trip time, by operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Drop reasons.
const (
	DropMalformed    = "malformed"
	DropUnknownType  = "unknown_type"
	DropStaleID      = "stale_id"
	DropUnknownField = "unknown_field"
	DropNotReady     = "not_subscribed"
)

// Fetch outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale"
)
