// Package metrics defines and registers all custom Prometheus metrics for the
// PMO sync backend. It is the single source of truth for metric names,
// labels, and help strings.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pmo"

// ── Event bus metrics ─────────────────────────────────────────────────────────

// EventsPublishedTotal counts domain events published to the hub.
// Label:
//   - topic: the event topic (e.g. "timer-started")
var EventsPublishedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Total number of domain events published to the event bus.",
	},
	[]string{"topic"},
)

// EventsDroppedTotal counts events published while the owner's room was
// empty. Dropping is by contract: clients recover via full resync.
var EventsDroppedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Total number of events dropped because no subscriber was connected.",
	},
	[]string{"topic"},
)

// EventsRelayedTotal counts events exchanged with other server instances over
// the Redis bridge.
// Label:
//   - direction: "out" (published to Redis) or "in" (re-injected locally)
var EventsRelayedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_relayed_total",
		Help:      "Total number of events relayed across instances via Redis pub/sub.",
	},
	[]string{"direction"},
)

// ── Realtime transport metrics ────────────────────────────────────────────────

// RealtimeSubscriptions tracks the current number of live room memberships
// across all transports.
var RealtimeSubscriptions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscriptions",
		Help:      "Current number of live realtime subscriptions.",
	},
)

// RealtimeConnectsTotal counts realtime connection attempts by transport and
// outcome.
// Labels:
//   - transport: "websocket" or "polling"
//   - result: "ok" or "unauthorized"
var RealtimeConnectsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_connects_total",
		Help:      "Total number of realtime connection attempts.",
	},
	[]string{"transport", "result"},
)

// PollSessionsActive tracks the current number of live polling sessions.
var PollSessionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_sessions_active",
		Help:      "Current number of active long-polling sessions.",
	},
)

// ── Mutation metrics ──────────────────────────────────────────────────────────

// TimerMutationsTotal counts timer mutations by operation and result.
// Labels:
//   - op: "start", "stop", "discard", "update"
//   - result: "ok", "conflict", "not_found", "error"
var TimerMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "timer_mutations_total",
		Help:      "Total number of timer mutations, by operation and result.",
	},
	[]string{"op", "result"},
)

// ShortcutMutationsTotal counts shortcut mutations by operation and result.
// Labels:
//   - op: "create", "update", "delete", "reorder"
//   - result: "ok", "not_found", "forbidden", "error"
var ShortcutMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shortcut_mutations_total",
		Help:      "Total number of shortcut mutations, by operation and result.",
	},
	[]string{"op", "result"},
)
