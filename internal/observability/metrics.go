package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LikeToggles counts like toggles by resulting state ("liked" or "unliked").
	LikeToggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_like_toggles_total",
		Help: "Total number of like toggles by resulting state",
	}, []string{"state"})

	// EmojiReactions counts emoji mutations by action and kind.
	EmojiReactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_emoji_reactions_total",
		Help: "Total number of emoji reaction changes",
	}, []string{"action", "kind"})

	// ReactionFailures counts failed reaction operations by operation and error code.
	ReactionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_reaction_failures_total",
		Help: "Total number of failed reaction operations",
	}, []string{"operation", "code"})

	// ReactionTxDuration records how long reaction transactions hold the post lock.
	ReactionTxDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_reaction_tx_duration_seconds",
		Help:    "Reaction transaction latency in seconds",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by cache name and result ("hit" or "miss").
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_cache_lookups_total",
		Help: "Cache lookups by cache and result",
	}, []string{"cache", "result"})

	// WebSocketEventsTotal counts realtime events fanned out by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_websocket_events_total",
		Help: "Total realtime events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})
)
