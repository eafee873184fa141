package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// All collectors register with the default registry via promauto.
var (
	// --- Quorum Metrics ---

	// JoinsTotal counts join attempts by role and result (accepted, rejected).
	JoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "quorum",
			Name:      "joins_total",
			Help:      "Join attempts by role and result",
		},
		[]string{"role", "result"},
	)

	// WaitingMembers tracks queued members per group.
	WaitingMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quorumgate",
			Subsystem: "quorum",
			Name:      "waiting_members",
			Help:      "Members currently waiting for release",
		},
		[]string{"role"},
	)

	// ReleasesTotal counts released quorums per group.
	ReleasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "quorum",
			Name:      "releases_total",
			Help:      "Quorum releases by role",
		},
		[]string{"role"},
	)

	// MembersReleased counts individual members released per group.
	MembersReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "quorum",
			Name:      "members_released_total",
			Help:      "Members released by role",
		},
		[]string{"role"},
	)

	// DrainsTotal counts forced drains.
	DrainsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "quorum",
			Name:      "drains_total",
			Help:      "Forced drains by role",
		},
		[]string{"role"},
	)

	// --- Arbitration Metrics ---

	// ArbitrationRounds counts arbitration rounds by outcome (primary, secondary, spurious).
	ArbitrationRounds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "arbiter",
			Name:      "rounds_total",
			Help:      "Arbitration rounds by outcome",
		},
		[]string{"outcome"},
	)

	// --- Endpoint Metrics ---

	// ProtocolViolations counts discarded messages with unknown tags.
	ProtocolViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "endpoint",
			Name:      "protocol_violations_total",
			Help:      "Messages discarded because of an unknown tag",
		},
	)

	// ReplyFailures counts replies that could not be delivered (stale addresses).
	ReplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "endpoint",
			Name:      "reply_failures_total",
			Help:      "Replies that could not be delivered",
		},
		[]string{"role"},
	)

	// --- Participant Metrics ---

	// ParticipantCycles counts completed participant cycles by role and outcome.
	ParticipantCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quorumgate",
			Subsystem: "participant",
			Name:      "cycles_total",
			Help:      "Participant cycles by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	// WaitDuration tracks how long participants block between acceptance and release.
	WaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quorumgate",
			Subsystem: "participant",
			Name:      "wait_seconds",
			Help:      "Time spent waiting for release",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
		[]string{"role"},
	)

	// --- Resilience Metrics ---

	// BreakerState exposes circuit breaker state (0 closed, 1 open, 2 half-open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quorumgate",
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"name"},
	)
)

// RecordJoin records one join attempt.
func RecordJoin(role string, accepted bool, waiting int) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	JoinsTotal.WithLabelValues(role, result).Inc()
	WaitingMembers.WithLabelValues(role).Set(float64(waiting))
}

// RecordRelease records a quorum release of n members.
func RecordRelease(role string, n int) {
	ReleasesTotal.WithLabelValues(role).Inc()
	MembersReleased.WithLabelValues(role).Add(float64(n))
	WaitingMembers.WithLabelValues(role).Set(0)
}
