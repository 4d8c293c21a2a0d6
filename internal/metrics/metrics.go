// Package metrics exports the operator-visible state of a replica state
// coordinator as Prometheus gauges, grounded on the gauge-per-fact style
// of cuemby-warren/pkg/metrics: one Collector per replica, built and
// registered by NewCollector, with setter helpers the coordinator calls as
// its state changes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector holds the set of gauges a single replica updates as its
// consensus state evolves. A fresh Collector must be created per replica
// ID so that multi-replica test processes don't collide on metric names.
type Collector struct {
	Role             *prometheus.GaugeVec
	Term             prometheus.Gauge
	LastReceivedIdx  prometheus.Gauge
	LastCommittedIdx prometheus.Gauge
	PendingOpsDepth  prometheus.Gauge
	RetryableCount   prometheus.Gauge
	LeaseStatus      *prometheus.GaugeVec
}

// NewCollector builds and registers a Collector for the given replica ID.
// Registration errors from duplicate replica IDs are intentionally
// ignored, matching the fire-and-forget MustRegister pattern used by the
// pack's cuemby-warren/pkg/metrics/metrics.go, but scoped to a constant
// replicaID label rather than panicking on re-registration in tests.
func NewCollector(reg prometheus.Registerer, replicaID string) *Collector {
	constLabels := prometheus.Labels{"replica_id": replicaID}

	c := &Collector{
		Role: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "consensus_replica_role",
			Help:        "Current role of the replica (1 for the active role, 0 otherwise), labeled by role name.",
			ConstLabels: constLabels,
		}, []string{"role"}),
		Term: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "consensus_current_term",
			Help:        "Current consensus term.",
			ConstLabels: constLabels,
		}),
		LastReceivedIdx: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "consensus_last_received_index",
			Help:        "Index of the last log entry received.",
			ConstLabels: constLabels,
		}),
		LastCommittedIdx: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "consensus_last_committed_index",
			Help:        "Index of the last log entry committed.",
			ConstLabels: constLabels,
		}),
		PendingOpsDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "consensus_pending_operations",
			Help:        "Number of operations appended but not yet committed or aborted.",
			ConstLabels: constLabels,
		}),
		RetryableCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "consensus_retryable_requests_tracked",
			Help:        "Number of client request ids currently tracked for deduplication.",
			ConstLabels: constLabels,
		}),
		LeaseStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "consensus_leader_lease_status",
			Help:        "Current leader lease status (1 for the active status, 0 otherwise), labeled by status name.",
			ConstLabels: constLabels,
		}, []string{"status"}),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, collector := range []prometheus.Collector{
		c.Role, c.Term, c.LastReceivedIdx, c.LastCommittedIdx,
		c.PendingOpsDepth, c.RetryableCount, c.LeaseStatus,
	} {
		if err := reg.Register(collector); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = are
				continue
			}
		}
	}

	return c
}

// SetRole zeroes every role label and sets only the active one, matching
// the single-active-state encoding used for RaftLeader-style gauges in
// the pack.
func (c *Collector) SetRole(roles []string, active string) {
	for _, r := range roles {
		if r == active {
			c.Role.WithLabelValues(r).Set(1)
		} else {
			c.Role.WithLabelValues(r).Set(0)
		}
	}
}

// SetLeaseStatus zeroes every status label and sets only the active one.
func (c *Collector) SetLeaseStatus(statuses []string, active string) {
	for _, s := range statuses {
		if s == active {
			c.LeaseStatus.WithLabelValues(s).Set(1)
		} else {
			c.LeaseStatus.WithLabelValues(s).Set(0)
		}
	}
}
