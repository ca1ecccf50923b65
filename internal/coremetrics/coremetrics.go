// Package coremetrics defines the Prometheus metrics exported by the
// coordination core, grounded on the teacher's Metrics struct in
// coordinator/internal/metrics/prometheus.go.
package coremetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the core registers. One instance
// is built at startup and threaded into the actors that report through it.
type Metrics struct {
	GossipRoundsTotal  *prometheus.CounterVec
	GossipRoundLatency prometheus.Histogram

	MediatorOpsTotal    *prometheus.CounterVec
	MediatorQuorumFails *prometheus.CounterVec
	ReplicaCallsTotal   *prometheus.CounterVec

	MembershipVersion  prometheus.Gauge
	MembershipNodes    prometheus.Gauge
	RepairsTriggered   *prometheus.CounterVec
	ConfigReconciled   *prometheus.CounterVec
}

// New creates and registers every collector against the default registry.
func New() *Metrics {
	return &Metrics{
		GossipRoundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynomite_gossip_rounds_total",
				Help: "Total number of anti-entropy gossip rounds by outcome.",
			},
			[]string{"outcome"},
		),
		GossipRoundLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dynomite_gossip_round_duration_seconds",
				Help:    "Duration of a single gossip exchange round.",
				Buckets: prometheus.DefBuckets,
			},
		),
		MediatorOpsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynomite_mediator_ops_total",
				Help: "Total number of mediator operations by kind and outcome.",
			},
			[]string{"op", "outcome"},
		),
		MediatorQuorumFails: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynomite_mediator_quorum_failures_total",
				Help: "Total number of operations that failed to reach quorum.",
			},
			[]string{"op"},
		),
		ReplicaCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynomite_replica_calls_total",
				Help: "Total number of storage endpoint calls by node and outcome.",
			},
			[]string{"node", "outcome"},
		),
		MembershipVersion: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dynomite_membership_version_sum",
				Help: "Sum of the locally installed membership version's counters.",
			},
		),
		MembershipNodes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "dynomite_membership_nodes",
				Help: "Number of nodes in the locally installed membership state.",
			},
		),
		RepairsTriggered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynomite_repairs_triggered_total",
				Help: "Total number of manually triggered read repairs by outcome.",
			},
			[]string{"outcome"},
		),
		ConfigReconciled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dynomite_config_reconciled_total",
				Help: "Total number of startup peer config reconciliation attempts by outcome.",
			},
			[]string{"outcome"},
		),
	}
}
