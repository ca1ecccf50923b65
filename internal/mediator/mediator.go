// Package mediator implements the quorum coordinator (C5): per-request
// replica selection, parallel fan-out to StorageEndpoint, quorum decision,
// and read-side reconciliation via vector clocks.
//
// Grounded on the teacher's CoordinatorService.writeToReplicas/
// readFromReplicas (coordinator/internal/service/coordinator_service.go):
// errgroup fan-out, mutex-guarded response collection, quorum-check shape,
// adapted from PairDB's tenant-scoped consistency levels to the spec's
// fixed (N, R, W) replication factors and from "first-success-wins" read
// reconciliation to the spec's vector-clock resolve/sibling-preserving
// fold.
package mediator

import (
	"context"
	"fmt"
	"time"

	"github.com/chinnucsk/dynomite/internal/coreerrors"
	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/kv"
	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/storageendpoint"
	"github.com/chinnucsk/dynomite/internal/vclock"
	"go.uber.org/zap"
)

// deleteDeadline is the fixed per-call deadline for storage.delete (§5).
const deleteDeadline = 10 * time.Second

// Mediator is the per-node quorum coordinator. It is stateless between
// calls except for what it reads through indexFn -- an atomically
// swapped membership.Index snapshot -- so it never blocks on the
// membership actor for an ordinary read or write (§4.3, §5a).
type Mediator struct {
	self     string
	n, r, w  int
	hasher   partition.Hasher
	endpoint storageendpoint.Endpoint
	indexFn  func() *membership.Index
	metrics  *coremetrics.Metrics
	logger   *zap.Logger
}

// New builds a Mediator. indexFn is typically membership.Actor.Index.
func New(self string, n, r, w int, hasher partition.Hasher, endpoint storageendpoint.Endpoint, indexFn func() *membership.Index, metrics *coremetrics.Metrics, logger *zap.Logger) *Mediator {
	if hasher == nil {
		hasher = partition.DefaultHasher
	}
	return &Mediator{self: self, n: n, r: r, w: w, hasher: hasher, endpoint: endpoint, indexFn: indexFn, metrics: metrics, logger: logger}
}

// BadEntry is one failed replica reply, carried in diagnostics (§6).
type BadEntry struct {
	Node string
	Code coreerrors.Code
	Err  error
}

func (b BadEntry) String() string {
	return fmt.Sprintf("%s=%s", b.Node, b.Code)
}

// replicaSet resolves the N-wide replica set for key via the current
// index snapshot -- no round trip through the membership actor (§5).
func (m *Mediator) replicaSet(key string) ([]string, partition.ID, error) {
	idx := m.indexFn()
	hash := m.hasher.Sum64([]byte(key))
	p := idx.PartitionFor(hash)
	owner, err := idx.Partitions.Owner(p)
	if err != nil {
		return nil, 0, err
	}
	set, err := partition.Replicas(owner, m.n, idx.Nodes)
	if err != nil {
		return nil, 0, err
	}
	return set, p, nil
}

func badEntry(node string, err error) BadEntry {
	return BadEntry{Node: node, Code: coreerrors.GetCode(err), Err: err}
}

func quorumErr(op string, good, n, required int, bad []BadEntry) error {
	return coreerrors.New(coreerrors.QuorumUnmet,
		fmt.Sprintf("%s: quorum not met (good=%d n=%d required=%d bad=%v)", op, good, n, required, bad)).
		WithDetail("good", good).
		WithDetail("n", n).
		WithDetail("required", required).
		WithDetail("bad", bad)
}

// Put implements §4.5 put: increments the context clock by self, fans out
// to every replica in parallel, and reports success once at least W
// replicas ack.
func (m *Mediator) Put(ctx context.Context, key string, contextClock vclock.VectorClock, value []byte) (int, error) {
	replicas, p, err := m.replicaSet(key)
	if err != nil {
		return 0, err
	}
	incremented := vclock.Increment(m.self, contextClock)

	good, bad := pcall(ctx, replicas, func(ctx context.Context, node string) (struct{}, error) {
		err := m.endpoint.Put(ctx, storageendpoint.EndpointID{Partition: uint64(p), Node: node}, key, incremented, value)
		return struct{}{}, err
	})
	m.recordReplicas(nodesOf(good), nodesOf(bad))

	if len(good) >= m.w {
		m.recordOp("put", "ok")
		return len(good), nil
	}
	m.recordOp("put", "quorum_unmet")
	return len(good), quorumErr("put", len(good), m.n, m.w, badEntries(bad))
}

// GetResult is the outcome of Get: either a reconciled value, absence, or
// a set of unresolved siblings (§4.1, §4.5, §8 scenario S5).
type GetResult struct {
	NotFound bool
	Values   []kv.VersionedValue
}

// Get implements §4.5 get: fans out, reconciles Good replies by
// vector-clock dominance, and promotes a not_found quorum.
func (m *Mediator) Get(ctx context.Context, key string) (GetResult, error) {
	replicas, p, err := m.replicaSet(key)
	if err != nil {
		return GetResult{}, err
	}

	good, bad := pcall(ctx, replicas, func(ctx context.Context, node string) (kv.VersionedValue, error) {
		vv, _, err := m.endpoint.Get(ctx, storageendpoint.EndpointID{Partition: uint64(p), Node: node}, key)
		return vv, err
	})
	m.recordReplicas(nodesOf(good), nodesOf(bad))

	if len(good) >= m.r {
		base := good[0].value
		resolved := kv.ResolveAll(base, valuesOf(good[1:]))
		m.recordOp("get", "ok")
		return GetResult{Values: resolved}, nil
	}

	notFoundCount := 0
	for _, b := range bad {
		if coreerrors.GetCode(b.err) == coreerrors.NotFound {
			notFoundCount++
		}
	}
	if notFoundCount >= m.r {
		m.recordOp("get", "not_found_quorum")
		return GetResult{NotFound: true}, nil
	}

	m.recordOp("get", "quorum_unmet")
	return GetResult{}, quorumErr("get", len(good), m.n, m.r, badEntries(bad))
}

// HasKey implements §4.5 has_key: fans out and returns the majority
// boolean with its supporting count once quorum is met.
func (m *Mediator) HasKey(ctx context.Context, key string) (bool, int, error) {
	replicas, p, err := m.replicaSet(key)
	if err != nil {
		return false, 0, err
	}

	good, bad := pcall(ctx, replicas, func(ctx context.Context, node string) (bool, error) {
		return m.endpoint.HasKey(ctx, storageendpoint.EndpointID{Partition: uint64(p), Node: node}, key)
	})
	m.recordReplicas(nodesOf(good), nodesOf(bad))

	if len(good) < m.r {
		m.recordOp("has_key", "quorum_unmet")
		return false, 0, quorumErr("has_key", len(good), m.n, m.r, badEntries(bad))
	}

	trueCount := 0
	for _, g := range good {
		if g.value {
			trueCount++
		}
	}
	m.recordOp("has_key", "ok")
	majority := trueCount*2 >= len(good)
	if majority {
		return true, trueCount, nil
	}
	return false, len(good) - trueCount, nil
}

// Delete implements §4.5 delete: fans out with a fixed 10s per-call
// deadline and checks quorum against W.
func (m *Mediator) Delete(ctx context.Context, key string) (int, error) {
	replicas, p, err := m.replicaSet(key)
	if err != nil {
		return 0, err
	}

	good, bad := pcall(ctx, replicas, func(ctx context.Context, node string) (struct{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, deleteDeadline)
		defer cancel()
		err := m.endpoint.Delete(callCtx, storageendpoint.EndpointID{Partition: uint64(p), Node: node}, key, deleteDeadline)
		return struct{}{}, err
	})
	m.recordReplicas(nodesOf(good), nodesOf(bad))

	if len(good) >= m.w {
		m.recordOp("delete", "ok")
		return len(good), nil
	}
	m.recordOp("delete", "quorum_unmet")
	return len(good), quorumErr("delete", len(good), m.n, m.w, badEntries(bad))
}

// RepairKey is the manual, operator-triggered read-repair call described
// in §4.5: it re-runs Get's reconciliation and writes the dominant value
// back to every replica, grounded on the teacher's
// ConflictService.TriggerRepair/executeRepair.
func (m *Mediator) RepairKey(ctx context.Context, key string) (int, error) {
	result, err := m.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if result.NotFound || len(result.Values) != 1 {
		return 0, coreerrors.New(coreerrors.InvariantViolation, "repair requires a single reconciled value; siblings must be resolved by a client write first").
			WithDetail("key", key)
	}

	winner := result.Values[0]
	replicas, p, err := m.replicaSet(key)
	if err != nil {
		return 0, err
	}

	good, bad := pcall(ctx, replicas, func(ctx context.Context, node string) (struct{}, error) {
		err := m.endpoint.Put(ctx, storageendpoint.EndpointID{Partition: uint64(p), Node: node}, key, winner.Clock, winner.Value)
		return struct{}{}, err
	})
	if m.metrics != nil {
		outcome := "ok"
		if len(bad) > 0 {
			outcome = "partial"
		}
		m.metrics.RepairsTriggered.WithLabelValues(outcome).Inc()
	}
	return len(good), nil
}

func valuesOf(results []result[kv.VersionedValue]) []kv.VersionedValue {
	out := make([]kv.VersionedValue, len(results))
	for i, r := range results {
		out[i] = r.value
	}
	return out
}

func badEntries[T any](bad []result[T]) []BadEntry {
	out := make([]BadEntry, len(bad))
	for i, b := range bad {
		out[i] = badEntry(b.node, b.err)
	}
	return out
}

func nodesOf[T any](results []result[T]) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.node
	}
	return out
}

func (m *Mediator) recordOp(op, outcome string) {
	if m.metrics == nil {
		return
	}
	m.metrics.MediatorOpsTotal.WithLabelValues(op, outcome).Inc()
	if outcome == "quorum_unmet" {
		m.metrics.MediatorQuorumFails.WithLabelValues(op).Inc()
	}
}

func (m *Mediator) recordReplicas(good, bad []string) {
	if m.metrics == nil {
		return
	}
	for _, n := range good {
		m.metrics.ReplicaCallsTotal.WithLabelValues(n, "ok").Inc()
	}
	for _, n := range bad {
		m.metrics.ReplicaCallsTotal.WithLabelValues(n, "error").Inc()
	}
}
