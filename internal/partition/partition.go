// Package partition implements the fixed-Q partition-to-owner map: stable
// partition ids, owner lookup, ring-replication, and churn-minimizing
// rebalancing on membership change.
//
// Grounded on the teacher's ConsistentHasher (sorted ring, binary search,
// sync.RWMutex-guarded structure) in
// coordinator/internal/algorithm/consistent_hash.go, adapted from a
// virtual-node consistent-hash ring to the spec's fixed-Q-partition ring.
package partition

import (
	"math/big"
	"sort"

	"github.com/chinnucsk/dynomite/internal/coreerrors"
)

// ID is the lower bound of the hash range a partition owns. Partition ids
// are stable across rebalancing; only their owners change.
type ID uint64

// Assignment pairs an owning node with the partition it owns.
type Assignment struct {
	Owner string
	ID    ID
}

// Map is the ordered (owner, partition) sequence of length Q, plus its
// O(1) secondary index.
type Map struct {
	Q           uint64
	RangeWidth  uint64
	Assignments []Assignment // sorted by ID ascending, length Q

	ownerIndex map[ID]string
}

// rangeWidth returns ceil(2^64 / q). Callers must special-case q <= 1,
// since 2^64 itself overflows uint64.
func rangeWidth(q uint64) uint64 {
	hashSpace := new(big.Int).Lsh(big.NewInt(1), 64)
	qBig := new(big.Int).SetUint64(q)
	r := new(big.Int).Add(hashSpace, new(big.Int).Sub(qBig, big.NewInt(1)))
	r.Div(r, qBig)
	return r.Uint64()
}

// RangeWidthForQ exposes rangeWidth for callers outside this package that
// must reconstruct a Map's width from Q alone -- the legacy membership
// persistence format carries no explicit width field (§9).
func RangeWidthForQ(q uint64) uint64 {
	if q <= 1 {
		return 0
	}
	return rangeWidth(q)
}

// PartitionForHash computes the partition lower bound for hash h under q
// equal-width buckets. Implemented from first principles per the spec's
// open question (§9): total, stable, and equal-sized by construction.
func PartitionForHash(h uint64, q uint64) ID {
	if q <= 1 {
		return ID(0)
	}
	width := rangeWidth(q)
	return ID((h / width) * width)
}

// CreatePartitions produces Q partitions uniformly distributed across nodes
// in a stable, deterministic order: nodes are sorted, then partitions are
// round-robin assigned across them.
func CreatePartitions(q uint64, nodes []string) Map {
	sorted := sortedCopy(nodes)

	width := uint64(0)
	if q > 1 {
		width = rangeWidth(q)
	}

	assignments := make([]Assignment, 0, q)
	for i := uint64(0); i < q; i++ {
		var owner string
		if len(sorted) > 0 {
			owner = sorted[i%uint64(len(sorted))]
		}
		assignments = append(assignments, Assignment{Owner: owner, ID: ID(i * width)})
	}

	return buildMap(q, width, assignments)
}

// MapPartitions reassigns partitions so that ownership is as balanced as
// possible while minimizing churn: partitions whose owner departed are
// assigned, in partition-id order, to whichever surviving-or-joining node
// currently holds the fewest partitions (ties broken by node id); then, in
// partition-id order, a partition moves to the least-loaded node only while
// its owner holds at least two more partitions than that node, so owner
// loads end up differing by at most one and every other partition keeps its
// owner. Deterministic given sorted node input.
func MapPartitions(existing Map, newNodes []string) Map {
	sortedNew := sortedCopy(newNodes)
	if len(existing.Assignments) == 0 {
		return CreatePartitions(existing.Q, sortedNew)
	}

	newNodeSet := make(map[string]struct{}, len(sortedNew))
	for _, n := range sortedNew {
		newNodeSet[n] = struct{}{}
	}

	load := make(map[string]int, len(sortedNew))
	for _, n := range sortedNew {
		load[n] = 0
	}

	out := make([]Assignment, len(existing.Assignments))
	copy(out, existing.Assignments)

	var orphaned []int
	for i, a := range out {
		if _, ok := newNodeSet[a.Owner]; ok {
			load[a.Owner]++
		} else {
			orphaned = append(orphaned, i)
		}
	}

	for _, i := range orphaned {
		owner := leastLoaded(sortedNew, load)
		out[i].Owner = owner
		load[owner]++
	}

	for i := range out {
		light := leastLoaded(sortedNew, load)
		if load[out[i].Owner]-load[light] > 1 {
			load[out[i].Owner]--
			out[i].Owner = light
			load[light]++
		}
	}

	return buildMap(existing.Q, existing.RangeWidth, out)
}

// leastLoaded returns the node with the fewest partitions, breaking ties by
// node id (nodes is already sorted).
func leastLoaded(nodes []string, load map[string]int) string {
	best := ""
	bestLoad := -1
	for _, n := range nodes {
		l := load[n]
		if bestLoad == -1 || l < bestLoad {
			best = n
			bestLoad = l
		}
	}
	return best
}

// FromAssignments rebuilds a Map (including its owner index) from a
// persisted or transmitted assignment list -- used by the membership
// actor's save/load and by the gossip wire format.
func FromAssignments(q, width uint64, assignments []Assignment) Map {
	out := make([]Assignment, len(assignments))
	copy(out, assignments)
	return buildMap(q, width, out)
}

func buildMap(q, width uint64, assignments []Assignment) Map {
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].ID < assignments[j].ID })
	idx := make(map[ID]string, len(assignments))
	for _, a := range assignments {
		idx[a.ID] = a.Owner
	}
	return Map{Q: q, RangeWidth: width, Assignments: assignments, ownerIndex: idx}
}

// Owner returns the node owning partition p.
func (m Map) Owner(p ID) (string, error) {
	if m.ownerIndex == nil {
		return "", coreerrors.New(coreerrors.InvariantViolation, "partition map has no owner index")
	}
	owner, ok := m.ownerIndex[p]
	if !ok {
		return "", coreerrors.New(coreerrors.InvariantViolation, "unknown partition").
			WithDetail("partition", p)
	}
	return owner, nil
}

// Replicas walks nodes (assumed sorted, the ring order) starting at node,
// wrapping around, collecting up to n distinct entries. If n >= len(nodes),
// every node is returned, still starting at node. A node not present in
// nodes is an error.
func Replicas(node string, n int, nodes []string) ([]string, error) {
	if len(nodes) == 0 {
		return nil, coreerrors.New(coreerrors.InvariantViolation, "replicas requested over an empty node set")
	}
	if n > len(nodes) {
		n = len(nodes)
	}

	start := -1
	for i, candidate := range nodes {
		if candidate == node {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, coreerrors.New(coreerrors.InvariantViolation, "replica start node not present in node set").
			WithDetail("node", node)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, nodes[(start+i)%len(nodes)])
	}
	return out, nil
}

// ReverseReplicas applies Replicas to the reverse of nodes -- the routine
// used to compute which partitions a node holds a replica of (any scope)
// rather than owns outright.
func ReverseReplicas(node string, n int, nodes []string) ([]string, error) {
	reversed := make([]string, len(nodes))
	for i, v := range nodes {
		reversed[len(nodes)-1-i] = v
	}
	return Replicas(node, n, reversed)
}

func sortedCopy(nodes []string) []string {
	out := make([]string, len(nodes))
	copy(out, nodes)
	sort.Strings(out)
	return out
}
