// Package membership implements MembershipState: the convergent
// (version, nodes, partitions) triple every node carries, its join/remove/
// remap/merge algebra, and the actor that owns the only mutable copy.
//
// Grounded on the teacher's topology/migration state shapes in
// coordinator/internal/model for the struct layout, and on
// coordinator_service.go's quorum/fan-out discipline for the "never block
// readers on the actor" design carried into the atomic partition-index
// snapshot (§5a).
package membership

import (
	"sort"

	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/vclock"
)

// Scope selects which partitions PartitionsForNode reports.
type Scope int

const (
	// Master selects partitions node owns outright.
	Master Scope = iota
	// All selects partitions node holds any replica of.
	All
)

// State is the convergent membership triple plus the process-local self
// id. self is never compared, merged, or serialized (§3).
type State struct {
	Version    vclock.VectorClock
	Nodes      []string
	Partitions partition.Map
	Self       string
}

// New builds the genesis state for a single-node cluster.
func New(self string, q uint64) State {
	nodes := []string{self}
	return State{
		Version:    vclock.Create(self),
		Nodes:      nodes,
		Partitions: partition.CreatePartitions(q, nodes),
		Self:       self,
	}
}

// Join adds newcomer to nodes, recomputes partitions via MapPartitions, and
// increments version by self's actor id (§4.3).
func Join(s State, newcomer string) State {
	nodes := sortedUnion(s.Nodes, []string{newcomer})
	return State{
		Version:    vclock.Increment(s.Self, s.Version),
		Nodes:      nodes,
		Partitions: partition.MapPartitions(s.Partitions, nodes),
		Self:       s.Self,
	}
}

// Remove is the symmetric counterpart of Join.
func Remove(s State, departing string) State {
	nodes := sortedDifference(s.Nodes, departing)
	return State{
		Version:    vclock.Increment(s.Self, s.Version),
		Nodes:      nodes,
		Partitions: partition.MapPartitions(s.Partitions, nodes),
		Self:       s.Self,
	}
}

// Remap replaces the partition map directly -- an administrative hard
// remap, not derived from the node set.
func Remap(s State, newMap partition.Map) State {
	return State{
		Version:    vclock.Increment(s.Self, s.Version),
		Nodes:      s.Nodes,
		Partitions: newMap,
		Self:       s.Self,
	}
}

// Merge implements the causal merge algorithm of §4.3.
func Merge(self, remote State) State {
	switch vclock.Compare(self.Version, remote.Version) {
	case vclock.Equal, vclock.Greater:
		return self
	case vclock.Less:
		return State{Version: remote.Version, Nodes: remote.Nodes, Partitions: remote.Partitions, Self: self.Self}
	default: // Concurrent
		nodes := sortedUnion(self.Nodes, remote.Nodes)
		return State{
			Version:    vclock.Merge(self.Version, remote.Version),
			Nodes:      nodes,
			Partitions: partition.MapPartitions(self.Partitions, nodes),
			Self:       self.Self,
		}
	}
}

// Changed reports whether b differs from a in nodes or partitions -- the
// condition that triggers persistence and storage-endpoint notification
// after installation (§4.3).
func Changed(a, b State) bool {
	if len(a.Nodes) != len(b.Nodes) {
		return true
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return true
		}
	}
	if len(a.Partitions.Assignments) != len(b.Partitions.Assignments) {
		return true
	}
	for i := range a.Partitions.Assignments {
		if a.Partitions.Assignments[i] != b.Partitions.Assignments[i] {
			return true
		}
	}
	return false
}

// PartitionsForNode implements the master/all query of §4.3. n is the
// replication factor (Config.N), supplied by the caller since it is not
// part of the convergent state.
func PartitionsForNode(s State, node string, scope Scope, n int) []partition.ID {
	if scope == Master {
		return masterPartitions(s, node)
	}

	holders, err := partition.ReverseReplicas(node, n, s.Nodes)
	if err != nil {
		return nil
	}

	seen := make(map[partition.ID]bool)
	var out []partition.ID
	for _, holder := range holders {
		for _, p := range masterPartitions(s, holder) {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func masterPartitions(s State, node string) []partition.ID {
	var out []partition.ID
	for _, a := range s.Partitions.Assignments {
		if a.Owner == node {
			out = append(out, a.ID)
		}
	}
	return out
}

func sortedUnion(a []string, extra []string) []string {
	set := make(map[string]struct{}, len(a)+len(extra))
	for _, n := range a {
		set[n] = struct{}{}
	}
	for _, n := range extra {
		set[n] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sortedDifference(a []string, remove string) []string {
	out := make([]string, 0, len(a))
	for _, n := range a {
		if n != remove {
			out = append(out, n)
		}
	}
	return out
}
