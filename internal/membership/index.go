package membership

import "github.com/chinnucsk/dynomite/internal/partition"

// Index is the read-optimized (nodes, partitions) snapshot published after
// every state installation. Mediator and the admin HTTP surface read it
// through an atomic.Pointer and never block on the membership actor for
// ordinary lookups (§5, §5a).
type Index struct {
	Nodes      []string
	Partitions partition.Map
}

func snapshotIndex(s State) *Index {
	return &Index{Nodes: s.Nodes, Partitions: s.Partitions}
}

// PartitionFor returns the partition id owning hash under this snapshot.
func (idx *Index) PartitionFor(hash uint64) partition.ID {
	return partition.PartitionForHash(hash, idx.Partitions.Q)
}

// OwnerOf resolves the owning node for key's hash under this snapshot.
func (idx *Index) OwnerOf(hash uint64) (string, error) {
	return idx.Partitions.Owner(idx.PartitionFor(hash))
}

// ReplicasFor returns the n-wide replica set starting at the owner of
// hash, walking the ring order carried by Nodes.
func (idx *Index) ReplicasFor(hash uint64, n int) ([]string, error) {
	owner, err := idx.OwnerOf(hash)
	if err != nil {
		return nil, err
	}
	return partition.Replicas(owner, n, idx.Nodes)
}
