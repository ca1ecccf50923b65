package partition_test

import (
	"testing"

	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePartitionsCoversEveryNode(t *testing.T) {
	nodes := []string{"c", "a", "b"}
	m := partition.CreatePartitions(12, nodes)

	require.Len(t, m.Assignments, 12)
	seen := map[string]bool{}
	for _, a := range m.Assignments {
		seen[a.Owner] = true
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys(seen))
}

func TestCreatePartitionsIsDeterministic(t *testing.T) {
	nodes := []string{"b", "a", "c"}
	m1 := partition.CreatePartitions(9, nodes)
	m2 := partition.CreatePartitions(9, []string{"c", "b", "a"})
	assert.Equal(t, m1.Assignments, m2.Assignments)
}

func TestPartitionForHashIsTotalAndStable(t *testing.T) {
	q := uint64(8)
	for _, h := range []uint64{0, 1, 1 << 60, ^uint64(0)} {
		p1 := partition.PartitionForHash(h, q)
		p2 := partition.PartitionForHash(h, q)
		assert.Equal(t, p1, p2)
	}
}

func TestOwnerRoundTrip(t *testing.T) {
	m := partition.CreatePartitions(4, []string{"a", "b"})
	for _, a := range m.Assignments {
		owner, err := m.Owner(a.ID)
		require.NoError(t, err)
		assert.Equal(t, a.Owner, owner)
	}

	_, err := m.Owner(partition.ID(^uint64(0)))
	assert.Error(t, err)
}

func TestReplicasWrapsAroundAndDeduplicates(t *testing.T) {
	nodes := []string{"a", "b", "c", "d"}
	r, err := partition.Replicas("c", 3, nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d", "a"}, r)
}

func TestReplicasCappedAtNodeCount(t *testing.T) {
	nodes := []string{"a", "b"}
	r, err := partition.Replicas("a", 5, nodes)
	require.NoError(t, err)
	assert.ElementsMatch(t, nodes, r)
}

func TestReplicasUnknownStartNode(t *testing.T) {
	_, err := partition.Replicas("z", 2, []string{"a", "b"})
	assert.Error(t, err)
}

func TestReverseReplicasWalksInReverseOrder(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	r, err := partition.ReverseReplicas("a", 2, nodes)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, r)
}

func TestMapPartitionsKeepsSurvivingOwnersAndReassignsOrphans(t *testing.T) {
	initial := partition.CreatePartitions(12, []string{"a", "b", "c"})

	remapped := partition.MapPartitions(initial, []string{"a", "b"})
	require.Len(t, remapped.Assignments, 12)

	for i, a := range remapped.Assignments {
		assert.Equal(t, initial.Assignments[i].ID, a.ID, "partition ids stay stable across rebalancing")
		assert.NotEqual(t, "c", a.Owner, "departed node holds nothing after remap")
	}

	load := map[string]int{}
	for _, a := range remapped.Assignments {
		load[a.Owner]++
	}
	assert.InDelta(t, 6, load["a"], 1)
	assert.InDelta(t, 6, load["b"], 1)
}

func TestMapPartitionsGivesJoiningNodeShareOfLoad(t *testing.T) {
	initial := partition.CreatePartitions(10, []string{"a"})

	remapped := partition.MapPartitions(initial, []string{"a", "b"})
	load := map[string]int{}
	for _, a := range remapped.Assignments {
		load[a.Owner]++
	}
	assert.Greater(t, load["b"], 0)
}

func TestMapPartitionsIsDeterministic(t *testing.T) {
	initial := partition.CreatePartitions(16, []string{"a", "b", "c", "d"})
	r1 := partition.MapPartitions(initial, []string{"a", "b", "e"})
	r2 := partition.MapPartitions(initial, []string{"e", "b", "a"})
	assert.Equal(t, r1.Assignments, r2.Assignments)
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
