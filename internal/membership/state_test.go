package membership_test

import (
	"testing"

	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/vclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAddsNodeAndRebalances(t *testing.T) {
	s := membership.New("a", 8)
	joined := membership.Join(s, "b")

	assert.Equal(t, []string{"a", "b"}, joined.Nodes)
	assert.Equal(t, vclock.Greater, vclock.Compare(joined.Version, s.Version))

	load := map[string]int{}
	for _, a := range joined.Partitions.Assignments {
		load[a.Owner]++
	}
	assert.Greater(t, load["b"], 0)
}

func TestRemoveIsSymmetricWithJoin(t *testing.T) {
	s := membership.New("a", 8)
	joined := membership.Join(s, "b")
	removed := membership.Remove(joined, "b")

	assert.Equal(t, []string{"a"}, removed.Nodes)
	for _, asg := range removed.Partitions.Assignments {
		assert.Equal(t, "a", asg.Owner)
	}
}

func TestMergeEqualIsNoop(t *testing.T) {
	s := membership.New("a", 8)
	merged := membership.Merge(s, s)
	assert.Equal(t, vclock.Equal, vclock.Compare(merged.Version, s.Version))
	assert.Equal(t, s.Nodes, merged.Nodes)
}

func TestMergeLessAdoptsRemote(t *testing.T) {
	local := membership.New("a", 8)
	remoteBase := membership.Join(local, "b")
	remote := membership.State{
		Version:    remoteBase.Version,
		Nodes:      remoteBase.Nodes,
		Partitions: remoteBase.Partitions,
		Self:       "a",
	}

	merged := membership.Merge(local, remote)
	assert.Equal(t, remote.Nodes, merged.Nodes)
	assert.Equal(t, "a", merged.Self, "self is never overwritten by merge")
}

func TestMergeConcurrentUnionsNodesAndRemapsDeterministically(t *testing.T) {
	base := membership.New("a", 8)

	leftBase := base
	leftBase.Self = "a"
	left := membership.Join(leftBase, "b")

	rightBase := base
	rightBase.Self = "b"
	right := membership.Join(rightBase, "c")

	require.Equal(t, vclock.Concurrent, vclock.Compare(left.Version, right.Version))

	merged := membership.Merge(left, right)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, merged.Nodes)
	assert.Equal(t, "a", merged.Self)

	mergedAgain := membership.Merge(right, left)
	assert.ElementsMatch(t, merged.Nodes, mergedAgain.Nodes)
}

func TestMergeIsIdempotent(t *testing.T) {
	s := membership.Join(membership.New("a", 8), "b")
	once := membership.Merge(s, s)
	twice := membership.Merge(once, once)
	assert.Equal(t, once.Nodes, twice.Nodes)
	assert.Equal(t, vclock.Equal, vclock.Compare(once.Version, twice.Version))
}

func TestPartitionsForNodeMasterScope(t *testing.T) {
	s := membership.Join(membership.New("a", 8), "b")
	owned := membership.PartitionsForNode(s, "a", membership.Master, 2)
	for _, p := range owned {
		owner, err := s.Partitions.Owner(p)
		require.NoError(t, err)
		assert.Equal(t, "a", owner)
	}
}

func TestPartitionsForNodeAllScopeIncludesReplicas(t *testing.T) {
	s := membership.New("a", 8)
	s = membership.Join(s, "b")
	s = membership.Join(s, "c")

	master := membership.PartitionsForNode(s, "a", membership.Master, 3)
	all := membership.PartitionsForNode(s, "a", membership.All, 3)

	assert.GreaterOrEqual(t, len(all), len(master))
	for _, p := range master {
		assert.Contains(t, all, p)
	}
}

func TestRemapReplacesPartitionMapDirectly(t *testing.T) {
	s := membership.Join(membership.New("a", 4), "b")
	flipped := partition.CreatePartitions(4, []string{"b", "a"})

	remapped := membership.Remap(s, flipped)
	assert.Equal(t, flipped.Assignments, remapped.Partitions.Assignments)
	assert.Equal(t, vclock.Greater, vclock.Compare(remapped.Version, s.Version))
}
