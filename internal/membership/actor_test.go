package membership_test

import (
	"sync"
	"testing"

	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu    sync.Mutex
	owned []partition.ID
	calls int
}

func (r *recordingNotifier) NotifyOwnership(owned []partition.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owned = owned
	r.calls++
}

func (r *recordingNotifier) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestActorJoinUpdatesIndexAndNotifies(t *testing.T) {
	dir := t.TempDir()
	notifier := &recordingNotifier{}
	a := membership.NewActor(membership.New("a", 8), 2, dir, notifier, nil, zap.NewNop())
	defer a.Stop()

	next := a.Join("b")
	assert.Equal(t, []string{"a", "b"}, next.Nodes)
	assert.Equal(t, []string{"a", "b"}, a.Index().Nodes)
	assert.GreaterOrEqual(t, notifier.callCount(), 1)
}

func TestActorMergeNoopDoesNotNotify(t *testing.T) {
	dir := t.TempDir()
	notifier := &recordingNotifier{}
	initial := membership.New("a", 8)
	a := membership.NewActor(initial, 2, dir, notifier, nil, zap.NewNop())
	defer a.Stop()

	merged := a.Merge(initial)
	assert.Equal(t, initial.Nodes, merged.Nodes)
	assert.Equal(t, 0, notifier.callCount())
}

func TestActorSnapshotReflectsLatestMutation(t *testing.T) {
	dir := t.TempDir()
	a := membership.NewActor(membership.New("a", 8), 2, dir, nil, nil, zap.NewNop())
	defer a.Stop()

	a.Join("b")
	a.Join("c")

	snap := a.Snapshot()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, snap.Nodes)
}

func TestActorJoinReportsNodeCountAndVersionSumOnMetrics(t *testing.T) {
	dir := t.TempDir()
	metrics := coremetrics.New()
	a := membership.NewActor(membership.New("a", 8), 2, dir, nil, metrics, zap.NewNop())
	defer a.Stop()

	a.Join("b")

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MembershipNodes))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.MembershipVersion))
}

func TestActorPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	a := membership.NewActor(membership.New("a", 8), 2, dir, nil, nil, zap.NewNop())
	a.Join("b")
	a.Stop()

	loaded, err := membership.Load(dir, "a", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, loaded.Nodes)
}
