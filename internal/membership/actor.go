package membership

import (
	"sync"
	"sync/atomic"

	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/vclock"
	"go.uber.org/zap"
)

func vclockEqual(a, b State) bool {
	return vclock.Compare(a.Version, b.Version) == vclock.Equal
}

// versionSum totals a vector clock's counters, the single scalar
// MembershipVersion reports (§2a) -- a vector clock itself has no total
// order, but the sum is monotonic across any single node's own causal
// history and cheap to compare on a dashboard.
func versionSum(vc vclock.VectorClock) int64 {
	var sum int64
	for _, e := range vc.Entries() {
		sum += e.Counter
	}
	return sum
}

// OwnershipNotifier is implemented by the external StorageEndpoint layer
// so it can start or stop per-partition workers when this node's
// ownership set changes. Installing a new state is the only thing that
// triggers a notification -- the pure Merge/Join/Remove/Remap functions
// never call it themselves (§4.3).
type OwnershipNotifier interface {
	NotifyOwnership(owned []partition.ID)
}

type opKind int

const (
	opJoin opKind = iota
	opRemove
	opRemap
	opMerge
	opSnapshot
)

type request struct {
	kind    opKind
	node    string
	newMap  partition.Map
	remote  State
	reply   chan State
}

// Actor is the single-writer membership task described in §5/§5a: every
// public method below is a request processed on reqCh in arrival order,
// and Actor owns the only mutable State. Readers outside the actor use
// Index(), an atomically-swapped snapshot, instead of round-tripping
// through the channel.
type Actor struct {
	n          int
	dir        string
	notifier   OwnershipNotifier
	metrics    *coremetrics.Metrics
	logger     *zap.Logger

	index  atomic.Pointer[Index]
	reqCh  chan request
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewActor starts the membership actor with initial as its starting
// state. n is the replication factor, used by partitions_for_node(all)
// when computing which partitions to report to notifier.
func NewActor(initial State, n int, dir string, notifier OwnershipNotifier, metrics *coremetrics.Metrics, logger *zap.Logger) *Actor {
	a := &Actor{
		n:        n,
		dir:      dir,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		reqCh:    make(chan request, 64),
		stopCh:   make(chan struct{}),
	}
	a.index.Store(snapshotIndex(initial))
	a.wg.Add(1)
	go a.run(initial)
	return a
}

func (a *Actor) run(state State) {
	defer a.wg.Done()
	for {
		select {
		case req := <-a.reqCh:
			state = a.apply(state, req)
		case <-a.stopCh:
			return
		}
	}
}

func (a *Actor) apply(state State, req request) State {
	if req.kind == opSnapshot {
		req.reply <- state
		return state
	}

	prev := state
	var next State
	switch req.kind {
	case opJoin:
		next = Join(state, req.node)
	case opRemove:
		next = Remove(state, req.node)
	case opRemap:
		next = Remap(state, req.newMap)
	case opMerge:
		next = Merge(state, req.remote)
	}

	// merge's Equal/Greater branches return the untouched local state; every
	// other path (join/remove/remap, and merge's Less/Concurrent branches)
	// is a real mutation that must be persisted (§4.3).
	noop := req.kind == opMerge && vclockEqual(prev, next)
	if !noop {
		if err := Save(a.dir, next); err != nil {
			a.logger.Error("failed to persist membership state", zap.Error(err))
		}
		if a.metrics != nil {
			a.metrics.MembershipNodes.Set(float64(len(next.Nodes)))
			a.metrics.MembershipVersion.Set(float64(versionSum(next.Version)))
		}
	}

	if Changed(prev, next) {
		a.index.Store(snapshotIndex(next))
		if a.notifier != nil {
			owned := PartitionsForNode(next, next.Self, All, a.n)
			a.notifier.NotifyOwnership(owned)
		}
	}

	req.reply <- next
	return next
}

func (a *Actor) do(req request) State {
	req.reply = make(chan State, 1)
	a.reqCh <- req
	return <-req.reply
}

// Join adds newcomer and returns the resulting state.
func (a *Actor) Join(newcomer string) State {
	return a.do(request{kind: opJoin, node: newcomer})
}

// Remove removes departing and returns the resulting state.
func (a *Actor) Remove(departing string) State {
	return a.do(request{kind: opRemove, node: departing})
}

// Remap installs newMap directly and returns the resulting state.
func (a *Actor) Remap(newMap partition.Map) State {
	return a.do(request{kind: opRemap, newMap: newMap})
}

// Merge applies the causal merge against remote and returns the
// resulting (possibly unchanged) state.
func (a *Actor) Merge(remote State) State {
	return a.do(request{kind: opMerge, remote: remote})
}

// Snapshot returns a consistent copy of the current state, for the
// Gossiper's GetState step. Unlike Index(), this round-trips through the
// actor so it reflects every mutation applied so far, including one still
// being installed by a concurrent request.
func (a *Actor) Snapshot() State {
	return a.do(request{kind: opSnapshot})
}

// Index returns the current read-optimized snapshot without touching the
// actor goroutine at all.
func (a *Actor) Index() *Index {
	return a.index.Load()
}

// Stop halts the actor's goroutine; requests still queued on reqCh are not
// processed and their callers are never answered. It does not close reqCh;
// outstanding do() calls would block forever if issued after Stop, which
// callers must not do.
func (a *Actor) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}
