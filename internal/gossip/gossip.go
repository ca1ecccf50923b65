// Package gossip implements the Gossiper (C4): the anti-entropy
// push-pull loop that trades MembershipState with a randomly chosen live
// peer on a jittered timer, converging every node's view of the cluster
// without a central coordinator.
//
// Grounded on the teacher's GossipService
// (storage-node/internal/service/gossip_service.go) for the
// hashicorp/memberlist wiring in delegate.go, generalized from piggybacking
// a health-status payload on memberlist's own push-pull sync to a pure
// liveness detector: MembershipState travels over its own small unary
// Exchange RPC instead, so the three protocol steps of §4.4 stay explicit
// and independently testable.
package gossip

import (
	"context"
	"math/rand"
	"time"

	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"github.com/chinnucsk/dynomite/internal/vclock"
	"go.uber.org/zap"
)

const (
	minInterval      = 5 * time.Second
	maxInterval      = 10 * time.Second
	exchangeDeadline = 2 * time.Second
)

// PeerSource returns the current candidate peer set for a gossip round,
// excluding self. LivePeers backs it with a memberlist instance in
// production; tests supply a fixed slice.
type PeerSource func() []string

type controlSignal int

const (
	signalStop controlSignal = iota
	signalStart
)

// Gossiper is the single task driving the anti-entropy loop described in
// §4.4. It never touches membership.Actor's internals directly -- every
// read or mutation goes through Snapshot/Merge, the same request/reply
// protocol any other caller would use (§5).
type Gossiper struct {
	self    string
	actor   *membership.Actor
	peers   PeerSource
	pool    *rpcenvelope.ConnPool
	metrics *coremetrics.Metrics
	logger  *zap.Logger

	controlCh chan controlSignal
	stopCh    chan struct{}
	done      chan struct{}
}

// New builds a Gossiper. Call Run in its own goroutine to start the loop.
func New(self string, actor *membership.Actor, peers PeerSource, pool *rpcenvelope.ConnPool, metrics *coremetrics.Metrics, logger *zap.Logger) *Gossiper {
	return &Gossiper{
		self:      self,
		actor:     actor,
		peers:     peers,
		pool:      pool,
		metrics:   metrics,
		logger:    logger,
		controlCh: make(chan controlSignal, 1),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run drives the gossip loop: sleep a uniform random interval in
// [5s, 10s], pick a random peer, exchange state. A stop signal pauses the
// loop until a matching start; Close terminates it for good (§4.4).
func (g *Gossiper) Run() {
	defer close(g.done)

	paused := false
	for {
		var wait <-chan time.Time
		if !paused {
			wait = time.After(jitter())
		}

		select {
		case <-g.stopCh:
			return
		case sig := <-g.controlCh:
			paused = sig == signalStop
		case <-wait:
			g.round(context.Background())
		}
	}
}

// Stop pauses the loop after the in-flight round (if any) completes.
func (g *Gossiper) Stop() {
	g.controlCh <- signalStop
}

// Start resumes a paused loop.
func (g *Gossiper) Start() {
	g.controlCh <- signalStart
}

// Close terminates the loop for good and waits for Run to return.
func (g *Gossiper) Close() {
	close(g.stopCh)
	<-g.done
}

func jitter() time.Duration {
	return minInterval + time.Duration(rand.Int63n(int64(maxInterval-minInterval)))
}

// round performs one anti-entropy exchange: GetState from a random peer,
// compare, and -- unless Equal -- merge locally and PushState back.
// Cancellation on an unreachable peer is silent; the next tick retries
// with a (likely different) random peer (§4.4).
func (g *Gossiper) round(ctx context.Context) {
	candidates := g.peers()
	if len(candidates) == 0 {
		return
	}
	peer := candidates[rand.Intn(len(candidates))]

	start := time.Now()
	outcome := "no_change"
	defer func() { g.record(outcome, time.Since(start)) }()

	callCtx, cancel := context.WithTimeout(ctx, exchangeDeadline)
	defer cancel()

	conn, err := g.pool.Get(peer)
	if err != nil {
		outcome = "peer_unreachable"
		g.logger.Debug("gossip peer unreachable", zap.String("peer", peer), zap.Error(err))
		return
	}

	local := g.actor.Snapshot()
	localPayload, err := membership.EncodeState(local)
	if err != nil {
		g.logger.Error("failed to encode local membership state", zap.Error(err))
		return
	}

	respBytes, err := rpcenvelope.Call(callCtx, conn, ServiceName, MethodGetState, localPayload)
	if err != nil {
		outcome = "peer_unreachable"
		g.logger.Debug("gossip GetState failed", zap.String("peer", peer), zap.Error(err))
		return
	}

	remote, err := membership.DecodeState(respBytes, peer)
	if err != nil {
		g.logger.Error("failed to decode peer membership state", zap.String("peer", peer), zap.Error(err))
		return
	}

	if vclock.Compare(local.Version, remote.Version) == vclock.Equal {
		return
	}

	merged := g.actor.Merge(remote)
	outcome = "merged"

	mergedPayload, err := membership.EncodeState(merged)
	if err != nil {
		g.logger.Error("failed to encode merged membership state", zap.Error(err))
		return
	}
	if _, err := rpcenvelope.Call(callCtx, conn, ServiceName, MethodPushState, mergedPayload); err != nil {
		g.logger.Debug("gossip PushState failed", zap.String("peer", peer), zap.Error(err))
	}
}

func (g *Gossiper) record(outcome string, d time.Duration) {
	if g.metrics == nil {
		return
	}
	g.metrics.GossipRoundsTotal.WithLabelValues(outcome).Inc()
	g.metrics.GossipRoundLatency.Observe(d.Seconds())
}
