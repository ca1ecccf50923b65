package coreconfig

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// ServiceName and MethodReconcile identify the peer-reconciliation RPC
// carried over the shared rpcenvelope transport (§2b).
const (
	ServiceName       = "dynomite.Configuration"
	MethodReconcile   = "ReconcileWithPeer"
	reconcileDeadline = 1000 * time.Millisecond
)

// ServiceDesc returns the grpc.ServiceDesc a node registers so peers can
// pull its cluster-invariant configuration.
func ServiceDesc(cfg *Config) grpc.ServiceDesc {
	svc := &rpcenvelope.Service{
		Name: ServiceName,
		Methods: map[string]rpcenvelope.Handler{
			MethodReconcile: func(ctx context.Context, req []byte) ([]byte, error) {
				return json.Marshal(cfg)
			},
		},
	}
	return svc.ServiceDesc()
}

// ReconcileWithPeer attempts to inherit cluster-invariant fields from one
// randomly chosen address among peerAddrs; no other peer is tried. If
// peerAddrs is empty or that one call fails, cfg is left unchanged and the caller proceeds with local
// values (§4.6) -- a PeerUnavailable condition recovered locally, not
// escalated. Every outcome is recorded on metrics.ConfigReconciled, the
// same threaded-once-at-startup Metrics instance Mediator and Gossiper
// report through (§2a).
func ReconcileWithPeer(cfg *Config, pool *rpcenvelope.ConnPool, peerAddrs []string, metrics *coremetrics.Metrics, logger *zap.Logger) {
	if len(peerAddrs) == 0 {
		logger.Info("no peers visible at startup, keeping local configuration")
		record(metrics, "no_peers")
		return
	}

	addr := peerAddrs[rand.Intn(len(peerAddrs))]
	ctx, cancel := context.WithTimeout(context.Background(), reconcileDeadline)
	defer cancel()

	conn, err := pool.Get(addr)
	if err != nil {
		logger.Warn("could not dial reconciliation peer, keeping local configuration", zap.String("peer", addr), zap.Error(err))
		record(metrics, "dial_failed")
		return
	}

	respBytes, err := rpcenvelope.Call(ctx, conn, ServiceName, MethodReconcile, nil)
	if err != nil {
		logger.Warn("configuration reconciliation call failed, keeping local configuration", zap.String("peer", addr), zap.Error(err))
		record(metrics, "call_failed")
		return
	}

	var peer Config
	if err := json.Unmarshal(respBytes, &peer); err != nil {
		logger.Warn("malformed configuration reconciliation response, keeping local configuration", zap.String("peer", addr), zap.Error(err))
		record(metrics, "malformed_response")
		return
	}

	cfg.applyInvariants(&peer)
	logger.Info("inherited cluster-invariant configuration from peer", zap.String("peer", addr))
	record(metrics, "inherited")
}

func record(metrics *coremetrics.Metrics, outcome string) {
	if metrics == nil {
		return
	}
	metrics.ConfigReconciled.WithLabelValues(outcome).Inc()
}
