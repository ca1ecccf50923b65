// Command node runs one coordination-core process: the MembershipState
// actor, the Gossiper's anti-entropy loop, the Mediator, and the §6a
// admin HTTP surface, all reachable over one shared gRPC listener plus
// one admin listener.
//
// Grounded on the teacher's coordinator/cmd/coordinator/main.go: zap
// logger init, config load, service construction, signal-driven
// graceful shutdown, adapted from PairDB's Postgres/Redis-backed
// service graph to this module's actor/gossip/mediator graph.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chinnucsk/dynomite/internal/admin"
	"github.com/chinnucsk/dynomite/internal/coreconfig"
	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/gossip"
	"github.com/chinnucsk/dynomite/internal/mediator"
	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"github.com/chinnucsk/dynomite/internal/storageendpoint"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const (
	dialTimeout      = 3 * time.Second
	replicaTimeout   = 2 * time.Second
	shutdownDeadline = 10 * time.Second
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting dynomite coordination core")

	configPath := os.Getenv("DYNOMITE_CONFIG")
	if configPath == "" {
		configPath = "./config.json"
	}
	cfg, err := coreconfig.Load(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("configuration loaded",
		zap.String("node_id", cfg.NodeID),
		zap.Int("n", cfg.N), zap.Int("r", cfg.R), zap.Int("w", cfg.W),
		zap.Strings("seeds", cfg.Seeds))

	metrics := coremetrics.New()

	initial, err := membership.Load(cfg.Directory, cfg.NodeID, cfg.NodeID)
	if err != nil {
		logger.Info("no persisted membership state found, starting fresh", zap.Error(err))
		initial = membership.New(cfg.NodeID, uint64(cfg.Q))
	}

	pool := rpcenvelope.NewConnPool(dialTimeout)
	defer pool.Close()

	actor := membership.NewActor(initial, cfg.N, cfg.Directory, nil, metrics, logger)

	coreconfig.ReconcileWithPeer(cfg, pool, cfg.Seeds, metrics, logger)

	storageClient := storageendpoint.NewGRPCClient(pool, replicaTimeout)
	med := mediator.New(cfg.NodeID, cfg.N, cfg.R, cfg.W, partition.DefaultHasher, storageClient, actor.Index, metrics, logger)

	ml, err := gossip.NewMemberlist(gossip.MemberlistConfig{SeedNodes: cfg.Seeds}, cfg.NodeID, logger)
	if err != nil {
		logger.Fatal("failed to start gossip liveness substrate", zap.Error(err))
	}

	gossiper := gossip.New(cfg.NodeID, actor, gossip.LivePeers(ml, cfg.NodeID), pool, metrics, logger)
	go gossiper.Run()

	grpcServer := grpc.NewServer()
	gossipDesc := gossip.ServiceDesc(actor, cfg.NodeID)
	grpcServer.RegisterService(&gossipDesc, nil)
	configDesc := coreconfig.ServiceDesc(cfg)
	grpcServer.RegisterService(&configDesc, nil)

	lis, err := net.Listen("tcp", cfg.RPCAddr)
	if err != nil {
		logger.Fatal("failed to bind rpc listener", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("rpc server listening", zap.String("addr", cfg.RPCAddr))
		serverErrors <- grpcServer.Serve(lis)
	}()

	adminServer := admin.New(cfg.AdminAddr, actor, med, logger)
	go func() {
		if err := adminServer.Start(); err != nil {
			logger.Error("admin server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("rpc server error", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDeadline)
	defer cancel()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown error", zap.Error(err))
	}

	gossiper.Close()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("rpc server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("rpc server stop timeout, forcing shutdown")
		grpcServer.Stop()
	}

	actor.Stop()
	ml.Shutdown()

	logger.Info("dynomite node stopped")
}
