package coreconfig_test

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chinnucsk/dynomite/internal/coreconfig"
	"github.com/chinnucsk/dynomite/internal/coremetrics"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func TestLoadWithMissingFileUsesDefaults(t *testing.T) {
	cfg, err := coreconfig.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	want := coreconfig.Default()
	assert.Equal(t, want.N, cfg.N)
	assert.Equal(t, want.R, cfg.R)
	assert.Equal(t, want.W, cfg.W)
	assert.Equal(t, want.Q, cfg.Q)
	assert.Equal(t, want.NodeID, cfg.NodeID)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body, err := json.Marshal(map[string]any{
		"n":       5,
		"r":       3,
		"w":       3,
		"node_id": "node-7",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, body, 0o644))

	cfg, err := coreconfig.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.N)
	assert.Equal(t, 3, cfg.R)
	assert.Equal(t, 3, cfg.W)
	assert.Equal(t, "node-7", cfg.NodeID)
	assert.Equal(t, coreconfig.Default().Q, cfg.Q, "fields absent from the file keep their default")
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	t.Setenv("DYNOMITE_NODE_ID", "node-env")
	t.Setenv("DYNOMITE_N", "9")
	t.Setenv("DYNOMITE_SEEDS", "10.0.0.1:7000,10.0.0.2:7000")

	cfg, err := coreconfig.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "node-env", cfg.NodeID)
	assert.Equal(t, 9, cfg.N)
	assert.Equal(t, []string{"10.0.0.1:7000", "10.0.0.2:7000"}, cfg.Seeds)
}

func TestValidateRejectsOutOfRangeR(t *testing.T) {
	cfg := coreconfig.Default()
	cfg.R = cfg.N + 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeW(t *testing.T) {
	cfg := coreconfig.Default()
	cfg.W = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingNodeID(t *testing.T) {
	cfg := coreconfig.Default()
	cfg.NodeID = ""
	assert.Error(t, cfg.Validate())
}

func TestReconcileWithPeerInheritsInvariantFields(t *testing.T) {
	peer := coreconfig.Default()
	peer.N, peer.R, peer.W, peer.Q = 5, 3, 3, 2048

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	sd := coreconfig.ServiceDesc(peer)
	srv.RegisterService(&sd, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	local := coreconfig.Default()
	local.Directory = "/var/lib/dynomite/local-only"

	pool := rpcenvelope.NewConnPool(2 * time.Second)
	defer pool.Close()

	coreconfig.ReconcileWithPeer(local, pool, []string{lis.Addr().String()}, nil, zap.NewNop())

	assert.Equal(t, 5, local.N)
	assert.Equal(t, 3, local.R)
	assert.Equal(t, 3, local.W)
	assert.Equal(t, 2048, local.Q)
	assert.Equal(t, "/var/lib/dynomite/local-only", local.Directory, "node-local fields are never reconciled")
}

func TestReconcileWithPeerKeepsLocalWhenNoPeersVisible(t *testing.T) {
	local := coreconfig.Default()
	pool := rpcenvelope.NewConnPool(2 * time.Second)
	defer pool.Close()

	coreconfig.ReconcileWithPeer(local, pool, nil, nil, zap.NewNop())

	assert.Equal(t, coreconfig.Default().N, local.N)
}

func TestReconcileWithPeerKeepsLocalWhenCallFails(t *testing.T) {
	local := coreconfig.Default()
	local.N = 42

	pool := rpcenvelope.NewConnPool(200 * time.Millisecond)
	defer pool.Close()

	coreconfig.ReconcileWithPeer(local, pool, []string{"127.0.0.1:1"}, nil, zap.NewNop())

	assert.Equal(t, 42, local.N)
}

func TestReconcileWithPeerRecordsOutcomeOnMetrics(t *testing.T) {
	metrics := coremetrics.New()
	local := coreconfig.Default()
	pool := rpcenvelope.NewConnPool(2 * time.Second)
	defer pool.Close()

	coreconfig.ReconcileWithPeer(local, pool, nil, metrics, zap.NewNop())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.ConfigReconciled.WithLabelValues("no_peers")))
}
