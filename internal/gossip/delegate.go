package gossip

import (
	"fmt"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// MemberlistConfig configures the peer-liveness substrate underneath the
// Gossiper (§4.4 supplemental).
type MemberlistConfig struct {
	BindAddr  string
	BindPort  int
	SeedNodes []string
}

// livenessDelegate is a no-op memberlist.Delegate: MembershipState travels
// over Exchange, not memberlist's own gossip payload, so there is nothing
// to piggyback here, unlike the teacher's GossipService which carries a
// HealthStatus in NodeMeta/LocalState.
type livenessDelegate struct{}

func (livenessDelegate) NodeMeta(limit int) []byte                  { return nil }
func (livenessDelegate) NotifyMsg(data []byte)                      {}
func (livenessDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (livenessDelegate) LocalState(join bool) []byte                { return nil }
func (livenessDelegate) MergeRemoteState(buf []byte, join bool)     {}

// eventDelegate logs membership churn in the liveness substrate, grounded
// on the teacher's GossipEventDelegate.
type eventDelegate struct {
	logger *zap.Logger
}

func (e *eventDelegate) NotifyJoin(n *memberlist.Node) {
	e.logger.Info("gossip peer joined", zap.String("node", n.Name), zap.String("addr", n.Addr.String()))
}

func (e *eventDelegate) NotifyLeave(n *memberlist.Node) {
	e.logger.Info("gossip peer left", zap.String("node", n.Name))
}

func (e *eventDelegate) NotifyUpdate(n *memberlist.Node) {
	e.logger.Debug("gossip peer updated", zap.String("node", n.Name))
}

// NewMemberlist creates and joins a memberlist instance used purely as
// the Gossiper's peer-liveness substrate: it answers "who is reachable",
// never "what do they believe about partitions" (§4.4).
func NewMemberlist(cfg MemberlistConfig, nodeID string, logger *zap.Logger) (*memberlist.Memberlist, error) {
	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = nodeID
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	if cfg.BindPort != 0 {
		mlConfig.BindPort = cfg.BindPort
	}
	mlConfig.Delegate = livenessDelegate{}
	mlConfig.Events = &eventDelegate{logger: logger}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("failed to join some gossip seed nodes", zap.Error(err))
		}
	}
	return ml, nil
}

// LivePeers returns a PeerSource backed by ml's current membership view,
// excluding self.
func LivePeers(ml *memberlist.Memberlist, self string) PeerSource {
	return func() []string {
		members := ml.Members()
		out := make([]string, 0, len(members))
		for _, m := range members {
			if m.Name != self {
				out = append(out, m.Name)
			}
		}
		return out
	}
}
