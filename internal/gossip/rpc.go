package gossip

import (
	"context"

	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"google.golang.org/grpc"
)

// ServiceName and the method names identify the Exchange RPC carried over
// the shared rpcenvelope transport (§2b, §4.4).
const (
	ServiceName     = "dynomite.Gossiper"
	MethodGetState  = "GetState"
	MethodPushState = "PushState"
)

// ServiceDesc returns the grpc.ServiceDesc a node registers so peers can
// pull and push MembershipState during an anti-entropy round. self is
// used only to stamp incoming PushState payloads, which never carry it
// on the wire (§3).
func ServiceDesc(actor *membership.Actor, self string) grpc.ServiceDesc {
	svc := &rpcenvelope.Service{
		Name: ServiceName,
		Methods: map[string]rpcenvelope.Handler{
			MethodGetState: func(ctx context.Context, req []byte) ([]byte, error) {
				return membership.EncodeState(actor.Snapshot())
			},
			MethodPushState: func(ctx context.Context, req []byte) ([]byte, error) {
				remote, err := membership.DecodeState(req, self)
				if err != nil {
					return nil, err
				}
				actor.Merge(remote)
				return nil, nil
			},
		},
	}
	return svc.ServiceDesc()
}
