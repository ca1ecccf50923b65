// Package storageendpoint defines the per-replica storage contract the
// Mediator fans out over, plus a production gRPC client and an in-memory
// test double.
//
// Grounded on the teacher's StorageClient in
// coordinator/internal/client/storage_client.go: same connection-pool-by-
// address shape and per-call timeout, generalized from PairDB's
// tenant-scoped RPCs to the spec's (partition, node, key)-addressed
// contract.
package storageendpoint

import (
	"context"
	"time"

	"github.com/chinnucsk/dynomite/internal/kv"
	"github.com/chinnucsk/dynomite/internal/vclock"
)

// EndpointID addresses a single replica: a structured value, never
// flattened into a synthesized string key (§9).
type EndpointID struct {
	Partition uint64
	Node      string
}

// Endpoint is the per-replica storage contract (§6).
type Endpoint interface {
	Get(ctx context.Context, id EndpointID, key string) (kv.VersionedValue, bool, error)
	Put(ctx context.Context, id EndpointID, key string, clock vclock.VectorClock, value []byte) error
	HasKey(ctx context.Context, id EndpointID, key string) (bool, error)
	Delete(ctx context.Context, id EndpointID, key string, timeout time.Duration) error
}
