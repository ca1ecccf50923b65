package storageendpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chinnucsk/dynomite/internal/coreerrors"
	"github.com/chinnucsk/dynomite/internal/kv"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"github.com/chinnucsk/dynomite/internal/vclock"
)

// ServiceName identifies the StorageEndpoint RPC service on the shared
// envelope transport.
const ServiceName = "dynomite.StorageEndpoint"

const (
	MethodGet    = "Get"
	MethodPut    = "Put"
	MethodHasKey = "HasKey"
	MethodDelete = "Delete"
)

// GRPCClient is the production Endpoint implementation, addressing each
// replica by dialing id.Node directly (NodeID is a host:port string, §3a).
type GRPCClient struct {
	pool           *rpcenvelope.ConnPool
	defaultTimeout time.Duration
}

// NewGRPCClient builds a client sharing pool across every endpoint it
// calls, matching the teacher's single-StorageClient-per-process shape.
func NewGRPCClient(pool *rpcenvelope.ConnPool, defaultTimeout time.Duration) *GRPCClient {
	return &GRPCClient{pool: pool, defaultTimeout: defaultTimeout}
}

func (c *GRPCClient) call(ctx context.Context, id EndpointID, method string, reqBody any, timeout time.Duration) ([]byte, error) {
	conn, err := c.pool.Get(id.Node)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.Transport, fmt.Sprintf("dial %s", id.Node), err)
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.InvariantViolation, "encode request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	respBytes, err := rpcenvelope.Call(callCtx, conn, ServiceName, method, reqBytes)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.Transport, fmt.Sprintf("%s to %s", method, id.Node), err)
	}
	return respBytes, nil
}

// Get implements Endpoint.
func (c *GRPCClient) Get(ctx context.Context, id EndpointID, key string) (kv.VersionedValue, bool, error) {
	respBytes, err := c.call(ctx, id, MethodGet, getRequest{Partition: id.Partition, Key: key}, c.defaultTimeout)
	if err != nil {
		return kv.VersionedValue{}, false, err
	}

	var resp getResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return kv.VersionedValue{}, false, coreerrors.Wrap(coreerrors.Storage, "decode get response", err)
	}
	if resp.NotFound {
		return kv.VersionedValue{}, false, coreerrors.New(coreerrors.NotFound, "key not found").WithDetail("key", key)
	}
	return kv.VersionedValue{Clock: vclock.FromEntries(resp.Clock), Value: resp.Value}, resp.Found, nil
}

// Put implements Endpoint.
func (c *GRPCClient) Put(ctx context.Context, id EndpointID, key string, clock vclock.VectorClock, value []byte) error {
	_, err := c.call(ctx, id, MethodPut, putRequest{Partition: id.Partition, Key: key, Clock: clock.Entries(), Value: value}, c.defaultTimeout)
	return err
}

// HasKey implements Endpoint.
func (c *GRPCClient) HasKey(ctx context.Context, id EndpointID, key string) (bool, error) {
	respBytes, err := c.call(ctx, id, MethodHasKey, hasKeyRequest{Partition: id.Partition, Key: key}, c.defaultTimeout)
	if err != nil {
		return false, err
	}
	var resp hasKeyResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return false, coreerrors.Wrap(coreerrors.Storage, "decode has_key response", err)
	}
	return resp.Present, nil
}

// Delete implements Endpoint. It uses the caller-supplied timeout instead
// of the client's default; the Mediator passes its fixed 10s delete
// deadline (§5).
func (c *GRPCClient) Delete(ctx context.Context, id EndpointID, key string, timeout time.Duration) error {
	_, err := c.call(ctx, id, MethodDelete, deleteRequest{Partition: id.Partition, Key: key}, timeout)
	return err
}
