package storageendpoint_test

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/chinnucsk/dynomite/internal/coreerrors"
	"github.com/chinnucsk/dynomite/internal/rpcenvelope"
	"github.com/chinnucsk/dynomite/internal/storageendpoint"
	"github.com/chinnucsk/dynomite/internal/vclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestMemStoreRoundTripsPutAndGet(t *testing.T) {
	store := storageendpoint.NewMemStore()
	id := storageendpoint.EndpointID{Partition: 3, Node: "a"}
	clock := vclock.Increment("a", vclock.New())

	require.NoError(t, store.Put(context.Background(), id, "apple", clock, []byte("red")))

	vv, found, err := store.Get(context.Background(), id, "apple")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("red"), vv.Value)
}

func TestMemStoreGetOnMissingKeyReturnsNotFound(t *testing.T) {
	store := storageendpoint.NewMemStore()
	id := storageendpoint.EndpointID{Partition: 3, Node: "a"}

	_, found, err := store.Get(context.Background(), id, "missing")
	assert.False(t, found)
	assert.Equal(t, coreerrors.NotFound, coreerrors.GetCode(err))
}

func TestMemStoreHasKeyReflectsPresence(t *testing.T) {
	store := storageendpoint.NewMemStore()
	id := storageendpoint.EndpointID{Partition: 3, Node: "a"}

	present, err := store.HasKey(context.Background(), id, "apple")
	require.NoError(t, err)
	assert.False(t, present)

	require.NoError(t, store.Put(context.Background(), id, "apple", vclock.New(), []byte("red")))

	present, err = store.HasKey(context.Background(), id, "apple")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestMemStoreDeleteRemovesKey(t *testing.T) {
	store := storageendpoint.NewMemStore()
	id := storageendpoint.EndpointID{Partition: 3, Node: "a"}
	require.NoError(t, store.Put(context.Background(), id, "apple", vclock.New(), []byte("red")))

	require.NoError(t, store.Delete(context.Background(), id, "apple", time.Second))

	_, found, _ := store.Get(context.Background(), id, "apple")
	assert.False(t, found)
}

func TestMemStoreFailingEndpointReturnsTransportError(t *testing.T) {
	store := storageendpoint.NewMemStore()
	id := storageendpoint.EndpointID{Partition: 3, Node: "a"}
	store.Fail = map[storageendpoint.EndpointID]bool{id: true}

	_, _, err := store.Get(context.Background(), id, "apple")
	assert.Equal(t, coreerrors.Transport, coreerrors.GetCode(err))

	err = store.Put(context.Background(), id, "apple", vclock.New(), []byte("red"))
	assert.Equal(t, coreerrors.Transport, coreerrors.GetCode(err))
}

// fakeEndpointServer answers the StorageEndpoint RPC contract over a real
// gRPC listener, backed by a MemStore, so GRPCClient can be exercised
// end-to-end without a real storage engine (out of scope, §1).
func fakeEndpointServer(t *testing.T, store *storageendpoint.MemStore) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	type getReq struct {
		Partition uint64 `json:"partition"`
		Key       string `json:"key"`
	}
	type getResp struct {
		Found    bool           `json:"found"`
		Clock    []vclock.Entry `json:"clock"`
		Value    []byte         `json:"value"`
		NotFound bool           `json:"not_found"`
	}
	type putReq struct {
		Partition uint64         `json:"partition"`
		Key       string         `json:"key"`
		Clock     []vclock.Entry `json:"clock"`
		Value     []byte         `json:"value"`
	}

	svc := &rpcenvelope.Service{
		Name: storageendpoint.ServiceName,
		Methods: map[string]rpcenvelope.Handler{
			storageendpoint.MethodGet: func(ctx context.Context, req []byte) ([]byte, error) {
				var r getReq
				if err := json.Unmarshal(req, &r); err != nil {
					return nil, err
				}
				id := storageendpoint.EndpointID{Partition: r.Partition, Node: "self"}
				vv, found, err := store.Get(ctx, id, r.Key)
				if err != nil {
					if coreerrors.GetCode(err) == coreerrors.NotFound {
						return json.Marshal(getResp{NotFound: true})
					}
					return nil, err
				}
				return json.Marshal(getResp{Found: found, Clock: vv.Clock.Entries(), Value: vv.Value})
			},
			storageendpoint.MethodPut: func(ctx context.Context, req []byte) ([]byte, error) {
				var r putReq
				if err := json.Unmarshal(req, &r); err != nil {
					return nil, err
				}
				id := storageendpoint.EndpointID{Partition: r.Partition, Node: "self"}
				if err := store.Put(ctx, id, r.Key, vclock.FromEntries(r.Clock), r.Value); err != nil {
					return nil, err
				}
				return json.Marshal(struct{}{})
			},
		},
	}
	sd := svc.ServiceDesc()
	srv := grpc.NewServer()
	srv.RegisterService(&sd, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestGRPCClientPutThenGetRoundTrips(t *testing.T) {
	store := storageendpoint.NewMemStore()
	addr := fakeEndpointServer(t, store)

	pool := rpcenvelope.NewConnPool(2 * time.Second)
	defer pool.Close()
	client := storageendpoint.NewGRPCClient(pool, 2*time.Second)

	id := storageendpoint.EndpointID{Partition: 5, Node: addr}
	clock := vclock.Increment("a", vclock.New())

	require.NoError(t, client.Put(context.Background(), id, "apple", clock, []byte("red")))

	vv, found, err := client.Get(context.Background(), id, "apple")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("red"), vv.Value)
}

func TestGRPCClientGetOnMissingKeyReturnsNotFound(t *testing.T) {
	store := storageendpoint.NewMemStore()
	addr := fakeEndpointServer(t, store)

	pool := rpcenvelope.NewConnPool(2 * time.Second)
	defer pool.Close()
	client := storageendpoint.NewGRPCClient(pool, 2*time.Second)

	id := storageendpoint.EndpointID{Partition: 5, Node: addr}
	_, found, err := client.Get(context.Background(), id, "missing")
	assert.False(t, found)
	assert.Equal(t, coreerrors.NotFound, coreerrors.GetCode(err))
}
