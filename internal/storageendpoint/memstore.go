package storageendpoint

import (
	"context"
	"sync"
	"time"

	"github.com/chinnucsk/dynomite/internal/coreerrors"
	"github.com/chinnucsk/dynomite/internal/kv"
	"github.com/chinnucsk/dynomite/internal/vclock"
)

// MemStore is an in-memory Endpoint double used by mediator tests, and by
// any node running without a real replica behind it. Keyed by (partition,
// node, key) so one MemStore can stand in for an entire cluster in tests.
type MemStore struct {
	mu   sync.Mutex
	data map[EndpointID]map[string]kv.VersionedValue

	// Fail, when set, names an endpoint whose calls should error instead of
	// reading/writing data -- used to simulate an unreachable replica.
	Fail map[EndpointID]bool
}

// NewMemStore builds an empty store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[EndpointID]map[string]kv.VersionedValue)}
}

func (m *MemStore) failing(id EndpointID) bool {
	return m.Fail != nil && m.Fail[id]
}

// Get implements Endpoint.
func (m *MemStore) Get(ctx context.Context, id EndpointID, key string) (kv.VersionedValue, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing(id) {
		return kv.VersionedValue{}, false, coreerrors.New(coreerrors.Transport, "endpoint unreachable")
	}

	bucket, ok := m.data[id]
	if !ok {
		return kv.VersionedValue{}, false, coreerrors.New(coreerrors.NotFound, "key not found")
	}
	vv, ok := bucket[key]
	if !ok {
		return kv.VersionedValue{}, false, coreerrors.New(coreerrors.NotFound, "key not found")
	}
	return vv, true, nil
}

// Put implements Endpoint.
func (m *MemStore) Put(ctx context.Context, id EndpointID, key string, clock vclock.VectorClock, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing(id) {
		return coreerrors.New(coreerrors.Transport, "endpoint unreachable")
	}

	bucket, ok := m.data[id]
	if !ok {
		bucket = make(map[string]kv.VersionedValue)
		m.data[id] = bucket
	}
	bucket[key] = kv.VersionedValue{Clock: clock, Value: value}
	return nil
}

// HasKey implements Endpoint.
func (m *MemStore) HasKey(ctx context.Context, id EndpointID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing(id) {
		return false, coreerrors.New(coreerrors.Transport, "endpoint unreachable")
	}
	bucket, ok := m.data[id]
	if !ok {
		return false, nil
	}
	_, present := bucket[key]
	return present, nil
}

// Delete implements Endpoint.
func (m *MemStore) Delete(ctx context.Context, id EndpointID, key string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failing(id) {
		return coreerrors.New(coreerrors.Transport, "endpoint unreachable")
	}
	if bucket, ok := m.data[id]; ok {
		delete(bucket, key)
	}
	return nil
}
