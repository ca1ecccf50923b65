package storageendpoint

import "github.com/chinnucsk/dynomite/internal/vclock"

// Wire payloads carried inside the rpcenvelope BytesValue envelope (§2b).
// Encoded as JSON, in the shape of the teacher's gossip_service.go
// health-status marshaling rather than a hand-rolled binary format -- this
// module's own encoding, since no .proto definitions for it exist in the
// retrieval pack (see DESIGN.md).

type getRequest struct {
	Partition uint64 `json:"partition"`
	Key       string `json:"key"`
}

type getResponse struct {
	Found    bool           `json:"found"`
	Clock    []vclock.Entry `json:"clock"`
	Value    []byte         `json:"value"`
	NotFound bool           `json:"not_found"`
}

type putRequest struct {
	Partition uint64         `json:"partition"`
	Key       string         `json:"key"`
	Clock     []vclock.Entry `json:"clock"`
	Value     []byte         `json:"value"`
}

type putResponse struct{}

type hasKeyRequest struct {
	Partition uint64 `json:"partition"`
	Key       string `json:"key"`
}

type hasKeyResponse struct {
	Present bool `json:"present"`
}

type deleteRequest struct {
	Partition uint64 `json:"partition"`
	Key       string `json:"key"`
}

type deleteResponse struct{}
