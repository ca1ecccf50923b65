package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chinnucsk/dynomite/internal/coreerrors"
	"github.com/chinnucsk/dynomite/internal/mediator"
	"github.com/chinnucsk/dynomite/internal/membership"
	"github.com/chinnucsk/dynomite/internal/partition"
	"github.com/chinnucsk/dynomite/internal/vclock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the §6a operator HTTP surface: liveness/readiness, /metrics,
// a read-only membership dump, and join/remove/remap/repair calls into
// the MembershipState actor and the Mediator. It is bound to its own
// port, separate from any client-facing listener (out of scope here).
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	actor      *membership.Actor
	mediator   *mediator.Mediator
	logger     *zap.Logger
}

// New builds the admin surface. addr is the listen address (e.g.
// "0.0.0.0:7001", the teacher's AdminAddr field).
func New(addr string, actor *membership.Actor, med *mediator.Mediator, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	s := &Server{
		router: router,
		actor:  actor,
		mediator: med,
		logger: logger,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	mw := chain(
		recovery(s.logger),
		requestID,
		logging(s.logger),
	)
	s.router.Use(mw)

	writes := newRateLimiter(5, 10, s.logger)

	s.router.HandleFunc("/health/live", s.liveness).Methods(http.MethodGet)
	s.router.HandleFunc("/health/ready", s.readiness).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/membership", s.debugMembership).Methods(http.MethodGet)

	s.router.Handle("/admin/nodes/{nodeID}", writes.limit(http.HandlerFunc(s.joinNode))).Methods(http.MethodPost)
	s.router.Handle("/admin/nodes/{nodeID}", writes.limit(http.HandlerFunc(s.removeNode))).Methods(http.MethodDelete)
	s.router.Handle("/admin/remap", writes.limit(http.HandlerFunc(s.remap))).Methods(http.MethodPost)
	s.router.Handle("/admin/repair/{key}", writes.limit(http.HandlerFunc(s.repairKey))).Methods(http.MethodPost)
}

// Start blocks serving the admin surface until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting admin http server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin http server: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthStatus mirrors the teacher's HealthChecker response shape.
type healthStatus struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthStatus{Status: "alive", Timestamp: time.Now().Unix()})
}

func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	ready := true

	if s.actor.Index() == nil {
		checks["membership"] = "unhealthy: no partition index installed"
		ready = false
	} else {
		checks["membership"] = "healthy"
	}

	status := healthStatus{Timestamp: time.Now().Unix(), Checks: checks}
	if ready {
		status.Status = "ready"
		writeJSON(w, http.StatusOK, status)
	} else {
		status.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, status)
	}
}

// AdminSnapshot is the read-only MembershipState projection served at
// /debug/membership (§3a) -- it is never round-tripped back into
// MembershipState.
type AdminSnapshot struct {
	Nodes           []string       `json:"nodes"`
	PartitionCounts map[string]int `json:"partition_counts"`
	Version         []vclock.Entry `json:"version"`
}

func snapshotOf(state membership.State) AdminSnapshot {
	counts := make(map[string]int, len(state.Nodes))
	for _, a := range state.Partitions.Assignments {
		counts[a.Owner]++
	}
	return AdminSnapshot{
		Nodes:           state.Nodes,
		PartitionCounts: counts,
		Version:         state.Version.Entries(),
	}
}

func (s *Server) debugMembership(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotOf(s.actor.Snapshot()))
}

func (s *Server) joinNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeID"]
	writeJSON(w, http.StatusOK, snapshotOf(s.actor.Join(nodeID)))
}

func (s *Server) removeNode(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["nodeID"]
	writeJSON(w, http.StatusOK, snapshotOf(s.actor.Remove(nodeID)))
}

// remapRequest is the operator-supplied replacement partition map for the
// administrative hard-remap call (§4.3's remap, not a derived rebalance).
type remapRequest struct {
	Q           uint64                 `json:"q"`
	RangeWidth  uint64                 `json:"range_width"`
	Assignments []partition.Assignment `json:"assignments"`
}

func (s *Server) remap(w http.ResponseWriter, r *http.Request) {
	var req remapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed remap request: "+err.Error())
		return
	}
	newMap := partition.FromAssignments(req.Q, req.RangeWidth, req.Assignments)
	writeJSON(w, http.StatusOK, snapshotOf(s.actor.Remap(newMap)))
}

func (s *Server) repairKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	repaired, err := s.mediator.RepairKey(r.Context(), key)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"replicas_repaired": repaired})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

// writeCoreError maps a CoreError's Code onto an HTTP status, in the
// shape of ToGRPCStatus's code table but for the admin HTTP surface
// rather than the RPC boundary.
func writeCoreError(w http.ResponseWriter, err error) {
	code := coreerrors.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case coreerrors.NotFound:
		status = http.StatusNotFound
	case coreerrors.Transport, coreerrors.PeerUnavailable:
		status = http.StatusBadGateway
	case coreerrors.QuorumUnmet:
		status = http.StatusConflict
	case coreerrors.InvariantViolation:
		status = http.StatusBadRequest
	}
	writeError(w, status, err.Error())
}
