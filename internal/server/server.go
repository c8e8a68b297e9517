// Package server exposes the control surface: metrics snapshots (plain and
// streamed), source and subsystem toggles, manual minting, and the peer
// ingestion listener.
package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JupitersGhost/ChaosMagnet/internal/engine"
	"github.com/JupitersGhost/ChaosMagnet/internal/ratelimit"
	"github.com/JupitersGhost/ChaosMagnet/internal/storage"
	"github.com/JupitersGhost/ChaosMagnet/internal/uplink"
)

// Server is the main HTTP server for the ChaosMagnet API.
type Server struct {
	engine      *engine.Engine
	fwd         *uplink.Forwarder
	db          *storage.DB
	ingestLimit *ratelimit.Keyed
	mux         *http.ServeMux
}

// New creates a new Server with all routes registered. db may be nil when
// the node runs without a durable ledger.
func New(eng *engine.Engine, fwd *uplink.Forwarder, db *storage.DB) *Server {
	s := &Server{
		engine:      eng,
		fwd:         fwd,
		db:          db,
		ingestLimit: ratelimit.NewKeyed(60, time.Minute),
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// routes registers all HTTP routes on the server mux.
func (s *Server) routes() {
	// Health + metrics
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/metrics/ws", s.handleMetricsWS)

	// Toggles
	s.mux.HandleFunc("POST /api/sources/{tag}", s.handleSetSource)
	s.mux.HandleFunc("POST /api/uplink", s.handleSetUplink)
	s.mux.HandleFunc("POST /api/peering", s.handleSetPeering)
	s.mux.HandleFunc("POST /api/peers", s.handleAddPeer)
	s.mux.HandleFunc("GET /api/peers", s.handleListPeers)

	// Vault
	s.mux.HandleFunc("POST /api/mint", s.handleMint)
	s.mux.HandleFunc("GET /api/mints", s.handleListMints)

	// Peer ingestion
	s.mux.HandleFunc("POST /ingest", s.handleIngest)
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "chaosmagnet",
	})
}

// metricsResponse is the engine snapshot plus the delivery-side state.
type metricsResponse struct {
	engine.Snapshot
	Network uplink.Status `json:"network"`
}

func (s *Server) snapshot() metricsResponse {
	return metricsResponse{
		Snapshot: s.engine.Snapshot(),
		Network:  s.fwd.Status(),
	}
}

// handleMetrics handles GET /api/metrics — one full snapshot.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// getIP extracts the client IP from a request, respecting X-Forwarded-For
// for proxied deployments.
func getIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
