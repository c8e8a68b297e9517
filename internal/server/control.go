package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/JupitersGhost/ChaosMagnet/internal/vault"
)

// mintTag is the pseudo-source toggled through the sources endpoint to
// enable or disable the minting subsystem.
const mintTag = "VAULT"

// toggleRequest is the JSON body shared by the toggle endpoints.
type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// uplinkRequest is the JSON body for reconfiguring the uplink.
type uplinkRequest struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// peerRequest is the JSON body for registering a peer.
type peerRequest struct {
	Address string `json:"address"`
}

// mintRequest is the JSON body for a manual mint.
type mintRequest struct {
	Requester string `json:"requester"`
}

// handleSetSource handles POST /api/sources/{tag} — enable or disable one
// noise source. The VAULT pseudo-tag toggles the minting subsystem instead.
func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")

	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if tag == mintTag {
		s.engine.SetMintingEnabled(req.Enabled)
		writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "enabled": req.Enabled})
		return
	}

	if _, known := s.engine.Flags.All()[tag]; !known {
		writeError(w, http.StatusNotFound, "unknown source: "+tag)
		return
	}
	s.engine.Flags.Set(tag, req.Enabled)
	state := "OFF"
	if req.Enabled {
		state = "ON"
	}
	s.engine.Note(fmt.Sprintf("SOURCE %s: %s", tag, state))
	writeJSON(w, http.StatusOK, map[string]any{"tag": tag, "enabled": req.Enabled})
}

// handleSetUplink handles POST /api/uplink — reconfigure the collector uplink.
func (s *Server) handleSetUplink(w http.ResponseWriter, r *http.Request) {
	var req uplinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.fwd.SetUplink(req.Enabled, req.URL)
	state := "OFF"
	if req.Enabled {
		state = "ON"
	}
	s.engine.Note("UPLINK: " + state)
	writeJSON(w, http.StatusOK, s.fwd.Status())
}

// handleSetPeering handles POST /api/peering — toggle the peer fan-out.
func (s *Server) handleSetPeering(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.fwd.SetPeering(req.Enabled)
	state := "OFF"
	if req.Enabled {
		state = "ON"
	}
	s.engine.Note("PEERING: " + state)
	writeJSON(w, http.StatusOK, s.fwd.Status())
}

// handleAddPeer handles POST /api/peers — register a peer address.
func (s *Server) handleAddPeer(w http.ResponseWriter, r *http.Request) {
	var req peerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}
	if !s.fwd.AddPeer(req.Address) {
		writeError(w, http.StatusConflict, "peer already registered")
		return
	}
	s.engine.Note("PEER added: " + req.Address)
	writeJSON(w, http.StatusCreated, s.fwd.Status())
}

// handleListPeers handles GET /api/peers.
func (s *Server) handleListPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fwd.Status())
}

// handleMint handles POST /api/mint — mint one key bundle on demand.
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Requester == "" {
		req.Requester = "MANUAL"
	}

	filename, err := s.engine.MintManual(req.Requester)
	if err != nil {
		if errors.Is(err, vault.ErrOffline) {
			writeError(w, http.StatusServiceUnavailable, "minting is disabled")
			return
		}
		writeError(w, http.StatusInternalServerError, "mint failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"filename": filename})
}

// handleListMints handles GET /api/mints — recent records from the ledger.
func (s *Server) handleListMints(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
		return
	}
	mints, err := s.db.RecentMints(50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list mints")
		return
	}
	if mints == nil {
		mints = []vault.MintRecord{}
	}
	writeJSON(w, http.StatusOK, mints)
}
