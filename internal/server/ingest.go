package server

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
)

// maxIngestPayload caps the decoded peer payload. Peers forward whitened
// extraction outputs, so anything beyond a few blocks is abuse.
const maxIngestPayload = 4096

// ingestRequest is the body peers POST to /ingest. It mirrors the fan-out
// message shape of the uplink package.
type ingestRequest struct {
	Node       string `json:"node"`
	Seq        uint64 `json:"seq"`
	Timestamp  int64  `json:"timestamp"`
	PayloadHex string `json:"payload_hex"`
}

// handleIngest handles POST /ingest — accept a whitened payload from a peer
// node and feed it into the pipeline as its own source. The payload goes
// through the same health checks as local samples; a hostile or broken peer
// degrades into dropped samples, never into pool contamination.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ip := getIP(r)
	if !s.ingestLimit.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*maxIngestPayload+1024)
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PayloadHex == "" {
		writeError(w, http.StatusBadRequest, "payload_hex is required")
		return
	}

	payload, err := hex.DecodeString(req.PayloadHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "payload_hex is not valid hex")
		return
	}
	if len(payload) > maxIngestPayload {
		writeError(w, http.StatusBadRequest, "payload too large")
		return
	}

	if !s.engine.Submit("P2P_"+ip, payload) {
		writeError(w, http.StatusUnprocessableEntity, "sample rejected")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}
