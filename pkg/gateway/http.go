package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ucp-project/ucp/internal/logging"
)

// sessionHeader is the header a Streamable-HTTP client echoes back after
// the gateway assigns it on initialize, correlating subsequent requests
// with the same UCP session.
const sessionHeader = "Mcp-Session-Id"

// maxFrameBytes bounds one HTTP request body, generous enough for any
// realistic tools/call payload without leaving the endpoint open to an
// unbounded read.
const maxFrameBytes = 4 << 20

// Routes builds the Gateway's HTTP surface: the MCP JSON-RPC endpoint
// plus the operational routes spec.md §4.5 lists (/health, /status,
// /metrics).
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/mcp", s.handleMCPHTTP)
	r.Delete("/mcp", s.handleMCPTerminate)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	if s.telemetry != nil {
		r.Get("/metrics", s.telemetry.Metrics().Handler().ServeHTTP)
	}
	return r
}

func (s *Server) handleMCPHTTP(w http.ResponseWriter, r *http.Request) {
	transportKey := r.Header.Get(sessionHeader)
	assigned := transportKey == ""
	if assigned {
		transportKey = uuid.NewString()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxFrameBytes+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxFrameBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	resp := s.HandleFrame(r.Context(), transportKey, body)

	w.Header().Set("Content-Type", "application/json")
	if assigned {
		w.Header().Set(sessionHeader, transportKey)
	}
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if _, err := w.Write(resp); err != nil {
		logging.Warnf("gateway: writing http response: %v", err)
	}
}

// handleMCPTerminate drops the transport-level session binding, per the
// Streamable HTTP transport's client-initiated session termination. The
// persisted conversation state is not deleted, but no later request is
// routed back to it: a request without a known session key starts a new
// session.
func (s *Server) handleMCPTerminate(w http.ResponseWriter, r *http.Request) {
	transportKey := r.Header.Get(sessionHeader)
	if transportKey == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.forgetTransport(transportKey)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.pool.Status()); err != nil {
		logging.Errorf("gateway: encoding status response: %v", err)
		http.Error(w, "failed to encode status", http.StatusInternalServerError)
	}
}
