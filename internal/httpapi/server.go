// Package httpapi exposes the REST control surface: health, equipment status
// and direct equipment control for humans and automation systems.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anshulkhare7/shadowd/internal/equipment"
	"github.com/anshulkhare7/shadowd/internal/ledger"
)

// Engine is the control-path surface the HTTP API drives.
type Engine interface {
	Ready() bool
	SetAndReport(ctx context.Context, kind equipment.Kind, desired bool) (bool, error)
	EquipmentStates() (map[equipment.Kind]bool, error)
}

// Server serves the control API.
type Server struct {
	addr       string
	engine     Engine
	ledger     *ledger.Ledger
	httpServer *http.Server
}

// NewServer creates the control API server. ldg may be nil to disable the
// history endpoint.
func NewServer(host string, port int, engine Engine, ldg *ledger.Ledger) *Server {
	return &Server{
		addr:   fmt.Sprintf("%s:%d", host, port),
		engine: engine,
		ledger: ldg,
	}
}

// Run starts the server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /equipment/status", s.handleStatus)
	mux.HandleFunc("POST /equipment/control", s.handleControl)
	mux.HandleFunc("GET /equipment/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	log.Info().Str("addr", s.addr).Msg("Starting control API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Control API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// envelope is the uniform response shape of the control API.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode API response")
	}
}

func writeError(w http.ResponseWriter, code int, errText, message string) {
	writeJSON(w, code, envelope{Success: false, Error: errText, Message: message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if !s.engine.Ready() {
		status = "initializing"
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"status":           status,
			"startup_complete": s.engine.Ready(),
			"timestamp":        time.Now().Unix(),
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if !s.engine.Ready() {
		writeError(w, http.StatusServiceUnavailable, "Shadow engine not ready", "Service is still starting up")
		return
	}

	states, err := s.engine.EquipmentStates()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read equipment states")
		writeError(w, http.StatusInternalServerError, "Failed to get equipment status", err.Error())
		return
	}

	equipmentStates := make(map[equipment.Kind]map[string]bool, len(states))
	for kind, active := range states {
		equipmentStates[kind] = map[string]bool{"isActive": active}
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"equipment": equipmentStates,
			"timestamp": time.Now().Unix(),
		},
	})
}

// controlRequest is the body of POST /equipment/control.
type controlRequest struct {
	EquipmentType *string `json:"equipment_type"`
	IsActive      *bool   `json:"is_active"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if !s.engine.Ready() {
		writeError(w, http.StatusServiceUnavailable, "Shadow engine not ready", "Service is still starting up")
		return
	}

	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.EquipmentType == nil || req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields", `Request body must contain "equipment_type" and "is_active" fields`)
		return
	}

	kind, err := equipment.ParseKind(*req.EquipmentType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid equipment type", err.Error())
		return
	}

	log.Info().Str("kind", string(kind)).Bool("requested", *req.IsActive).Msg("Control request")

	actual, err := s.engine.SetAndReport(r.Context(), kind, *req.IsActive)
	if err != nil {
		if errors.Is(err, equipment.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "Invalid equipment type", err.Error())
			return
		}
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to control equipment")
		writeError(w, http.StatusInternalServerError, "Failed to control equipment", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"equipment_type":  string(kind),
			"requested_state": *req.IsActive,
			"actual_state":    actual,
			"timestamp":       time.Now().Unix(),
		},
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "History disabled", "No ledger database configured")
		return
	}

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if _, err := fmt.Sscanf(q, "%d", &limit); err != nil || limit <= 0 || limit > 1000 {
			writeError(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 1000")
			return
		}
	}

	entries, err := s.ledger.Recent(limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read reconciliation history")
		writeError(w, http.StatusInternalServerError, "Failed to get history", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Data: map[string]any{
			"entries":   entries,
			"timestamp": time.Now().Unix(),
		},
	})
}
