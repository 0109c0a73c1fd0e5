// Package server exposes the tracker over HTTP.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/ayusman/handlocator/internal/metrics"
	"github.com/ayusman/handlocator/internal/tracker"
)

// Tracker is the part of the tracker the server depends on.
type Tracker interface {
	Latest() (tracker.Position, bool)
	Subscribe() (<-chan tracker.Position, func())
	Snapshot() ([]byte, bool, error)
	SetEnabled(enabled bool)
	IsEnabled() bool
	SetMaskView(on bool)
	MaskView() bool
	Session() string
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Tracker   Tracker
	Metrics   *metrics.Metrics
}

// Server represents the HTTP server for the hand locator.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Tracker != nil {
		s.mux.HandleFunc("/api/position", s.handlePosition)
		s.mux.HandleFunc("/api/tracking", s.handleTracking)
		s.mux.Handle("/api/position/ws", NewPositionsHandler(s.config.Tracker, s.config.Metrics))
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Tracker))
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics.Handler())
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Tracker != nil {
		response["session"] = s.config.Tracker.Session()
		response["tracking"] = s.config.Tracker.IsEnabled()
	}

	writeJSON(w, http.StatusOK, response)
}

// handlePosition handles GET /api/position.
func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pos, ok := s.config.Tracker.Latest()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

type trackingState struct {
	Enabled  *bool `json:"enabled,omitempty"`
	MaskView *bool `json:"mask_view,omitempty"`
}

// handleTracking handles GET and PUT /api/tracking.
func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var req trackingState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled == nil && req.MaskView == nil {
			writeError(w, http.StatusBadRequest, "enabled or mask_view is required")
			return
		}
		if req.Enabled != nil {
			s.config.Tracker.SetEnabled(*req.Enabled)
			log.Printf("Tracking enabled: %v", *req.Enabled)
		}
		if req.MaskView != nil {
			s.config.Tracker.SetMaskView(*req.MaskView)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	enabled, maskView := s.config.Tracker.IsEnabled(), s.config.Tracker.MaskView()
	writeJSON(w, http.StatusOK, trackingState{Enabled: &enabled, MaskView: &maskView})
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
