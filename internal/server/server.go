// Package server provides the HTTP status, control and history API for
// moodlens.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/moodlens/internal/app"
	"github.com/ayusman/moodlens/internal/plugin"
	"github.com/ayusman/moodlens/internal/server/api"
	"github.com/ayusman/moodlens/internal/store"
)

// Controller is the part of the pipeline the server drives.
type Controller interface {
	Status() app.Status
	SetEnabled(enabled bool)
}

// Config holds the server configuration. Every field is optional; routes
// whose dependency is missing are not registered.
type Config struct {
	StaticDir  string
	Store      *store.Store
	Controller Controller
	Hub        *Hub
	Plugins    *plugin.Manager
	Logger     *slog.Logger
}

// Server represents the HTTP server for the moodlens application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
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

	if s.config.Controller != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/pipeline", s.handlePipeline)
		s.mux.HandleFunc("/api/catalog", s.handleCatalog)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/events", s.config.Hub)
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Hub))
	}

	if s.config.Store != nil {
		outcomes := api.NewOutcomeHandler(s.config.Store)
		s.mux.Handle("/api/outcomes", outcomes)
		s.mux.Handle("/api/outcomes/", outcomes)

		var labels func() []string
		if s.config.Controller != nil {
			labels = func() []string { return s.config.Controller.Status().Labels }
		}
		bindings := api.NewBindingHandler(s.config.Store, s.config.Plugins, labels)
		s.mux.Handle("/api/bindings", bindings)
		s.mux.Handle("/api/bindings/", bindings)
	}

	if s.config.Plugins != nil {
		s.mux.HandleFunc("/api/plugins", s.handlePlugins)
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

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, s.config.Controller.Status())
}

type pipelineState struct {
	Enabled *bool `json:"enabled"`
}

// handlePipeline handles GET and POST /api/pipeline. POST toggles frame
// processing and persists the choice when a store is configured.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req pipelineState
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": `expected {"enabled": bool}`})
			return
		}
		s.config.Controller.SetEnabled(*req.Enabled)
		if s.config.Store != nil {
			if err := s.config.Store.Settings().SetBool(store.SettingEnabled, *req.Enabled); err != nil {
				s.config.Logger.Warn("failed to persist pipeline state", "error", err)
			}
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.config.Controller.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   st.Enabled,
		"running":   st.Running,
		"readiness": st.Readiness,
	})
}

// handleCatalog handles GET /api/catalog. It answers 503 until the model
// and its labels are loaded.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	labels := s.config.Controller.Status().Labels
	if len(labels) == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "model not loaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"labels": labels})
}

type pluginResponse struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Events      []string `json:"events"`
}

// handlePlugins handles GET /api/plugins.
func (s *Server) handlePlugins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	plugins := s.config.Plugins.List()
	out := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		out = append(out, pluginResponse{
			Name:        p.Manifest.Name,
			Version:     p.Manifest.Version,
			Description: p.Manifest.Description,
			Actions:     append([]string{}, p.Manifest.Actions...),
			Events:      append([]string{}, p.Manifest.Events...),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plugins": out})
}

// HTTPServer returns an http.Server for addr so callers can shut it down.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
