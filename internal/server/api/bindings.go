package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/moodlens/internal/plugin"
	"github.com/ayusman/moodlens/internal/store"
)

// BindingHandler handles HTTP requests for binding resources.
type BindingHandler struct {
	store   *store.Store
	plugins *plugin.Manager
	labels  func() []string
}

// NewBindingHandler creates a new BindingHandler. plugins and labels are
// optional; when set, new bindings must name a known plugin action and a
// label from the loaded catalog.
func NewBindingHandler(s *store.Store, plugins *plugin.Manager, labels func() []string) *BindingHandler {
	return &BindingHandler{store: s, plugins: plugins, labels: labels}
}

// ServeHTTP implements the http.Handler interface and routes requests to appropriate methods.
func (h *BindingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Expected paths: /api/bindings or /api/bindings/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/bindings")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type createBindingRequest struct {
	Label         string          `json:"label"`
	PluginName    string          `json:"plugin_name"`
	ActionName    string          `json:"action_name"`
	Config        json.RawMessage `json:"config"`
	MinConfidence float64         `json:"min_confidence"`
}

type updateBindingRequest struct {
	Label         string          `json:"label"`
	PluginName    string          `json:"plugin_name"`
	ActionName    string          `json:"action_name"`
	Config        json.RawMessage `json:"config"`
	MinConfidence *float64        `json:"min_confidence"`
	Enabled       *bool           `json:"enabled"`
}

type bindingResponse struct {
	ID            string          `json:"id"`
	Label         string          `json:"label"`
	PluginName    string          `json:"plugin_name"`
	ActionName    string          `json:"action_name"`
	Config        json.RawMessage `json:"config"`
	MinConfidence float64         `json:"min_confidence"`
	Enabled       bool            `json:"enabled"`
	CreatedAt     string          `json:"created_at"`
}

type listBindingsResponse struct {
	Bindings []bindingResponse `json:"bindings"`
}

func toBindingResponse(b *store.Binding) bindingResponse {
	config := b.Config
	if config == nil {
		config = json.RawMessage("{}")
	}
	return bindingResponse{
		ID:            b.ID,
		Label:         b.Label,
		PluginName:    b.PluginName,
		ActionName:    b.ActionName,
		Config:        config,
		MinConfidence: b.MinConfidence,
		Enabled:       b.Enabled,
		CreatedAt:     b.CreatedAt.Format(timeLayout),
	}
}

// validate checks b against the catalog and the discovered plugins. It
// returns a client-facing message, or "" when b is acceptable.
func (h *BindingHandler) validate(b *store.Binding) string {
	if b.MinConfidence < 0 || b.MinConfidence > 1 {
		return "min_confidence must be between 0 and 1"
	}
	if h.labels != nil {
		if labels := h.labels(); len(labels) > 0 && !slices.Contains(labels, b.Label) {
			return "Unknown label"
		}
	}
	if h.plugins != nil {
		p, err := h.plugins.Get(b.PluginName)
		if err != nil {
			return "Plugin not found"
		}
		if !p.HasAction(b.ActionName) {
			return "Plugin does not provide this action"
		}
	}
	return ""
}

// list handles GET /api/bindings and returns all bindings.
func (h *BindingHandler) list(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.store.Bindings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list bindings")
		return
	}

	response := listBindingsResponse{
		Bindings: make([]bindingResponse, 0, len(bindings)),
	}
	for _, b := range bindings {
		response.Bindings = append(response.Bindings, toBindingResponse(b))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/bindings/{id} and returns a single binding.
func (h *BindingHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	binding, err := h.store.Bindings().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}

	writeJSON(w, http.StatusOK, toBindingResponse(binding))
}

// create handles POST /api/bindings and creates a new binding.
func (h *BindingHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Label == "" {
		writeError(w, http.StatusBadRequest, "label is required")
		return
	}
	if req.PluginName == "" {
		writeError(w, http.StatusBadRequest, "plugin_name is required")
		return
	}
	if req.ActionName == "" {
		writeError(w, http.StatusBadRequest, "action_name is required")
		return
	}

	config := req.Config
	if config == nil {
		config = json.RawMessage("{}")
	}

	binding := &store.Binding{
		ID:            uuid.New().String(),
		Label:         req.Label,
		PluginName:    req.PluginName,
		ActionName:    req.ActionName,
		Config:        config,
		MinConfidence: req.MinConfidence,
		Enabled:       true,
	}

	if msg := h.validate(binding); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Bindings().Create(binding); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create binding")
		return
	}

	writeJSON(w, http.StatusCreated, toBindingResponse(binding))
}

// update handles PUT /api/bindings/{id} and updates an existing binding.
func (h *BindingHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	binding, err := h.store.Bindings().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get binding")
		return
	}

	var req updateBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Label != "" {
		binding.Label = req.Label
	}
	if req.PluginName != "" {
		binding.PluginName = req.PluginName
	}
	if req.ActionName != "" {
		binding.ActionName = req.ActionName
	}
	if req.Config != nil {
		binding.Config = req.Config
	}
	if req.MinConfidence != nil {
		binding.MinConfidence = *req.MinConfidence
	}
	if req.Enabled != nil {
		binding.Enabled = *req.Enabled
	}

	if msg := h.validate(binding); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.store.Bindings().Update(binding); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update binding")
		return
	}

	writeJSON(w, http.StatusOK, toBindingResponse(binding))
}

// delete handles DELETE /api/bindings/{id} and removes a binding.
func (h *BindingHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	err := h.store.Bindings().Delete(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Binding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete binding")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
