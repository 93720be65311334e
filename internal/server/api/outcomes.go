package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/moodlens/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// OutcomeHandler serves the recorded outcome history.
type OutcomeHandler struct {
	store *store.Store
}

// NewOutcomeHandler creates a new OutcomeHandler with the given store.
func NewOutcomeHandler(s *store.Store) *OutcomeHandler {
	return &OutcomeHandler{store: s}
}

// ServeHTTP routes /api/outcomes, /api/outcomes/summary and
// /api/outcomes/{id}.
func (h *OutcomeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/outcomes")
	path = strings.TrimPrefix(path, "/")

	switch {
	case path == "":
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodDelete:
			h.clear(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case path == "summary":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.summary(w, r)
	default:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.get(w, r, path)
	}
}

type outcomeResponse struct {
	ID            string    `json:"id"`
	Seq           uint64    `json:"seq"`
	Label         string    `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probabilities"`
	Region        [4]int    `json:"region"`
	CreatedAt     string    `json:"created_at"`
}

type listOutcomesResponse struct {
	Outcomes []outcomeResponse `json:"outcomes"`
}

type summaryEntry struct {
	Label         string  `json:"label"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
	LastSeen      string  `json:"last_seen"`
}

type summaryResponse struct {
	Labels []summaryEntry `json:"labels"`
	Total  int            `json:"total"`
}

func toOutcomeResponse(o *store.Outcome) outcomeResponse {
	probs := o.Probabilities
	if probs == nil {
		probs = []float64{}
	}
	return outcomeResponse{
		ID:            o.ID,
		Seq:           o.Seq,
		Label:         o.Label,
		Confidence:    o.Confidence,
		Probabilities: probs,
		Region:        [4]int{o.RegionX, o.RegionY, o.RegionW, o.RegionH},
		CreatedAt:     o.CreatedAt.Format(timeLayout),
	}
}

// list handles GET /api/outcomes?limit=N, newest first.
func (h *OutcomeHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	outcomes, err := h.store.Outcomes().List(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list outcomes")
		return
	}

	response := listOutcomesResponse{
		Outcomes: make([]outcomeResponse, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		response.Outcomes = append(response.Outcomes, toOutcomeResponse(o))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/outcomes/{id}.
func (h *OutcomeHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	outcome, err := h.store.Outcomes().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Outcome not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get outcome")
		return
	}

	writeJSON(w, http.StatusOK, toOutcomeResponse(outcome))
}

// summary handles GET /api/outcomes/summary.
func (h *OutcomeHandler) summary(w http.ResponseWriter, r *http.Request) {
	labels, err := h.store.Outcomes().Summary()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to summarize outcomes")
		return
	}

	response := summaryResponse{Labels: make([]summaryEntry, 0, len(labels))}
	for _, l := range labels {
		response.Labels = append(response.Labels, summaryEntry{
			Label:         l.Label,
			Count:         l.Count,
			AvgConfidence: l.AvgConfidence,
			LastSeen:      l.LastSeen.Format(timeLayout),
		})
		response.Total += l.Count
	}

	writeJSON(w, http.StatusOK, response)
}

// clear handles DELETE /api/outcomes.
func (h *OutcomeHandler) clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Outcomes().DeleteAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete outcomes")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
