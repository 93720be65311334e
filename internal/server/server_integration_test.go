package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/moodlens/internal/store"
)

func TestAPI_HistoryAndBindingWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv := New(Config{Store: s, Controller: readyController()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Bind an action to a label
	createBody := `{"label": "happy", "plugin_name": "mood-hook", "action_name": "notify", "min_confidence": 0.5}`
	resp, err := client.Post(ts.URL+"/api/bindings", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/bindings error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Label != "happy" {
		t.Errorf("created label = %s, want happy", created.Label)
	}

	// 2. Labels outside the loaded catalog are rejected
	resp, _ = client.Post(ts.URL+"/api/bindings", "application/json",
		bytes.NewBufferString(`{"label": "bored", "plugin_name": "mood-hook", "action_name": "notify"}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST unknown label status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	resp.Body.Close()

	// 3. Record some history and read it back
	for _, label := range []string{"happy", "neutral"} {
		if err := s.Outcomes().Create(&store.Outcome{Label: label, Confidence: 0.7}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	resp, _ = client.Get(ts.URL + "/api/outcomes/summary")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET summary status = %d", resp.StatusCode)
	}
	var summary struct {
		Total int `json:"total"`
	}
	json.NewDecoder(resp.Body).Decode(&summary)
	resp.Body.Close()
	if summary.Total != 2 {
		t.Errorf("summary total = %d, want 2", summary.Total)
	}

	// 4. Delete the binding
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/bindings/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 5. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/bindings/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}
