package server

import (
	"fmt"
	"net/http"
	"time"
)

// keepAlive re-sends the last snapshot when the pipeline is idle so that
// clients and proxies do not time out.
const keepAlive = 2 * time.Second

// StreamHandler serves the hub's snapshots as MJPEG.
type StreamHandler struct {
	hub *Hub
}

// NewStreamHandler creates a new StreamHandler over hub.
func NewStreamHandler(hub *Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// ServeHTTP streams MJPEG frames to connected clients. While at least one
// stream is open the pipeline attaches snapshots to its frames.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.hub.streams.Add(1)
	defer h.hub.streams.Add(-1)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	timer := time.NewTimer(keepAlive)
	defer timer.Stop()

	var sent uint64
	for {
		jpeg, seq, updated := h.hub.Latest()
		if jpeg != nil && (seq != sent || sent == 0) {
			if err := writePart(w, jpeg); err != nil {
				return
			}
			sent = seq
		}

		timer.Reset(keepAlive)
		select {
		case <-r.Context().Done():
			return
		case <-updated:
		case <-timer.C:
			sent = 0
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
