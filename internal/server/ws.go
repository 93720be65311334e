package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/moodlens/internal/present"
	"github.com/ayusman/moodlens/internal/readiness"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Event is one message on the /api/events feed.
type Event struct {
	Type   string            `json:"type"`
	Status *readiness.Status `json:"status,omitempty"`
	Frame  *present.Frame    `json:"frame,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is a present.Sink that broadcasts pipeline results to websocket
// clients and keeps the latest JPEG snapshot for MJPEG streams. Slow
// clients miss messages rather than stall the pipeline.
type Hub struct {
	logger  *slog.Logger
	clients map[*client]struct{}
	mu      sync.RWMutex

	status  *readiness.Status
	jpeg    []byte
	jpegSeq uint64
	updated chan struct{}

	streams atomic.Int32
	dropped atomic.Uint64
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
		updated: make(chan struct{}),
	}
}

// PublishStatus broadcasts a readiness change and remembers it for new
// clients.
func (h *Hub) PublishStatus(st readiness.Status) {
	h.mu.Lock()
	h.status = &st
	h.mu.Unlock()

	h.broadcast(Event{Type: "status", Status: &st})
}

// PublishFrame broadcasts a frame result and stores its snapshot.
func (h *Hub) PublishFrame(f present.Frame) {
	if f.JPEG != nil {
		h.mu.Lock()
		h.jpeg = f.JPEG
		h.jpegSeq = f.Seq
		close(h.updated)
		h.updated = make(chan struct{})
		h.mu.Unlock()
	}

	h.broadcast(Event{Type: "frame", Frame: &f})
}

// WantsJPEG reports whether any MJPEG stream is connected.
func (h *Hub) WantsJPEG() bool {
	return h.streams.Load() > 0
}

// Latest returns the newest snapshot, its frame sequence and a channel
// closed when a newer one arrives.
func (h *Hub) Latest() ([]byte, uint64, <-chan struct{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.jpeg, h.jpegSeq, h.updated
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of messages skipped for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.status != nil {
		if msg, err := json.Marshal(Event{Type: "status", Status: h.status}); err == nil {
			c.send <- msg
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range c.send {
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()

	conn.Close()
	<-done
}
