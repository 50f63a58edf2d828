package admin

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/mnohosten/pagecache/pkg/bufferpool"
	"github.com/mnohosten/pagecache/pkg/storage"
)

// WebSocket upgrader with default settings
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (can be restricted in production)
		return true
	},
}

// eventMessage is the wire form of a pool event.
type eventMessage struct {
	Kind   string         `json:"kind"`
	PageID storage.PageID `json:"page_id"`
	Dirty  bool           `json:"dirty"`
}

// EventHub fans the pool's event channel out to connected websocket
// clients. It is strictly an observer: the pool publishes without
// blocking, and a slow client only loses events, never delays a pool
// operation.
type EventHub struct {
	events <-chan bufferpool.Event

	mu    sync.Mutex
	conns map[*websocket.Conn]bool

	stop chan struct{}
	done chan struct{}
}

// NewEventHub creates a hub draining events.
func NewEventHub(events <-chan bufferpool.Event) *EventHub {
	return &EventHub{
		events: events,
		conns:  make(map[*websocket.Conn]bool),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the broadcast loop.
func (h *EventHub) Start() {
	go h.run()
}

// Stop ends the broadcast loop and closes every client connection.
func (h *EventHub) Stop() {
	close(h.stop)
	<-h.done

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
	}
	h.conns = make(map[*websocket.Conn]bool)
}

func (h *EventHub) run() {
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			return
		case ev := <-h.events:
			h.broadcast(eventMessage{
				Kind:   ev.Kind.String(),
				PageID: ev.PageID,
				Dirty:  ev.Dirty,
			})
		}
	}
}

func (h *EventHub) broadcast(msg eventMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// ClientCount reports how many websocket clients are connected.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HandleWS upgrades the request and registers the client for the event
// stream. The connection stays open until the client leaves or the hub
// stops.
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("admin: websocket upgrade failed: %v", err)
		return
	}

	h.mu.Lock()
	h.conns[conn] = true
	h.mu.Unlock()

	// Drain (and discard) client frames so pings and closes are
	// processed; the stream is one-way.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.mu.Lock()
				if h.conns[conn] {
					conn.Close()
					delete(h.conns, conn)
				}
				h.mu.Unlock()
				return
			}
		}
	}()
}
