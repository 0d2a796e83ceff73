// Package wsbus carries the bus over websockets so the foreground and
// background halves can run as separate processes.
package wsbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/marcus/arcsync/internal/models"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 5 * time.Second
)

type client struct {
	topic string
	conn  *websocket.Conn
	send  chan []byte
}

type frame struct {
	from *client
	data []byte
}

// Hub relays frames between websocket clients on the same topic. Each
// frame goes to every other client on its topic; a client whose send
// buffer is full misses the frame.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan frame
	done       chan struct{}
	closeOnce  sync.Once

	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	writers atomic.Int32 // running write loops

	log *slog.Logger
}

// NewHub creates a hub and starts its relay loop.
func NewHub() *Hub {
	h := &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan frame, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*client]struct{}),
		log:        slog.Default().With("component", "wsbus"),
	}
	go h.run()
	return h
}

// Close stops the relay loop. Connected clients are dropped as their
// handlers notice.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Clients returns the number of connected clients on topic.
func (h *Hub) Clients(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return

		case c := <-h.register:
			h.mu.Lock()
			peers := h.clients[c.topic]
			if peers == nil {
				peers = make(map[*client]struct{})
				h.clients[c.topic] = peers
			}
			peers[c] = struct{}{}
			n := len(peers)
			h.mu.Unlock()
			h.log.Debug("client connected", "topic", c.topic, "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.topic][c]; ok {
				delete(h.clients[c.topic], c)
				if len(h.clients[c.topic]) == 0 {
					delete(h.clients, c.topic)
				}
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Debug("client disconnected", "topic", c.topic)

		case f := <-h.broadcast:
			h.mu.RLock()
			for peer := range h.clients[f.from.topic] {
				if peer == f.from {
					continue
				}
				select {
				case peer.send <- f.data:
				default:
					// Drop if peer is full
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ServeHTTP upgrades a request for /bus/{topic}.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	if topic == "" {
		topic = strings.Trim(strings.TrimPrefix(r.URL.Path, "/bus/"), "/")
	}
	if topic == "" {
		http.Error(w, "missing topic", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn("accept websocket", "err", err)
		return
	}
	defer conn.CloseNow()

	c := &client{topic: topic, conn: conn, send: make(chan []byte, clientSendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "hub closed")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	h.writers.Add(1)
	written := make(chan struct{})
	go func() {
		defer close(written)
		defer h.writers.Add(-1)
		h.writeLoop(ctx, c)
	}()

	h.readLoop(ctx, c)

	select {
	case h.unregister <- c:
	case <-h.done:
	}
	cancel()
	<-written
}

func (h *Hub) readLoop(ctx context.Context, c *client) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg models.BusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("drop malformed frame", "topic", c.topic, "err", err)
			continue
		}
		select {
		case h.broadcast <- frame{from: c, data: data}:
		case <-h.done:
			return
		default:
			// Drop if relay is saturated
		}
	}
}

func (h *Hub) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				// The relay never blocks on a full send buffer, so stop here.
				c.conn.CloseNow()
				return
			}
		}
	}
}

// Handler returns a mux serving the hub at /bus/{topic}.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /bus/{topic}", h)
	return mux
}
