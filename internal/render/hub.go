package render

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/signavatar/internal/playback"
	"github.com/normanking/signavatar/internal/sign"
)

const (
	// WriteWait is the timeout for writing to a WebSocket.
	WriteWait = 10 * time.Second

	// PongWait is the timeout for pong responses.
	PongWait = 60 * time.Second

	// PingPeriod is how often to send ping frames.
	PingPeriod = (PongWait * 9) / 10

	// MaxMessageSize caps inbound client messages; clients only send control frames.
	MaxMessageSize = 512

	sendBuffer = 256
)

// MessageType tags messages sent to avatar clients.
type MessageType string

const MessageFrame MessageType = "frame"

// Message is the wire form of one render. A nil Frame means background only.
type Message struct {
	Type      MessageType `json:"type"`
	Frame     *sign.Frame `json:"frame"`
	Uncertain bool        `json:"uncertain"`
}

// Hub broadcasts rendered frames to browser avatars over WebSocket. It is a
// playback.Renderer and an http.Handler; Run must be running for clients to
// be registered.
type Hub struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader

	clients    map[*client]bool
	clientsMu  sync.RWMutex
	register   chan *client
	unregister chan *client
	done       chan struct{}

	lastMu sync.Mutex
	last   []byte

	stopMu  sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

var (
	_ playback.Renderer = (*Hub)(nil)
	_ http.Handler      = (*Hub)(nil)
)

// NewHub creates a hub that accepts connections from any origin.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run manages client registration until ctx is done, then closes every
// connection and waits for the pumps to exit. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.stopMu.Lock()
		h.stopped = true
		h.stopMu.Unlock()
		close(h.done)
		h.clientsMu.Lock()
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.clientsMu.Unlock()
		h.wg.Wait()
	}()

	for {
		select {
		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.log.Debug().Int("clients", n).Msg("Avatar client connected")

			h.lastMu.Lock()
			last := h.last
			h.lastMu.Unlock()
			if last != nil {
				c.send <- last
			}

		case c := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.clientsMu.Unlock()
			h.log.Debug().Int("clients", n).Msg("Avatar client disconnected")

		case <-ctx.Done():
			return
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Render implements playback.Renderer. Consecutive identical renders are sent
// once; a client whose buffer is full is dropped.
func (h *Hub) Render(frame *sign.Frame, uncertain bool) {
	data, err := json.Marshal(Message{Type: MessageFrame, Frame: frame, Uncertain: uncertain})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal frame")
		return
	}

	h.lastMu.Lock()
	if bytes.Equal(data, h.last) {
		h.lastMu.Unlock()
		return
	}
	h.last = data
	h.lastMu.Unlock()

	h.clientsMu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range slow {
		go h.drop(c)
	}
}

func (h *Hub) drop(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.stopMu.Lock()
	if h.stopped {
		h.stopMu.Unlock()
		conn.Close()
		return
	}
	h.wg.Add(2)
	h.stopMu.Unlock()

	select {
	case h.register <- c:
	case <-h.done:
		h.wg.Add(-2)
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// HandleHealth reports hub liveness as JSON.
func (h *Hub) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Clients int    `json:"clients"`
	}{"ok", "signavatar", h.ClientCount()})
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer h.drop(c)

	c.conn.SetReadLimit(MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.log.Debug().Err(err).Msg("Avatar client read error")
			}
			return
		}
	}
}
