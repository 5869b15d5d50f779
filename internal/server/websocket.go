package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/tickloop/internal/core/loop"
	"github.com/zeusync/tickloop/internal/core/observability/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one websocket subscriber. An empty filter receives every loop.
type client struct {
	conn   *websocket.Conn
	filter string
	send   chan []byte
	once   sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.send) })
}

// hub fans rate samples out to websocket clients. broadcast never blocks:
// a client whose queue is full is disconnected.
type hub struct {
	logger       log.Log
	buffer       int
	writeTimeout time.Duration

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(logger log.Log, buffer int, writeTimeout time.Duration) *hub {
	return &hub{
		logger:       logger,
		buffer:       buffer,
		writeTimeout: writeTimeout,
		clients:      make(map[*client]struct{}),
	}
}

func (h *hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(sample loop.RateSample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		h.logger.Error("Failed to encode rate sample", log.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.filter != "" && c.filter != sample.Loop {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Dropping slow websocket client",
				log.String("remote_addr", c.conn.RemoteAddr().String()))
			delete(h.clients, c)
			c.stop()
		}
	}
}

// close disconnects every client and refuses new ones.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("loop")
	if filter != "" {
		if _, err := s.loopNamed(filter); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", log.Error(err))
		return
	}

	c := &client{conn: conn, filter: filter, send: make(chan []byte, s.hub.buffer)}
	if !s.hub.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	s.logger.Debug("Websocket client connected",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.String("loop", filter))

	go s.hub.writePump(c)
	s.hub.readPump(c)
}

// readPump discards inbound frames and unregisters the client once the
// connection fails or is closed by the peer.
func (h *hub) readPump(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *hub) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		if h.writeTimeout > 0 {
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("Websocket write failed", log.Error(err))
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
}
