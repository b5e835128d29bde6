package feed

import (
	"net/http"
	"sync"
	"time"

	"github.com/CzarCx/qr-brain/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	bufferSize = 1024
)

// pongWait bounds the silence tolerated from a subscriber; pings go out at
// pingPeriod, which must stay below it.
var (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  bufferSize,
	WriteBufferSize: bufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, message)
}

// Hub tracks the websocket subscribers of the lote feed
type Hub struct {
	clients map[string]*client
	mu      sync.RWMutex
	metrics *metrics.Metrics
}

// NewHub creates an empty hub
func NewHub(collector *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		metrics: collector,
	}
}

// Register adds a connection and returns its id
func (h *Hub) Register(conn *websocket.Conn) string {
	id := uuid.New().String()

	h.mu.Lock()
	h.clients[id] = &client{conn: conn}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetGauge(metrics.FeedSubscribers, int64(n))
	log.Debug().Str("client", id).Msg("WebSocket client registered")
	return id
}

// Unregister removes a connection
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	_, ok := h.clients[id]
	delete(h.clients, id)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.metrics.SetGauge(metrics.FeedSubscribers, int64(n))
		log.Debug().Str("client", id).Msg("WebSocket client unregistered")
	}
}

// Len returns the number of subscribers
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send writes message to one subscriber. Unknown ids are ignored.
func (h *Hub) Send(id string, message []byte) error {
	h.mu.RLock()
	c, ok := h.clients[id]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return c.write(message)
}

// Broadcast writes message to every subscriber and drops the ones that fail.
// It returns the number of successful writes.
func (h *Hub) Broadcast(message []byte) int {
	h.mu.RLock()
	targets := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		targets[id] = c
	}
	h.mu.RUnlock()

	sent := 0
	for id, c := range targets {
		if err := c.write(message); err != nil {
			log.Warn().Err(err).Str("client", id).Msg("Dropping websocket client")
			h.Unregister(id)
			c.conn.Close()
			continue
		}
		sent++
	}
	return sent
}

// Serve upgrades the request and keeps the subscription open until the
// client goes away. initial, when set, is sent right after the upgrade.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial []byte) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}

	id := h.Register(conn)
	defer func() {
		h.Unregister(id)
		conn.Close()
	}()

	if initial != nil {
		if err := h.Send(id, initial); err != nil {
			return
		}
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(id, conn, done)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", id).Msg("Unexpected websocket close")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// keepAlive pings the subscriber until done is closed or a ping fails
func (h *Hub) keepAlive(id string, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("client", id).Msg("WebSocket ping failed")
				conn.Close()
				return
			}
		}
	}
}
