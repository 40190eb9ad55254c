package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/okian/promille/internal/domain/model"
	"github.com/okian/promille/internal/domain/types"
	"github.com/okian/promille/pkg/logger"
	"github.com/okian/promille/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames.
	maxMessageSize = 512

	sendBuffer = 16
)

// Hub fans leaderboards out to the websocket subscribers of each session.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]map[*client]struct{}
	count    int
	closed   bool
	logger   logger.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[*client]struct{}),
		logger:   logger.Get().Named("live"),
	}
}

type client struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

// HasSubscribers reports whether anyone listens to sessionID.
func (h *Hub) HasSubscribers(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID]) > 0
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Publish sends board to every subscriber of its session. Subscribers that
// cannot keep up are disconnected.
func (h *Hub) Publish(board types.Leaderboard) {
	payload, err := json.Marshal(board)
	if err != nil {
		h.logger.Error(context.Background(), "encoding leaderboard", logger.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.sessions[board.SessionID] {
		h.deliverLocked(c, payload)
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.sessions {
		for c := range set {
			h.removeLocked(c)
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.sessions[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.sessions[c.sessionID] = set
	}
	set[c] = struct{}{}
	h.count++
	metrics.UpdateLiveSubscribers(h.count)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	set, ok := h.sessions[c.sessionID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.sessions, c.sessionID)
	}
	close(c.send)
	h.count--
	metrics.UpdateLiveSubscribers(h.count)
}

func (h *Hub) deliver(c *client, board types.Leaderboard) {
	payload, err := json.Marshal(board)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[c.sessionID][c]; ok {
		h.deliverLocked(c, payload)
	}
}

func (h *Hub) deliverLocked(c *client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn(context.Background(), "dropping slow subscriber", logger.String("session", c.sessionID))
		h.removeLocked(c)
	}
}

// readPump discards inbound frames and keeps the read deadline moving on pongs.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(message); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// LiveDependencies defines what the live handler reads.
type LiveDependencies interface {
	Session(ctx context.Context, sessionID string) (model.Session, error)
	Leaderboard(ctx context.Context, sessionID string, at time.Time) (types.Leaderboard, error)
}

// LiveHandler upgrades subscribers to a websocket leaderboard feed.
type LiveHandler struct {
	deps     LiveDependencies
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewLiveHandler creates a new live handler.
func NewLiveHandler(deps LiveDependencies, hub *Hub) *LiveHandler {
	return &LiveHandler{
		deps: deps,
		hub:  hub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleLive handles GET /sessions/{sessionID}/live requests. The current
// leaderboard is sent right away; later ones arrive as they are published.
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	const op = "api.live"
	sessionID := mux.Vars(r)["sessionID"]
	if _, err := h.deps.Session(r.Context(), sessionID); err != nil {
		fail(w, Wrap(op, err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.hub.logger.Debug(r.Context(), "upgrade failed", logger.Error(WrapKind(op, ErrUpgrade, err)))
		return
	}
	c := &client{hub: h.hub, sessionID: sessionID, conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.hub.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		_ = conn.Close()
		return
	}

	if board, err := h.deps.Leaderboard(r.Context(), sessionID, time.Time{}); err == nil {
		h.hub.deliver(c, board)
	}
	go c.writePump()
	c.readPump()
}
