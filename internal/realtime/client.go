package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the session token, not the origin, authorizes the feed
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is a read-only WebSocket subscriber of one event room.
type Client struct {
	ID       string
	EventID  string
	UserID   string
	JoinedAt time.Time
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// NewClient creates a client for conn. conn may be nil in tests that only exercise the hub.
func NewClient(hub *Hub, conn *websocket.Conn, eventID, userID string, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.New().String(),
		EventID:  eventID,
		UserID:   userID,
		JoinedAt: time.Now(),
		hub:      hub,
		conn:     conn,
		send:     make(chan WSMessage, 256),
		logger:   logger,
	}
}

// Serve upgrades the request and runs the client until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, eventID, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := NewClient(h, conn, eventID, userID, h.logger)
	h.Register(client)
	go client.writePump()
	client.readPump()
}

// readPump only keeps the heartbeat going. Inbound frames are discarded.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
		c.logger.Debug("websocket closed",
			zap.String("client_id", c.ID),
			zap.String("user_id", c.UserID),
			zap.Duration("connected", time.Since(c.JoinedAt)),
		)
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
