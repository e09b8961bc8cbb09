package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	// EventChatMessage carries a models.ChatMessage.
	EventChatMessage = "chat_message"
)

// PresenceHandler is called after a client joins or leaves an event room with the new room size.
type PresenceHandler func(eventID string, count int)

// Hub maintains event_id -> set of connections and broadcasts messages.
// Publish always delivers to this instance's clients; with a bus configured it also forwards the message
// to other instances, whose subscriptions broadcast it to their own clients.
type Hub struct {
	// eventID -> map[clientID]*Client
	rooms      map[string]map[string]*Client
	subs       map[string]func() // cancel bus subscription per room
	pending    map[string]bool   // subscription in flight
	mu         sync.RWMutex
	logger     *zap.Logger
	publisher  Publisher
	subscriber Subscriber
	onPresence PresenceHandler
}

// Publisher publishes room events to other instances.
type Publisher interface {
	PublishRoomEvent(eventID string, event string, payload []byte) error
}

// Subscriber subscribes to room channels and invokes handler for events published by other instances.
type Subscriber interface {
	SubscribeRoom(eventID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. publisher and subscriber may be nil for a single instance.
func NewHub(logger *zap.Logger, publisher Publisher, subscriber Subscriber) *Hub {
	return &Hub{
		rooms:      make(map[string]map[string]*Client),
		subs:       make(map[string]func()),
		pending:    make(map[string]bool),
		logger:     logger,
		publisher:  publisher,
		subscriber: subscriber,
	}
}

// SetPresenceHandler sets the callback for room size changes.
func (h *Hub) SetPresenceHandler(fn PresenceHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPresence = fn
}

// Register adds a client to its event room and subscribes the room on the bus if it is not yet subscribed.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.EventID] == nil {
		h.rooms[c.EventID] = make(map[string]*Client)
	}
	h.rooms[c.EventID][c.ID] = c
	count := len(h.rooms[c.EventID])
	needSub := h.claimSubscriptionLocked(c.EventID)
	onPresence := h.onPresence
	h.mu.Unlock()

	if needSub {
		h.subscribe(c.EventID)
	}
	if onPresence != nil {
		onPresence(c.EventID, count)
	}
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("event_id", c.EventID))
}

// claimSubscriptionLocked reports whether the caller should subscribe eventID and marks it in flight.
// h.mu must be held for writing.
func (h *Hub) claimSubscriptionLocked(eventID string) bool {
	if h.subscriber == nil || len(h.rooms[eventID]) == 0 {
		return false
	}
	if _, ok := h.subs[eventID]; ok || h.pending[eventID] {
		return false
	}
	h.pending[eventID] = true
	return true
}

// subscribe runs the bus round-trip without holding h.mu and installs the subscription
// only if the room still has clients.
func (h *Hub) subscribe(eventID string) {
	cancel, err := h.subscriber.SubscribeRoom(eventID, func(event string, payload []byte) {
		h.Broadcast(eventID, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.pending, eventID)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("room subscribe failed", zap.String("event_id", eventID), zap.Error(err))
		return
	}
	if len(h.rooms[eventID]) == 0 {
		h.mu.Unlock()
		cancel()
		return
	}
	h.subs[eventID] = cancel
	h.mu.Unlock()
}

// Subscribed reports whether the room currently holds a bus subscription.
func (h *Hub) Subscribed(eventID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.subs[eventID]
	return ok
}

// Unregister removes a client and closes its send channel. Cancels the bus subscription when the room empties.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.EventID]
	if !ok || room[c.ID] != c {
		h.mu.Unlock()
		return
	}
	delete(room, c.ID)
	close(c.send)
	count := len(room)
	var cancel func()
	if count == 0 {
		delete(h.rooms, c.EventID)
		cancel = h.subs[c.EventID]
		delete(h.subs, c.EventID)
	}
	onPresence := h.onPresence
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if onPresence != nil {
		onPresence(c.EventID, count)
	}
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("event_id", c.EventID))
}

// Broadcast sends a message to all clients of the room on this instance.
// Clients whose buffer is full miss the message.
func (h *Hub) Broadcast(eventID string, event string, payload interface{}) {
	data, err := encodePayload(payload)
	if err != nil {
		h.logger.Error("marshal broadcast payload", zap.String("event", event), zap.Error(err))
		return
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full", zap.String("client_id", c.ID))
		}
	}
}

func encodePayload(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(payload)
}

// Publish broadcasts to this instance's clients, then forwards to the bus when one is configured.
// A room with local clients but no subscription (a failed subscribe) is resubscribed after forwarding.
func (h *Hub) Publish(eventID string, event string, payload interface{}) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	h.Broadcast(eventID, event, json.RawMessage(data))
	if h.publisher == nil {
		return nil
	}
	if err := h.publisher.PublishRoomEvent(eventID, event, data); err != nil {
		return err
	}

	h.mu.Lock()
	needSub := h.claimSubscriptionLocked(eventID)
	h.mu.Unlock()
	if needSub {
		h.subscribe(eventID)
	}
	return nil
}

// OnlineCount returns the number of connected clients of the room on this instance.
func (h *Hub) OnlineCount(eventID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// Close disconnects every client and cancels all subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	var conns []*Client
	for _, room := range h.rooms {
		for _, c := range room {
			conns = append(conns, c)
		}
	}
	for id, cancel := range h.subs {
		cancel()
		delete(h.subs, id)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}
