package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(h *Hub, eventID string) *Client {
	return NewClient(h, nil, eventID, "u-"+eventID, zap.NewNop())
}

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return WSMessage{}
	}
}

func TestBroadcastIsPerRoom(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	a1, a2, b := newTestClient(h, "a"), newTestClient(h, "a"), newTestClient(h, "b")
	h.Register(a1)
	h.Register(a2)
	h.Register(b)
	assert.Equal(t, 2, h.OnlineCount("a"))
	assert.Equal(t, 1, h.OnlineCount("b"))

	require.NoError(t, h.Publish("a", EventChatMessage, map[string]string{"message": "hi"}))

	for _, c := range []*Client{a1, a2} {
		msg := receive(t, c)
		assert.Equal(t, EventChatMessage, msg.Event)
		assert.JSONEq(t, `{"message":"hi"}`, string(msg.Data))
	}
	assert.Len(t, b.send, 0)
}

func TestUnregisterClosesSendAndEmptiesRoom(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	var sizes []int
	h.SetPresenceHandler(func(_ string, count int) { sizes = append(sizes, count) })

	c := newTestClient(h, "a")
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)

	_, open := <-c.send
	assert.False(t, open)
	assert.Equal(t, 0, h.OnlineCount("a"))
	assert.Equal(t, []int{1, 0}, sizes)

	h.Broadcast("a", EventChatMessage, []byte(`{}`))
}

// fakeBroker connects hubs like Redis does: a message reaches every subscribed endpoint except its publisher.
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[*fakeBus]map[string]func(event string, payload []byte)
	published int
	cancelled []string
}

type fakeBus struct {
	broker  *fakeBroker
	failing bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: map[*fakeBus]map[string]func(string, []byte){}}
}

func (b *fakeBroker) endpoint() *fakeBus {
	return &fakeBus{broker: b}
}

func (f *fakeBus) PublishRoomEvent(eventID, event string, payload []byte) error {
	f.broker.mu.Lock()
	f.broker.published++
	var targets []func(string, []byte)
	for bus, rooms := range f.broker.handlers {
		if bus != f && rooms[eventID] != nil {
			targets = append(targets, rooms[eventID])
		}
	}
	f.broker.mu.Unlock()
	for _, h := range targets {
		h(event, payload)
	}
	return nil
}

func (f *fakeBus) SubscribeRoom(eventID string, handler func(event string, payload []byte)) (func(), error) {
	b := f.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if f.failing {
		return nil, errors.New("connection refused")
	}
	if b.handlers[f] == nil {
		b.handlers[f] = map[string]func(string, []byte){}
	}
	b.handlers[f][eventID] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[f], eventID)
		b.cancelled = append(b.cancelled, eventID)
	}, nil
}

func (f *fakeBus) setFailing(v bool) {
	f.broker.mu.Lock()
	defer f.broker.mu.Unlock()
	f.failing = v
}

func TestPublishReachesEveryInstanceOnce(t *testing.T) {
	broker := newFakeBroker()
	busA, busB := broker.endpoint(), broker.endpoint()
	hubA := NewHub(zap.NewNop(), busA, busA)
	hubB := NewHub(zap.NewNop(), busB, busB)
	a, b := newTestClient(hubA, "e1"), newTestClient(hubB, "e1")
	hubA.Register(a)
	hubB.Register(b)
	require.True(t, hubA.Subscribed("e1"))

	require.NoError(t, hubA.Publish("e1", EventChatMessage, map[string]int{"n": 1}))
	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.JSONEq(t, `{"n":1}`, string(msg.Data))
		assert.Len(t, c.send, 0)
	}
	assert.Equal(t, 1, broker.published)

	hubA.Unregister(a)
	assert.Equal(t, []string{"e1"}, broker.cancelled)
	assert.False(t, hubA.Subscribed("e1"))
}

func TestPublishDeliversLocallyWhenSubscribeFails(t *testing.T) {
	bus := newFakeBroker().endpoint()
	bus.setFailing(true)
	h := NewHub(zap.NewNop(), bus, bus)
	c := newTestClient(h, "e1")
	h.Register(c)
	require.False(t, h.Subscribed("e1"))

	require.NoError(t, h.Publish("e1", EventChatMessage, map[string]string{"id": "m1"}))
	msg := receive(t, c)
	assert.JSONEq(t, `{"id":"m1"}`, string(msg.Data))
	assert.Equal(t, 1, bus.broker.published)
	assert.False(t, h.Subscribed("e1"))

	bus.setFailing(false)
	require.NoError(t, h.Publish("e1", EventChatMessage, map[string]string{"id": "m2"}))
	msg = receive(t, c)
	assert.JSONEq(t, `{"id":"m2"}`, string(msg.Data))
	assert.Len(t, c.send, 0)
	assert.True(t, h.Subscribed("e1"))
}

type blockingBus struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBus) PublishRoomEvent(string, string, []byte) error { return nil }

func (b *blockingBus) SubscribeRoom(string, func(string, []byte)) (func(), error) {
	close(b.entered)
	<-b.release
	return func() {}, nil
}

func TestRegisterSubscribesOutsideLock(t *testing.T) {
	bus := &blockingBus{entered: make(chan struct{}), release: make(chan struct{})}
	h := NewHub(zap.NewNop(), bus, bus)
	other := newTestClient(h, "b")
	h.rooms["b"] = map[string]*Client{other.ID: other}

	done := make(chan struct{})
	go func() {
		h.Register(newTestClient(h, "a"))
		close(done)
	}()
	<-bus.entered

	counted := make(chan int, 1)
	go func() { counted <- h.OnlineCount("b") }()
	select {
	case n := <-counted:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("OnlineCount blocked while a room was subscribing")
	}

	close(bus.release)
	<-done
	assert.True(t, h.Subscribed("a"))
}

func TestServeStreamsToWebsocket(t *testing.T) {
	h := NewHub(zap.NewNop(), nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "e1", "u1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.OnlineCount("e1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, h.Publish("e1", EventChatMessage, map[string]string{"id": "m1"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventChatMessage, msg.Event)
	assert.JSONEq(t, `{"id":"m1"}`, string(msg.Data))

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.OnlineCount("e1") == 0 }, time.Second, 10*time.Millisecond)
}

func TestRedisPubSubSkipsOwnMessages(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	sender := NewRedisPubSub(rdb, zap.NewNop())
	receiver := NewRedisPubSub(rdb, zap.NewNop())

	own := make(chan string, 1)
	cancelOwn, err := sender.SubscribeRoom("e1", func(event string, _ []byte) { own <- event })
	require.NoError(t, err)
	defer cancelOwn()

	got := make(chan string, 1)
	cancel, err := receiver.SubscribeRoom("e1", func(event string, payload []byte) {
		var m map[string]string
		_ = json.Unmarshal(payload, &m)
		got <- event + ":" + m["id"]
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, sender.PublishRoomEvent("e1", EventChatMessage, []byte(`{"id":"m1"}`)))
	select {
	case v := <-got:
		assert.Equal(t, "chat_message:m1", v)
	case <-time.After(2 * time.Second):
		t.Fatal("no message from redis")
	}
	select {
	case <-own:
		t.Fatal("publisher received its own message")
	case <-time.After(200 * time.Millisecond):
	}
}
