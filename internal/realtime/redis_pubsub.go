package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "event:"
	publishTimeout = 5 * time.Second
)

// envelope is what travels on an event channel. Origin identifies the publishing instance,
// which has already delivered the message to its own clients.
type envelope struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt int64           `json:"sent_at"`
}

// RedisPubSub bridges event rooms across instances over Redis channels `event:<id>`.
// It implements Publisher and Subscriber and drops messages it published itself.
type RedisPubSub struct {
	client   *redis.Client
	instance string
	logger   *zap.Logger
}

// NewRedisPubSub creates a bridge with a fresh instance id.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	instance := uuid.NewString()
	return &RedisPubSub{client: client, instance: instance, logger: logger.With(zap.String("instance", instance))}
}

// Channel returns the Redis channel of an event room.
func Channel(eventID string) string {
	return channelPrefix + eventID
}

// PublishRoomEvent sends event to the other instances subscribed to the room.
func (r *RedisPubSub) PublishRoomEvent(eventID string, event string, payload []byte) error {
	body, err := json.Marshal(envelope{Origin: r.instance, Event: event, Data: payload, SentAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, Channel(eventID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(eventID), err)
	}
	return nil
}

// SubscribeRoom returns once Redis confirms the subscription. handler runs on the subscription
// goroutine for every message from another instance until cancel is called.
func (r *RedisPubSub) SubscribeRoom(eventID string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, Channel(eventID))
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(eventID), err)
	}
	go r.consume(ctx, pubsub, handler)
	return cancelCtx, nil
}

func (r *RedisPubSub) consume(ctx context.Context, pubsub *redis.PubSub, handler func(event string, payload []byte)) {
	defer pubsub.Close()
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("bad room payload", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.Origin == r.instance {
				continue
			}
			handler(env.Event, env.Data)
		}
	}
}
