// Package chat stores per-event chat messages and pushes them to live subscribers.
package chat

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/realtime"
	"github.com/trailmeet/backend/internal/store"
)

const (
	listLimit        = 100
	maxMessageLength = 1000
)

// Publisher fans a message out to the live subscribers of an event.
type Publisher interface {
	Publish(eventID string, event string, payload interface{}) error
}

// Service implements the chat operations.
type Service struct {
	events    store.Events
	messages  store.Messages
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a chat service. publisher may be nil.
func NewService(events store.Events, messages store.Messages, publisher Publisher, logger *zap.Logger) *Service {
	return &Service{events: events, messages: messages, publisher: publisher, logger: logger, now: time.Now}
}

// EnsureEvent fails with store.ErrNotFound when the event does not exist.
func (s *Service) EnsureEvent(ctx context.Context, eventID string) error {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return fmt.Errorf("get event %s: %w", eventID, err)
	}
	return nil
}

// List returns up to 100 messages of the event, oldest first.
func (s *Service) List(ctx context.Context, eventID string) ([]models.ChatMessage, error) {
	if err := s.EnsureEvent(ctx, eventID); err != nil {
		return nil, err
	}
	list, err := s.messages.ListByEvent(ctx, eventID, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return list, nil
}

// Send stores a message from u and publishes it. Publishing failures are logged only.
func (s *Service) Send(ctx context.Context, eventID, text string, u *models.User) (*models.ChatMessage, error) {
	if err := s.EnsureEvent(ctx, eventID); err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(text); n < 1 || n > maxMessageLength {
		return nil, &models.ValidationError{
			Field:  "message",
			Reason: fmt.Sprintf("must be between 1 and %d characters", maxMessageLength),
		}
	}

	m := &models.ChatMessage{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    u.ID,
		UserName:  u.Name,
		Message:   text,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(eventID, realtime.EventChatMessage, m); err != nil {
			s.logger.Warn("publish chat message failed", zap.String("event_id", eventID), zap.Error(err))
		}
	}
	return m, nil
}
