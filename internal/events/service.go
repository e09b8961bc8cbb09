// Package events lists, creates, joins and leaves outdoor events.
package events

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
)

const (
	listLimit = 100
	mineLimit = 50
)

// Service implements the event operations over a store.
type Service struct {
	events store.Events
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an event service.
func NewService(events store.Events, logger *zap.Logger) *Service {
	return &Service{events: events, logger: logger, now: time.Now}
}

// List returns up to 100 active events.
func (s *Service) List(ctx context.Context) ([]models.Event, error) {
	list, err := s.events.ListByStatus(ctx, models.EventStatusActive, listLimit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return list, nil
}

// Get returns the event or store.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*models.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", id, err)
	}
	return e, nil
}

// Create validates in and stores a new active event owned by u.
func (s *Service) Create(ctx context.Context, in *models.EventCreate, u *models.User) (*models.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	date, _ := models.ParseISOTime(in.EventDate)
	e := &models.Event{
		ID:           uuid.New().String(),
		Title:        in.Title,
		Description:  in.Description,
		Location:     in.EventLocation(),
		EventDate:    date.Truncate(time.Millisecond),
		EventType:    in.EventType,
		Capacity:     in.Capacity,
		CreatedBy:    u.ID,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
		Participants: []string{},
		Status:       models.EventStatusActive,
	}
	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created",
		zap.String("event_id", e.ID),
		zap.String("event_type", string(e.EventType)),
		zap.String("created_by", u.ID),
	)
	return e, nil
}

// Join adds u to the participants. It fails with store.ErrNotFound, store.ErrAlreadyJoined or store.ErrEventFull.
func (s *Service) Join(ctx context.Context, id string, u *models.User) error {
	if err := s.events.AddParticipant(ctx, id, u.ID); err != nil {
		return fmt.Errorf("join event %s: %w", id, err)
	}
	s.logger.Info("event joined", zap.String("event_id", id), zap.String("user_id", u.ID))
	return nil
}

// Leave removes u from the participants. Leaving an event u never joined succeeds.
func (s *Service) Leave(ctx context.Context, id string, u *models.User) error {
	if err := s.events.RemoveParticipant(ctx, id, u.ID); err != nil {
		return fmt.Errorf("leave event %s: %w", id, err)
	}
	s.logger.Info("event left", zap.String("event_id", id), zap.String("user_id", u.ID))
	return nil
}

// Mine returns events u created followed by events u joined, without duplicates.
// Each source is capped at 50.
func (s *Service) Mine(ctx context.Context, u *models.User) ([]models.Event, error) {
	created, err := s.events.ListByCreator(ctx, u.ID, mineLimit)
	if err != nil {
		return nil, fmt.Errorf("list created events: %w", err)
	}
	joined, err := s.events.ListByParticipant(ctx, u.ID, mineLimit)
	if err != nil {
		return nil, fmt.Errorf("list joined events: %w", err)
	}

	seen := make(map[string]struct{}, len(created)+len(joined))
	list := make([]models.Event, 0, len(created)+len(joined))
	for _, e := range append(created, joined...) {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		list = append(list, e)
	}
	return list, nil
}
