// Package store defines the persistence boundary for users, events and chat messages.
// Implementations live in the mongodb, postgres and memory subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/trailmeet/backend/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint (user email) is violated.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyJoined is returned by AddParticipant when the user is already a participant.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrEventFull is returned by AddParticipant when the event capacity is reached.
	ErrEventFull = errors.New("event is full")
)

// Users persists users and their sessions.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetBySessionToken(ctx context.Context, token string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	SetSession(ctx context.Context, userID, token string, expires time.Time) error
	ClearSession(ctx context.Context, userID string) error
}

// Events persists events and their participant lists.
type Events interface {
	ListByStatus(ctx context.Context, status models.EventStatus, limit int) ([]models.Event, error)
	ListByCreator(ctx context.Context, userID string, limit int) ([]models.Event, error)
	ListByParticipant(ctx context.Context, userID string, limit int) ([]models.Event, error)
	GetByID(ctx context.Context, id string) (*models.Event, error)
	Create(ctx context.Context, e *models.Event) error
	// AddParticipant appends userID in a single conditional update that only matches when the user
	// is absent and the event is under capacity. It returns ErrNotFound, ErrAlreadyJoined or ErrEventFull
	// when the update does not apply.
	AddParticipant(ctx context.Context, eventID, userID string) error
	// RemoveParticipant pulls userID from the participants. Removing an absent user is not an error.
	RemoveParticipant(ctx context.Context, eventID, userID string) error
}

// Messages persists chat messages.
type Messages interface {
	// ListByEvent returns up to limit messages for the event, oldest first.
	ListByEvent(ctx context.Context, eventID string, limit int) ([]models.ChatMessage, error)
	Create(ctx context.Context, m *models.ChatMessage) error
}

// Store bundles the repositories of one backend.
type Store struct {
	Users    Users
	Events   Events
	Messages Messages
	// Close releases the backend's connections. It may be nil.
	Close func(ctx context.Context) error
}

// ClassifyJoinMiss explains why a conditional participant append did not match, given the current
// state of the event (nil when the event does not exist).
func ClassifyJoinMiss(e *models.Event, userID string) error {
	switch {
	case e == nil:
		return ErrNotFound
	case e.HasParticipant(userID):
		return ErrAlreadyJoined
	case e.IsFull():
		return ErrEventFull
	}
	// Capacity freed up between the update and the re-read. Not retried.
	return ErrEventFull
}
