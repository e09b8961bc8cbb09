// Package memory is an in-process store. It backs the test suites and STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
)

// DB holds all collections behind one lock, so every method is atomic.
type DB struct {
	mu       sync.RWMutex
	users    []*models.User
	events   []*models.Event
	messages []*models.ChatMessage
}

// New returns an empty store bundle.
func New() *store.Store {
	db := &DB{}
	return &store.Store{
		Users:    &Users{db: db},
		Events:   &Events{db: db},
		Messages: &Messages{db: db},
	}
}

// Users implements store.Users.
type Users struct{ db *DB }

func (r *Users) find(match func(u *models.User) bool) *models.User {
	for _, u := range r.db.users {
		if match(u) {
			return u
		}
	}
	return nil
}

// GetByEmail returns the user with that email.
func (r *Users) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u := r.find(func(u *models.User) bool { return u.Email == email })
	if u == nil {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

// GetBySessionToken returns the user holding token.
func (r *Users) GetBySessionToken(_ context.Context, token string) (*models.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	u := r.find(func(u *models.User) bool { return u.SessionToken != nil && *u.SessionToken == token })
	if u == nil {
		return nil, store.ErrNotFound
	}
	return u.Clone(), nil
}

// Create inserts u. Emails are unique.
func (r *Users) Create(_ context.Context, u *models.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.find(func(x *models.User) bool { return x.Email == u.Email }) != nil {
		return store.ErrConflict
	}
	r.db.users = append(r.db.users, u.Clone())
	return nil
}

// SetSession stores a new token and expiry for the user.
func (r *Users) SetSession(_ context.Context, userID, token string, expires time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u := r.find(func(u *models.User) bool { return u.ID == userID })
	if u == nil {
		return store.ErrNotFound
	}
	u.SessionToken = &token
	u.SessionExpires = &expires
	return nil
}

// ClearSession removes the user's token and expiry.
func (r *Users) ClearSession(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u := r.find(func(u *models.User) bool { return u.ID == userID })
	if u == nil {
		return store.ErrNotFound
	}
	u.SessionToken = nil
	u.SessionExpires = nil
	return nil
}

// Events implements store.Events.
type Events struct{ db *DB }

func (r *Events) list(limit int, match func(e *models.Event) bool) []models.Event {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	list := []models.Event{}
	for _, e := range r.db.events {
		if limit > 0 && len(list) >= limit {
			break
		}
		if match(e) {
			list = append(list, *e.Clone())
		}
	}
	return list
}

func (r *Events) get(id string) *models.Event {
	for _, e := range r.db.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// ListByStatus returns events in insertion order.
func (r *Events) ListByStatus(_ context.Context, status models.EventStatus, limit int) ([]models.Event, error) {
	return r.list(limit, func(e *models.Event) bool { return e.Status == status }), nil
}

// ListByCreator returns events created by userID.
func (r *Events) ListByCreator(_ context.Context, userID string, limit int) ([]models.Event, error) {
	return r.list(limit, func(e *models.Event) bool { return e.CreatedBy == userID }), nil
}

// ListByParticipant returns events userID joined.
func (r *Events) ListByParticipant(_ context.Context, userID string, limit int) ([]models.Event, error) {
	return r.list(limit, func(e *models.Event) bool { return e.HasParticipant(userID) }), nil
}

// GetByID returns the event or store.ErrNotFound.
func (r *Events) GetByID(_ context.Context, id string) (*models.Event, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	e := r.get(id)
	if e == nil {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

// Create inserts e.
func (r *Events) Create(_ context.Context, e *models.Event) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.events = append(r.db.events, e.Clone())
	return nil
}

// AddParticipant checks and appends under the write lock.
func (r *Events) AddParticipant(_ context.Context, eventID, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e := r.get(eventID)
	if e == nil || e.HasParticipant(userID) || e.IsFull() {
		return store.ClassifyJoinMiss(e, userID)
	}
	e.Participants = append(e.Participants, userID)
	return nil
}

// RemoveParticipant drops every occurrence of userID.
func (r *Events) RemoveParticipant(_ context.Context, eventID, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	e := r.get(eventID)
	if e == nil {
		return store.ErrNotFound
	}
	kept := e.Participants[:0]
	for _, p := range e.Participants {
		if p != userID {
			kept = append(kept, p)
		}
	}
	e.Participants = kept
	return nil
}

// Messages implements store.Messages.
type Messages struct{ db *DB }

// ListByEvent returns the oldest limit messages of the event.
func (r *Messages) ListByEvent(_ context.Context, eventID string, limit int) ([]models.ChatMessage, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	list := []models.ChatMessage{}
	for _, m := range r.db.messages {
		if m.EventID == eventID {
			list = append(list, *m)
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Create inserts m.
func (r *Messages) Create(_ context.Context, m *models.ChatMessage) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	c := *m
	r.db.messages = append(r.db.messages, &c)
	return nil
}
