// Package postgres stores users, events and chat messages in PostgreSQL through a pgx pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
)

const uniqueViolation = "23505"

// New returns a store bundle backed by pool. Close closes the pool.
func New(pool *pgxpool.Pool) *store.Store {
	return &store.Store{
		Users:    &Users{pool: pool},
		Events:   &Events{pool: pool},
		Messages: &Messages{pool: pool},
		Close: func(context.Context) error {
			pool.Close()
			return nil
		},
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// Users implements store.Users.
type Users struct {
	pool *pgxpool.Pool
}

const userColumns = `id, email, name, picture, created_at, session_token, session_expires`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.CreatedAt, &u.SessionToken, &u.SessionExpires); err != nil {
		return nil, notFound(err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	if u.SessionExpires != nil {
		exp := u.SessionExpires.UTC()
		u.SessionExpires = &exp
	}
	return &u, nil
}

// GetByEmail returns the user with that email.
func (r *Users) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetBySessionToken returns the user holding token.
func (r *Users) GetBySessionToken(ctx context.Context, token string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE session_token = $1`, token))
}

// Create inserts u, mapping a unique email violation to store.ErrConflict.
func (r *Users) Create(ctx context.Context, u *models.User) error {
	const q = `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, q, u.ID, u.Email, u.Name, u.Picture, u.CreatedAt, u.SessionToken, u.SessionExpires)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return store.ErrConflict
	}
	return err
}

// SetSession stores a new token and expiry.
func (r *Users) SetSession(ctx context.Context, userID, token string, expires time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET session_token = $2, session_expires = $3 WHERE id = $1`, userID, token, expires)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ClearSession nulls the token and expiry.
func (r *Users) ClearSession(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET session_token = NULL, session_expires = NULL WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Events implements store.Events.
type Events struct {
	pool *pgxpool.Pool
}

const eventColumns = `id, title, description, location_lat, location_lng, location_address,
	event_date, event_type, capacity, created_by, created_at, participants, status`

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e                 models.Event
		eventType, status string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Location.Lat, &e.Location.Lng, &e.Location.Address,
		&e.EventDate, &eventType, &e.Capacity, &e.CreatedBy, &e.CreatedAt, &e.Participants, &status)
	if err != nil {
		return nil, notFound(err)
	}
	e.EventType = models.EventType(eventType)
	e.Status = models.EventStatus(status)
	if !e.EventType.Valid() || !e.Status.Valid() {
		return nil, fmt.Errorf("event %s: invalid event_type %q or status %q", e.ID, eventType, status)
	}
	e.EventDate = e.EventDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	if e.Participants == nil {
		e.Participants = []string{}
	}
	return &e, nil
}

func (r *Events) list(ctx context.Context, where string, arg any, limit int) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE `+where+` ORDER BY created_at, id LIMIT $2`, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// ListByStatus returns up to limit events with the status, oldest first.
func (r *Events) ListByStatus(ctx context.Context, status models.EventStatus, limit int) ([]models.Event, error) {
	return r.list(ctx, `status = $1`, string(status), limit)
}

// ListByCreator returns up to limit events created by userID.
func (r *Events) ListByCreator(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	return r.list(ctx, `created_by = $1`, userID, limit)
}

// ListByParticipant returns up to limit events whose participants contain userID.
func (r *Events) ListByParticipant(ctx context.Context, userID string, limit int) ([]models.Event, error) {
	return r.list(ctx, `participants @> ARRAY[$1::text]`, userID, limit)
}

// GetByID returns the event or store.ErrNotFound.
func (r *Events) GetByID(ctx context.Context, id string) (*models.Event, error) {
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

// Create inserts e.
func (r *Events) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	participants := e.Participants
	if participants == nil {
		participants = []string{}
	}
	_, err := r.pool.Exec(ctx, q, e.ID, e.Title, e.Description, e.Location.Lat, e.Location.Lng, e.Location.Address,
		e.EventDate, string(e.EventType), e.Capacity, e.CreatedBy, e.CreatedAt, participants, string(e.Status))
	return err
}

// joinSQL appends the user only when absent and under capacity.
const joinSQL = `UPDATE events SET participants = array_append(participants, $2::text)
	WHERE id = $1
	  AND NOT ($2::text = ANY(participants))
	  AND (capacity IS NULL OR cardinality(participants) < capacity)`

// AddParticipant appends userID with a single conditional update.
func (r *Events) AddParticipant(ctx context.Context, eventID, userID string) error {
	tag, err := r.pool.Exec(ctx, joinSQL, eventID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	e, err := r.GetByID(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ClassifyJoinMiss(e, userID)
}

// RemoveParticipant removes every occurrence of userID.
func (r *Events) RemoveParticipant(ctx context.Context, eventID, userID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET participants = array_remove(participants, $2::text) WHERE id = $1`, eventID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Messages implements store.Messages.
type Messages struct {
	pool *pgxpool.Pool
}

// ListByEvent returns up to limit messages of the event, oldest first.
func (r *Messages) ListByEvent(ctx context.Context, eventID string, limit int) ([]models.ChatMessage, error) {
	const q = `SELECT id, event_id, user_id, user_name, message, sent_at
		FROM chat_messages WHERE event_id = $1 ORDER BY sent_at, id LIMIT $2`
	rows, err := r.pool.Query(ctx, q, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ChatMessage{}
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.EventID, &m.UserID, &m.UserName, &m.Message, &m.Timestamp); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		list = append(list, m)
	}
	return list, rows.Err()
}

// Create inserts m.
func (r *Messages) Create(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, event_id, user_id, user_name, message, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, m.ID, m.EventID, m.UserID, m.UserName, m.Message, m.Timestamp)
	return err
}
