// Package auth issues demo sessions and resolves bearer tokens to users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
)

// Identity is the demo user every session is bound to.
type Identity struct {
	Email   string
	Name    string
	Picture string
}

// Service manages sessions.
type Service struct {
	users    store.Users
	tokens   *TokenIssuer
	identity Identity
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates an auth service.
func NewService(users store.Users, tokens *TokenIssuer, identity Identity, logger *zap.Logger) *Service {
	return &Service{users: users, tokens: tokens, identity: identity, logger: logger, now: time.Now}
}

// EndOfDay returns 23:59:59 UTC of t's UTC calendar day.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 23, 59, 59, 0, time.UTC)
}

// CreateSession issues a fresh token for the demo identity, creating the user on first use.
func (s *Service) CreateSession(ctx context.Context) (*models.User, error) {
	now := s.now().UTC().Truncate(time.Millisecond)
	expires := EndOfDay(now)

	u, err := s.users.GetByEmail(ctx, s.identity.Email)
	switch {
	case err == nil:
		return s.refresh(ctx, u, now, expires)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	u = &models.User{
		ID:        uuid.New().String(),
		Email:     s.identity.Email,
		Name:      s.identity.Name,
		Picture:   s.identity.Picture,
		CreatedAt: now,
	}
	token, err := s.tokens.Issue(u.ID, now, expires)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	u.SessionToken, u.SessionExpires = &token, &expires

	err = s.users.Create(ctx, u)
	if errors.Is(err, store.ErrConflict) {
		// Another request created the user first.
		existing, err := s.users.GetByEmail(ctx, s.identity.Email)
		if err != nil {
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		return s.refresh(ctx, existing, now, expires)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("demo user created", zap.String("user_id", u.ID), zap.String("email", u.Email))
	return u, nil
}

func (s *Service) refresh(ctx context.Context, u *models.User, now, expires time.Time) (*models.User, error) {
	token, err := s.tokens.Issue(u.ID, now, expires)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	if err := s.users.SetSession(ctx, u.ID, token, expires); err != nil {
		return nil, fmt.Errorf("set session: %w", err)
	}
	u.SessionToken, u.SessionExpires = &token, &expires
	return u, nil
}

// Resolve returns the user holding token. It fails with models.ErrUnauthenticated for an empty token,
// models.ErrInvalidToken for a forged or unknown one and models.ErrSessionExpired after expiry.
func (s *Service) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, models.ErrUnauthenticated
	}
	if _, err := s.tokens.Verify(token); err != nil {
		return nil, err
	}
	u, err := s.users.GetBySessionToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, models.ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("get user by session: %w", err)
	}
	if u.SessionExpired(s.now()) {
		return nil, models.ErrSessionExpired
	}
	return u, nil
}

// Logout clears the user's session. A user removed since the session was resolved yields models.ErrInvalidToken.
func (s *Service) Logout(ctx context.Context, u *models.User) error {
	err := s.users.ClearSession(ctx, u.ID)
	if errors.Is(err, store.ErrNotFound) {
		return models.ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
