package models

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when a request carries no usable session token.
var ErrUnauthenticated = errors.New("authentication required")

var (
	// ErrInvalidToken is returned for a token that is malformed, not signed by this server or not on record.
	ErrInvalidToken = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	// ErrSessionExpired is returned once the stored session expiry has passed.
	ErrSessionExpired = fmt.Errorf("%w: session expired", ErrUnauthenticated)
)
