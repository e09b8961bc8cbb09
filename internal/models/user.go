package models

import (
	"time"
)

// User is a platform user. Session fields are set on login and cleared on logout.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Name           string     `json:"name"`
	Picture        string     `json:"picture"`
	CreatedAt      time.Time  `json:"created_at"`
	SessionToken   *string    `json:"session_token"`
	SessionExpires *time.Time `json:"session_expires"`
}

// HasSession reports whether the user currently holds a session token.
func (u *User) HasSession() bool {
	return u.SessionToken != nil && *u.SessionToken != ""
}

// SessionExpired reports whether the stored session expiry is before now.
// A user without an expiry never expires.
func (u *User) SessionExpired(now time.Time) bool {
	return u.SessionExpires != nil && u.SessionExpires.Before(now)
}

// Clone returns a copy that shares no pointers with u.
func (u *User) Clone() *User {
	c := *u
	if u.SessionToken != nil {
		t := *u.SessionToken
		c.SessionToken = &t
	}
	if u.SessionExpires != nil {
		e := *u.SessionExpires
		c.SessionExpires = &e
	}
	return &c
}
