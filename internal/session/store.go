package session

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("session: not found")

// Record is the server-side half of a session. The browser only ever holds
// the opaque ID.
type Record struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Email           string    `json:"email"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// Store keeps session records until ExpiresAt.
type Store interface {
	Put(ctx context.Context, rec Record) error
	// Get returns ErrNotFound for unknown or expired sessions.
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}
