package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrUserNotFound       = errors.New("identity: user not found")
	ErrInvalidToken       = errors.New("identity: invalid token")
	ErrAlreadyRegistered  = errors.New("identity: already registered")
	ErrInvalidInput       = errors.New("identity: invalid input")
)

// User is the provider's canonical account record.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"user_metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// FullName returns the display name carried in user metadata, preferring
// full_name over name.
func (u User) FullName() string {
	for _, key := range []string{"full_name", "name"} {
		if v, ok := u.Metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Session is a token pair issued by the provider.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token expires within skew of now.
func (s Session) Expired(now time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

// Provider is the hosted identity boundary: credential checks, token issue and
// refresh, and privileged user lookup.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (User, *Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (User, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	AdminGetUser(ctx context.Context, id string) (User, error)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
