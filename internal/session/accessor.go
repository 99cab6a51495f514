package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"essence.app/internal/auth"
	"essence.app/internal/identity"
	"essence.app/internal/obs"
)

// refreshSkew is how close to expiry an access token may get before the
// accessor refreshes it.
const refreshSkew = 30 * time.Second

// Accessor resolves the identity behind a request's session cookie.
type Accessor struct {
	store    Store
	provider identity.Provider
	verifier *identity.Verifier
	ttl      time.Duration
	cookie   CookieOptions
	now      func() time.Time
	log      *zerolog.Logger

	// refreshes coalesces concurrent refreshes of one session.
	refreshes singleflight.Group
}

type Option func(*Accessor)

// WithVerifier validates access tokens locally instead of asking the provider.
func WithVerifier(v *identity.Verifier) Option {
	return func(a *Accessor) { a.verifier = v }
}

func WithCookieOptions(opts CookieOptions) Option {
	return func(a *Accessor) { a.cookie = opts }
}

func WithClock(now func() time.Time) Option {
	return func(a *Accessor) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAccessor(store Store, provider identity.Provider, ttl time.Duration, opts ...Option) (*Accessor, error) {
	if store == nil {
		return nil, errors.New("session: store is required")
	}
	if provider == nil {
		return nil, errors.New("session: identity provider is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}
	a := &Accessor{
		store:    store,
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		log:      obs.Component("session"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

var _ auth.IdentityResolver = (*Accessor)(nil)

// CurrentIdentity returns the session identity or false. It never fails the
// request: store and provider errors are logged and read as "no session".
// A refreshed session is re-issued on w.
func (a *Accessor) CurrentIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return auth.Identity{}, false
	}
	ctx := r.Context()
	rec, err := a.store.Get(ctx, c.Value)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.log.Error().Err(err).Msg("session lookup failed")
		}
		return auth.Identity{}, false
	}

	if (identity.Session{ExpiresAt: rec.AccessExpiresAt}).Expired(a.now(), refreshSkew) {
		refreshed, err, _ := a.refreshes.Do(rec.ID, func() (any, error) {
			return a.refresh(ctx, rec)
		})
		if err == nil {
			rec = refreshed.(Record)
			SetCookie(w, rec.ID, rec.ExpiresAt, a.cookie)
		} else if current, rotated := a.rotatedElsewhere(ctx, rec); rotated {
			rec = current
		} else {
			a.log.Info().Err(err).Str("user_id", rec.UserID).Msg("session refresh failed")
			_ = a.store.Delete(ctx, c.Value)
			ClearCookie(w, a.cookie)
			return auth.Identity{}, false
		}
	}

	user, err := a.validate(ctx, rec.AccessToken)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) {
			a.log.Error().Err(err).Str("user_id", rec.UserID).Msg("session validation failed")
		}
		return auth.Identity{}, false
	}
	return auth.Identity{ID: user.ID, Email: user.Email}, true
}

func (a *Accessor) refresh(ctx context.Context, rec Record) (Record, error) {
	s, err := a.provider.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		return rec, err
	}
	rec.AccessToken = s.AccessToken
	if s.RefreshToken != "" {
		rec.RefreshToken = s.RefreshToken
	}
	rec.AccessExpiresAt = s.ExpiresAt
	rec.ExpiresAt = a.now().Add(a.ttl)
	if err := a.store.Put(ctx, rec); err != nil {
		return rec, fmt.Errorf("store refreshed session: %w", err)
	}
	return rec, nil
}

// rotatedElsewhere re-reads the session after a failed refresh. Refresh
// tokens are single use, so a request served elsewhere may already have
// rotated it; that record is returned instead of the stale one.
func (a *Accessor) rotatedElsewhere(ctx context.Context, stale Record) (Record, bool) {
	current, err := a.store.Get(ctx, stale.ID)
	if err != nil || current.RefreshToken == stale.RefreshToken {
		return Record{}, false
	}
	return current, true
}

func (a *Accessor) validate(ctx context.Context, token string) (identity.User, error) {
	if a.verifier != nil {
		return a.verifier.Verify(token)
	}
	return a.provider.GetUser(ctx, token)
}

// Establish stores s under a fresh session id and sets the cookie.
func (a *Accessor) Establish(ctx context.Context, w http.ResponseWriter, s identity.Session) error {
	id, err := GenerateID()
	if err != nil {
		return err
	}
	rec := Record{
		ID:              id,
		UserID:          s.User.ID,
		Email:           s.User.Email,
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		AccessExpiresAt: s.ExpiresAt,
		ExpiresAt:       a.now().Add(a.ttl),
	}
	if err := a.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("session: store: %w", err)
	}
	SetCookie(w, rec.ID, rec.ExpiresAt, a.cookie)
	return nil
}

// End signs the session out at the provider (best effort), forgets it and
// clears the cookie.
func (a *Accessor) End(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	defer ClearCookie(w, a.cookie)
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return
	}
	rec, err := a.store.Get(ctx, c.Value)
	if err == nil {
		if err := a.provider.SignOut(ctx, rec.AccessToken); err != nil {
			a.log.Warn().Err(err).Str("user_id", rec.UserID).Msg("provider sign-out failed")
		}
	}
	if err := a.store.Delete(ctx, c.Value); err != nil {
		a.log.Error().Err(err).Msg("session delete failed")
	}
}
