package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"essence.app/internal/obs"
)

const (
	LoginPath   = "/login"
	LandingPath = "/dashboard"
)

// IdentityResolver yields the session identity for a request, possibly
// re-issuing the session cookie on w.
type IdentityResolver interface {
	CurrentIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool)
}

// ProfileLoader is satisfied by ProfileManager.
type ProfileLoader interface {
	Profile(ctx context.Context, id string) (Profile, bool)
}

// Gate decides whether a request may proceed. A denied request has already
// been answered with a redirect when a Require method returns false.
type Gate struct {
	sessions IdentityResolver
	profiles ProfileLoader
	log      *zerolog.Logger
}

func NewGate(sessions IdentityResolver, profiles ProfileLoader) (*Gate, error) {
	if sessions == nil || profiles == nil {
		return nil, errors.New("auth: gate requires a session resolver and a profile loader")
	}
	return &Gate{sessions: sessions, profiles: profiles, log: obs.Component("gate")}, nil
}

// RequireIdentity redirects to the sign-in page when no session is present.
func (g *Gate) RequireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	id, ok := g.sessions.CurrentIdentity(w, r)
	if !ok {
		obs.GateDecision("identity", "redirect_login")
		http.Redirect(w, r, LoginPath, http.StatusSeeOther)
		return Identity{}, false
	}
	obs.GateDecision("identity", "allow")
	return id, true
}

// RequireAdministrator admits admin and Super Admin profiles only; everyone
// else with a session lands on the dashboard.
func (g *Gate) RequireAdministrator(w http.ResponseWriter, r *http.Request) (Profile, bool) {
	id, ok := g.RequireIdentity(w, r)
	if !ok {
		return Profile{}, false
	}
	p, ok := g.profiles.Profile(r.Context(), id.ID)
	if !ok || !IsAdministrator(p.Role) {
		obs.GateDecision("administrator", "redirect_landing")
		http.Redirect(w, r, LandingPath, http.StatusSeeOther)
		return Profile{}, false
	}
	if p.IsSuspended {
		g.log.Warn().Str("user_id", p.ID).Msg("suspended administrator admitted")
	}
	obs.GateDecision("administrator", "allow")
	return p, true
}

// Authenticated wraps next so it only runs with an identity on the context.
func (g *Gate) Authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := g.RequireIdentity(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// Administrator wraps next so it only runs for administrators, with both the
// identity and the profile on the context.
func (g *Gate) Administrator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := g.RequireAdministrator(w, r)
		if !ok {
			return
		}
		ctx := ContextWithIdentity(r.Context(), Identity{ID: p.ID, Email: p.Email})
		ctx = ContextWithProfile(ctx, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
