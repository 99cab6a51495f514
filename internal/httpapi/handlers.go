package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"essence.app/internal/audit"
	"essence.app/internal/auth"
	"essence.app/internal/identity"
	"essence.app/internal/obs"
)

// ReadyProbe reports whether backing services are reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Sessions resolves, establishes and ends browser sessions.
type Sessions interface {
	auth.IdentityResolver
	Establish(ctx context.Context, w http.ResponseWriter, s identity.Session) error
	End(ctx context.Context, w http.ResponseWriter, r *http.Request)
}

// AuditLog lists recent audit entries.
type AuditLog interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Sessions Sessions
	Identity identity.Provider
	Gate     *auth.Gate
	Profiles auth.ProfileLoader
	Admin    *auth.AdminService
	Audit    AuditLog
	Ready    ReadyProbe
}

// Options tune the HTTP layer.
type Options struct {
	Version      string
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
	// TrustedProxies may set X-Forwarded-For; see TrustedProxies.ClientIP.
	TrustedProxies []string
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	deps    Deps
	opts    Options
	log     *zerolog.Logger
	started time.Time
	proxies TrustedProxies
}

func New(deps Deps, opts Options) (*API, error) {
	if deps.Sessions == nil || deps.Identity == nil || deps.Gate == nil ||
		deps.Profiles == nil || deps.Admin == nil || deps.Audit == nil {
		return nil, errors.New("httpapi: missing dependency")
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 10
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 5
	}
	proxies, err := ParseTrustedProxies(opts.TrustedProxies)
	if err != nil {
		return nil, err
	}
	a := &API{
		mux:     http.NewServeMux(),
		deps:    deps,
		opts:    opts,
		log:     obs.Component("http"),
		started: time.Now().UTC(),
		proxies: proxies,
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	gate := a.deps.Gate

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", a.handleRoot)
	a.mux.Handle("/login", RateLimit(http.HandlerFunc(a.handleLogin), a.opts.RateBurst, a.opts.RatePerSec, a.proxies))
	a.mux.Handle("/signup", RateLimit(http.HandlerFunc(a.handleSignup), a.opts.RateBurst, a.opts.RatePerSec, a.proxies))
	a.mux.HandleFunc("/logout", a.handleLogout)
	a.mux.Handle("/dashboard", gate.Authenticated(http.HandlerFunc(a.handleDashboard)))

	a.mux.Handle("/admin", gate.Administrator(http.HandlerFunc(a.handleAdminOverview)))
	a.mux.Handle("/admin/", gate.Administrator(http.HandlerFunc(a.handleAdminOverview)))
	a.mux.Handle("/admin/users", gate.Administrator(http.HandlerFunc(a.handleAdminUsers)))
	a.mux.Handle("/admin/groups", gate.Administrator(http.HandlerFunc(a.handleAdminGroups)))
	a.mux.Handle("/admin/sync-users", gate.Administrator(http.HandlerFunc(a.handleAdminSync)))
	a.mux.Handle("/admin/audit-logs", gate.Administrator(http.HandlerFunc(a.handleAdminAuditLogs)))
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = obs.Instrument(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = LoggingJSON(h, a.proxies)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "essence-api",
		"version": a.opts.Version,
		"uptime":  time.Since(a.started).Round(time.Second).String(),
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
