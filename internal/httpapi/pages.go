package httpapi

import (
	"errors"
	"net/http"

	"essence.app/internal/auth"
	"essence.app/internal/identity"
)

const currency = "ESSENCE"

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.deps.Sessions.CurrentIdentity(w, r); ok {
		seeOther(w, r, auth.LandingPath)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     currency,
		"currency": currency,
		"login":    auth.LoginPath,
		"signup":   "/signup",
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := a.deps.Sessions.CurrentIdentity(w, r); ok {
			seeOther(w, r, auth.LandingPath)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"page": "login"})
	case http.MethodPost:
		a.login(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email, password := form.get("email"), form["password"]
	if email == "" || password == "" {
		writeError(w, r, http.StatusBadRequest, "Email and password are required")
		return
	}
	s, err := a.deps.Identity.SignIn(r.Context(), email, password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			a.log.Error().Err(err).Msg("sign in failed")
			writeError(w, r, http.StatusBadGateway, "Sign in is temporarily unavailable")
		}
		return
	}
	if err := a.deps.Sessions.Establish(r.Context(), w, s); err != nil {
		a.log.Error().Err(err).Str("user_id", s.User.ID).Msg("establish session failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to start session")
		return
	}
	seeOther(w, r, auth.LandingPath)
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email, password := form.get("email"), form["password"]
	if email == "" || password == "" {
		writeError(w, r, http.StatusBadRequest, "Email and password are required")
		return
	}
	var meta map[string]any
	if name := form.get("full_name"); name != "" {
		meta = map[string]any{"full_name": name}
	}
	u, s, err := a.deps.Identity.SignUp(r.Context(), email, password, meta)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAlreadyRegistered):
			writeError(w, r, http.StatusConflict, "An account with this email already exists")
		case errors.Is(err, identity.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			a.log.Error().Err(err).Msg("sign up failed")
			writeError(w, r, http.StatusBadGateway, "Sign up is temporarily unavailable")
		}
		return
	}
	a.log.Info().Str("user_id", u.ID).Msg("account registered")
	if s == nil {
		// Confirmation pending: no session yet.
		seeOther(w, r, auth.LoginPath)
		return
	}
	if err := a.deps.Sessions.Establish(r.Context(), w, *s); err != nil {
		a.log.Error().Err(err).Str("user_id", u.ID).Msg("establish session failed")
		seeOther(w, r, auth.LoginPath)
		return
	}
	seeOther(w, r, auth.LandingPath)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	a.deps.Sessions.End(r.Context(), w, r)
	seeOther(w, r, auth.LoginPath)
}

type dashboardView struct {
	Profile    *auth.Profile  `json:"profile"`
	Currency   string         `json:"currency"`
	Balance    int64          `json:"balance"`
	Navigation []auth.NavItem `json:"navigation"`
	Data       dashboardData  `json:"dashboard"`
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	id, _ := auth.IdentityFromContext(r.Context())
	view := dashboardView{
		Currency:   currency,
		Navigation: auth.Navigation(auth.RoleUser),
		Data:       sampleDashboard,
	}
	// A missing profile renders an empty dashboard rather than redirecting,
	// which would loop back here.
	if p, ok := a.deps.Profiles.Profile(r.Context(), id.ID); ok {
		view.Profile = &p
		view.Balance = p.Balance
		view.Navigation = auth.Navigation(p.Role)
	}
	writeJSON(w, http.StatusOK, view)
}
