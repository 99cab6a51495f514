package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"essence.app/internal/obs"
)

func newTestGate(t *testing.T, resolver IdentityResolver, loader ProfileLoader) *Gate {
	t.Helper()
	g, err := NewGate(resolver, loader)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestRequireIdentityRedirectsToLogin(t *testing.T) {
	g := newTestGate(t, stubResolver{}, stubLoader{})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)

	if _, ok := g.RequireIdentity(rr, req); ok {
		t.Fatal("expected denial without a session")
	}
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != LoginPath {
		t.Fatalf("expected redirect to %s, got %d %q", LoginPath, rr.Code, rr.Header().Get("Location"))
	}
}

func TestRequireAdministratorByRole(t *testing.T) {
	cases := []struct {
		role  Role
		admit bool
	}{
		{RoleAdmin, true},
		{RoleSuperAdmin, true},
		{RoleUser, false},
		{RoleModerator, false},
		{Role("super admin"), false},
		{Role("Admin"), false},
	}
	for _, tc := range cases {
		t.Run(string(tc.role), func(t *testing.T) {
			loader := stubLoader{"u1": {ID: "u1", Role: tc.role}}
			g := newTestGate(t, stubResolver{id: Identity{ID: "u1"}, ok: true}, loader)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/admin/users", nil)

			p, ok := g.RequireAdministrator(rr, req)
			if ok != tc.admit {
				t.Fatalf("admit = %v, want %v", ok, tc.admit)
			}
			if tc.admit {
				if p.ID != "u1" {
					t.Fatalf("unexpected profile %+v", p)
				}
				return
			}
			if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != LandingPath {
				t.Fatalf("expected redirect to %s, got %d %q", LandingPath, rr.Code, rr.Header().Get("Location"))
			}
		})
	}
}

func TestRequireAdministratorMissingProfileDenies(t *testing.T) {
	g := newTestGate(t, stubResolver{id: Identity{ID: "ghost"}, ok: true}, stubLoader{})
	rr := httptest.NewRecorder()
	if _, ok := g.RequireAdministrator(rr, httptest.NewRequest(http.MethodGet, "/admin", nil)); ok {
		t.Fatal("expected denial when no profile exists")
	}
	if rr.Header().Get("Location") != LandingPath {
		t.Fatalf("unexpected redirect %q", rr.Header().Get("Location"))
	}
}

func TestAdministratorMiddlewarePutsProfileOnContext(t *testing.T) {
	loader := stubLoader{"a1": {ID: "a1", Email: "root@example.com", Role: RoleSuperAdmin}}
	g := newTestGate(t, stubResolver{id: Identity{ID: "a1", Email: "root@example.com"}, ok: true}, loader)

	var seen Profile
	h := g.Administrator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := ProfileFromContext(r.Context())
		if !ok {
			t.Fatal("profile missing from context")
		}
		if id, ok := UserIDFromContext(r.Context()); !ok || id != "a1" {
			t.Fatalf("identity missing from context: %q", id)
		}
		seen = p
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin", nil))
	if rr.Code != http.StatusNoContent || seen.ID != "a1" {
		t.Fatalf("handler not reached: %d %+v", rr.Code, seen)
	}
}

func TestAuthenticatedMiddlewareStopsWithoutSession(t *testing.T) {
	g := newTestGate(t, stubResolver{}, stubLoader{})
	h := g.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
}

func TestSuspendedAdministratorIsAdmitted(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	loader := stubLoader{"a1": {ID: "a1", Role: RoleAdmin, IsSuspended: true}}
	g := newTestGate(t, stubResolver{id: Identity{ID: "a1"}, ok: true}, loader)
	rr := httptest.NewRecorder()

	p, ok := g.RequireAdministrator(rr, httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	if !ok {
		t.Fatalf("suspended administrator denied: %d %q", rr.Code, rr.Header().Get("Location"))
	}
	if p.ID != "a1" || !p.IsSuspended {
		t.Fatalf("unexpected profile %+v", p)
	}
	if !strings.Contains(buf.String(), "suspended administrator admitted") {
		t.Fatalf("expected warning log, got %q", buf.String())
	}
}

func TestSuspendedUserPassesIdentityGate(t *testing.T) {
	loader := stubLoader{"u1": {ID: "u1", Role: RoleUser, IsSuspended: true}}
	g := newTestGate(t, stubResolver{id: Identity{ID: "u1"}, ok: true}, loader)

	if id, ok := g.RequireIdentity(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/dashboard", nil)); !ok || id.ID != "u1" {
		t.Fatalf("suspended user denied: %v %+v", ok, id)
	}

	reached := false
	h := g.Authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	if !reached || rr.Code != http.StatusNoContent {
		t.Fatalf("handler not reached for suspended user: %d", rr.Code)
	}
}
