package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, "anon-key", "service-key", WithHTTPClient(srv.Client()), WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClientSignInPasswordGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Fatalf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if r.Header.Get("apikey") != "anon-key" {
			t.Fatalf("expected anon apikey, got %q", r.Header.Get("apikey"))
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["email"] != "ada@example.com" || body["password"] != "hunter22" {
			t.Fatalf("unexpected credentials: %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"expires_at":    1767225600,
			"user":          map[string]any{"id": "u-1", "email": "ada@example.com"},
		})
	})

	s, err := c.SignIn(context.Background(), "  Ada@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if s.AccessToken != "access-1" || s.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected tokens: %+v", s)
	}
	if s.User.ID != "u-1" {
		t.Fatalf("unexpected user: %+v", s.User)
	}
	if !s.ExpiresAt.Equal(time.Unix(1767225600, 0)) {
		t.Fatalf("unexpected expiry: %v", s.ExpiresAt)
	}
}

func TestClientSignInRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	_, err := c.SignIn(context.Background(), "ada@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid login credentials" {
		t.Fatalf("expected provider message, got %v", err)
	}
}

func TestClientAdminGetUserUsesServiceKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/admin/users/u-2" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer service-key" || r.Header.Get("apikey") != "service-key" {
			t.Fatalf("expected service credentials, got %v", r.Header)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":            "u-2",
			"email":         "grace@example.com",
			"user_metadata": map[string]any{"name": "Grace"},
			"created_at":    "2025-01-15T10:00:00Z",
		})
	})

	u, err := c.AdminGetUser(context.Background(), "u-2")
	if err != nil {
		t.Fatalf("AdminGetUser: %v", err)
	}
	if u.FullName() != "Grace" {
		t.Fatalf("unexpected full name: %q", u.FullName())
	}
	if u.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be decoded")
	}
}

func TestClientAdminGetUserNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"msg":"User not found"}`))
	})
	if _, err := c.AdminGetUser(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestClientGetUserInvalidToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stale" {
			t.Fatalf("expected user bearer, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	if _, err := c.GetUser(context.Background(), "stale"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestClientSignUpWithoutSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data map[string]any `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Data["full_name"] != "Ada Lovelace" {
			t.Fatalf("metadata not forwarded: %v", body.Data)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "u-3", "email": "ada@example.com"})
	})

	u, s, err := c.SignUp(context.Background(), "ada@example.com", "hunter22", map[string]any{"full_name": "Ada Lovelace"})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if s != nil {
		t.Fatalf("expected no session while confirmation is pending")
	}
	if u.ID != "u-3" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestClientSignUpAlreadyRegistered(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"msg":"User already registered"}`))
	})
	if _, _, err := c.SignUp(context.Background(), "ada@example.com", "hunter22", nil); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestNewClientValidatesInput(t *testing.T) {
	if _, err := NewClient("", "a", "s"); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient("https://example.supabase.co", "", "s"); err == nil {
		t.Fatal("expected error for missing anon key")
	}
}
