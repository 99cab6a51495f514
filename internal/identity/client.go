package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the hosted auth API.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity: provider returned %d", e.Status)
	}
	return fmt.Sprintf("identity: provider returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// Client talks to a GoTrue-compatible auth API (the BaaS auth endpoint).
type Client struct {
	baseURL    *url.URL
	anonKey    string
	serviceKey string
	http       *http.Client
	now        func() time.Time
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the blanket timeout applied to every outbound call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// NewClient constructs a Client for the project at baseURL.
func NewClient(baseURL, anonKey, serviceRoleKey string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("identity: invalid base url %q", baseURL)
	}
	if anonKey == "" || serviceRoleKey == "" {
		return nil, errors.New("identity: anon and service role keys are required")
	}
	c := &Client{
		baseURL:    u,
		anonKey:    anonKey,
		serviceKey: serviceRoleKey,
		http:       &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

var _ Provider = (*Client)(nil)

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

func (t tokenResponse) session(now time.Time) Session {
	s := Session{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	if t.User != nil {
		s.User = *t.User
	}
	return s
}

func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"password"}}, c.anonKey,
		map[string]string{"email": email, "password": password}, &resp,
		func(status int) error {
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return ErrInvalidCredentials
			}
			return nil
		})
	if err != nil {
		return Session{}, err
	}
	return resp.session(c.now()), nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (User, *Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	// The signup endpoint returns either a bare user (confirmation pending)
	// or a token response carrying the user.
	var resp struct {
		tokenResponse
		User
	}
	err := c.do(ctx, http.MethodPost, "/auth/v1/signup", nil, c.anonKey,
		map[string]any{"email": email, "password": password, "data": metadata}, &resp,
		func(status int) error {
			switch status {
			case http.StatusUnprocessableEntity:
				return ErrAlreadyRegistered
			case http.StatusBadRequest:
				return ErrInvalidInput
			}
			return nil
		})
	if err != nil {
		return User{}, nil, err
	}
	if resp.AccessToken != "" {
		s := resp.tokenResponse.session(c.now())
		return s.User, &s, nil
	}
	return resp.User, nil, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", nil, accessToken, nil, nil,
		func(status int) error {
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				return ErrInvalidToken
			}
			return nil
		})
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	if accessToken == "" {
		return User{}, ErrInvalidToken
	}
	var u User
	err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &u,
		func(status int) error {
			if status == http.StatusUnauthorized || status == http.StatusForbidden {
				return ErrInvalidToken
			}
			return nil
		})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrInvalidToken
	}
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/auth/v1/token", url.Values{"grant_type": {"refresh_token"}}, c.anonKey,
		map[string]string{"refresh_token": refreshToken}, &resp,
		func(status int) error {
			if status == http.StatusBadRequest || status == http.StatusUnauthorized {
				return ErrInvalidToken
			}
			return nil
		})
	if err != nil {
		return Session{}, err
	}
	return resp.session(c.now()), nil
}

func (c *Client) AdminGetUser(ctx context.Context, id string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	var u User
	err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users/"+url.PathEscape(id), nil, c.serviceKey, nil, &u,
		func(status int) error {
			if status == http.StatusNotFound {
				return ErrUserNotFound
			}
			return nil
		})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// do issues one request. bearer is sent as the Authorization token; the
// apikey header always carries the key matching the privilege level.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, bearer string, body, out any, classify func(int) error) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	apiKey := c.anonKey
	if bearer == c.serviceKey {
		apiKey = c.serviceKey
	}
	req.Header.Set("apikey", apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Status: resp.StatusCode, Message: errorMessage(raw)}
		if classify != nil {
			apiErr.Err = classify(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("identity: decode response: %w", err)
	}
	return nil
}

// errorMessage extracts the human-readable message from the provider's error
// body, which varies between endpoints.
func errorMessage(raw []byte) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	for _, s := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}
