package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const localIssuer = "essence-local"

type localAccount struct {
	user User
	hash []byte
}

// Local is an in-process identity provider for development and tests. It keeps
// accounts in memory, hashes passwords with bcrypt and issues HS256 tokens
// that Verifier accepts with the same secret.
type Local struct {
	mu       sync.RWMutex
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	accounts map[string]*localAccount // id -> account
	byEmail  map[string]string        // email -> id
	refresh  map[string]string        // refresh token -> id
	cost     int
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithTokenTTL overrides the access token lifetime (default one hour).
func WithTokenTTL(ttl time.Duration) LocalOption {
	return func(l *Local) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		if now != nil {
			l.now = now
		}
	}
}

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) LocalOption {
	return func(l *Local) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			l.cost = cost
		}
	}
}

func NewLocal(secret string, opts ...LocalOption) (*Local, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: jwt secret is required", ErrInvalidInput)
	}
	l := &Local{
		secret:   []byte(secret),
		ttl:      time.Hour,
		now:      time.Now,
		accounts: make(map[string]*localAccount),
		byEmail:  make(map[string]string),
		refresh:  make(map[string]string),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

var _ Provider = (*Local)(nil)

// Verifier returns a token verifier bound to this provider's secret.
func (l *Local) Verifier() *Verifier {
	return &Verifier{secret: l.secret, issuer: localIssuer, now: l.now}
}

func (l *Local) SignUp(ctx context.Context, email, password string, metadata map[string]any) (User, *Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return User{}, nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if len(password) < 6 {
		return User{}, nil, fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return User{}, nil, fmt.Errorf("identity: hash password: %w", err)
	}
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	l.mu.Lock()
	if _, ok := l.byEmail[email]; ok {
		l.mu.Unlock()
		return User{}, nil, ErrAlreadyRegistered
	}
	u := User{ID: uuid.NewString(), Email: email, Metadata: meta, CreatedAt: l.now().UTC()}
	l.accounts[u.ID] = &localAccount{user: u, hash: hash}
	l.byEmail[email] = u.ID
	l.mu.Unlock()

	s, err := l.issue(u)
	if err != nil {
		return User{}, nil, err
	}
	return u, &s, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	l.mu.RLock()
	id, ok := l.byEmail[email]
	var acct *localAccount
	if ok {
		acct = l.accounts[id]
	}
	l.mu.RUnlock()
	if acct == nil {
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}
	return l.issue(acct.user)
}

func (l *Local) SignOut(ctx context.Context, accessToken string) error {
	u, err := l.Verifier().Verify(accessToken)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for tok, id := range l.refresh {
		if id == u.ID {
			delete(l.refresh, tok)
		}
	}
	return nil
}

func (l *Local) GetUser(ctx context.Context, accessToken string) (User, error) {
	claimed, err := l.Verifier().Verify(accessToken)
	if err != nil {
		return User{}, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[claimed.ID]
	if !ok {
		return User{}, ErrInvalidToken
	}
	return acct.user, nil
}

func (l *Local) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	l.mu.Lock()
	id, ok := l.refresh[refreshToken]
	if ok {
		delete(l.refresh, refreshToken)
	}
	acct := l.accounts[id]
	l.mu.Unlock()
	if !ok || acct == nil {
		return Session{}, ErrInvalidToken
	}
	return l.issue(acct.user)
}

func (l *Local) AdminGetUser(ctx context.Context, id string) (User, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[strings.TrimSpace(id)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return acct.user, nil
}

// ListUsers returns every account ordered by creation time.
func (l *Local) ListUsers(ctx context.Context) ([]User, error) {
	l.mu.RLock()
	users := make([]User, 0, len(l.accounts))
	for _, acct := range l.accounts {
		users = append(users, acct.user)
	}
	l.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

func (l *Local) issue(u User) (Session, error) {
	access, expiresAt, err := issueToken(l.secret, localIssuer, u, l.now().UTC(), l.ttl)
	if err != nil {
		return Session{}, err
	}
	refresh, err := randomToken()
	if err != nil {
		return Session{}, err
	}
	l.mu.Lock()
	l.refresh[refresh] = u.ID
	l.mu.Unlock()
	return Session{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt, User: u}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("identity: generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
