// Package memory is a process-local implementation of the profile, admin and
// audit stores, used by the local development profile and in tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"essence.app/internal/audit"
	"essence.app/internal/auth"
	"essence.app/internal/identity"
	"essence.app/internal/ids"
)

// IdentitySource lists every identity known to the provider; it stands in for
// the auth.users table the sync procedure reads.
type IdentitySource func(ctx context.Context) ([]identity.User, error)

type Store struct {
	mu       sync.RWMutex
	profiles map[string]auth.Profile
	groups   map[string]auth.Group
	entries  []audit.Entry
	source   IdentitySource
	now      func() time.Time
}

type Option func(*Store)

func WithIdentitySource(src IdentitySource) Option {
	return func(s *Store) { s.source = src }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		profiles: make(map[string]auth.Profile),
		groups:   make(map[string]auth.Group),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ auth.ProfileStore = (*Store)(nil)
	_ auth.AdminStore   = (*Store)(nil)
	_ audit.Store       = (*Store)(nil)
)

func (s *Store) GetProfile(ctx context.Context, id string) (auth.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) InsertProfile(ctx context.Context, p auth.Profile) (auth.Profile, error) {
	if p.ID == "" {
		return auth.Profile{}, fmt.Errorf("%w: profile id is required", auth.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return auth.Profile{}, auth.ErrConflict
	}
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Role == "" {
		p.Role = auth.RoleUser
	}
	s.profiles[p.ID] = p
	return p, nil
}

// SyncExistingUsers creates a default profile for every identity lacking one.
func (s *Store) SyncExistingUsers(ctx context.Context) (int, error) {
	if s.source == nil {
		return 0, nil
	}
	users, err := s.source(ctx)
	if err != nil {
		return 0, fmt.Errorf("list identities: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	created := 0
	for _, u := range users {
		if _, ok := s.profiles[u.ID]; ok {
			continue
		}
		createdAt := u.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		s.profiles[u.ID] = auth.Profile{
			ID:        u.ID,
			Email:     u.Email,
			FullName:  u.FullName(),
			Role:      auth.RoleUser,
			CreatedAt: createdAt.UTC(),
			UpdatedAt: now,
		}
		created++
	}
	return created, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]auth.UserRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.UserRow, 0, len(s.profiles))
	for _, p := range s.profiles {
		row := auth.UserRow{Profile: p}
		if g, ok := s.groups[p.GroupID]; ok {
			row.Group = &auth.GroupRef{ID: g.ID, Name: g.Name, Type: g.Type}
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd auth.ProfileUpdate) (auth.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return auth.Profile{}, auth.ErrNotFound
	}
	if upd.GroupID != nil && *upd.GroupID != "" {
		if _, ok := s.groups[*upd.GroupID]; !ok {
			return auth.Profile{}, fmt.Errorf("%w: unknown group %q", auth.ErrInvalidInput, *upd.GroupID)
		}
	}
	if upd.FullName != nil {
		p.FullName = *upd.FullName
	}
	if upd.Email != nil {
		p.Email = *upd.Email
	}
	if upd.Role != nil {
		p.Role = *upd.Role
	}
	if upd.Balance != nil {
		p.Balance = *upd.Balance
	}
	if upd.IsSuspended != nil {
		p.IsSuspended = *upd.IsSuspended
	}
	if upd.GroupID != nil {
		p.GroupID = *upd.GroupID
	}
	p.UpdatedAt = s.now().UTC()
	s.profiles[id] = p
	return p, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]auth.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int, len(s.groups))
	for _, p := range s.profiles {
		if p.GroupID != "" {
			counts[p.GroupID]++
		}
	}
	out := make([]auth.Group, 0, len(s.groups))
	for _, g := range s.groups {
		g.MemberCount = counts[g.ID]
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CreateGroup(ctx context.Context, in auth.GroupInput) (auth.Group, error) {
	now := s.now().UTC()
	g := auth.Group{
		ID:          ids.NewAt(now),
		Name:        in.Name,
		Description: in.Description,
		Type:        in.Type,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.groups[g.ID] = g
	s.mu.Unlock()
	return g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, id string, upd auth.GroupUpdate) (auth.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return auth.Group{}, auth.ErrNotFound
	}
	if upd.Name != nil {
		g.Name = *upd.Name
	}
	if upd.Description != nil {
		g.Description = *upd.Description
	}
	if upd.Type != nil {
		g.Type = *upd.Type
	}
	g.UpdatedAt = s.now().UTC()
	s.groups[id] = g
	for _, p := range s.profiles {
		if p.GroupID == id {
			g.MemberCount++
		}
	}
	return g, nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return 0, auth.ErrNotFound
	}
	now := s.now().UTC()
	detached := 0
	for pid, p := range s.profiles {
		if p.GroupID == id {
			p.GroupID = ""
			p.UpdatedAt = now
			s.profiles[pid] = p
			detached++
		}
	}
	delete(s.groups, id)
	return detached, nil
}

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		return []audit.Entry{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}
