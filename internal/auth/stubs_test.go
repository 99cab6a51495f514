package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"essence.app/internal/identity"
)

type stubProfileStore struct {
	mu       sync.Mutex
	profiles map[string]Profile
	inserts  int
	getErr   error
	// insertFn overrides InsertProfile when set.
	insertFn func(ctx context.Context, p Profile) (Profile, error)
	synced   int
}

func newStubProfileStore() *stubProfileStore {
	return &stubProfileStore{profiles: map[string]Profile{}}
}

func (s *stubProfileStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Profile{}, s.getErr
	}
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *stubProfileStore) InsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if _, ok := s.profiles[p.ID]; ok {
		return Profile{}, ErrConflict
	}
	s.profiles[p.ID] = p
	return p, nil
}

func (s *stubProfileStore) SyncExistingUsers(ctx context.Context) (int, error) {
	return s.synced, nil
}

type stubDirectory struct {
	mu    sync.Mutex
	users map[string]identity.User
	calls int
}

func (d *stubDirectory) AdminGetUser(ctx context.Context, id string) (identity.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	u, ok := d.users[id]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

type recordedAudit struct {
	action  string
	modules []string
	actor   string
	details map[string]any
}

type stubAuditor struct {
	records []recordedAudit
}

func (a *stubAuditor) Record(ctx context.Context, actionType string, targetModules []string, performedBy string, details map[string]any) {
	a.records = append(a.records, recordedAudit{actionType, targetModules, performedBy, details})
}

type stubAdminStore struct {
	profiles []UserRow
	groups   []Group
	listErr  error

	updateProfileFn func(ctx context.Context, id string, upd ProfileUpdate) (Profile, error)
	createGroupFn   func(ctx context.Context, in GroupInput) (Group, error)
	updateGroupFn   func(ctx context.Context, id string, upd GroupUpdate) (Group, error)
	deleteGroupFn   func(ctx context.Context, id string) (int, error)
}

func (s *stubAdminStore) ListProfiles(ctx context.Context) ([]UserRow, error) {
	return s.profiles, s.listErr
}

func (s *stubAdminStore) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
	return s.updateProfileFn(ctx, id, upd)
}

func (s *stubAdminStore) ListGroups(ctx context.Context) ([]Group, error) {
	return s.groups, s.listErr
}

func (s *stubAdminStore) CreateGroup(ctx context.Context, in GroupInput) (Group, error) {
	return s.createGroupFn(ctx, in)
}

func (s *stubAdminStore) UpdateGroup(ctx context.Context, id string, upd GroupUpdate) (Group, error) {
	return s.updateGroupFn(ctx, id, upd)
}

func (s *stubAdminStore) DeleteGroup(ctx context.Context, id string) (int, error) {
	return s.deleteGroupFn(ctx, id)
}

type stubResolver struct {
	id Identity
	ok bool
}

func (r stubResolver) CurrentIdentity(w http.ResponseWriter, req *http.Request) (Identity, bool) {
	return r.id, r.ok
}

type stubLoader map[string]Profile

func (l stubLoader) Profile(ctx context.Context, id string) (Profile, bool) {
	p, ok := l[id]
	return p, ok
}

var testEpoch = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
