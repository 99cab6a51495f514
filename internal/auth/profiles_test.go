package auth

import (
	"context"
	"errors"
	"sync"
	"testing"

	"essence.app/internal/identity"
)

func newTestManager(t *testing.T, store ProfileStore, dir Directory) *ProfileManager {
	t.Helper()
	m, err := NewProfileManager(store, dir)
	if err != nil {
		t.Fatalf("NewProfileManager: %v", err)
	}
	return m
}

func TestProfileCreatedOnceOnFirstAccess(t *testing.T) {
	store := newStubProfileStore()
	dir := &stubDirectory{users: map[string]identity.User{
		"u1": {ID: "u1", Email: "ada@example.com", Metadata: map[string]any{"name": "Ada"}, CreatedAt: testEpoch},
	}}
	m := newTestManager(t, store, dir)

	p, ok := m.Profile(context.Background(), "u1")
	if !ok {
		t.Fatal("expected profile to be provisioned")
	}
	if p.Role != RoleUser || p.Balance != 0 || p.IsSuspended {
		t.Fatalf("unexpected defaults: %+v", p)
	}
	if p.FullName != "Ada" || p.Email != "ada@example.com" || !p.CreatedAt.Equal(testEpoch) {
		t.Fatalf("identity metadata not copied: %+v", p)
	}

	again, ok := m.Profile(context.Background(), "u1")
	if !ok || again.ID != p.ID {
		t.Fatalf("second lookup returned %+v, %v", again, ok)
	}
	if store.inserts != 1 {
		t.Fatalf("expected exactly one insert, got %d", store.inserts)
	}
	if dir.calls != 1 {
		t.Fatalf("expected one directory lookup, got %d", dir.calls)
	}
}

func TestProfileExistingSkipsDirectory(t *testing.T) {
	store := newStubProfileStore()
	store.profiles["u2"] = Profile{ID: "u2", Role: RoleAdmin, Balance: 100}
	dir := &stubDirectory{}
	m := newTestManager(t, store, dir)

	p, ok := m.Profile(context.Background(), "u2")
	if !ok || p.Role != RoleAdmin {
		t.Fatalf("unexpected profile: %+v %v", p, ok)
	}
	if dir.calls != 0 || store.inserts != 0 {
		t.Fatalf("existing profile should not provision (dir=%d inserts=%d)", dir.calls, store.inserts)
	}
}

func TestProfileToleratesConcurrentInsert(t *testing.T) {
	store := newStubProfileStore()
	store.insertFn = func(ctx context.Context, p Profile) (Profile, error) {
		// Simulate another request winning the race.
		store.mu.Lock()
		store.profiles[p.ID] = p
		store.mu.Unlock()
		return Profile{}, ErrConflict
	}
	dir := &stubDirectory{users: map[string]identity.User{"u3": {ID: "u3", Email: "c@example.com"}}}
	m := newTestManager(t, store, dir)

	if _, ok := m.Profile(context.Background(), "u3"); !ok {
		t.Fatal("expected retry lookup to find the concurrently created profile")
	}
}

func TestProfileFailuresReportAbsence(t *testing.T) {
	cases := []struct {
		name  string
		store func() *stubProfileStore
		dir   *stubDirectory
	}{
		{
			name: "lookup error",
			store: func() *stubProfileStore {
				s := newStubProfileStore()
				s.getErr = errors.New("connection refused")
				return s
			},
			dir: &stubDirectory{},
		},
		{
			name:  "identity missing",
			store: newStubProfileStore,
			dir:   &stubDirectory{},
		},
		{
			name: "insert fails",
			store: func() *stubProfileStore {
				s := newStubProfileStore()
				s.insertFn = func(ctx context.Context, p Profile) (Profile, error) {
					return Profile{}, errors.New("permission denied")
				}
				return s
			},
			dir: &stubDirectory{users: map[string]identity.User{"u4": {ID: "u4"}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t, tc.store(), tc.dir)
			if p, ok := m.Profile(context.Background(), "u4"); ok {
				t.Fatalf("expected no profile, got %+v", p)
			}
		})
	}
}

func TestProfileConcurrentFirstAccessSingleRow(t *testing.T) {
	store := newStubProfileStore()
	dir := &stubDirectory{users: map[string]identity.User{"u5": {ID: "u5"}}}
	m := newTestManager(t, store, dir)

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := m.Profile(context.Background(), "u5"); ok {
				mu.Lock()
				seen++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if seen != 8 {
		t.Fatalf("expected every caller to get the profile, got %d", seen)
	}
	if len(store.profiles) != 1 {
		t.Fatalf("expected a single profile row, got %d", len(store.profiles))
	}
}

func TestSyncAllUsers(t *testing.T) {
	store := newStubProfileStore()
	store.synced = 3
	m := newTestManager(t, store, &stubDirectory{})
	n, err := m.SyncAllUsers(context.Background())
	if err != nil || n != 3 {
		t.Fatalf("SyncAllUsers = %d, %v", n, err)
	}
}
