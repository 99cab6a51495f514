package auth

import (
	"context"
	"errors"
	"testing"
)

func newTestAdmin(t *testing.T, store *stubAdminStore, profiles *stubProfileStore) (*AdminService, *stubAuditor) {
	t.Helper()
	if profiles == nil {
		profiles = newStubProfileStore()
	}
	pm := newTestManager(t, profiles, &stubDirectory{})
	auditor := &stubAuditor{}
	svc, err := NewAdminService(store, pm, auditor)
	if err != nil {
		t.Fatalf("NewAdminService: %v", err)
	}
	return svc, auditor
}

func TestUpdateProfileBalanceRecordsOneAudit(t *testing.T) {
	current := Profile{ID: "u2", Balance: 100, Role: RoleUser}
	store := &stubAdminStore{
		updateProfileFn: func(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
			if id != "u2" {
				return Profile{}, ErrNotFound
			}
			if upd.Balance != nil {
				current.Balance = *upd.Balance
			}
			return current, nil
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)

	balance := int64(250)
	p, err := svc.UpdateProfile(context.Background(), "admin-1", "u2", ProfileUpdate{Balance: &balance})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if p.Balance != 250 {
		t.Fatalf("expected balance 250, got %d", p.Balance)
	}
	if len(auditor.records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(auditor.records))
	}
	rec := auditor.records[0]
	if rec.action != ActionUpdateUser || rec.actor != "admin-1" || len(rec.modules) != 1 || rec.modules[0] != "users" {
		t.Fatalf("unexpected audit record: %+v", rec)
	}
	updates, ok := rec.details["updates"].(map[string]any)
	if !ok || updates["balance"] != int64(250) {
		t.Fatalf("unexpected audit details: %v", rec.details)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	store := &stubAdminStore{
		updateProfileFn: func(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
			t.Fatal("store must not be called for invalid input")
			return Profile{}, nil
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)

	negative := int64(-5)
	badRole := Role("root")
	badEmail := "not-an-email"
	cases := map[string]ProfileUpdate{
		"empty":         {},
		"negative":      {Balance: &negative},
		"unknown role":  {Role: &badRole},
		"invalid email": {Email: &badEmail},
	}
	for name, upd := range cases {
		if _, err := svc.UpdateProfile(context.Background(), "admin-1", "u2", upd); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	if _, err := svc.UpdateProfile(context.Background(), "admin-1", " ", ProfileUpdate{Balance: new(int64)}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for blank id, got %v", err)
	}
	if len(auditor.records) != 0 {
		t.Fatalf("rejected updates must not be audited: %+v", auditor.records)
	}
}

func TestUpdateProfileFailureNotAudited(t *testing.T) {
	store := &stubAdminStore{
		updateProfileFn: func(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
			return Profile{}, ErrNotFound
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)
	suspended := true
	if _, err := svc.UpdateProfile(context.Background(), "admin-1", "missing", ProfileUpdate{IsSuspended: &suspended}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(auditor.records) != 0 {
		t.Fatalf("failed update must not be audited")
	}
}

func TestSetSuspendedActions(t *testing.T) {
	store := &stubAdminStore{
		updateProfileFn: func(ctx context.Context, id string, upd ProfileUpdate) (Profile, error) {
			return Profile{ID: id, IsSuspended: *upd.IsSuspended}, nil
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)

	if p, err := svc.SetSuspended(context.Background(), "admin-1", "u2", true); err != nil || !p.IsSuspended {
		t.Fatalf("suspend: %+v %v", p, err)
	}
	if p, err := svc.SetSuspended(context.Background(), "admin-1", "u2", false); err != nil || p.IsSuspended {
		t.Fatalf("unsuspend: %+v %v", p, err)
	}
	if len(auditor.records) != 2 ||
		auditor.records[0].action != ActionSuspendUser ||
		auditor.records[1].action != ActionUnsuspendUser {
		t.Fatalf("unexpected audit records: %+v", auditor.records)
	}
}

func TestCreateGroupDefaultsAndValidation(t *testing.T) {
	var got GroupInput
	store := &stubAdminStore{
		createGroupFn: func(ctx context.Context, in GroupInput) (Group, error) {
			got = in
			return Group{ID: "g1", Name: in.Name, Type: in.Type}, nil
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)

	g, err := svc.CreateGroup(context.Background(), "admin-1", GroupInput{Name: "  Regulars "})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if got.Name != "Regulars" || got.Type != GroupStandard || g.MemberCount != 0 {
		t.Fatalf("unexpected group: input=%+v group=%+v", got, g)
	}
	if _, err := svc.CreateGroup(context.Background(), "admin-1", GroupInput{Name: "X", Type: "gold"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
	if _, err := svc.CreateGroup(context.Background(), "admin-1", GroupInput{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing name, got %v", err)
	}
	if len(auditor.records) != 1 || auditor.records[0].action != ActionCreateGroup || auditor.records[0].modules[0] != "groups" {
		t.Fatalf("unexpected audit records: %+v", auditor.records)
	}
}

func TestUpdateGroup(t *testing.T) {
	store := &stubAdminStore{
		updateGroupFn: func(ctx context.Context, id string, upd GroupUpdate) (Group, error) {
			return Group{ID: id, Name: *upd.Name, Type: GroupPremium}, nil
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)
	name := "VIPs"
	g, err := svc.UpdateGroup(context.Background(), "admin-1", "g1", GroupUpdate{Name: &name})
	if err != nil || g.Name != "VIPs" {
		t.Fatalf("UpdateGroup: %+v %v", g, err)
	}
	if _, err := svc.UpdateGroup(context.Background(), "admin-1", "g1", GroupUpdate{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty update, got %v", err)
	}
	if len(auditor.records) != 1 || auditor.records[0].details["groupId"] != "g1" {
		t.Fatalf("unexpected audit records: %+v", auditor.records)
	}
}

func TestDeleteGroupReportsDetached(t *testing.T) {
	store := &stubAdminStore{
		deleteGroupFn: func(ctx context.Context, id string) (int, error) {
			if id == "gone" {
				return 0, ErrNotFound
			}
			return 4, nil
		},
	}
	svc, auditor := newTestAdmin(t, store, nil)

	n, err := svc.DeleteGroup(context.Background(), "admin-1", "g1")
	if err != nil || n != 4 {
		t.Fatalf("DeleteGroup = %d, %v", n, err)
	}
	if _, err := svc.DeleteGroup(context.Background(), "admin-1", "gone"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(auditor.records) != 1 || auditor.records[0].action != ActionDeleteGroup {
		t.Fatalf("unexpected audit records: %+v", auditor.records)
	}
}

func TestSyncUsersAudited(t *testing.T) {
	profiles := newStubProfileStore()
	profiles.synced = 3
	svc, auditor := newTestAdmin(t, &stubAdminStore{}, profiles)

	n, err := svc.SyncUsers(context.Background(), "admin-1")
	if err != nil || n != 3 {
		t.Fatalf("SyncUsers = %d, %v", n, err)
	}
	if len(auditor.records) != 1 || auditor.records[0].details["syncedCount"] != 3 {
		t.Fatalf("unexpected audit records: %+v", auditor.records)
	}
}

func TestOverviewStats(t *testing.T) {
	store := &stubAdminStore{
		profiles: []UserRow{
			{Profile: Profile{ID: "1", Role: RoleSuperAdmin, Balance: 10}},
			{Profile: Profile{ID: "2", Role: RoleAdmin, Balance: 20, IsSuspended: true}},
			{Profile: Profile{ID: "3", Role: RoleModerator, Balance: 30}},
			{Profile: Profile{ID: "4", Role: RoleUser}},
			{Profile: Profile{ID: "5", Role: RoleUser}},
			{Profile: Profile{ID: "6", Role: RoleUser, Balance: 40}},
		},
		groups: []Group{{ID: "g1"}, {ID: "g2"}},
	}
	svc, _ := newTestAdmin(t, store, nil)

	ov, err := svc.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	want := Stats{TotalUsers: 6, ActiveUsers: 5, SuspendedUsers: 1, AdminUsers: 2, TotalGroups: 2, TotalBalance: 100}
	if ov.Stats != want {
		t.Fatalf("stats = %+v, want %+v", ov.Stats, want)
	}
	if len(ov.RecentUsers) != 5 || ov.RecentUsers[0].ID != "1" {
		t.Fatalf("unexpected recent users: %+v", ov.RecentUsers)
	}
}

func TestOverviewPropagatesReadErrors(t *testing.T) {
	svc, _ := newTestAdmin(t, &stubAdminStore{listErr: errors.New("timeout")}, nil)
	if _, err := svc.Overview(context.Background()); err == nil {
		t.Fatal("expected read error")
	}
	if _, _, err := svc.ListUsers(context.Background(), UserFilter{}); err == nil {
		t.Fatal("expected read error")
	}
}
