package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"essence.app/internal/obs"
)

// Action types journaled by the admin back-office.
const (
	ActionUpdateUser    = "UPDATE_USER"
	ActionSuspendUser   = "SUSPEND_USER"
	ActionUnsuspendUser = "UNSUSPEND_USER"
	ActionCreateGroup   = "CREATE_GROUP"
	ActionUpdateGroup   = "UPDATE_GROUP"
	ActionDeleteGroup   = "DELETE_GROUP"
	ActionSyncUsers     = "SYNC_USERS"
)

const (
	moduleUsers  = "users"
	moduleGroups = "groups"
)

const recentUsers = 5

// Stats summarizes the user base for the admin overview.
type Stats struct {
	TotalUsers     int   `json:"total_users"`
	ActiveUsers    int   `json:"active_users"`
	SuspendedUsers int   `json:"suspended_users"`
	AdminUsers     int   `json:"admin_users"`
	TotalGroups    int   `json:"total_groups"`
	TotalBalance   int64 `json:"total_balance"`
}

type Overview struct {
	Stats       Stats     `json:"stats"`
	RecentUsers []UserRow `json:"recent_users"`
}

// AdminService implements the back-office reads and mutators. Every
// successful mutation is followed by exactly one audit record.
type AdminService struct {
	store    AdminStore
	profiles *ProfileManager
	audit    Auditor
	log      *zerolog.Logger
}

func NewAdminService(store AdminStore, profiles *ProfileManager, auditor Auditor) (*AdminService, error) {
	if store == nil {
		return nil, errors.New("auth: admin store is required")
	}
	if profiles == nil {
		return nil, errors.New("auth: profile manager is required")
	}
	if auditor == nil {
		return nil, errors.New("auth: auditor is required")
	}
	return &AdminService{store: store, profiles: profiles, audit: auditor, log: obs.Component("admin")}, nil
}

func (s *AdminService) record(ctx context.Context, action string, modules []string, actor string, details map[string]any) {
	s.log.Info().Str("action", action).Str("performed_by", actor).Msg("admin mutation")
	s.audit.Record(ctx, action, modules, actor, details)
}

// Overview loads users and groups concurrently and derives the dashboard stats.
func (s *AdminService) Overview(ctx context.Context) (Overview, error) {
	var (
		users  []UserRow
		groups []Group
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.store.ListProfiles(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = s.store.ListGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Overview{}, err
	}

	var st Stats
	st.TotalUsers = len(users)
	st.TotalGroups = len(groups)
	for _, u := range users {
		if u.IsSuspended {
			st.SuspendedUsers++
		} else {
			st.ActiveUsers++
		}
		if IsAdministrator(u.Role) {
			st.AdminUsers++
		}
		st.TotalBalance += u.Balance
	}
	recent := users
	if len(recent) > recentUsers {
		recent = recent[:recentUsers]
	}
	return Overview{Stats: st, RecentUsers: recent}, nil
}

// ListUsers returns users newest first, narrowed by f, together with all
// groups for the assignment picker.
func (s *AdminService) ListUsers(ctx context.Context, f UserFilter) ([]UserRow, []Group, error) {
	var (
		users  []UserRow
		groups []Group
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		users, err = s.store.ListProfiles(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		groups, err = s.store.ListGroups(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return FilterUsers(users, f), groups, nil
}

func (s *AdminService) ListGroups(ctx context.Context) ([]Group, error) {
	return s.store.ListGroups(ctx)
}

// UpdateProfile applies a partial update to the profile id.
func (s *AdminService) UpdateProfile(ctx context.Context, actor, id string, upd ProfileUpdate) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	if err := normalizeProfileUpdate(&upd); err != nil {
		return Profile{}, err
	}
	p, err := s.store.UpdateProfile(ctx, id, upd)
	if err != nil {
		return Profile{}, err
	}
	s.record(ctx, ActionUpdateUser, []string{moduleUsers}, actor, map[string]any{
		"userId":  id,
		"updates": upd.Fields(),
	})
	return p, nil
}

// SetSuspended flips the suspension flag on a profile.
func (s *AdminService) SetSuspended(ctx context.Context, actor, id string, suspended bool) (Profile, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	p, err := s.store.UpdateProfile(ctx, id, ProfileUpdate{IsSuspended: &suspended})
	if err != nil {
		return Profile{}, err
	}
	action := ActionUnsuspendUser
	if suspended {
		action = ActionSuspendUser
	}
	s.record(ctx, action, []string{moduleUsers}, actor, map[string]any{"userId": id})
	return p, nil
}

func (s *AdminService) CreateGroup(ctx context.Context, actor string, in GroupInput) (Group, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = GroupStandard
	}
	if !KnownGroupType(in.Type) {
		return Group{}, fmt.Errorf("%w: unknown group type %q", ErrInvalidInput, in.Type)
	}
	g, err := s.store.CreateGroup(ctx, in)
	if err != nil {
		return Group{}, err
	}
	s.record(ctx, ActionCreateGroup, []string{moduleGroups}, actor, map[string]any{
		"groupData": map[string]any{"name": in.Name, "description": in.Description, "type": string(in.Type)},
	})
	return g, nil
}

func (s *AdminService) UpdateGroup(ctx context.Context, actor, id string, upd GroupUpdate) (Group, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Group{}, fmt.Errorf("%w: groupId is required", ErrInvalidInput)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Group{}, fmt.Errorf("%w: group name cannot be empty", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if upd.Description != nil {
		desc := strings.TrimSpace(*upd.Description)
		upd.Description = &desc
	}
	if upd.Type != nil && !KnownGroupType(*upd.Type) {
		return Group{}, fmt.Errorf("%w: unknown group type %q", ErrInvalidInput, *upd.Type)
	}
	if upd.Name == nil && upd.Description == nil && upd.Type == nil {
		return Group{}, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	g, err := s.store.UpdateGroup(ctx, id, upd)
	if err != nil {
		return Group{}, err
	}
	s.record(ctx, ActionUpdateGroup, []string{moduleGroups}, actor, map[string]any{
		"groupId": id,
		"updates": upd.Fields(),
	})
	return g, nil
}

// DeleteGroup detaches every member profile and removes the group. It
// returns how many profiles were detached.
func (s *AdminService) DeleteGroup(ctx context.Context, actor, id string) (int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("%w: groupId is required", ErrInvalidInput)
	}
	n, err := s.store.DeleteGroup(ctx, id)
	if err != nil {
		return 0, err
	}
	s.record(ctx, ActionDeleteGroup, []string{moduleGroups}, actor, map[string]any{
		"groupId":           id,
		"detached_profiles": n,
	})
	return n, nil
}

// SyncUsers backfills missing profiles and journals the count.
func (s *AdminService) SyncUsers(ctx context.Context, actor string) (int, error) {
	n, err := s.profiles.SyncAllUsers(ctx)
	if err != nil {
		return 0, err
	}
	s.record(ctx, ActionSyncUsers, []string{moduleUsers}, actor, map[string]any{"syncedCount": n})
	return n, nil
}

func normalizeProfileUpdate(upd *ProfileUpdate) error {
	if upd.Empty() {
		return fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if upd.FullName != nil {
		name := strings.TrimSpace(*upd.FullName)
		upd.FullName = &name
	}
	if upd.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*upd.Email))
		if _, err := mail.ParseAddress(email); err != nil {
			return fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
		}
		upd.Email = &email
	}
	if upd.Role != nil && !KnownRole(*upd.Role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *upd.Role)
	}
	if upd.Balance != nil && *upd.Balance < 0 {
		return fmt.Errorf("%w: balance cannot be negative", ErrInvalidInput)
	}
	if upd.GroupID != nil {
		gid := strings.TrimSpace(*upd.GroupID)
		upd.GroupID = &gid
	}
	return nil
}
