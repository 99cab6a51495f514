package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"essence.app/internal/obs"
)

// ProfileManager ensures every authenticated identity has exactly one profile.
type ProfileManager struct {
	store ProfileStore
	dir   Directory
	log   *zerolog.Logger
	now   func() time.Time
}

func NewProfileManager(store ProfileStore, dir Directory) (*ProfileManager, error) {
	if store == nil {
		return nil, errors.New("auth: profile store is required")
	}
	if dir == nil {
		return nil, errors.New("auth: identity directory is required")
	}
	return &ProfileManager{store: store, dir: dir, log: obs.Component("profiles"), now: time.Now}, nil
}

// Profile returns the profile for id, creating it on first access. Any
// failure is logged and reported as absence.
func (m *ProfileManager) Profile(ctx context.Context, id string) (Profile, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Profile{}, false
	}
	p, err := m.store.GetProfile(ctx, id)
	if err == nil {
		return p, true
	}
	if !errors.Is(err, ErrNotFound) {
		m.log.Error().Err(err).Str("user_id", id).Msg("profile lookup failed")
		return Profile{}, false
	}

	m.log.Info().Str("user_id", id).Msg("profile missing, provisioning")
	if err := m.provision(ctx, id); err != nil {
		obs.ProfileProvisioned("failed")
		m.log.Error().Err(err).Str("user_id", id).Msg("profile provisioning failed")
		return Profile{}, false
	}

	p, err = m.store.GetProfile(ctx, id)
	if err != nil {
		m.log.Error().Err(err).Str("user_id", id).Msg("profile lookup after provisioning failed")
		return Profile{}, false
	}
	return p, true
}

func (m *ProfileManager) provision(ctx context.Context, id string) error {
	u, err := m.dir.AdminGetUser(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch identity: %w", err)
	}
	created := u.CreatedAt
	if created.IsZero() {
		created = m.now()
	}
	_, err = m.store.InsertProfile(ctx, Profile{
		ID:        id,
		Email:     u.Email,
		FullName:  u.FullName(),
		Role:      RoleUser,
		CreatedAt: created.UTC(),
		UpdatedAt: m.now().UTC(),
	})
	switch {
	case err == nil:
		obs.ProfileProvisioned("created")
		return nil
	case errors.Is(err, ErrConflict):
		// Another request created it first.
		obs.ProfileProvisioned("conflict")
		return nil
	default:
		return fmt.Errorf("insert profile: %w", err)
	}
}

// SyncAllUsers runs the store-side procedure that backfills profiles for
// identities lacking one.
func (m *ProfileManager) SyncAllUsers(ctx context.Context) (int, error) {
	n, err := m.store.SyncExistingUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("sync existing users: %w", err)
	}
	m.log.Info().Int("synced", n).Msg("profiles synced")
	return n, nil
}
