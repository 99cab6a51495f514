package auth

import (
	"context"

	"essence.app/internal/identity"
)

// ProfileStore is the lookup/insert surface the lifecycle manager needs.
type ProfileStore interface {
	// GetProfile returns ErrNotFound when no row exists for id.
	GetProfile(ctx context.Context, id string) (Profile, error)
	// InsertProfile returns ErrConflict when a row with the same id exists.
	InsertProfile(ctx context.Context, p Profile) (Profile, error)
	// SyncExistingUsers runs the store-side sync procedure and returns how
	// many profiles it created.
	SyncExistingUsers(ctx context.Context) (int, error)
}

// AdminStore backs the administrative pages and mutators.
type AdminStore interface {
	ListProfiles(ctx context.Context) ([]UserRow, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Profile, error)

	ListGroups(ctx context.Context) ([]Group, error)
	CreateGroup(ctx context.Context, in GroupInput) (Group, error)
	UpdateGroup(ctx context.Context, id string, upd GroupUpdate) (Group, error)
	// DeleteGroup detaches member profiles and removes the group atomically,
	// returning the number of detached profiles. ErrNotFound if the group
	// does not exist.
	DeleteGroup(ctx context.Context, id string) (int, error)
}

// Directory resolves canonical identity records with provider privileges.
type Directory interface {
	AdminGetUser(ctx context.Context, id string) (identity.User, error)
}

// Auditor journals administrative mutations. Implementations must not fail
// the caller.
type Auditor interface {
	Record(ctx context.Context, actionType string, targetModules []string, performedBy string, details map[string]any)
}
