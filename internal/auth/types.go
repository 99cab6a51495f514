package auth

import (
	"strings"
	"time"
)

// Role is the profile role string exactly as stored.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "Super Admin"
	// RoleModerator only affects navigation visibility; no server gate admits it.
	RoleModerator Role = "moderator"
)

// KnownRole reports whether r is one of the stored role values.
func KnownRole(r Role) bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleModerator:
		return true
	}
	return false
}

type GroupType string

const (
	GroupStandard   GroupType = "standard"
	GroupPremium    GroupType = "premium"
	GroupAdmin      GroupType = "admin"
	GroupSuperAdmin GroupType = "super_admin"
)

func KnownGroupType(t GroupType) bool {
	switch t {
	case GroupStandard, GroupPremium, GroupAdmin, GroupSuperAdmin:
		return true
	}
	return false
}

// Identity is the authenticated account behind a session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Profile is the application record for an identity; ID equals the identity id.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name,omitempty"`
	Role        Role      `json:"role"`
	Balance     int64     `json:"balance"`
	IsSuspended bool      `json:"is_suspended"`
	GroupID     string    `json:"group_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GroupRef is the group summary joined onto user listings.
type GroupRef struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type GroupType `json:"type"`
}

// UserRow is a profile with its group summary, as listed on admin pages.
type UserRow struct {
	Profile
	Group *GroupRef `json:"groups,omitempty"`
}

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        GroupType `json:"type"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileUpdate is a partial profile update; nil fields are left untouched.
// A non-nil GroupID pointing at "" clears the group membership.
type ProfileUpdate struct {
	FullName    *string
	Email       *string
	Role        *Role
	Balance     *int64
	IsSuspended *bool
	GroupID     *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.FullName == nil && u.Email == nil && u.Role == nil &&
		u.Balance == nil && u.IsSuspended == nil && u.GroupID == nil
}

// Fields renders the update for audit details.
func (u ProfileUpdate) Fields() map[string]any {
	out := map[string]any{}
	if u.FullName != nil {
		out["full_name"] = *u.FullName
	}
	if u.Email != nil {
		out["email"] = *u.Email
	}
	if u.Role != nil {
		out["role"] = string(*u.Role)
	}
	if u.Balance != nil {
		out["balance"] = *u.Balance
	}
	if u.IsSuspended != nil {
		out["is_suspended"] = *u.IsSuspended
	}
	if u.GroupID != nil {
		if *u.GroupID == "" {
			out["group_id"] = nil
		} else {
			out["group_id"] = *u.GroupID
		}
	}
	return out
}

type GroupInput struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        GroupType `json:"type"`
}

type GroupUpdate struct {
	Name        *string
	Description *string
	Type        *GroupType
}

func (u GroupUpdate) Fields() map[string]any {
	out := map[string]any{}
	if u.Name != nil {
		out["name"] = *u.Name
	}
	if u.Description != nil {
		out["description"] = *u.Description
	}
	if u.Type != nil {
		out["type"] = string(*u.Type)
	}
	return out
}

// UserFilter narrows a user listing the way the admin users page does.
type UserFilter struct {
	Search string
	Role   Role
	Status string // "", "active" or "suspended"
}

// FilterUsers applies f to users, preserving order.
func FilterUsers(users []UserRow, f UserFilter) []UserRow {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]UserRow, 0, len(users))
	for _, u := range users {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.FullName), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		switch f.Status {
		case "active":
			if u.IsSuspended {
				continue
			}
		case "suspended":
			if !u.IsSuspended {
				continue
			}
		}
		out = append(out, u)
	}
	return out
}
