package auth

// IsAdministrator is the single role check behind the admin gate and the
// admin navigation entry.
func IsAdministrator(r Role) bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// CanModerate reports whether moderation tools are shown. Presentation only.
func CanModerate(r Role) bool {
	return IsAdministrator(r) || r == RoleModerator
}

// NavItem is one entry of the signed-in navigation.
type NavItem struct {
	Path  string `json:"path"`
	Label string `json:"label"`
}

// Navigation returns the menu a profile with role r should see.
func Navigation(r Role) []NavItem {
	items := []NavItem{
		{Path: "/dashboard", Label: "Dashboard"},
		{Path: "/marketplace", Label: "Marketplace"},
		{Path: "/activities", Label: "Activities"},
		{Path: "/transactions", Label: "Transactions"},
	}
	if CanModerate(r) {
		items = append(items, NavItem{Path: "/moderation", Label: "Moderation"})
	}
	if IsAdministrator(r) {
		items = append(items, NavItem{Path: "/admin", Label: "Admin"})
	}
	return items
}
