package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"essence.app/internal/auth"
)

func (a *API) handleAdminOverview(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/admin" && r.URL.Path != "/admin/" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	admin, _ := auth.ProfileFromContext(r.Context())
	ov, err := a.deps.Admin.Overview(r.Context())
	if err != nil {
		a.adminReadFailed(w, r, "overview", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"admin":        admin,
		"stats":        ov.Stats,
		"recent_users": ov.RecentUsers,
	})
}

func (a *API) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		filter := auth.UserFilter{
			Search: q.Get("q"),
			Role:   auth.Role(q.Get("role")),
			Status: q.Get("status"),
		}
		users, groups, err := a.deps.Admin.ListUsers(r.Context(), filter)
		if err != nil {
			a.adminReadFailed(w, r, "users", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users, "groups": groups})
	case http.MethodPost:
		a.userAction(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) userAction(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor := actorID(r)
	userID := form.get("userId")

	var (
		p   auth.Profile
		msg string
	)
	switch form.get("_action") {
	case "updateUser":
		upd, perr := profileUpdateFromForm(form)
		if perr != nil {
			writeError(w, r, http.StatusBadRequest, perr.Error())
			return
		}
		p, err = a.deps.Admin.UpdateProfile(r.Context(), actor, userID, upd)
		msg = "User updated successfully"
	case "suspendUser":
		p, err = a.deps.Admin.SetSuspended(r.Context(), actor, userID, true)
		msg = "User suspended successfully"
	case "unsuspendUser":
		p, err = a.deps.Admin.SetSuspended(r.Context(), actor, userID, false)
		msg = "User unsuspended successfully"
	default:
		writeError(w, r, http.StatusBadRequest, "Invalid action")
		return
	}
	if err != nil {
		a.adminActionFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg, "user": p})
}

// profileUpdateFromForm builds a partial update from the submitted keys. An
// empty group_id detaches the user from its group.
func profileUpdateFromForm(form formValues) (auth.ProfileUpdate, error) {
	var upd auth.ProfileUpdate
	if v, ok := form.lookup("full_name"); ok {
		upd.FullName = &v
	}
	if v, ok := form.lookup("email"); ok && v != "" {
		upd.Email = &v
	}
	if v, ok := form.lookup("role"); ok && v != "" {
		role := auth.Role(v)
		upd.Role = &role
	}
	if v, ok := form.lookup("balance"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return upd, fmt.Errorf("balance must be a whole number, got %q", v)
		}
		upd.Balance = &n
	}
	if v, ok := form.lookup("group_id"); ok {
		upd.GroupID = &v
	}
	if v, ok := form.lookup("is_suspended"); ok {
		b, err := parseBool(v)
		if err != nil {
			return upd, fmt.Errorf("is_suspended must be a boolean, got %q", v)
		}
		upd.IsSuspended = &b
	}
	return upd, nil
}

func (a *API) handleAdminGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := a.deps.Admin.ListGroups(r.Context())
		if err != nil {
			a.adminReadFailed(w, r, "groups", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
	case http.MethodPost:
		a.groupAction(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) groupAction(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	actor := actorID(r)
	ctx := r.Context()

	switch form.get("_action") {
	case "createGroup":
		g, err := a.deps.Admin.CreateGroup(ctx, actor, auth.GroupInput{
			Name:        form.get("name"),
			Description: form.get("description"),
			Type:        auth.GroupType(form.get("type")),
		})
		if err != nil {
			a.adminActionFailed(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Group created successfully", "group": g})
	case "updateGroup":
		var upd auth.GroupUpdate
		if v, ok := form.lookup("name"); ok {
			upd.Name = &v
		}
		if v, ok := form.lookup("description"); ok {
			upd.Description = &v
		}
		if v, ok := form.lookup("type"); ok && v != "" {
			t := auth.GroupType(v)
			upd.Type = &t
		}
		g, err := a.deps.Admin.UpdateGroup(ctx, actor, form.get("groupId"), upd)
		if err != nil {
			a.adminActionFailed(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Group updated successfully", "group": g})
	case "deleteGroup":
		n, err := a.deps.Admin.DeleteGroup(ctx, actor, form.get("groupId"))
		if err != nil {
			a.adminActionFailed(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Group deleted successfully", "detached_profiles": n})
	default:
		writeError(w, r, http.StatusBadRequest, "Invalid action")
	}
}

func (a *API) handleAdminSync(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		admin, _ := auth.ProfileFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"admin": admin})
	case http.MethodPost:
		form, err := readForm(r)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if form.get("_action") != "syncUsers" {
			writeError(w, r, http.StatusBadRequest, "Invalid action")
			return
		}
		n, err := a.deps.Admin.SyncUsers(r.Context(), actorID(r))
		if err != nil {
			a.log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("sync users failed")
			writeError(w, r, http.StatusInternalServerError, "Failed to sync users")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"message":      fmt.Sprintf("Successfully synced %d users from auth.users to profiles table", n),
			"synced_count": n,
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleAdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 50, 1, 200)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := a.deps.Audit.Recent(r.Context(), limit)
	if err != nil {
		a.adminReadFailed(w, r, "audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "limit": limit})
}

func actorID(r *http.Request) string {
	p, _ := auth.ProfileFromContext(r.Context())
	return p.ID
}

func (a *API) adminReadFailed(w http.ResponseWriter, r *http.Request, what string, err error) {
	a.log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msgf("load admin %s failed", what)
	writeError(w, r, http.StatusServiceUnavailable, "Failed to load "+what)
}

func (a *API) adminActionFailed(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		a.log.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("admin action failed")
		writeError(w, r, http.StatusInternalServerError, "Failed to perform action")
	}
}
