package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"essence.app/internal/auth"
)

const profileColumns = `id, email, full_name, role, balance, is_suspended, group_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner, extra ...any) (auth.Profile, error) {
	var (
		p        auth.Profile
		fullName sql.NullString
		groupID  sql.NullString
		role     string
	)
	dest := append([]any{&p.ID, &p.Email, &fullName, &role, &p.Balance, &p.IsSuspended, &groupID, &p.CreatedAt, &p.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return auth.Profile{}, err
	}
	p.Role = auth.Role(role)
	p.FullName = fullName.String
	p.GroupID = groupID.String
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (auth.Profile, error) {
	if s.db == nil {
		return auth.Profile{}, errNoDB
	}
	p, err := scanProfile(s.db.QueryRowContext(ctx, `select `+profileColumns+` from profiles where id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Profile{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Profile{}, err
	}
	return p, nil
}

func (s *Store) InsertProfile(ctx context.Context, p auth.Profile) (auth.Profile, error) {
	if s.db == nil {
		return auth.Profile{}, errNoDB
	}
	role := p.Role
	if role == "" {
		role = auth.RoleUser
	}
	created := sql.NullTime{Time: p.CreatedAt, Valid: !p.CreatedAt.IsZero()}
	row := s.db.QueryRowContext(ctx, `
		insert into profiles (id, email, full_name, role, balance, is_suspended, created_at)
		values ($1, $2, $3, $4, $5, $6, coalesce($7, now()))
		returning `+profileColumns,
		p.ID, p.Email, nullIfEmpty(p.FullName), string(role), p.Balance, p.IsSuspended, created)
	out, err := scanProfile(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Profile{}, auth.ErrConflict
		}
		return auth.Profile{}, err
	}
	return out, nil
}

// SyncExistingUsers calls the store-side procedure that backfills profiles.
func (s *Store) SyncExistingUsers(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	var n sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `select sync_existing_users()`).Scan(&n); err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]auth.UserRow, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select p.id, p.email, p.full_name, p.role, p.balance, p.is_suspended, p.group_id, p.created_at, p.updated_at,
		       g.id, g.name, g.type
		from profiles p
		left join groups g on g.id = p.group_id
		order by p.created_at desc, p.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.UserRow
	for rows.Next() {
		var gid, gname, gtype sql.NullString
		p, err := scanProfile(rows, &gid, &gname, &gtype)
		if err != nil {
			return nil, err
		}
		row := auth.UserRow{Profile: p}
		if gid.Valid {
			row.Group = &auth.GroupRef{ID: gid.String, Name: gname.String, Type: auth.GroupType(gtype.String)}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if out == nil {
		out = []auth.UserRow{}
	}
	return out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd auth.ProfileUpdate) (auth.Profile, error) {
	if s.db == nil {
		return auth.Profile{}, errNoDB
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	add := func(col string, v any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, v)
		idx++
	}
	if upd.FullName != nil {
		add("full_name", nullIfEmpty(*upd.FullName))
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.Role != nil {
		add("role", string(*upd.Role))
	}
	if upd.Balance != nil {
		add("balance", *upd.Balance)
	}
	if upd.IsSuspended != nil {
		add("is_suspended", *upd.IsSuspended)
	}
	if upd.GroupID != nil {
		add("group_id", nullIfEmpty(*upd.GroupID))
	}
	if len(sets) == 0 {
		return s.GetProfile(ctx, id)
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update profiles set %s where id = $%d returning %s`, strings.Join(sets, ", "), idx, profileColumns)
	args = append(args, id)

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.Profile{}, auth.ErrNotFound
		}
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrForeignKeyViolation:
				return auth.Profile{}, fmt.Errorf("%w: unknown group", auth.ErrInvalidInput)
			case pgErrUniqueViolation:
				return auth.Profile{}, auth.ErrConflict
			}
		}
		return auth.Profile{}, err
	}
	return p, nil
}
