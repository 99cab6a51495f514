package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"essence.app/internal/auth"
	"essence.app/internal/ids"
)

const groupReturning = `id, name, description, type, created_at, updated_at,
	(select count(*) from profiles where group_id = groups.id)`

func scanGroup(row rowScanner) (auth.Group, error) {
	var (
		g    auth.Group
		desc sql.NullString
		typ  string
	)
	if err := row.Scan(&g.ID, &g.Name, &desc, &typ, &g.CreatedAt, &g.UpdatedAt, &g.MemberCount); err != nil {
		return auth.Group{}, err
	}
	g.Description = desc.String
	g.Type = auth.GroupType(typ)
	return g, nil
}

func (s *Store) ListGroups(ctx context.Context) ([]auth.Group, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+groupReturning+`
		from groups
		order by created_at desc, id desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []auth.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) CreateGroup(ctx context.Context, in auth.GroupInput) (auth.Group, error) {
	if s.db == nil {
		return auth.Group{}, errNoDB
	}
	row := s.db.QueryRowContext(ctx, `
		insert into groups (id, name, description, type)
		values ($1, $2, $3, $4)
		returning `+groupReturning,
		ids.New(), in.Name, nullIfEmpty(in.Description), string(in.Type))
	g, err := scanGroup(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.Group{}, auth.ErrConflict
		}
		return auth.Group{}, err
	}
	return g, nil
}

func (s *Store) UpdateGroup(ctx context.Context, id string, upd auth.GroupUpdate) (auth.Group, error) {
	if s.db == nil {
		return auth.Group{}, errNoDB
	}
	var (
		sets []string
		args []any
		idx  = 1
	)
	if upd.Name != nil {
		sets = append(sets, fmt.Sprintf("name = $%d", idx))
		args = append(args, *upd.Name)
		idx++
	}
	if upd.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", idx))
		args = append(args, nullIfEmpty(*upd.Description))
		idx++
	}
	if upd.Type != nil {
		sets = append(sets, fmt.Sprintf("type = $%d", idx))
		args = append(args, string(*upd.Type))
		idx++
	}
	if len(sets) == 0 {
		return auth.Group{}, fmt.Errorf("%w: nothing to update", auth.ErrInvalidInput)
	}
	sets = append(sets, "updated_at = now()")
	query := fmt.Sprintf(`update groups set %s where id = $%d returning %s`, strings.Join(sets, ", "), idx, groupReturning)
	args = append(args, id)

	g, err := scanGroup(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Group{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Group{}, err
	}
	return g, nil
}

// DeleteGroup detaches members and removes the group in one transaction.
func (s *Store) DeleteGroup(ctx context.Context, id string) (int, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update profiles set group_id = null, updated_at = now() where group_id = $1`, id)
	if err != nil {
		return 0, err
	}
	detached, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `delete from groups where id = $1`, id)
	if err != nil {
		return 0, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if aff == 0 {
		return 0, auth.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(detached), nil
}
