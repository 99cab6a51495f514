package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"essence.app/internal/audit"
)

func (s *Store) AppendAudit(ctx context.Context, e audit.Entry) error {
	if s.db == nil {
		return errNoDB
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs (id, action_type, target_modules, performed_by, details, timestamp, status)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.ActionType, pq.Array(e.TargetModules), e.PerformedBy, details, e.Timestamp, e.Status)
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, action_type, target_modules, performed_by, details, timestamp, status
		from audit_logs
		order by timestamp desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []audit.Entry{}
	for rows.Next() {
		var (
			e       audit.Entry
			modules []string
			raw     []byte
		)
		if err := rows.Scan(&e.ID, &e.ActionType, pq.Array(&modules), &e.PerformedBy, &raw, &e.Timestamp, &e.Status); err != nil {
			return nil, err
		}
		e.TargetModules = modules
		e.Details = map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Details); err != nil {
				return nil, fmt.Errorf("decode details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
