package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"essence.app/internal/auth"
	"essence.app/internal/ids"
	"essence.app/internal/obs"
)

const StatusSuccess = "success"

// Entry is one append-only audit log row.
type Entry struct {
	ID            string         `json:"id"`
	ActionType    string         `json:"action_type"`
	TargetModules []string       `json:"target_modules"`
	PerformedBy   string         `json:"performed_by"`
	Details       map[string]any `json:"details"`
	Timestamp     time.Time      `json:"timestamp"`
	Status        string         `json:"status"`
}

// Store persists audit entries. List returns newest first.
type Store interface {
	AppendAudit(ctx context.Context, e Entry) error
	ListAudit(ctx context.Context, limit int) ([]Entry, error)
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder journals administrative mutations. Record never fails the caller:
// append errors are logged and counted.
type Recorder struct {
	store Store
	now   func() time.Time
}

var _ auth.Auditor = (*Recorder)(nil)

func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit store is required")
	}
	return &Recorder{store: store, now: time.Now}, nil
}

// Record appends an entry with a server timestamp and status "success".
func (r *Recorder) Record(ctx context.Context, actionType string, targetModules []string, performedBy string, details map[string]any) {
	e := Entry{
		ID:            ids.New(),
		ActionType:    strings.TrimSpace(actionType),
		TargetModules: append([]string(nil), targetModules...),
		PerformedBy:   performedBy,
		Details:       copyDetails(details),
		Timestamp:     r.now().UTC(),
		Status:        StatusSuccess,
	}
	if e.TargetModules == nil {
		e.TargetModules = []string{}
	}

	log := obs.Component("audit")
	ev := log.Info()
	if err := r.store.AppendAudit(ctx, e); err != nil {
		obs.AuditWrite("failed")
		ev = log.Error().Err(err)
	} else {
		obs.AuditWrite(StatusSuccess)
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		ev = ev.Str("user_id", userID)
	}
	ev.Str("type", "audit").
		Str("event", e.ActionType).
		Strs("target_modules", e.TargetModules).
		Str("performed_by", e.PerformedBy).
		Fields(map[string]any{"fields": e.Details}).
		Msg("audit")
}

// Recent returns up to limit entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return r.store.ListAudit(ctx, limit)
}

func copyDetails(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
