// ABOUTME: Audit log entity and store methods for tracking administrative actions
// ABOUTME: Records which operator restarted the server or touched mods, and when

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditAction is something an operator did through the dashboard.
type AuditAction string

const (
	AuditRecoverServer   AuditAction = "recover_server"
	AuditEnableMod       AuditAction = "enable_mod"
	AuditDisableMod      AuditAction = "disable_mod"
	AuditDeleteMod       AuditAction = "delete_mod"
	AuditSendMessage     AuditAction = "send_message"
	AuditSetDay          AuditAction = "set_day"
	AuditCreatePrincipal AuditAction = "create_principal"
	AuditRevokePrincipal AuditAction = "revoke_principal"
	AuditCreateToken     AuditAction = "create_token"
)

var auditActions = []AuditAction{
	AuditRecoverServer,
	AuditEnableMod,
	AuditDisableMod,
	AuditDeleteMod,
	AuditSendMessage,
	AuditSetDay,
	AuditCreatePrincipal,
	AuditRevokePrincipal,
	AuditCreateToken,
}

// Valid reports whether a is a known audit action.
func (a AuditAction) Valid() bool {
	return slices.Contains(auditActions, a)
}

// AuditTarget is the kind of resource an action touched.
type AuditTarget string

const (
	TargetServer    AuditTarget = "server"    // TargetID is the systemd unit
	TargetMod       AuditTarget = "mod"       // TargetID is the jar filename
	TargetAgent     AuditTarget = "agent"     // the in-game agent
	TargetPrincipal AuditTarget = "principal" // TargetID is the principal ID
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID               string
	ActorPrincipalID string // empty when auth is disabled
	Action           AuditAction
	TargetType       AuditTarget
	TargetID         string
	Timestamp        time.Time
	Detail           map[string]any
}

// AuditFilter narrows ListAuditLog. Nil fields match everything.
type AuditFilter struct {
	Since            *time.Time
	Until            *time.Time
	ActorPrincipalID *string
	Action           *AuditAction
	TargetType       *AuditTarget
	TargetID         *string
	Limit            int // default DefaultAuditLimit, capped at MaxAuditLimit
}

const (
	DefaultAuditLimit = 100
	MaxAuditLimit     = 1000
)

// where renders the filter as a WHERE clause and its arguments.
func (f AuditFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		conds = append(conds, cond)
		args = append(args, arg)
	}

	if f.Since != nil {
		add("ts >= ?", f.Since.UTC().Format(time.RFC3339))
	}
	if f.Until != nil {
		add("ts <= ?", f.Until.UTC().Format(time.RFC3339))
	}
	if f.ActorPrincipalID != nil {
		add("actor_principal_id = ?", *f.ActorPrincipalID)
	}
	if f.Action != nil {
		add("action = ?", string(*f.Action))
	}
	if f.TargetType != nil {
		add("target_type = ?", string(*f.TargetType))
	}
	if f.TargetID != nil {
		add("target_id = ?", *f.TargetID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// AppendAuditLog writes e, filling in ID and Timestamp when unset.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("unknown audit action %q", e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detail any
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		detail = string(data)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (audit_id, actor_principal_id, action, target_type, target_id, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ActorPrincipalID, e.Action, e.TargetType, e.TargetID,
		e.Timestamp.UTC().Format(time.RFC3339), detail)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("audit entry written",
		"action", e.Action,
		"actor", e.ActorPrincipalID,
		"target", string(e.TargetType)+"/"+e.TargetID,
	)
	return nil
}

// ListAuditLog returns entries matching f, newest first. Entries written in
// the same second come back in reverse insertion order.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := f.Limit
	switch {
	case limit <= 0:
		limit = DefaultAuditLimit
	case limit > MaxAuditLimit:
		limit = MaxAuditLimit
	}

	where, args := f.where()
	query := `SELECT audit_id, actor_principal_id, action, target_type, target_id, ts, detail_json
		FROM audit_log` + where + ` ORDER BY ts DESC, rowid DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var (
			e      AuditEntry
			ts     string
			detail *string
		)
		if err := rows.Scan(&e.ID, &e.ActorPrincipalID, &e.Action, &e.TargetType, &e.TargetID, &ts, &detail); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339, ts); err != nil {
			return nil, fmt.Errorf("parsing audit timestamp %q: %w", ts, err)
		}
		if detail != nil {
			if err := json.Unmarshal([]byte(*detail), &e.Detail); err != nil {
				return nil, fmt.Errorf("decoding audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}
	return entries, nil
}
