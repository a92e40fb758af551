package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/warp/personnel-engine/generic"
)

// =============================================================================
// AUDIT LOG (generic.AuditLog interface) - append-only
// =============================================================================

// AppendAudit adds one entry. Entries are never updated or deleted.
func (c *conn) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	before, err := encodeSnapshot(e.Before)
	if err != nil {
		return err
	}
	after, err := encodeSnapshot(e.After)
	if err != nil {
		return err
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO audit_log
		(id, action, entity_type, entity_id, actor, before_json, after_json, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Action), e.EntityType, e.EntityID, e.Actor,
		before, after, e.Description, formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// QueryAudit returns matching entries, newest first.
func (c *conn) QueryAudit(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	where := []string{"1=1"}
	var args []any
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, f.EntityType)
	}
	if f.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, f.EntityID)
	}
	if f.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, f.Actor)
	}
	if f.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*f.From))
	}
	if f.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(*f.To))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, action, entity_type, entity_id, actor, before_json, after_json, description, created_at
		FROM audit_log
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e             generic.AuditEntry
			action        string
			before, after sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &e.Actor,
			&before, &after, &e.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = generic.AuditAction(action)
		e.Timestamp = parseTime(createdAt)
		e.Before = decodeSnapshot(before)
		e.After = decodeSnapshot(after)
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeSnapshot(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode audit snapshot: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSnapshot(ns sql.NullString) map[string]any {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil
	}
	return m
}
