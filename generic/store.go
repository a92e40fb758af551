/*
store.go - Persistence ports shared by every entity

PURPOSE:
  Declares the audit persistence contract. Entity stores live with their
  domain (personnel/store.go); the audit log is shared by all of them.

APPEND-ONLY CONTRACT:
  - AppendAudit(): the ONLY write operation
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
*/
package generic

import (
	"context"
	"time"
)

// AuditAppender writes audit entries. Implementations bound to a database
// transaction make the entry commit or roll back with the mutation.
type AuditAppender interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// AuditLog stores and queries audit entries. Also append-only.
type AuditLog interface {
	AuditAppender
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	Action     AuditAction
	EntityType string
	EntityID   string
	Actor      string
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}
