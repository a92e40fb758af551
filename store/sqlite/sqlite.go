/*
Package sqlite provides a SQLite-backed implementation of the personnel
persistence boundary.

PURPOSE:
  Implements personnel.Store (and through it generic.AuditLog) using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  personnel.Store:  records, internships, roles, assignments, units, conversions
  personnel.Tx:     the same inside one database transaction
  generic.AuditLog: append-only audit trail

UNIQUENESS (final authority, checked at commit):
  personnel.identifier                 primary key
  substr(identifier, 17)               live records only (display label suffix)
  personnel.email                      live records only
  roles.name                           active live roles only
  org_units(axis, name)                live units only
  assignments(personnel_id, role_id)   live assignments only

  Violations are mapped to generic.ErrDuplicateIdentifier or
  *generic.DuplicateFieldError by mapUniqueError.

CASCADES:
  Foreign keys are declared WITHOUT ON DELETE CASCADE. Purges delete
  dependent rows explicitly (personnel.Service), so a forgotten dependent
  fails the transaction instead of vanishing silently.

CONCURRENCY:
  WithTx holds a writer mutex: one write transaction at a time per process.
  Readers outside a transaction use the pool directly (WAL mode lets them
  proceed while a write is in flight). In-memory databases are pinned to a
  single connection since every new connection would see an empty database.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on audit_log
  - No UPDATE or DELETE statements on conversions

USAGE:
  store, err := sqlite.New("./data/personnel.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := personnel.NewService(store, generic.SystemClock{})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - personnel/store.go: Interface definitions
  - generic/store.go: Audit log interface
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// Store implements personnel.Store using SQLite.
type Store struct {
	*conn
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := newWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// newWithDB wraps an already opened database without migrating it.
func newWithDB(db *sql.DB) *Store {
	return &Store{conn: &conn{q: db}, db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Organizational units (two axes: DOMAIN, DIVISION)
	CREATE TABLE IF NOT EXISTS org_units (
		id TEXT PRIMARY KEY,
		axis TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_units_axis_name_live
		ON org_units(axis, name) WHERE deleted_at IS NULL;

	-- Personnel records
	CREATE TABLE IF NOT EXISTS personnel (
		identifier TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		status TEXT NOT NULL,
		domain_id TEXT REFERENCES org_units(id),
		division_id TEXT REFERENCES org_units(id),
		join_date TEXT NOT NULL,
		end_date TEXT,
		converted_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	-- CRITICAL: display labels resolve by the last 10 identifier characters,
	-- so the suffix must be unique among live records
	CREATE UNIQUE INDEX IF NOT EXISTS idx_personnel_suffix_live
		ON personnel(substr(identifier, 17)) WHERE deleted_at IS NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_personnel_email_live
		ON personnel(email) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_personnel_category_status
		ON personnel(category, status);
	CREATE INDEX IF NOT EXISTS idx_personnel_created_at
		ON personnel(created_at DESC);

	-- Internship tracking (one-to-one with INTERN personnel)
	CREATE TABLE IF NOT EXISTS internships (
		personnel_id TEXT PRIMARY KEY REFERENCES personnel(identifier),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		extensions INTEGER NOT NULL DEFAULT 0,
		override_reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path for the expiry sweep
	CREATE INDEX IF NOT EXISTS idx_internships_status_end
		ON internships(status, end_date);

	-- Roles
	CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		clearance INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_roles_name_live
		ON roles(name) WHERE active = 1 AND deleted_at IS NULL;

	-- Role assignments (soft-removed, hard-deleted only by purge)
	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		personnel_id TEXT NOT NULL REFERENCES personnel(identifier),
		role_id TEXT NOT NULL REFERENCES roles(id),
		assigned_by TEXT NOT NULL,
		assigned_at TEXT NOT NULL,
		removed_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_live
		ON assignments(personnel_id, role_id) WHERE removed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_assignments_role
		ON assignments(role_id);

	-- Conversion history (append-only, survives purge)
	CREATE TABLE IF NOT EXISTS conversions (
		id TEXT PRIMARY KEY,
		personnel_id TEXT NOT NULL,
		from_category TEXT NOT NULL,
		to_category TEXT NOT NULL,
		roles_json TEXT NOT NULL,
		converted_by TEXT NOT NULL,
		converted_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_personnel
		ON conversions(personnel_id);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		before_json TEXT,
		after_json TEXT,
		description TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_type, entity_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created_at
		ON audit_log(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_action
		ON audit_log(action);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (personnel.Store interface)
// =============================================================================

// WithTx executes fn within a database transaction. Any error returned by fn
// rolls back every write made through its Tx, audit entries included.
func (s *Store) WithTx(ctx context.Context, fn func(tx personnel.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs every query of the store against either the pool or a
// transaction.
type conn struct {
	q querier
}

var (
	_ personnel.Store  = (*Store)(nil)
	_ personnel.Tx     = (*conn)(nil)
	_ generic.AuditLog = (*conn)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

// timestampLayout is fixed-width so stored timestamps sort lexicographically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func formatDate(tp generic.TimePoint) sql.NullString {
	if tp.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: tp.String(), Valid: true}
}

func parseDate(ns sql.NullString) generic.TimePoint {
	if !ns.Valid || ns.String == "" {
		return generic.TimePoint{}
	}
	tp, err := generic.ParseDate(ns.String)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// deletedClause filters on a tombstone column.
func deletedClause(column string, includeDeleted, deletedOnly bool) string {
	switch {
	case deletedOnly:
		return column + " IS NOT NULL"
	case includeDeleted:
		return "1=1"
	default:
		return column + " IS NULL"
	}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapUniqueError turns a storage uniqueness violation into a domain error.
func mapUniqueError(err error, value string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "personnel.identifier"),
		strings.Contains(msg, "idx_personnel_suffix_live"):
		return fmt.Errorf("%w: %s: %v", generic.ErrDuplicateIdentifier, value, err)
	case strings.Contains(msg, "personnel.email"):
		return &generic.DuplicateFieldError{Entity: personnel.EntityPersonnel, Field: "email", Value: value}
	case strings.Contains(msg, "roles.name"):
		return &generic.DuplicateFieldError{Entity: personnel.EntityRole, Field: "name", Value: value}
	case strings.Contains(msg, "org_units.axis"):
		return &generic.DuplicateFieldError{Entity: personnel.EntityUnit, Field: "name", Value: value}
	case strings.Contains(msg, "assignments.personnel_id"):
		return &generic.DuplicateFieldError{Entity: "assignment", Field: "role", Value: value}
	default:
		return &generic.DuplicateFieldError{Entity: "record", Field: "key", Value: value}
	}
}

// checkCAS interprets the result of an UPDATE ... WHERE version = ?.
func (c *conn) checkCAS(ctx context.Context, res sql.Result, table, keyColumn, entity, key string, readVersion int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var actual int
	err = c.q.QueryRowContext(ctx,
		"SELECT version FROM "+table+" WHERE "+keyColumn+" = ?", key,
	).Scan(&actual)
	if err == sql.ErrNoRows {
		return generic.NotFoundf("%s %s", entity, key)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", entity, err)
	}
	return &generic.VersionConflictError{Entity: entity, ID: key, Expected: readVersion, Actual: actual}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
