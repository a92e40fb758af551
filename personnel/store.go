/*
store.go - Persistence ports for the personnel core

PURPOSE:
  The service talks to storage only through these interfaces. Every mutating
  operation runs inside Store.WithTx and receives a Tx: entity writes, version
  bumps and the audit entry share one database transaction.

READ CONVENTIONS:
  - Get* return (nil, nil) when nothing matches.
  - Tombstoned rows are excluded unless includeDeleted is true.

WRITE CONVENTIONS:
  - Update* are compare-and-swap on the version read by the caller:
    UPDATE ... WHERE id = ? AND version = readVersion. Zero affected rows
    surfaces *generic.VersionConflictError.
  - Delete* remove rows. Cascades are never delegated to storage: the service
    calls each dependent Delete* explicitly in the purge transaction.

IMPLEMENTATIONS:
  - store/sqlite: SQLite
*/
package personnel

import (
	"context"
	"time"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
)

// Query filters personnel listings. Zero values mean "any".
type Query struct {
	Text           string
	Category       Category
	Statuses       []Status
	DomainID       string
	DivisionID     string
	RoleName       string
	IncludeDeleted bool
	DeletedOnly    bool
	Page           int
	PerPage        int
}

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Normalize clamps pagination to sane bounds.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

func (q Query) Offset() int { return (q.Page - 1) * q.PerPage }

type RoleQuery struct {
	IncludeInactive bool
	DeletedOnly     bool
}

type UnitQuery struct {
	Axis           Axis
	IncludeDeleted bool
	DeletedOnly    bool
}

// Counts feeds the dashboard.
type Counts struct {
	Total       int
	Active      int
	Interns     int
	Employees   int
	ActiveRoles int
	Conversions int
}

// Reader is the read side shared by the store and its transactions.
type Reader interface {
	GetPersonnel(ctx context.Context, id identity.ID, includeDeleted bool) (*Record, error)
	// FindBySuffix returns the record whose identifier ends with suffix. With
	// includeDeleted the live record wins, then the newest tombstone.
	FindBySuffix(ctx context.Context, suffix string, includeDeleted bool) (*Record, error)
	// IdentifierTaken reports whether id exists (any state) or its suffix is
	// used by a live record.
	IdentifierTaken(ctx context.Context, id identity.ID) (bool, error)
	EmailTaken(ctx context.Context, email string, exclude identity.ID) (bool, error)
	ListPersonnel(ctx context.Context, q Query) ([]Record, int, error)
	ListOverdue(ctx context.Context, today generic.TimePoint) ([]Record, error)
	ListExpiring(ctx context.Context, window generic.Period) ([]Record, error)

	ListAssignments(ctx context.Context, personnelID identity.ID, liveOnly bool) ([]Assignment, error)
	FindLiveAssignment(ctx context.Context, personnelID identity.ID, roleID string) (*Assignment, error)
	// CountBlockingAssignments counts live assignments of the role to live
	// personnel.
	CountBlockingAssignments(ctx context.Context, roleID string) (int, error)
	ListConversions(ctx context.Context, personnelID identity.ID) ([]ConversionRecord, error)

	GetRole(ctx context.Context, id string, includeDeleted bool) (*Role, error)
	RoleNameTaken(ctx context.Context, name string, exclude string) (bool, error)
	ListRoles(ctx context.Context, q RoleQuery) ([]Role, error)

	GetUnit(ctx context.Context, id string, includeDeleted bool) (*OrgUnit, error)
	ListUnits(ctx context.Context, q UnitQuery) ([]OrgUnit, error)

	Counts(ctx context.Context) (Counts, error)
	CreationTrend(ctx context.Context, since generic.TimePoint) (map[string]int, error)
	QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error)
}

// Tx is the write side, valid only inside Store.WithTx.
type Tx interface {
	Reader
	generic.AuditAppender

	InsertPersonnel(ctx context.Context, rec Record) error
	UpdatePersonnel(ctx context.Context, rec Record, readVersion int) error
	DeletePersonnel(ctx context.Context, id identity.ID) error
	DeleteInternship(ctx context.Context, id identity.ID) error
	ClearUnitReferences(ctx context.Context, axis Axis, unitID string) ([]identity.ID, error)

	InsertAssignment(ctx context.Context, a Assignment) error
	RemoveAssignment(ctx context.Context, id string, at time.Time) error
	DeleteAssignmentsForPersonnel(ctx context.Context, id identity.ID) (int, error)
	DeleteAssignmentsForRole(ctx context.Context, roleID string) (int, error)
	InsertConversion(ctx context.Context, c ConversionRecord) error

	InsertRole(ctx context.Context, r Role) error
	UpdateRole(ctx context.Context, r Role, readVersion int) error
	DeleteRole(ctx context.Context, id string) error

	InsertUnit(ctx context.Context, u OrgUnit) error
	UpdateUnit(ctx context.Context, u OrgUnit, readVersion int) error
	DeleteUnit(ctx context.Context, id string) error
}

// Store is the persistence boundary.
type Store interface {
	Reader
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
