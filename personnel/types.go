/*
Package personnel implements the identity and lifecycle core for interns and
employees: records, internships, roles and their assignments, organizational
units, the category/status state machine and the expiry sweep.

OWNERSHIP:
  Every struct here is a plain value snapshot assembled by an explicit store
  query. There are no back-references and no lazy loading: a Record carries
  its Internship by value, assignments are fetched with ListAssignments.

SEE ALSO:
  - lifecycle.go: state machine (pure)
  - service.go:   transactional operations
  - store.go:     persistence ports
*/
package personnel

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Category is the volatile classification of a person. It is never part of
// the identifier, only of the display label.
type Category string

const (
	CategoryIntern   Category = "INTERN"
	CategoryEmployee Category = "EMPLOYEE"
)

func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(s))); c {
	case CategoryIntern, CategoryEmployee:
		return c, nil
	}
	return "", generic.Validationf("unknown category %q", s)
}

// LabelTag returns the display label tag for the category.
func (c Category) LabelTag() identity.Tag {
	if c == CategoryIntern {
		return identity.TagIntern
	}
	return identity.TagNone
}

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusInactive  Status = "INACTIVE"
	StatusExpired   Status = "EXPIRED"
	StatusConverted Status = "CONVERTED"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusActive, StatusInactive, StatusExpired, StatusConverted:
		return st, nil
	}
	return "", generic.Validationf("unknown status %q", s)
}

type InternshipStatus string

const (
	InternshipActive    InternshipStatus = "ACTIVE"
	InternshipExtended  InternshipStatus = "EXTENDED"
	InternshipExpired   InternshipStatus = "EXPIRED"
	InternshipConverted InternshipStatus = "CONVERTED"
)

// Axis is one of the two independent organizational classifications.
type Axis string

const (
	AxisDomain   Axis = "DOMAIN"
	AxisDivision Axis = "DIVISION"
)

func ParseAxis(s string) (Axis, error) {
	switch a := Axis(strings.ToUpper(strings.TrimSpace(s))); a {
	case AxisDomain, AxisDivision:
		return a, nil
	}
	return "", generic.Validationf("unknown unit axis %q", s)
}

// Entity type names written to audit entries.
const (
	EntityPersonnel = "personnel"
	EntityRole      = "role"
	EntityUnit      = "unit"
)

// =============================================================================
// PERSONNEL RECORD
// =============================================================================

// Record is a person, identified for life by ID.
type Record struct {
	ID          identity.ID
	Name        string
	Email       string
	Phone       string
	Category    Category
	Status      Status
	DomainID    string
	DivisionID  string
	JoinDate    generic.TimePoint
	EndDate     generic.TimePoint
	ConvertedAt *time.Time
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time

	// Internship is present only while Category is (or was, before
	// conversion) INTERN.
	Internship *Internship
}

func (r Record) EntityType() string  { return EntityPersonnel }
func (r Record) EntityKey() string   { return string(r.ID) }
func (r Record) CurrentVersion() int { return r.Version }

// Label is the human-facing display label for the current category.
func (r Record) Label() string {
	return identity.Encode(r.ID, r.Category.LabelTag())
}

func (r Record) DeletionState() generic.DeletionState {
	return generic.DeletionStateOf(r.DeletedAt)
}

// Clone returns a copy that shares no pointers with r.
func (r Record) Clone() Record {
	out := r
	if r.Internship != nil {
		in := *r.Internship
		out.Internship = &in
	}
	if r.ConvertedAt != nil {
		t := *r.ConvertedAt
		out.ConvertedAt = &t
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

// Snapshot is the audit before/after representation.
func (r Record) Snapshot() map[string]any {
	snap := map[string]any{
		"name":        r.Name,
		"email":       r.Email,
		"phone":       r.Phone,
		"category":    string(r.Category),
		"status":      string(r.Status),
		"domain_id":   r.DomainID,
		"division_id": r.DivisionID,
		"join_date":   r.JoinDate.String(),
		"end_date":    r.EndDate.String(),
		"version":     r.Version,
	}
	if r.Internship != nil {
		snap["internship_end"] = r.Internship.Period.End.String()
		snap["internship_status"] = string(r.Internship.Status)
	}
	return snap
}

// Internship tracks the fixed-term portion of an intern's record.
type Internship struct {
	PersonnelID    identity.ID
	Period         generic.Period
	Extensions     int
	OverrideReason string
	Status         InternshipStatus
	UpdatedAt      time.Time
}

// =============================================================================
// ROLES AND ASSIGNMENTS
// =============================================================================

type Role struct {
	ID          string
	Name        string
	Description string
	Clearance   int
	Active      bool
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time

	// LiveAssignments is filled by list queries only.
	LiveAssignments int
}

func (r Role) EntityType() string  { return EntityRole }
func (r Role) EntityKey() string   { return r.ID }
func (r Role) CurrentVersion() int { return r.Version }

func (r Role) DeletionState() generic.DeletionState {
	return generic.DeletionStateOf(r.DeletedAt)
}

func (r Role) Snapshot() map[string]any {
	return map[string]any{
		"name":        r.Name,
		"description": r.Description,
		"clearance":   r.Clearance,
		"active":      r.Active,
		"version":     r.Version,
	}
}

// Assignment links a person to a role. Unassigning sets RemovedAt; rows are
// only deleted by a purge cascade.
type Assignment struct {
	ID          string
	PersonnelID identity.ID
	RoleID      string
	RoleName    string
	AssignedBy  string
	AssignedAt  time.Time
	RemovedAt   *time.Time
}

func (a Assignment) Live() bool { return a.RemovedAt == nil }

// ConversionRecord is written exactly once per intern to employee conversion.
type ConversionRecord struct {
	ID           string
	PersonnelID  identity.ID
	FromCategory Category
	ToCategory   Category
	Roles        []string
	ConvertedBy  string
	ConvertedAt  time.Time
}

// =============================================================================
// ORGANIZATIONAL UNITS
// =============================================================================

// OrgUnit is a domain or a division. Personnel reference at most one of each.
type OrgUnit struct {
	ID          string
	Axis        Axis
	Name        string
	Description string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (u OrgUnit) EntityType() string  { return EntityUnit }
func (u OrgUnit) EntityKey() string   { return u.ID }
func (u OrgUnit) CurrentVersion() int { return u.Version }

func (u OrgUnit) DeletionState() generic.DeletionState {
	return generic.DeletionStateOf(u.DeletedAt)
}

func (u OrgUnit) Snapshot() map[string]any {
	return map[string]any{
		"axis":        string(u.Axis),
		"name":        u.Name,
		"description": u.Description,
		"version":     u.Version,
	}
}

// =============================================================================
// EXPIRY WARNINGS
// =============================================================================

// Warning is one entry of the upcoming-expiry feed.
type Warning struct {
	Identifier    identity.ID `json:"identifier"`
	Label         string      `json:"label"`
	Name          string      `json:"name"`
	EndDate       string      `json:"end_date"`
	DaysRemaining int         `json:"days_remaining"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (%s) ends %s in %d day(s)", w.Name, w.Label, w.EndDate, w.DaysRemaining)
}
