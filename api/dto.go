/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request shapes are checked with go-playground/validator struct tags before
  the service is called. Domain rules (date ranges, transitions, uniqueness)
  are enforced by the service, not here.

OPTIMISTIC LOCKING:
  Mutating requests carry an optional "version". When present it must equal
  the stored version or the request fails with 409.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// PERSONNEL
// =============================================================================

// PersonnelDTO represents a personnel record in API responses.
type PersonnelDTO struct {
	Identifier  string         `json:"identifier"`
	Label       string         `json:"label"`
	Name        string         `json:"name"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone,omitempty"`
	Category    string         `json:"category"`
	Status      string         `json:"status"`
	DomainID    string         `json:"domain_id,omitempty"`
	DivisionID  string         `json:"division_id,omitempty"`
	JoinDate    string         `json:"join_date"`
	EndDate     string         `json:"end_date,omitempty"`
	ConvertedAt string         `json:"converted_at,omitempty"`
	Version     int            `json:"version"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	DeletedAt   string         `json:"deleted_at,omitempty"`
	Internship  *InternshipDTO `json:"internship,omitempty"`
}

type InternshipDTO struct {
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	Extensions     int    `json:"extensions"`
	OverrideReason string `json:"override_reason,omitempty"`
	Status         string `json:"status"`
}

// CreatePersonnelRequest creates an intern (start_date and end_date
// required) or an employee.
type CreatePersonnelRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"required,email,max=255"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
	Category   string `json:"category" validate:"required,oneof=INTERN EMPLOYEE intern employee"`
	JoinDate   string `json:"join_date" validate:"omitempty,datetime=2006-01-02"`
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	DomainID   string `json:"domain_id" validate:"omitempty,uuid"`
	DivisionID string `json:"division_id" validate:"omitempty,uuid"`
}

// UpdatePersonnelRequest changes profile fields. Omitted fields are kept;
// an empty domain_id or division_id clears the reference.
type UpdatePersonnelRequest struct {
	Name       *string `json:"name" validate:"omitempty,min=1,max=255"`
	Email      *string `json:"email" validate:"omitempty,email,max=255"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	DomainID   *string `json:"domain_id" validate:"omitempty"`
	DivisionID *string `json:"division_id" validate:"omitempty"`
	JoinDate   *string `json:"join_date" validate:"omitempty,datetime=2006-01-02"`
	Version    *int    `json:"version" validate:"omitempty,min=1"`
}

// VersionRequest is the body of lifecycle actions without other parameters.
type VersionRequest struct {
	Version *int `json:"version" validate:"omitempty,min=1"`
}

type ExtendRequest struct {
	NewEndDate string `json:"new_end_date" validate:"required,datetime=2006-01-02"`
	Reason     string `json:"reason" validate:"required,max=500"`
	Version    *int   `json:"version" validate:"omitempty,min=1"`
}

// PageResponse wraps one page of a listing.
type PageResponse[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Pages   int `json:"pages"`
}

func newPage[T any](items []T, total, page, perPage int) PageResponse[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if perPage > 0 {
		pages = (total + perPage - 1) / perPage
	}
	return PageResponse[T]{Items: items, Total: total, Page: page, PerPage: perPage, Pages: pages}
}

// =============================================================================
// ROLES AND ASSIGNMENTS
// =============================================================================

type RoleDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Clearance       int    `json:"clearance"`
	Active          bool   `json:"active"`
	Version         int    `json:"version"`
	LiveAssignments int    `json:"live_assignments"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
	DeletedAt       string `json:"deleted_at,omitempty"`
}

type CreateRoleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
	Clearance   int    `json:"clearance" validate:"min=0,max=10"`
	Active      *bool  `json:"active"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Clearance   *int    `json:"clearance" validate:"omitempty,min=0,max=10"`
	Active      *bool   `json:"active"`
	Version     *int    `json:"version" validate:"omitempty,min=1"`
}

type AssignRoleRequest struct {
	RoleID string `json:"role_id" validate:"required"`
}

type AssignmentDTO struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	RoleID     string `json:"role_id"`
	RoleName   string `json:"role_name"`
	AssignedBy string `json:"assigned_by"`
	AssignedAt string `json:"assigned_at"`
	RemovedAt  string `json:"removed_at,omitempty"`
}

type ConversionDTO struct {
	ID           string   `json:"id"`
	Identifier   string   `json:"identifier"`
	FromCategory string   `json:"from_category"`
	ToCategory   string   `json:"to_category"`
	Roles        []string `json:"roles_migrated"`
	ConvertedBy  string   `json:"converted_by"`
	ConvertedAt  string   `json:"converted_at"`
}

// =============================================================================
// ORGANIZATIONAL UNITS
// =============================================================================

type UnitDTO struct {
	ID          string `json:"id"`
	Axis        string `json:"axis"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     int    `json:"version"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	DeletedAt   string `json:"deleted_at,omitempty"`
}

type CreateUnitRequest struct {
	Axis        string `json:"axis" validate:"required,oneof=DOMAIN DIVISION domain division"`
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

type UpdateUnitRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Version     *int    `json:"version" validate:"omitempty,min=1"`
}

// =============================================================================
// AUDIT AND DASHBOARD
// =============================================================================

type AuditEntryDTO struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Actor       string         `json:"actor"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Description string         `json:"description,omitempty"`
	Timestamp   string         `json:"timestamp"`
}

type DashboardDTO struct {
	TotalPersonnel  int                    `json:"total_personnel"`
	ActivePersonnel int                    `json:"active_personnel"`
	Interns         int                    `json:"interns"`
	Employees       int                    `json:"employees"`
	ActiveRoles     int                    `json:"active_roles"`
	Conversions     int                    `json:"conversions"`
	ConversionRate  decimal.Decimal        `json:"conversion_rate"`
	RecentActions   []AuditEntryDTO        `json:"recent_actions"`
	Trend           []personnel.TrendPoint `json:"trend"`
}

type WarningsResponse struct {
	Warnings []personnel.Warning `json:"warnings"`
}

// SweepStatusDTO reports the last sweep run of this process.
type SweepStatusDTO struct {
	Enabled  bool                   `json:"enabled"`
	Interval string                 `json:"interval"`
	Running  bool                   `json:"running"`
	LastRun  string                 `json:"last_run,omitempty"`
	LastErr  string                 `json:"last_error,omitempty"`
	Result   *personnel.SweepResult `json:"result,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTSPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTS(*t)
}

func toPersonnelDTO(r personnel.Record) PersonnelDTO {
	dto := PersonnelDTO{
		Identifier:  string(r.ID),
		Label:       r.Label(),
		Name:        r.Name,
		Email:       r.Email,
		Phone:       r.Phone,
		Category:    string(r.Category),
		Status:      string(r.Status),
		DomainID:    r.DomainID,
		DivisionID:  r.DivisionID,
		JoinDate:    r.JoinDate.String(),
		EndDate:     r.EndDate.String(),
		ConvertedAt: formatTSPtr(r.ConvertedAt),
		Version:     r.Version,
		CreatedAt:   formatTS(r.CreatedAt),
		UpdatedAt:   formatTS(r.UpdatedAt),
		DeletedAt:   formatTSPtr(r.DeletedAt),
	}
	if in := r.Internship; in != nil {
		dto.Internship = &InternshipDTO{
			StartDate:      in.Period.Start.String(),
			EndDate:        in.Period.End.String(),
			Extensions:     in.Extensions,
			OverrideReason: in.OverrideReason,
			Status:         string(in.Status),
		}
	}
	return dto
}

func toRoleDTO(r personnel.Role) RoleDTO {
	return RoleDTO{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		Clearance:       r.Clearance,
		Active:          r.Active,
		Version:         r.Version,
		LiveAssignments: r.LiveAssignments,
		CreatedAt:       formatTS(r.CreatedAt),
		UpdatedAt:       formatTS(r.UpdatedAt),
		DeletedAt:       formatTSPtr(r.DeletedAt),
	}
}

func toAssignmentDTO(a personnel.Assignment) AssignmentDTO {
	return AssignmentDTO{
		ID:         a.ID,
		Identifier: string(a.PersonnelID),
		RoleID:     a.RoleID,
		RoleName:   a.RoleName,
		AssignedBy: a.AssignedBy,
		AssignedAt: formatTS(a.AssignedAt),
		RemovedAt:  formatTSPtr(a.RemovedAt),
	}
}

func toConversionDTO(c personnel.ConversionRecord) ConversionDTO {
	roles := c.Roles
	if roles == nil {
		roles = []string{}
	}
	return ConversionDTO{
		ID:           c.ID,
		Identifier:   string(c.PersonnelID),
		FromCategory: string(c.FromCategory),
		ToCategory:   string(c.ToCategory),
		Roles:        roles,
		ConvertedBy:  c.ConvertedBy,
		ConvertedAt:  formatTS(c.ConvertedAt),
	}
}

func toUnitDTO(u personnel.OrgUnit) UnitDTO {
	return UnitDTO{
		ID:          u.ID,
		Axis:        string(u.Axis),
		Name:        u.Name,
		Description: u.Description,
		Version:     u.Version,
		CreatedAt:   formatTS(u.CreatedAt),
		UpdatedAt:   formatTS(u.UpdatedAt),
		DeletedAt:   formatTSPtr(u.DeletedAt),
	}
}

func toAuditDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:          e.ID,
		Action:      string(e.Action),
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		Actor:       e.Actor,
		Before:      e.Before,
		After:       e.After,
		Description: e.Description,
		Timestamp:   formatTS(e.Timestamp),
	}
}

func mapSlice[T, U any](in []T, fn func(T) U) []U {
	out := make([]U, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
