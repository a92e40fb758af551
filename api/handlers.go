/*
handlers.go - HTTP API handlers for the personnel core

PURPOSE:
  Exposes the personnel service via REST API. Handles HTTP request/response,
  JSON serialization and request-shape validation, and delegates every rule
  to personnel.Service.

ENDPOINTS:
  Personnel ({token} is a full identifier or a display label):
    GET    /api/personnel                         List (filters, pagination)
    POST   /api/personnel                         Create intern or employee
    GET    /api/personnel/{token}                 Get (?include_deleted=true)
    PATCH  /api/personnel/{token}                 Update profile fields
    DELETE /api/personnel/{token}                 Tombstone (?permanent=true purges)
    POST   /api/personnel/{token}/restore         Restore a tombstoned record

  Lifecycle:
    POST   /api/personnel/{token}/convert         Intern -> employee
    POST   /api/personnel/{token}/extend          Extend internship end date
    POST   /api/personnel/{token}/end-internship  End internship today
    POST   /api/personnel/{token}/retire          Employee -> inactive

  Assignments:
    GET    /api/personnel/{token}/roles           Assignments (?live=true)
    POST   /api/personnel/{token}/roles           Assign a role
    DELETE /api/personnel/{token}/roles/{roleID}  Remove an assignment
    GET    /api/personnel/{token}/conversions     Conversion history

  Roles, units, audit, dashboard, admin: see handlers_admin.go
  Scenarios: see scenarios.go

REQUEST FLOW:
  1. Decode the JSON body (empty bodies are allowed on lifecycle actions)
  2. Validate its shape with validator tags
  3. Call the service with the actor from the X-Actor-ID header
  4. Serialize the response DTO
  5. Map errors with writeServiceError (errors.go)

ERROR HANDLING:
  - 400: Validation errors, invalid date ranges, rejected transitions,
         role in use, missing actor
  - 404: Unknown identifier or label, purged records
  - 409: Duplicate email/name/identifier, stale version
  - 500: Storage failures, exhausted identifier generation

SECURITY NOTE:
  Authentication and authorization happen upstream. The actor header is
  recorded on audit entries as given.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status and error code mapping
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *personnel.Service
	Scheduler *SweepScheduler
	Clock     generic.Clock
	Log       *logrus.Entry

	validate *validator.Validate

	// Track the last loaded demo scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. sched may be nil, in which case manual
// sweeps run without the scheduler's overlap guard.
func NewHandler(svc *personnel.Service, sched *SweepScheduler, clock generic.Clock, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{
		Service:   svc,
		Scheduler: sched,
		Clock:     clock,
		Log:       log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// decode reads a JSON body into v and validates it. optional permits an
// empty body. On failure the response is written and false returned.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Code:    "VALIDATION",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

// expectedVersion prefers the body value, then the ?version= query parameter.
func expectedVersion(r *http.Request, body *int) (*int, error) {
	if body != nil {
		return body, nil
	}
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return nil, generic.Validationf("invalid version %q", raw)
	}
	return &v, nil
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func intParam(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func actor(r *http.Request) string {
	return ActorFrom(r.Context())
}

// =============================================================================
// PERSONNEL HANDLERS
// =============================================================================

// ListPersonnel returns one page of records.
//
// Query parameters: q, category, status (comma separated), domain_id,
// division_id, role, include_deleted, deleted_only, page, per_page.
func (h *Handler) ListPersonnel(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := personnel.Query{
		Text:           params.Get("q"),
		DomainID:       params.Get("domain_id"),
		DivisionID:     params.Get("division_id"),
		RoleName:       params.Get("role"),
		IncludeDeleted: boolParam(r, "include_deleted"),
		DeletedOnly:    boolParam(r, "deleted_only"),
		Page:           intParam(r, "page"),
		PerPage:        intParam(r, "per_page"),
	}
	if c := params.Get("category"); c != "" {
		cat, err := personnel.ParseCategory(c)
		if err != nil {
			writeServiceError(w, h.Log, "Invalid category", err)
			return
		}
		q.Category = cat
	}
	if s := params.Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			st, err := personnel.ParseStatus(part)
			if err != nil {
				writeServiceError(w, h.Log, "Invalid status", err)
				return
			}
			q.Statuses = append(q.Statuses, st)
		}
	}

	q = q.Normalize()
	records, total, err := h.Service.List(r.Context(), q)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to list personnel", err)
		return
	}
	writeJSON(w, http.StatusOK, newPage(mapSlice(records, toPersonnelDTO), total, q.Page, q.PerPage))
}

// CreatePersonnel admits a new intern or employee.
func (h *Handler) CreatePersonnel(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonnelRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	category, err := personnel.ParseCategory(req.Category)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid category", err)
		return
	}
	a := personnel.Admission{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		Category:   category,
		DomainID:   req.DomainID,
		DivisionID: req.DivisionID,
	}
	if req.JoinDate != "" {
		if a.JoinDate, err = generic.ParseDate(req.JoinDate); err != nil {
			writeServiceError(w, h.Log, "Invalid join date", err)
			return
		}
	}
	if req.StartDate != "" || req.EndDate != "" {
		var p generic.Period
		if req.StartDate != "" {
			p.Start, _ = generic.ParseDate(req.StartDate)
		}
		if req.EndDate != "" {
			p.End, _ = generic.ParseDate(req.EndDate)
		}
		a.Internship = &p
	}

	rec, err := h.Service.Create(r.Context(), actor(r), a)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to create personnel", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPersonnelDTO(rec))
}

// GetPersonnel resolves an identifier or display label.
func (h *Handler) GetPersonnel(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.Resolve(r.Context(), chi.URLParam(r, "token"), boolParam(r, "include_deleted"))
	if err != nil {
		writeServiceError(w, h.Log, "Personnel not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnelDTO(rec))
}

// UpdatePersonnel changes profile fields under optimistic locking.
func (h *Handler) UpdatePersonnel(w http.ResponseWriter, r *http.Request) {
	var req UpdatePersonnelRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}

	p := personnel.Patch{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		DomainID:   req.DomainID,
		DivisionID: req.DivisionID,
	}
	if req.JoinDate != nil {
		d, err := generic.ParseDate(*req.JoinDate)
		if err != nil {
			writeServiceError(w, h.Log, "Invalid join date", err)
			return
		}
		p.JoinDate = &d
	}

	rec, err := h.Service.Update(r.Context(), actor(r), chi.URLParam(r, "token"), p, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to update personnel", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnelDTO(rec))
}

// DeletePersonnel tombstones a record, or purges it with ?permanent=true.
func (h *Handler) DeletePersonnel(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r, nil)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	token := chi.URLParam(r, "token")

	if boolParam(r, "permanent") {
		if err := h.Service.Purge(r.Context(), actor(r), token, expected); err != nil {
			writeServiceError(w, h.Log, "Failed to purge personnel", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	rec, err := h.Service.Delete(r.Context(), actor(r), token, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to delete personnel", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnelDTO(rec))
}

// RestorePersonnel brings a tombstoned record back.
func (h *Handler) RestorePersonnel(w http.ResponseWriter, r *http.Request) {
	h.versionedAction(w, r, "Failed to restore personnel", h.Service.Restore)
}

// =============================================================================
// LIFECYCLE HANDLERS
// =============================================================================

type versionedOp func(ctx context.Context, actor, token string, expected *int) (personnel.Record, error)

// versionedAction runs a lifecycle operation whose only parameter is the
// optional expected version.
func (h *Handler) versionedAction(w http.ResponseWriter, r *http.Request, failure string, op versionedOp) {
	var req VersionRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	rec, err := op(r.Context(), actor(r), chi.URLParam(r, "token"), expected)
	if err != nil {
		writeServiceError(w, h.Log, failure, err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnelDTO(rec))
}

// ConvertPersonnel turns an active intern into an employee.
func (h *Handler) ConvertPersonnel(w http.ResponseWriter, r *http.Request) {
	h.versionedAction(w, r, "Failed to convert intern", h.Service.Convert)
}

// ExtendInternship moves the internship end date later.
func (h *Handler) ExtendInternship(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	newEnd, err := generic.ParseDate(req.NewEndDate)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid end date", err)
		return
	}

	rec, err := h.Service.Extend(r.Context(), actor(r), chi.URLParam(r, "token"), newEnd, req.Reason, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to extend internship", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonnelDTO(rec))
}

// EndInternship ends a running internship today.
func (h *Handler) EndInternship(w http.ResponseWriter, r *http.Request) {
	h.versionedAction(w, r, "Failed to end internship", h.Service.EndInternship)
}

// RetirePersonnel marks an active employee inactive.
func (h *Handler) RetirePersonnel(w http.ResponseWriter, r *http.Request) {
	h.versionedAction(w, r, "Failed to retire employee", h.Service.Retire)
}

// =============================================================================
// ASSIGNMENT HANDLERS
// =============================================================================

// ListAssignments returns a person's assignments, newest first.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Assignments(r.Context(), chi.URLParam(r, "token"), boolParam(r, "live"))
	if err != nil {
		writeServiceError(w, h.Log, "Failed to list assignments", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toAssignmentDTO))
}

// AssignRole gives a person an active role.
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	var req AssignRoleRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	a, err := h.Service.Assign(r.Context(), actor(r), chi.URLParam(r, "token"), req.RoleID)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to assign role", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssignmentDTO(a))
}

// UnassignRole removes a live assignment.
func (h *Handler) UnassignRole(w http.ResponseWriter, r *http.Request) {
	err := h.Service.Unassign(r.Context(), actor(r), chi.URLParam(r, "token"), chi.URLParam(r, "roleID"))
	if err != nil {
		writeServiceError(w, h.Log, "Failed to remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConversions returns a person's conversion history.
func (h *Handler) ListConversions(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Conversions(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, h.Log, "Failed to list conversions", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(list, toConversionDTO))
}
