package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// Endpoints:
//
//	GET    /api/roles                      List (?include_inactive, ?deleted_only)
//	POST   /api/roles                      Create
//	GET    /api/roles/{id}                 Get
//	PATCH  /api/roles/{id}                 Update
//	DELETE /api/roles/{id}                 Tombstone (?permanent=true purges)
//	POST   /api/roles/{id}/restore         Restore
//
//	GET    /api/units                      List (?axis, ?include_deleted, ?deleted_only)
//	POST   /api/units                      Create
//	GET    /api/units/{id}                 Get
//	PATCH  /api/units/{id}                 Update
//	DELETE /api/units/{id}                 Tombstone (?permanent=true purges)
//	POST   /api/units/{id}/restore         Restore
//
//	GET    /api/audit                      Query the audit trail
//	GET    /api/dashboard/stats            Counts, conversion rate, trend
//	GET    /api/dashboard/warnings         Last published expiry warnings
//	GET    /api/dashboard/upcoming         Expiry warnings computed now
//	GET    /api/admin/sweep                Sweep scheduler status
//	POST   /api/admin/sweep                Run the expiry sweep now

// =============================================================================
// ROLE HANDLERS
// =============================================================================

func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context(), personnel.RoleQuery{
		IncludeInactive: boolParam(r, "include_inactive"),
		DeletedOnly:     boolParam(r, "deleted_only"),
	})
	if err != nil {
		writeServiceError(w, h.Log, "Failed to list roles", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(roles, toRoleDTO))
}

func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	role, err := h.Service.CreateRole(r.Context(), actor(r), personnel.RoleDraft{
		Name:        req.Name,
		Description: req.Description,
		Clearance:   req.Clearance,
		Active:      req.Active,
	})
	if err != nil {
		writeServiceError(w, h.Log, "Failed to create role", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoleDTO(role))
}

func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	role, err := h.Service.GetRole(r.Context(), chi.URLParam(r, "id"), boolParam(r, "include_deleted"))
	if err != nil {
		writeServiceError(w, h.Log, "Role not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDTO(role))
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req UpdateRoleRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	role, err := h.Service.UpdateRole(r.Context(), actor(r), chi.URLParam(r, "id"), personnel.RolePatch{
		Name:        req.Name,
		Description: req.Description,
		Clearance:   req.Clearance,
		Active:      req.Active,
	}, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to update role", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDTO(role))
}

func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r, nil)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	id := chi.URLParam(r, "id")
	if boolParam(r, "permanent") {
		if err := h.Service.PurgeRole(r.Context(), actor(r), id, expected); err != nil {
			writeServiceError(w, h.Log, "Failed to purge role", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	role, err := h.Service.DeleteRole(r.Context(), actor(r), id, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to delete role", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDTO(role))
}

func (h *Handler) RestoreRole(w http.ResponseWriter, r *http.Request) {
	var req VersionRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	role, err := h.Service.RestoreRole(r.Context(), actor(r), chi.URLParam(r, "id"), expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to restore role", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoleDTO(role))
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	q := personnel.UnitQuery{
		IncludeDeleted: boolParam(r, "include_deleted"),
		DeletedOnly:    boolParam(r, "deleted_only"),
	}
	if raw := r.URL.Query().Get("axis"); raw != "" {
		axis, err := personnel.ParseAxis(raw)
		if err != nil {
			writeServiceError(w, h.Log, "Invalid axis", err)
			return
		}
		q.Axis = axis
	}
	units, err := h.Service.ListUnits(r.Context(), q)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to list units", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(units, toUnitDTO))
}

func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	var req CreateUnitRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	axis, err := personnel.ParseAxis(req.Axis)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid axis", err)
		return
	}
	u, err := h.Service.CreateUnit(r.Context(), actor(r), axis, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to create unit", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUnitDTO(u))
}

func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.GetUnit(r.Context(), chi.URLParam(r, "id"), boolParam(r, "include_deleted"))
	if err != nil {
		writeServiceError(w, h.Log, "Unit not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

func (h *Handler) UpdateUnit(w http.ResponseWriter, r *http.Request) {
	var req UpdateUnitRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	u, err := h.Service.UpdateUnit(r.Context(), actor(r), chi.URLParam(r, "id"), personnel.UnitPatch{
		Name:        req.Name,
		Description: req.Description,
	}, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to update unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

func (h *Handler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	expected, err := expectedVersion(r, nil)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	id := chi.URLParam(r, "id")
	if boolParam(r, "permanent") {
		if err := h.Service.PurgeUnit(r.Context(), actor(r), id, expected); err != nil {
			writeServiceError(w, h.Log, "Failed to purge unit", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	u, err := h.Service.DeleteUnit(r.Context(), actor(r), id, expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to delete unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

func (h *Handler) RestoreUnit(w http.ResponseWriter, r *http.Request) {
	var req VersionRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	expected, err := expectedVersion(r, req.Version)
	if err != nil {
		writeServiceError(w, h.Log, "Invalid version", err)
		return
	}
	u, err := h.Service.RestoreUnit(r.Context(), actor(r), chi.URLParam(r, "id"), expected)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to restore unit", err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(u))
}

// =============================================================================
// AUDIT AND DASHBOARD HANDLERS
// =============================================================================

// QueryAudit filters the trail by action, entity_type, entity_id, actor,
// from and to (RFC 3339), limit and offset.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	f := generic.AuditFilter{
		Action:     generic.AuditAction(params.Get("action")),
		EntityType: params.Get("entity_type"),
		EntityID:   params.Get("entity_id"),
		Actor:      params.Get("actor"),
		Limit:      intParam(r, "limit"),
		Offset:     intParam(r, "offset"),
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := params.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeServiceError(w, h.Log, "Invalid "+name+" timestamp", generic.Validationf("%s: %v", name, err))
			return
		}
		*dst = &t
	}

	entries, err := h.Service.Audit(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.Log, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, toAuditDTO))
}

// DashboardStats returns the overview (?trend_days, default 30).
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Dashboard(r.Context(), intParam(r, "trend_days"))
	if err != nil {
		writeServiceError(w, h.Log, "Failed to build dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, DashboardDTO{
		TotalPersonnel:  d.Counts.Total,
		ActivePersonnel: d.Counts.Active,
		Interns:         d.Counts.Interns,
		Employees:       d.Counts.Employees,
		ActiveRoles:     d.Counts.ActiveRoles,
		Conversions:     d.Counts.Conversions,
		ConversionRate:  d.ConversionRate,
		RecentActions:   mapSlice(d.Recent, toAuditDTO),
		Trend:           d.Trend,
	})
}

// PublishedWarnings returns what the last sweep published to the feed.
func (h *Handler) PublishedWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Service.PublishedWarnings(r.Context())
	if err != nil {
		writeServiceError(w, h.Log, "Failed to read warning feed", err)
		return
	}
	writeJSON(w, http.StatusOK, WarningsResponse{Warnings: warnings})
}

// UpcomingExpiries computes the warning list as of today without publishing.
func (h *Handler) UpcomingExpiries(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.Service.UpcomingExpiries(r.Context(), generic.Today(h.Clock))
	if err != nil {
		writeServiceError(w, h.Log, "Failed to compute upcoming expiries", err)
		return
	}
	if warnings == nil {
		warnings = []personnel.Warning{}
	}
	writeJSON(w, http.StatusOK, WarningsResponse{Warnings: warnings})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunSweep triggers the expiry sweep. Returns 409 while a run is in progress.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var (
		result personnel.SweepResult
		err    error
	)
	if h.Scheduler != nil {
		result, err = h.Scheduler.RunOnce(r.Context())
	} else {
		result, err = h.Service.Sweep(r.Context())
	}
	if errors.Is(err, ErrSweepRunning) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "Sweep already running", Code: "SWEEP_RUNNING"})
		return
	}
	if err != nil {
		writeServiceError(w, h.Log, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SweepStatus reports the scheduler configuration and last run.
func (h *Handler) SweepStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeJSON(w, http.StatusOK, SweepStatusDTO{})
		return
	}
	writeJSON(w, http.StatusOK, h.Scheduler.Status())
}
