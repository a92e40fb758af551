/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Every record is created through personnel.Service, so
	scenarios produce the same audit trail and versions as real traffic.

AVAILABLE SCENARIOS:

	org-chart:         Domains, divisions, roles, employees and interns
	expiring-interns:  Interns ending inside the warning window, one overdue
	lifecycle-history: Conversion, extension, retirement and a tombstone

HOW SCENARIOS WORK:
 1. Ensure the units and roles the scenario needs (reused by name)
 2. Create personnel relative to today's date
 3. Assign roles
 4. Apply lifecycle actions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "expiring-interns"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to the loaders map

NOTE:

	Scenarios are additive. Each uses its own email domain, so loading the
	same scenario twice fails with 409 on the first duplicate email.

SEE ALSO:
  - handlers.go: Handler
  - personnel/service.go: the operations used here
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// DemoActor attributes audit entries written by scenario loaders.
const DemoActor = "system:demo-loader"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "org-chart",
		Name:        "Org Chart",
		Description: "Two domains, two divisions, three roles, employees and interns with assignments",
	},
	{
		ID:          "expiring-interns",
		Name:        "Expiring Interns",
		Description: "Interns ending within the warning window plus one overdue internship for the sweep",
	},
	{
		ID:          "lifecycle-history",
		Name:        "Lifecycle History",
		Description: "A converted intern, an extended internship, a retired employee and a tombstoned record",
	},
}

func (h *Handler) loaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"org-chart":         h.loadOrgChartScenario,
		"expiring-interns":  h.loadExpiringInternsScenario,
		"lifecycle-history": h.loadLifecycleHistoryScenario,
	}
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario populates the database with the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	load, ok := h.loaders()[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	if err := load(r.Context()); err != nil {
		writeServiceError(w, h.Log, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Log.WithField("scenario", req.ScenarioID).Info("scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadOrgChartScenario(ctx context.Context) error {
	today := generic.Today(h.Clock)

	eng, err := h.ensureUnit(ctx, personnel.AxisDomain, "Engineering")
	if err != nil {
		return err
	}
	ops, err := h.ensureUnit(ctx, personnel.AxisDomain, "Operations")
	if err != nil {
		return err
	}
	north, err := h.ensureUnit(ctx, personnel.AxisDivision, "North")
	if err != nil {
		return err
	}
	south, err := h.ensureUnit(ctx, personnel.AxisDivision, "South")
	if err != nil {
		return err
	}

	admin, err := h.ensureRole(ctx, "Administrator", "Full access", 9)
	if err != nil {
		return err
	}
	dev, err := h.ensureRole(ctx, "Developer", "Source and deploy access", 5)
	if err != nil {
		return err
	}
	viewer, err := h.ensureRole(ctx, "Viewer", "Read-only access", 1)
	if err != nil {
		return err
	}

	people := []struct {
		admission personnel.Admission
		roles     []string
	}{
		{employee("Ada Lovelace", "ada@org-chart.demo", today.AddDays(-900), eng.ID, north.ID), []string{admin.ID, dev.ID}},
		{employee("Grace Hopper", "grace@org-chart.demo", today.AddDays(-600), eng.ID, south.ID), []string{dev.ID}},
		{employee("Frances Allen", "frances@org-chart.demo", today.AddDays(-300), ops.ID, north.ID), []string{viewer.ID}},
		{intern("Alan Turing", "alan@org-chart.demo", today.AddDays(-30), today.AddDays(60), eng.ID, north.ID), []string{dev.ID, viewer.ID}},
		{intern("Joan Clarke", "joan@org-chart.demo", today.AddDays(-10), today.AddDays(80), ops.ID, south.ID), []string{viewer.ID}},
	}
	for _, p := range people {
		rec, err := h.Service.Create(ctx, DemoActor, p.admission)
		if err != nil {
			return fmt.Errorf("create %s: %w", p.admission.Email, err)
		}
		for _, roleID := range p.roles {
			if _, err := h.Service.Assign(ctx, DemoActor, string(rec.ID), roleID); err != nil {
				return fmt.Errorf("assign role to %s: %w", p.admission.Email, err)
			}
		}
	}
	return nil
}

func (h *Handler) loadExpiringInternsScenario(ctx context.Context) error {
	today := generic.Today(h.Clock)

	eng, err := h.ensureUnit(ctx, personnel.AxisDomain, "Engineering")
	if err != nil {
		return err
	}
	viewer, err := h.ensureRole(ctx, "Viewer", "Read-only access", 1)
	if err != nil {
		return err
	}

	admissions := []personnel.Admission{
		intern("Katherine Johnson", "katherine@expiring-interns.demo", today.AddDays(-90), today.AddDays(2), eng.ID, ""),
		intern("Dorothy Vaughan", "dorothy@expiring-interns.demo", today.AddDays(-60), today.AddDays(6), eng.ID, ""),
		intern("Mary Jackson", "mary@expiring-interns.demo", today.AddDays(-45), today, eng.ID, ""),
		intern("Edsger Dijkstra", "edsger@expiring-interns.demo", today.AddDays(-120), today.AddDays(-1), eng.ID, ""),
		intern("Barbara Liskov", "barbara@expiring-interns.demo", today.AddDays(-5), today.AddDays(120), eng.ID, ""),
	}
	for _, a := range admissions {
		rec, err := h.Service.Create(ctx, DemoActor, a)
		if err != nil {
			return fmt.Errorf("create %s: %w", a.Email, err)
		}
		if _, err := h.Service.Assign(ctx, DemoActor, string(rec.ID), viewer.ID); err != nil {
			return fmt.Errorf("assign role to %s: %w", a.Email, err)
		}
	}
	return nil
}

func (h *Handler) loadLifecycleHistoryScenario(ctx context.Context) error {
	today := generic.Today(h.Clock)

	dev, err := h.ensureRole(ctx, "Developer", "Source and deploy access", 5)
	if err != nil {
		return err
	}

	converted, err := h.Service.Create(ctx, DemoActor,
		intern("Linus Torvalds", "linus@lifecycle-history.demo", today.AddDays(-150), today.AddDays(30), "", ""))
	if err != nil {
		return err
	}
	if _, err := h.Service.Assign(ctx, DemoActor, string(converted.ID), dev.ID); err != nil {
		return err
	}
	if _, err := h.Service.Convert(ctx, DemoActor, string(converted.ID), nil); err != nil {
		return err
	}

	extended, err := h.Service.Create(ctx, DemoActor,
		intern("Margaret Hamilton", "margaret@lifecycle-history.demo", today.AddDays(-80), today.AddDays(5), "", ""))
	if err != nil {
		return err
	}
	if _, err := h.Service.Extend(ctx, DemoActor, string(extended.ID), today.AddDays(95),
		"project deadline moved", nil); err != nil {
		return err
	}

	retired, err := h.Service.Create(ctx, DemoActor,
		employee("Ken Thompson", "ken@lifecycle-history.demo", today.AddDays(-2000), "", ""))
	if err != nil {
		return err
	}
	if _, err := h.Service.Retire(ctx, DemoActor, string(retired.ID), nil); err != nil {
		return err
	}

	gone, err := h.Service.Create(ctx, DemoActor,
		employee("Dennis Ritchie", "dennis@lifecycle-history.demo", today.AddDays(-1500), "", ""))
	if err != nil {
		return err
	}
	_, err = h.Service.Delete(ctx, DemoActor, string(gone.ID), nil)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func employee(name, email string, joined generic.TimePoint, domainID, divisionID string) personnel.Admission {
	return personnel.Admission{
		Name:       name,
		Email:      email,
		Category:   personnel.CategoryEmployee,
		JoinDate:   joined,
		DomainID:   domainID,
		DivisionID: divisionID,
	}
}

func intern(name, email string, start, end generic.TimePoint, domainID, divisionID string) personnel.Admission {
	return personnel.Admission{
		Name:       name,
		Email:      email,
		Category:   personnel.CategoryIntern,
		Internship: &generic.Period{Start: start, End: end},
		DomainID:   domainID,
		DivisionID: divisionID,
	}
}

// ensureUnit returns the live unit with this name on axis, creating it if needed.
func (h *Handler) ensureUnit(ctx context.Context, axis personnel.Axis, name string) (personnel.OrgUnit, error) {
	units, err := h.Service.ListUnits(ctx, personnel.UnitQuery{Axis: axis})
	if err != nil {
		return personnel.OrgUnit{}, err
	}
	for _, u := range units {
		if strings.EqualFold(u.Name, name) {
			return u, nil
		}
	}
	return h.Service.CreateUnit(ctx, DemoActor, axis, name, "")
}

// ensureRole returns the active role with this name, creating it if needed.
func (h *Handler) ensureRole(ctx context.Context, name, description string, clearance int) (personnel.Role, error) {
	roles, err := h.Service.ListRoles(ctx, personnel.RoleQuery{})
	if err != nil {
		return personnel.Role{}, err
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return h.Service.CreateRole(ctx, DemoActor, personnel.RoleDraft{
		Name:        name,
		Description: description,
		Clearance:   clearance,
	})
}
