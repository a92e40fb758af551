package personnel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// ROLES
// =============================================================================

func TestUpdateRole_StaleVersionChangesNothing(t *testing.T) {
	// GIVEN: A role at version 1
	// WHEN: Updating with expected version 0
	// THEN: VersionConflict; version, name and audit trail unchanged
	// WHEN: Updating with expected version 1
	// THEN: Version becomes 2 and one ROLE_UPDATED entry is written

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	role := env.createRole(t, "Developer")
	before := len(env.auditFor(t, personnel.EntityRole, role.ID))

	_, err := env.svc.UpdateRole(ctx, testActor, role.ID, personnel.RolePatch{Name: strPtr("Renamed")}, intPtr(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrVersionConflict)

	var conflict *generic.VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, 0, conflict.Expected)
	assert.Equal(t, 1, conflict.Actual)

	got, err := env.svc.GetRole(ctx, role.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "Developer", got.Name)
	assert.Len(t, env.auditFor(t, personnel.EntityRole, role.ID), before)

	updated, err := env.svc.UpdateRole(ctx, testActor, role.ID, personnel.RolePatch{Name: strPtr("Renamed")}, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Renamed", updated.Name)

	entries := env.auditFor(t, personnel.EntityRole, role.ID)
	require.Len(t, entries, before+1)
	assert.Equal(t, generic.AuditRoleUpdated, entries[0].Action)
}

func TestCreateRole_DuplicateName(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	env.createRole(t, "Developer")

	_, err := env.svc.CreateRole(context.Background(), testActor, personnel.RoleDraft{Name: "Developer"})
	assert.ErrorIs(t, err, generic.ErrDuplicateField)

	inactive := false
	_, err = env.svc.CreateRole(context.Background(), testActor, personnel.RoleDraft{Name: "Developer", Active: &inactive})
	assert.NoError(t, err, "inactive roles do not claim the name")
}

func TestDeleteRole_BlockedByLiveAssignment(t *testing.T) {
	// GIVEN: A role assigned to a live person
	// WHEN: Tombstoning the role
	// THEN: RoleInUse; after the person is tombstoned the role deletion succeeds

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	role := env.createRole(t, "Developer")
	rec := env.createEmployee(t, "holder@example.com")
	_, err := env.svc.Assign(ctx, testActor, string(rec.ID), role.ID)
	require.NoError(t, err)

	_, err = env.svc.DeleteRole(ctx, testActor, role.ID, nil)
	assert.ErrorIs(t, err, generic.ErrRoleInUse)
	var inUse *generic.RoleInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 1, inUse.Assignments)

	_, err = env.svc.Delete(ctx, testActor, string(rec.ID), nil)
	require.NoError(t, err)

	deleted, err := env.svc.DeleteRole(ctx, testActor, role.ID, nil)
	require.NoError(t, err)
	assert.NotNil(t, deleted.DeletedAt)

	_, err = env.svc.GetRole(ctx, role.ID, false)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	restored, err := env.svc.RestoreRole(ctx, testActor, role.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, restored.DeletedAt)
}

func TestPurgeRole_RemovesSoftRemovedAssignments(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	role := env.createRole(t, "Temporary")
	rec := env.createEmployee(t, "temp@example.com")
	_, err := env.svc.Assign(ctx, testActor, string(rec.ID), role.ID)
	require.NoError(t, err)
	require.NoError(t, env.svc.Unassign(ctx, testActor, string(rec.ID), role.ID))

	require.NoError(t, env.svc.PurgeRole(ctx, testActor, role.ID, nil))

	_, err = env.svc.GetRole(ctx, role.ID, true)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	history, err := env.svc.Assignments(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestListRoles_Filters(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	env.createRole(t, "Developer")
	inactive := false
	_, err := env.svc.CreateRole(ctx, testActor, personnel.RoleDraft{Name: "Legacy", Active: &inactive})
	require.NoError(t, err)
	gone := env.createRole(t, "Gone")
	_, err = env.svc.DeleteRole(ctx, testActor, gone.ID, nil)
	require.NoError(t, err)

	active, err := env.svc.ListRoles(ctx, personnel.RoleQuery{})
	require.NoError(t, err)
	assert.Len(t, active, 1)

	all, err := env.svc.ListRoles(ctx, personnel.RoleQuery{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	deleted, err := env.svc.ListRoles(ctx, personnel.RoleQuery{DeletedOnly: true})
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "Gone", deleted[0].Name)
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

func TestAssign_DuplicateAndUnassign(t *testing.T) {
	// GIVEN: A person holding a role
	// WHEN: Assigning the same role again
	// THEN: DuplicateField; after unassigning, the role can be assigned again

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	role := env.createRole(t, "Developer")
	rec := env.createEmployee(t, "dev@example.com")

	a, err := env.svc.Assign(ctx, testActor, rec.Label(), role.ID)
	require.NoError(t, err)
	assert.Equal(t, "Developer", a.RoleName)
	assert.Equal(t, testActor, a.AssignedBy)

	_, err = env.svc.Assign(ctx, testActor, string(rec.ID), role.ID)
	assert.ErrorIs(t, err, generic.ErrDuplicateField)

	require.NoError(t, env.svc.Unassign(ctx, testActor, string(rec.ID), role.ID))
	err = env.svc.Unassign(ctx, testActor, string(rec.ID), role.ID)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	_, err = env.svc.Assign(ctx, testActor, string(rec.ID), role.ID)
	require.NoError(t, err)

	live, err := env.svc.Assignments(ctx, string(rec.ID), true)
	require.NoError(t, err)
	assert.Len(t, live, 1)
	all, err := env.svc.Assignments(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAssign_InactiveRoleRejected(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	inactive := false
	role, err := env.svc.CreateRole(context.Background(), testActor, personnel.RoleDraft{Name: "Dormant", Active: &inactive})
	require.NoError(t, err)
	rec := env.createEmployee(t, "x@example.com")

	_, err = env.svc.Assign(context.Background(), testActor, string(rec.ID), role.ID)
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// ORGANIZATIONAL UNITS
// =============================================================================

func TestUnits_AxesAreIndependentNamespaces(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()

	_, err := env.svc.CreateUnit(ctx, testActor, personnel.AxisDomain, "North", "")
	require.NoError(t, err)
	_, err = env.svc.CreateUnit(ctx, testActor, personnel.AxisDivision, "North", "")
	require.NoError(t, err, "the same name may exist on both axes")

	_, err = env.svc.CreateUnit(ctx, testActor, personnel.AxisDomain, "North", "again")
	assert.ErrorIs(t, err, generic.ErrDuplicateField)

	domains, err := env.svc.ListUnits(ctx, personnel.UnitQuery{Axis: personnel.AxisDomain})
	require.NoError(t, err)
	assert.Len(t, domains, 1)
}

func TestUpdateUnit_VersionCheck(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	u, err := env.svc.CreateUnit(ctx, testActor, personnel.AxisDivision, "Sales", "")
	require.NoError(t, err)

	renamed, err := env.svc.UpdateUnit(ctx, testActor, u.ID, personnel.UnitPatch{Name: strPtr("Field Sales")}, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 2, renamed.Version)

	_, err = env.svc.UpdateUnit(ctx, testActor, u.ID, personnel.UnitPatch{Description: strPtr("x")}, intPtr(1))
	assert.ErrorIs(t, err, generic.ErrVersionConflict)
}

func TestPurgeUnit_ClearsPersonnelReferences(t *testing.T) {
	// GIVEN: A person referencing a domain
	// WHEN: Purging the domain
	// THEN: The person keeps existing with no domain, the unit is gone, and the
	//       person's version and audit trail move together (neither changes)

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	domain, err := env.svc.CreateUnit(ctx, testActor, personnel.AxisDomain, "Research", "")
	require.NoError(t, err)
	rec, err := env.svc.Create(ctx, testActor, personnel.Admission{
		Name: "Researcher", Email: "r@example.com", Category: personnel.CategoryEmployee, DomainID: domain.ID,
	})
	require.NoError(t, err)

	before := env.auditFor(t, personnel.EntityPersonnel, string(rec.ID))

	require.NoError(t, env.svc.PurgeUnit(ctx, testActor, domain.ID, nil))

	got, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Empty(t, got.DomainID)
	assert.Equal(t, rec.Version, got.Version)
	assert.Len(t, env.auditFor(t, personnel.EntityPersonnel, string(rec.ID)), len(before))

	_, err = env.svc.GetUnit(ctx, domain.ID, true)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	unitEntries := env.auditFor(t, personnel.EntityUnit, domain.ID)
	require.NotEmpty(t, unitEntries)
	assert.Equal(t, generic.AuditUnitPurged, unitEntries[0].Action)
	assert.Equal(t, []any{string(rec.ID)}, unitEntries[0].After["cleared_personnel"])
}

func TestDeleteUnit_TombstonedUnitNotReferenceable(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	u, err := env.svc.CreateUnit(ctx, testActor, personnel.AxisDivision, "Closed", "")
	require.NoError(t, err)
	_, err = env.svc.DeleteUnit(ctx, testActor, u.ID, nil)
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, testActor, personnel.Admission{
		Name: "Late", Email: "late@example.com", Category: personnel.CategoryEmployee, DivisionID: u.ID,
	})
	assert.ErrorIs(t, err, generic.ErrValidation)

	_, err = env.svc.RestoreUnit(ctx, testActor, u.ID, nil)
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, testActor, personnel.Admission{
		Name: "Late", Email: "late@example.com", Category: personnel.CategoryEmployee, DivisionID: u.ID,
	})
	assert.NoError(t, err)
}
