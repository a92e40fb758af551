package personnel_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// CREATE AND RESOLVE
// =============================================================================

func TestCreate_InternResolvableByIdentifierAndLabel(t *testing.T) {
	// GIVEN: A new intern
	// WHEN: Resolving by identifier, tagged label and lowercase label
	// THEN: All designate the same record

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()

	rec := env.createIntern(t, "alan@example.com", date(2025, 1, 1), date(2025, 6, 30))
	assert.Len(t, string(rec.ID), 26)
	assert.Equal(t, personnel.StatusActive, rec.Status)
	assert.Equal(t, 1, rec.Version)

	for _, token := range []string{string(rec.ID), rec.Label(), "  " + rec.Label() + " "} {
		got, err := env.svc.Resolve(ctx, token, false)
		require.NoError(t, err, token)
		assert.Equal(t, rec.ID, got.ID)
	}

	entries := env.auditFor(t, personnel.EntityPersonnel, string(rec.ID))
	require.Len(t, entries, 1)
	assert.Equal(t, generic.AuditUserCreated, entries[0].Action)
	assert.Equal(t, testActor, entries[0].Actor)
}

func TestResolve_UnknownAndMalformed(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()

	for _, token := range []string{"01JH8Q2V7CK3M4N5T6V4B1C9D0", "INT-AAAA-BBBB-CC", "INT-IIII-LLLL-OO", "", "nope"} {
		_, err := env.svc.Resolve(ctx, token, false)
		assert.ErrorIs(t, err, generic.ErrNotFound, "token %q", token)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	env.createEmployee(t, "grace@example.com")

	_, err := env.svc.Create(context.Background(), testActor, personnel.Admission{
		Name: "Other", Email: "GRACE@example.com", Category: personnel.CategoryEmployee,
	})
	assert.ErrorIs(t, err, generic.ErrDuplicateField)
}

func TestCreate_MissingActor(t *testing.T) {
	// GIVEN: No actor reference
	// WHEN: Creating
	// THEN: ErrMissingActor, nothing stored, no audit entry

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()

	_, err := env.svc.Create(ctx, "  ", personnel.Admission{
		Name: "Nobody", Email: "nobody@example.com", Category: personnel.CategoryEmployee,
	})
	assert.ErrorIs(t, err, generic.ErrMissingActor)

	_, total, err := env.svc.List(ctx, personnel.Query{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	entries, err := env.svc.Audit(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreate_UnitReferences(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()

	domain, err := env.svc.CreateUnit(ctx, testActor, personnel.AxisDomain, "Engineering", "")
	require.NoError(t, err)
	division, err := env.svc.CreateUnit(ctx, testActor, personnel.AxisDivision, "North", "")
	require.NoError(t, err)

	rec, err := env.svc.Create(ctx, testActor, personnel.Admission{
		Name: "Unit Person", Email: "unit@example.com", Category: personnel.CategoryEmployee,
		DomainID: domain.ID, DivisionID: division.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ID, rec.DomainID)

	// a division passed as domain is rejected
	_, err = env.svc.Create(ctx, testActor, personnel.Admission{
		Name: "Wrong Axis", Email: "axis@example.com", Category: personnel.CategoryEmployee,
		DomainID: division.ID,
	})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// UPDATE AND OPTIMISTIC LOCKING
// =============================================================================

func TestUpdate_VersionCheck(t *testing.T) {
	// GIVEN: A record at version 1
	// WHEN: Updating with expected version 1, then again with the stale 1
	// THEN: The first succeeds (version 2), the second conflicts and changes nothing

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	rec := env.createEmployee(t, "grace@example.com")

	updated, err := env.svc.Update(ctx, testActor, string(rec.ID), personnel.Patch{Name: strPtr("Grace Hopper")}, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Grace Hopper", updated.Name)

	_, err = env.svc.Update(ctx, testActor, string(rec.ID), personnel.Patch{Name: strPtr("Stale")}, intPtr(1))
	assert.ErrorIs(t, err, generic.ErrVersionConflict)
	assert.True(t, generic.IsRetryable(err))

	got, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Equal(t, "Grace Hopper", got.Name)
	assert.Equal(t, 2, got.Version)
	assert.Len(t, env.auditFor(t, personnel.EntityPersonnel, string(rec.ID)), 2)
}

func TestUpdate_ConcurrentWritersOneWins(t *testing.T) {
	// GIVEN: A record at version 1
	// WHEN: Many writers update it at once, all expecting version 1
	// THEN: Exactly one succeeds, every other gets a version conflict, and
	//       the record carries one update entry on top of its creation

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	rec := env.createEmployee(t, "race@example.com")

	const writers = 20
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("Writer %d", i)
			_, errs[i] = env.svc.Update(ctx, testActor, string(rec.ID), personnel.Patch{Name: &name}, intPtr(1))
		}(i)
	}
	wg.Wait()

	var ok, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, generic.ErrVersionConflict):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, writers-1, conflicts)

	got, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Len(t, env.auditFor(t, personnel.EntityPersonnel, string(rec.ID)), 2)
}

func TestUpdate_EmailCollision(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	env.createEmployee(t, "a@example.com")
	b := env.createEmployee(t, "b@example.com")

	_, err := env.svc.Update(context.Background(), testActor, string(b.ID), personnel.Patch{Email: strPtr("A@example.com")}, nil)
	assert.ErrorIs(t, err, generic.ErrDuplicateField)
}

// =============================================================================
// LIFECYCLE THROUGH THE SERVICE
// =============================================================================

func TestConvert_MigratesRolesAndKeepsIdentifier(t *testing.T) {
	// GIVEN: An intern with a live role
	// WHEN: Converting, then converting again
	// THEN: Identifier unchanged, EMPLOYEE/ACTIVE, untagged label still resolves,
	//       one conversion record; the second attempt fails with AlreadyConverted

	env := newTestEnv(t, date(2025, 3, 1))
	ctx := context.Background()
	rec := env.createIntern(t, "alan@example.com", date(2025, 1, 1), date(2025, 6, 30))
	role := env.createRole(t, "Developer")
	_, err := env.svc.Assign(ctx, testActor, string(rec.ID), role.ID)
	require.NoError(t, err)

	converted, err := env.svc.Convert(ctx, testActor, rec.Label(), intPtr(rec.Version))
	require.NoError(t, err)
	assert.Equal(t, rec.ID, converted.ID)
	assert.Equal(t, personnel.CategoryEmployee, converted.Category)
	assert.Equal(t, personnel.StatusActive, converted.Status)
	assert.Equal(t, rec.Version+1, converted.Version)

	// the employee label shares the suffix of the old intern label
	got, err := env.svc.Resolve(ctx, converted.Label(), false)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	history, err := env.svc.Conversions(ctx, string(rec.ID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, []string{"Developer"}, history[0].Roles)
	assert.Equal(t, testActor, history[0].ConvertedBy)

	_, err = env.svc.Convert(ctx, testActor, string(rec.ID), nil)
	assert.ErrorIs(t, err, generic.ErrAlreadyConverted)

	// assignments survive the conversion
	live, err := env.svc.Assignments(ctx, string(rec.ID), true)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestExtend_ExpiredInternReactivated(t *testing.T) {
	// GIVEN: An intern expired by the sweep on 2025-07-01
	// WHEN: Extending the end date from 2025-06-30 to 2025-07-31
	// THEN: Status ACTIVE, extension counter 0 -> 1, no longer overdue

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	rec := env.createIntern(t, "mary@example.com", date(2025, 1, 1), date(2025, 6, 30))

	env.clock.SetDay(date(2025, 7, 1))
	_, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	expired, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	require.Equal(t, personnel.StatusExpired, expired.Status)
	require.Equal(t, 0, expired.Internship.Extensions)

	extended, err := env.svc.Extend(ctx, testActor, string(rec.ID), date(2025, 7, 31), "project overrun", intPtr(expired.Version))
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusActive, extended.Status)
	assert.Equal(t, 1, extended.Internship.Extensions)
	assert.Equal(t, personnel.InternshipExtended, extended.Internship.Status)
	assert.True(t, extended.Internship.Period.End.Equal(date(2025, 7, 31)))

	stored, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Equal(t, extended.Version, stored.Version)
	assert.Equal(t, "project overrun", stored.Internship.OverrideReason)
}

func TestExtend_InvalidRangeLeavesRecord(t *testing.T) {
	env := newTestEnv(t, date(2025, 3, 1))
	ctx := context.Background()
	rec := env.createIntern(t, "x@example.com", date(2025, 1, 1), date(2025, 6, 30))

	_, err := env.svc.Extend(ctx, testActor, string(rec.ID), date(2025, 6, 1), "shorter", nil)
	assert.ErrorIs(t, err, generic.ErrInvalidDateRange)

	got, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Len(t, env.auditFor(t, personnel.EntityPersonnel, string(rec.ID)), 1)
}

func TestEndInternshipAndRetire(t *testing.T) {
	env := newTestEnv(t, date(2025, 4, 15))
	ctx := context.Background()

	intern := env.createIntern(t, "i@example.com", date(2025, 1, 1), date(2025, 6, 30))
	ended, err := env.svc.EndInternship(ctx, testActor, string(intern.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusExpired, ended.Status)
	assert.True(t, ended.Internship.Period.End.Equal(date(2025, 4, 15)))

	_, err = env.svc.EndInternship(ctx, testActor, string(intern.ID), nil)
	assert.ErrorIs(t, err, generic.ErrAlreadyEnded)

	emp := env.createEmployee(t, "e@example.com")
	retired, err := env.svc.Retire(ctx, testActor, string(emp.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusInactive, retired.Status)

	_, err = env.svc.Retire(ctx, testActor, string(emp.ID), nil)
	assert.ErrorIs(t, err, generic.ErrAlreadyInactive)
}

// =============================================================================
// DELETION
// =============================================================================

func TestDeleteRestore(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	rec := env.createEmployee(t, "d@example.com")

	deleted, err := env.svc.Delete(ctx, testActor, string(rec.ID), intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusInactive, deleted.Status)
	assert.NotNil(t, deleted.DeletedAt)

	_, err = env.svc.Resolve(ctx, string(rec.ID), false)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = env.svc.Resolve(ctx, rec.Label(), true)
	require.NoError(t, err)

	_, err = env.svc.Delete(ctx, testActor, string(rec.ID), nil)
	assert.ErrorIs(t, err, generic.ErrInvalidTransition)

	restored, err := env.svc.Restore(ctx, testActor, string(rec.ID), intPtr(2))
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusActive, restored.Status)
	assert.Nil(t, restored.DeletedAt)
	assert.Equal(t, 3, restored.Version)
}

func TestRestore_EmailTakenMeanwhile(t *testing.T) {
	// GIVEN: A tombstoned record whose email was reused by a new live record
	// WHEN: Restoring the tombstoned record
	// THEN: DuplicateField; the record stays tombstoned

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	old := env.createEmployee(t, "reuse@example.com")
	_, err := env.svc.Delete(ctx, testActor, string(old.ID), nil)
	require.NoError(t, err)
	env.createEmployee(t, "reuse@example.com")

	_, err = env.svc.Restore(ctx, testActor, string(old.ID), nil)
	assert.ErrorIs(t, err, generic.ErrDuplicateField)

	got, err := env.svc.Resolve(ctx, string(old.ID), true)
	require.NoError(t, err)
	assert.NotNil(t, got.DeletedAt)
}

func TestPurge_CascadesAndKeepsAudit(t *testing.T) {
	// GIVEN: An intern with an internship and two assignments
	// WHEN: Purging
	// THEN: Record, internship and assignments are gone; resolve returns NotFound;
	//       the audit trail still has every entry plus the purge entry

	env := newTestEnv(t, date(2025, 2, 1))
	ctx := context.Background()
	rec := env.createIntern(t, "p@example.com", date(2025, 1, 1), date(2025, 6, 30))
	r1 := env.createRole(t, "Developer")
	r2 := env.createRole(t, "Viewer")
	_, err := env.svc.Assign(ctx, testActor, string(rec.ID), r1.ID)
	require.NoError(t, err)
	_, err = env.svc.Assign(ctx, testActor, string(rec.ID), r2.ID)
	require.NoError(t, err)

	require.NoError(t, env.svc.Purge(ctx, testActor, string(rec.ID), nil))

	_, err = env.svc.Resolve(ctx, string(rec.ID), true)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	_, err = env.svc.Resolve(ctx, rec.Label(), true)
	assert.ErrorIs(t, err, generic.ErrNotFound)

	left, err := env.store.ListAssignments(ctx, rec.ID, false)
	require.NoError(t, err)
	assert.Empty(t, left)

	roles, err := env.svc.ListRoles(ctx, personnel.RoleQuery{})
	require.NoError(t, err)
	for _, r := range roles {
		assert.Zero(t, r.LiveAssignments)
	}

	entries := env.auditFor(t, personnel.EntityPersonnel, string(rec.ID))
	require.Len(t, entries, 4)
	assert.Equal(t, generic.AuditUserPurged, entries[0].Action)

	err = env.svc.Purge(ctx, testActor, string(rec.ID), nil)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

// =============================================================================
// LISTING
// =============================================================================

func TestList_FiltersAndPagination(t *testing.T) {
	env := newTestEnv(t, date(2025, 3, 1))
	ctx := context.Background()

	for _, email := range []string{"i1@example.com", "i2@example.com", "i3@example.com"} {
		env.createIntern(t, email, date(2025, 1, 1), date(2025, 6, 30))
	}
	e1 := env.createEmployee(t, "e1@example.com")
	env.createEmployee(t, "e2@example.com")
	_, err := env.svc.Delete(ctx, testActor, string(e1.ID), nil)
	require.NoError(t, err)

	interns, total, err := env.svc.List(ctx, personnel.Query{Category: personnel.CategoryIntern})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, interns, 3)

	_, total, err = env.svc.List(ctx, personnel.Query{})
	require.NoError(t, err)
	assert.Equal(t, 4, total, "tombstoned records are hidden by default")

	deleted, total, err := env.svc.List(ctx, personnel.Query{DeletedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, e1.ID, deleted[0].ID)

	page, total, err := env.svc.List(ctx, personnel.Query{Page: 2, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, page, 1)

	found, _, err := env.svc.List(ctx, personnel.Query{Text: "i2@"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "i2@example.com", found[0].Email)
}

func TestList_TextIsMatchedLiterally(t *testing.T) {
	// GIVEN: Emails that differ only where a LIKE wildcard would match
	// WHEN: Searching for text containing % or _
	// THEN: Only literal matches come back

	env := newTestEnv(t, date(2025, 3, 1))
	ctx := context.Background()
	env.createEmployee(t, "a_b@example.com")
	env.createEmployee(t, "axb@example.com")

	found, total, err := env.svc.List(ctx, personnel.Query{Text: "a_b"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, found, 1)
	assert.Equal(t, "a_b@example.com", found[0].Email)

	_, total, err = env.svc.List(ctx, personnel.Query{Text: "%"})
	require.NoError(t, err)
	assert.Zero(t, total)
}
