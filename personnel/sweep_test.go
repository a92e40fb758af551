package personnel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

func TestSweep_ExpiresOverdueInternOnce(t *testing.T) {
	// GIVEN: An intern from 2025-01-01 to 2025-06-30
	// WHEN: The sweep runs on 2025-07-01
	// THEN: The intern is EXPIRED with one INTERN_EXPIRED entry by the system actor
	// WHEN: The sweep runs again on 2025-07-02
	// THEN: Nothing changes and no entry is added

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	rec := env.createIntern(t, "mary@example.com", date(2025, 1, 1), date(2025, 6, 30))

	env.clock.SetDay(date(2025, 6, 30))
	result, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Expired, "the last day of the internship is not overdue")

	env.clock.SetDay(date(2025, 7, 1))
	result, err = env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-07-01", result.Date)
	assert.Equal(t, []identity.ID{rec.ID}, result.Expired)

	got, err := env.svc.Resolve(ctx, string(rec.ID), false)
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusExpired, got.Status)
	assert.Equal(t, personnel.InternshipExpired, got.Internship.Status)

	expiries, err := env.svc.Audit(ctx, generic.AuditFilter{Action: generic.AuditInternExpired})
	require.NoError(t, err)
	require.Len(t, expiries, 1)
	assert.Equal(t, generic.SystemActor, expiries[0].Actor)
	assert.Equal(t, string(rec.ID), expiries[0].EntityID)

	env.clock.SetDay(date(2025, 7, 2))
	result, err = env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Expired)

	expiries, err = env.svc.Audit(ctx, generic.AuditFilter{Action: generic.AuditInternExpired})
	require.NoError(t, err)
	assert.Len(t, expiries, 1)
}

func TestSweep_LeavesOtherRecordsAlone(t *testing.T) {
	// GIVEN: An overdue intern, a converted intern, a tombstoned overdue
	//        intern and an employee
	// WHEN: Sweeping
	// THEN: Only the overdue live intern expires

	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	overdue := env.createIntern(t, "o@example.com", date(2025, 1, 1), date(2025, 3, 31))
	converted := env.createIntern(t, "c@example.com", date(2025, 1, 1), date(2025, 3, 31))
	tombstoned := env.createIntern(t, "t@example.com", date(2025, 1, 1), date(2025, 3, 31))
	employee := env.createEmployee(t, "e@example.com")

	_, err := env.svc.Convert(ctx, testActor, string(converted.ID), nil)
	require.NoError(t, err)
	_, err = env.svc.Delete(ctx, testActor, string(tombstoned.ID), nil)
	require.NoError(t, err)

	env.clock.SetDay(date(2025, 5, 1))
	result, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []identity.ID{overdue.ID}, result.Expired)
	assert.Zero(t, result.Failed)

	for _, id := range []identity.ID{converted.ID, employee.ID} {
		got, err := env.svc.Resolve(ctx, string(id), false)
		require.NoError(t, err)
		assert.Equal(t, personnel.StatusActive, got.Status)
	}
	got, err := env.svc.Resolve(ctx, string(tombstoned.ID), true)
	require.NoError(t, err)
	assert.Equal(t, personnel.StatusInactive, got.Status)
}

func TestSweep_ExtendedInternNotExpired(t *testing.T) {
	env := newTestEnv(t, date(2025, 1, 1))
	ctx := context.Background()
	rec := env.createIntern(t, "x@example.com", date(2025, 1, 1), date(2025, 6, 30))
	_, err := env.svc.Extend(ctx, testActor, string(rec.ID), date(2025, 8, 31), "thesis", nil)
	require.NoError(t, err)

	env.clock.SetDay(date(2025, 7, 15))
	result, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, result.Expired)
}

// =============================================================================
// WARNING FEED
// =============================================================================

func TestSweep_PublishesUpcomingExpiries(t *testing.T) {
	// GIVEN: Interns ending in 3, 7 and 8 days
	// WHEN: Sweeping
	// THEN: The feed holds the first two, soonest first, until its TTL elapses

	env := newTestEnv(t, date(2025, 6, 1))
	ctx := context.Background()
	soon := env.createIntern(t, "soon@example.com", date(2025, 1, 1), date(2025, 6, 4))
	edge := env.createIntern(t, "edge@example.com", date(2025, 1, 1), date(2025, 6, 8))
	env.createIntern(t, "later@example.com", date(2025, 1, 1), date(2025, 6, 9))

	result, err := env.svc.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, soon.ID, result.Warnings[0].Identifier)
	assert.Equal(t, 3, result.Warnings[0].DaysRemaining)
	assert.Equal(t, edge.ID, result.Warnings[1].Identifier)
	assert.Equal(t, 7, result.Warnings[1].DaysRemaining)
	assert.Empty(t, result.FeedError)

	published, err := env.svc.PublishedWarnings(ctx)
	require.NoError(t, err)
	require.Len(t, published, 2)
	assert.Equal(t, soon.Label(), published[0].Label)

	env.clock.Advance(personnel.DefaultFeedTTL)
	published, err = env.svc.PublishedWarnings(ctx)
	require.NoError(t, err)
	assert.Empty(t, published)
}

func TestWarningFeed_EmptyListIsPublished(t *testing.T) {
	env := newTestEnv(t, date(2025, 6, 1))
	ctx := context.Background()

	_, ok, err := env.cache.Get(ctx, personnel.DefaultFeedKey)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.svc.Sweep(ctx)
	require.NoError(t, err)

	raw, ok, err := env.cache.Get(ctx, personnel.DefaultFeedKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[]`, string(raw))
}

type failingCache struct{}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache unavailable")
}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func TestSweep_FeedFailureDoesNotFailSweep(t *testing.T) {
	// GIVEN: A warning feed whose cache is down
	// WHEN: Sweeping with an overdue intern
	// THEN: The intern still expires; the feed error is reported in the result

	env := newTestEnv(t, date(2025, 1, 1))
	svc := personnel.NewService(env.store, env.clock,
		personnel.WithWarningFeed(personnel.NewWarningFeed(failingCache{}, "", 0)))
	rec := env.createIntern(t, "f@example.com", date(2025, 1, 1), date(2025, 2, 1))

	env.clock.SetDay(date(2025, 3, 1))
	result, err := svc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []identity.ID{rec.ID}, result.Expired)
	assert.Contains(t, result.FeedError, "cache unavailable")
}

func TestUpcomingExpiries_CustomWindow(t *testing.T) {
	env := newTestEnv(t, date(2025, 6, 1))
	svc := personnel.NewService(env.store, env.clock, personnel.WithWarningWindow(30))
	env.createIntern(t, "a@example.com", date(2025, 1, 1), date(2025, 6, 20))
	env.createIntern(t, "b@example.com", date(2025, 1, 1), date(2025, 7, 10))

	warnings, err := svc.UpcomingExpiries(context.Background(), date(2025, 6, 1))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, 19, warnings[0].DaysRemaining)
}
