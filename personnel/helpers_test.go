package personnel_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
	"github.com/warp/personnel-engine/store/memory"
	"github.com/warp/personnel-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testActor = "user:admin-1"

// testClock is a clock the test can move between operations.
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock(day generic.TimePoint) *testClock {
	return &testClock{at: day.Time.Add(9 * time.Hour)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// SetDay moves the clock to 09:00 UTC on day.
func (c *testClock) SetDay(day generic.TimePoint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = day.Time.Add(9 * time.Hour)
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

type testEnv struct {
	svc   *personnel.Service
	store *sqlite.Store
	clock *testClock
	cache *memory.Cache
	feed  *personnel.WarningFeed
}

func newTestEnv(t *testing.T, today generic.TimePoint) *testEnv {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := newTestClock(today)
	cache := memory.NewCache(clock)
	feed := personnel.NewWarningFeed(cache, personnel.DefaultFeedKey, personnel.DefaultFeedTTL)
	svc := personnel.NewService(store, clock, personnel.WithWarningFeed(feed))
	return &testEnv{svc: svc, store: store, clock: clock, cache: cache, feed: feed}
}

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func (e *testEnv) createIntern(t *testing.T, email string, start, end generic.TimePoint) personnel.Record {
	t.Helper()
	rec, err := e.svc.Create(context.Background(), testActor, personnel.Admission{
		Name:       "Intern " + email,
		Email:      email,
		Category:   personnel.CategoryIntern,
		Internship: &generic.Period{Start: start, End: end},
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) createEmployee(t *testing.T, email string) personnel.Record {
	t.Helper()
	rec, err := e.svc.Create(context.Background(), testActor, personnel.Admission{
		Name:     "Employee " + email,
		Email:    email,
		Category: personnel.CategoryEmployee,
	})
	require.NoError(t, err)
	return rec
}

func (e *testEnv) createRole(t *testing.T, name string) personnel.Role {
	t.Helper()
	role, err := e.svc.CreateRole(context.Background(), testActor, personnel.RoleDraft{Name: name, Clearance: 3})
	require.NoError(t, err)
	return role
}

// auditFor returns the audit entries of one entity, newest first.
func (e *testEnv) auditFor(t *testing.T, entityType, entityID string) []generic.AuditEntry {
	t.Helper()
	entries, err := e.svc.Audit(context.Background(), generic.AuditFilter{EntityType: entityType, EntityID: entityID})
	require.NoError(t, err)
	return entries
}
