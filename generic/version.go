package generic

// =============================================================================
// OPTIMISTIC CONCURRENCY - Version counters on mutable entities
// =============================================================================

// InitialVersion is the version of every newly created versioned entity.
const InitialVersion = 1

// Versioned is implemented by entities guarded by optimistic locking.
type Versioned interface {
	EntityType() string
	EntityKey() string
	CurrentVersion() int
}

// CheckVersion compares a caller-supplied expected version with the stored
// one. A nil expectation bypasses the check (last-write-wins).
func CheckVersion(v Versioned, expected *int) error {
	if expected == nil {
		return nil
	}
	if *expected != v.CurrentVersion() {
		return &VersionConflictError{
			Entity:   v.EntityType(),
			ID:       v.EntityKey(),
			Expected: *expected,
			Actual:   v.CurrentVersion(),
		}
	}
	return nil
}

// NextVersion is the version a successful mutation writes.
func NextVersion(v Versioned) int {
	return v.CurrentVersion() + 1
}
