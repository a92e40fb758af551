/*
audit.go - Append-only audit trail

PURPOSE:
  Every mutation in the core writes exactly one AuditEntry inside the same
  database transaction as the change it describes. A reader can never see a
  state change (or version bump) without its entry, or an entry without its
  change: both commit or both roll back.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. Purging a record keeps its entries.
  2. ONE ENTRY PER MUTATION: callers record once, after the change is applied
     and before the transaction commits.
  3. ATTRIBUTED: every entry carries the actor reference supplied by the
     caller. The core does not validate it.
  4. CASCADES: rows touched by a cascade (personnel detached from a purged
     unit) keep their version; the parent's entry lists them.

SEE ALSO:
  - store.go: AuditAppender / AuditLog persistence ports
  - personnel/service.go: records entries inside WithTx
*/
package generic

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// AUDIT ENTRY
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID          string
	Action      AuditAction
	EntityType  string
	EntityID    string
	Actor       string
	Before      map[string]any
	After       map[string]any
	Description string
	Timestamp   time.Time
}

type AuditAction string

const (
	AuditUserCreated        AuditAction = "USER_CREATED"
	AuditUserUpdated        AuditAction = "USER_UPDATED"
	AuditUserDeleted        AuditAction = "USER_DELETED"
	AuditUserRestored       AuditAction = "USER_RESTORED"
	AuditUserPurged         AuditAction = "USER_PERMANENTLY_DELETED"
	AuditUserRetired        AuditAction = "USER_RETIRED"
	AuditInternConverted    AuditAction = "INTERN_CONVERTED"
	AuditInternshipExtended AuditAction = "INTERNSHIP_EXTENDED"
	AuditInternshipEnded    AuditAction = "INTERNSHIP_ENDED"
	AuditInternExpired      AuditAction = "INTERN_EXPIRED"
	AuditRoleAssigned       AuditAction = "ROLE_ASSIGNED"
	AuditRoleRemoved        AuditAction = "ROLE_REMOVED"
	AuditRoleCreated        AuditAction = "ROLE_CREATED"
	AuditRoleUpdated        AuditAction = "ROLE_UPDATED"
	AuditRoleDeleted        AuditAction = "ROLE_DELETED"
	AuditRoleRestored       AuditAction = "ROLE_RESTORED"
	AuditRolePurged         AuditAction = "ROLE_PERMANENTLY_DELETED"
	AuditUnitCreated        AuditAction = "UNIT_CREATED"
	AuditUnitUpdated        AuditAction = "UNIT_UPDATED"
	AuditUnitDeleted        AuditAction = "UNIT_DELETED"
	AuditUnitRestored       AuditAction = "UNIT_RESTORED"
	AuditUnitPurged         AuditAction = "UNIT_PERMANENTLY_DELETED"
)

// SystemActor attributes entries written by scheduled jobs.
const SystemActor = "system:expiry-sweep"

// =============================================================================
// AUDIT TRAIL - Stamps and appends entries
// =============================================================================

// AuditTrail is the single writer of audit entries. It assigns the entry ID
// and timestamp so callers cannot forge either.
type AuditTrail struct {
	Clock Clock
}

func NewAuditTrail(clock Clock) *AuditTrail {
	return &AuditTrail{Clock: clock}
}

// Record validates and appends one entry through w, which must be bound to
// the transaction carrying the mutation.
func (a *AuditTrail) Record(ctx context.Context, w AuditAppender, entry AuditEntry) error {
	if entry.Action == "" || entry.EntityType == "" {
		return Validationf("audit entry requires action and entity type")
	}
	if entry.Actor == "" {
		return ErrMissingActor
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = a.Clock.Now().UTC()
	return w.AppendAudit(ctx, entry)
}
