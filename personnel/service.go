/*
service.go - Transactional personnel operations

PURPOSE:
  The only writer of personnel state. Each public mutation:
    1. requires an actor reference (ErrMissingActor otherwise)
    2. opens exactly one store transaction
    3. resolves the subject and checks the caller's expected version
    4. applies the change and bumps the version by one (CAS on the read version)
    5. appends exactly one audit entry
    6. commits, or rolls back all of the above on any error

  mutate() owns steps 1, 2, 5 and 6 so no operation can forget them.

RESOLUTION:
  Tokens are either full identifiers or display labels, see identity.ParseToken.
  Default lookups exclude tombstoned records; restore and purge include them.

DELETION:
  Live -> Tombstoned (Delete, status INACTIVE)
  Tombstoned -> Live (Restore, status ACTIVE)
  Live|Tombstoned -> Purged (Purge, explicit cascade: assignments, internship)

SEE ALSO:
  - lifecycle.go: state machine consulted by transition()
  - roles.go, units.go: role, assignment and unit operations
  - sweep.go: expiry sweep
*/
package personnel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
)

// Service implements the personnel core on top of a Store.
type Service struct {
	store Store
	clock generic.Clock
	ids   *identity.Generator
	audit *generic.AuditTrail
	feed  *WarningFeed
	log   *logrus.Entry

	warningWindowDays int
}

type Option func(*Service)

// WithLogger sets the logger entry used for operational messages.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) { s.log = log }
}

// WithGenerator replaces the identifier generator.
func WithGenerator(g *identity.Generator) Option {
	return func(s *Service) { s.ids = g }
}

// WithWarningFeed enables publishing of expiry warnings by the sweep.
func WithWarningFeed(f *WarningFeed) Option {
	return func(s *Service) { s.feed = f }
}

// WithWarningWindow sets how many days ahead the sweep warns.
func WithWarningWindow(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.warningWindowDays = days
		}
	}
}

const DefaultWarningWindowDays = 7

func NewService(store Store, clock generic.Clock, opts ...Option) *Service {
	s := &Service{
		store:             store,
		clock:             clock,
		ids:               identity.NewGenerator(clock),
		audit:             generic.NewAuditTrail(clock),
		log:               logrus.NewEntry(logrus.StandardLogger()),
		warningWindowDays: DefaultWarningWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// TRANSACTION PLUMBING
// =============================================================================

// mutation performs one change inside tx and describes it. Actor, ID and
// timestamp of the returned entry are filled in by mutate.
type mutation func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error)

func (s *Service) mutate(ctx context.Context, actor string, fn mutation) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return generic.ErrMissingActor
	}

	var action generic.AuditAction
	err := s.store.WithTx(ctx, func(tx Tx) error {
		entry, err := fn(ctx, tx, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		entry.Actor = actor
		action = entry.Action
		return s.audit.Record(ctx, tx, entry)
	})
	s.observe(action, err)
	return err
}

func (s *Service) observe(action generic.AuditAction, err error) {
	m := getMetrics()
	if err == nil {
		m.mutationsTotal.WithLabelValues(string(action)).Inc()
		return
	}
	var conflict *generic.VersionConflictError
	if errors.As(err, &conflict) {
		m.conflictsTotal.WithLabelValues(conflict.Entity).Inc()
	}
}

// resolveIn finds the record a caller token designates.
func resolveIn(ctx context.Context, r Reader, token string, includeDeleted bool) (Record, error) {
	lookup, err := identity.ParseToken(token)
	if err != nil {
		return Record{}, err
	}

	var rec *Record
	switch lookup.Kind {
	case identity.BySuffix:
		rec, err = r.FindBySuffix(ctx, lookup.Suffix, includeDeleted)
	default:
		rec, err = r.GetPersonnel(ctx, lookup.Identifier, includeDeleted)
	}
	if err != nil {
		return Record{}, fmt.Errorf("resolve %q: %w", token, err)
	}
	if rec == nil {
		return Record{}, generic.NotFoundf("personnel %q", token)
	}
	return *rec, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Resolve returns the record designated by a full identifier or display label.
func (s *Service) Resolve(ctx context.Context, token string, includeDeleted bool) (Record, error) {
	return resolveIn(ctx, s.store, token, includeDeleted)
}

func (s *Service) List(ctx context.Context, q Query) ([]Record, int, error) {
	q = q.Normalize()
	if q.Text != "" {
		q.Text = strings.TrimSpace(q.Text)
	}
	return s.store.ListPersonnel(ctx, q)
}

// Assignments lists a person's role assignments, newest first.
func (s *Service) Assignments(ctx context.Context, token string, liveOnly bool) ([]Assignment, error) {
	rec, err := s.Resolve(ctx, token, true)
	if err != nil {
		return nil, err
	}
	return s.store.ListAssignments(ctx, rec.ID, liveOnly)
}

// Conversions lists the conversion history of a person.
func (s *Service) Conversions(ctx context.Context, token string) ([]ConversionRecord, error) {
	rec, err := s.Resolve(ctx, token, true)
	if err != nil {
		return nil, err
	}
	return s.store.ListConversions(ctx, rec.ID)
}

// Audit queries the audit trail, newest first.
func (s *Service) Audit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	if filter.Limit <= 0 || filter.Limit > MaxPerPage {
		filter.Limit = MaxPerPage
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.QueryAudit(ctx, filter)
}

// =============================================================================
// CREATE / UPDATE
// =============================================================================

// Create admits a new intern or employee. Interns get their internship
// sub-record in the same transaction.
func (s *Service) Create(ctx context.Context, actor string, a Admission) (Record, error) {
	draft, err := Admit(a, "", s.clock.Now())
	if err != nil {
		return Record{}, err
	}

	var created Record
	err = s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		if err := checkUnits(ctx, tx, draft.DomainID, draft.DivisionID); err != nil {
			return generic.AuditEntry{}, err
		}
		if err := checkEmail(ctx, tx, draft.Email, ""); err != nil {
			return generic.AuditEntry{}, err
		}

		started := time.Now()
		id, err := s.ids.Generate(ctx, tx)
		getMetrics().idGeneration.Observe(time.Since(started).Seconds())
		if err != nil {
			return generic.AuditEntry{}, err
		}

		rec := draft.Clone()
		rec.ID = id
		rec.CreatedAt, rec.UpdatedAt = now, now
		if rec.Internship != nil {
			rec.Internship.PersonnelID = id
			rec.Internship.UpdatedAt = now
		}
		if err := tx.InsertPersonnel(ctx, rec); err != nil {
			return generic.AuditEntry{}, err
		}
		created = rec

		return generic.AuditEntry{
			Action:      generic.AuditUserCreated,
			EntityType:  EntityPersonnel,
			EntityID:    string(id),
			After:       rec.Snapshot(),
			Description: fmt.Sprintf("created %s %s (%s)", strings.ToLower(string(rec.Category)), rec.Name, rec.Label()),
		}, nil
	})
	if err != nil {
		return Record{}, err
	}
	return created, nil
}

// Patch lists the fields an update may change. Nil means unchanged; an empty
// unit reference clears it. Status and category are owned by the lifecycle.
type Patch struct {
	Name       *string
	Email      *string
	Phone      *string
	DomainID   *string
	DivisionID *string
	JoinDate   *generic.TimePoint
}

// Update changes profile fields under optimistic locking.
func (s *Service) Update(ctx context.Context, actor, token string, p Patch, expected *int) (Record, error) {
	var updated Record
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		rec, err := resolveIn(ctx, tx, token, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(rec, expected); err != nil {
			return generic.AuditEntry{}, err
		}

		next := rec.Clone()
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return generic.AuditEntry{}, generic.Validationf("name cannot be empty")
			}
			next.Name = name
		}
		if p.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*p.Email))
			if email == "" {
				return generic.AuditEntry{}, generic.Validationf("email cannot be empty")
			}
			if email != rec.Email {
				if err := checkEmail(ctx, tx, email, rec.ID); err != nil {
					return generic.AuditEntry{}, err
				}
			}
			next.Email = email
		}
		if p.Phone != nil {
			next.Phone = strings.TrimSpace(*p.Phone)
		}
		if p.DomainID != nil {
			next.DomainID = *p.DomainID
		}
		if p.DivisionID != nil {
			next.DivisionID = *p.DivisionID
		}
		if p.JoinDate != nil {
			next.JoinDate = *p.JoinDate
		}
		if err := checkUnits(ctx, tx, next.DomainID, next.DivisionID); err != nil {
			return generic.AuditEntry{}, err
		}

		next.Version = generic.NextVersion(rec)
		next.UpdatedAt = now
		if err := tx.UpdatePersonnel(ctx, next, rec.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		updated = next

		return generic.AuditEntry{
			Action:      generic.AuditUserUpdated,
			EntityType:  EntityPersonnel,
			EntityID:    string(rec.ID),
			Before:      rec.Snapshot(),
			After:       next.Snapshot(),
			Description: fmt.Sprintf("updated %s", next.Name),
		}, nil
	})
	if err != nil {
		return Record{}, err
	}
	return updated, nil
}

func checkEmail(ctx context.Context, r Reader, email string, exclude identity.ID) error {
	taken, err := r.EmailTaken(ctx, email, exclude)
	if err != nil {
		return err
	}
	if taken {
		return &generic.DuplicateFieldError{Entity: EntityPersonnel, Field: "email", Value: email}
	}
	return nil
}

// checkUnits rejects references to missing, tombstoned or wrong-axis units.
func checkUnits(ctx context.Context, r Reader, domainID, divisionID string) error {
	for _, ref := range []struct {
		id   string
		axis Axis
	}{{domainID, AxisDomain}, {divisionID, AxisDivision}} {
		if ref.id == "" {
			continue
		}
		u, err := r.GetUnit(ctx, ref.id, false)
		if err != nil {
			return err
		}
		if u == nil {
			return generic.Validationf("%s %s does not exist", strings.ToLower(string(ref.axis)), ref.id)
		}
		if u.Axis != ref.axis {
			return generic.Validationf("unit %s is a %s, not a %s", ref.id, u.Axis, ref.axis)
		}
	}
	return nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Convert promotes an intern to employee. The identifier and its display
// suffix are unchanged; only the label tag is dropped.
func (s *Service) Convert(ctx context.Context, actor, token string, expected *int) (Record, error) {
	return s.transition(ctx, actor, token, expected, func(ctx context.Context, tx Tx, rec Record) (Event, error) {
		assignments, err := tx.ListAssignments(ctx, rec.ID, true)
		if err != nil {
			return nil, err
		}
		roles := make([]string, 0, len(assignments))
		for _, a := range assignments {
			roles = append(roles, a.RoleName)
		}
		return ConvertEvent{ActiveRoles: roles}, nil
	})
}

func (s *Service) Extend(ctx context.Context, actor, token string, newEnd generic.TimePoint, reason string, expected *int) (Record, error) {
	return s.transition(ctx, actor, token, expected, staticEvent(ExtendEvent{NewEnd: newEnd, Reason: reason}))
}

func (s *Service) EndInternship(ctx context.Context, actor, token string, expected *int) (Record, error) {
	return s.transition(ctx, actor, token, expected, staticEvent(EndEarlyEvent{}))
}

func (s *Service) Retire(ctx context.Context, actor, token string, expected *int) (Record, error) {
	return s.transition(ctx, actor, token, expected, staticEvent(RetireEvent{}))
}

type eventFunc func(ctx context.Context, tx Tx, rec Record) (Event, error)

func staticEvent(ev Event) eventFunc {
	return func(context.Context, Tx, Record) (Event, error) { return ev, nil }
}

// transition runs one lifecycle event against a live record and persists the
// outcome.
func (s *Service) transition(ctx context.Context, actor, token string, expected *int, build eventFunc) (Record, error) {
	var result Record
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		rec, err := resolveIn(ctx, tx, token, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(rec, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		ev, err := build(ctx, tx, rec)
		if err != nil {
			return generic.AuditEntry{}, err
		}

		out, err := Apply(rec, ev, now)
		if err != nil {
			return generic.AuditEntry{}, err
		}

		next := out.Record
		next.Version = generic.NextVersion(rec)
		next.UpdatedAt = now
		if next.Internship != nil {
			next.Internship.UpdatedAt = now
		}
		if err := tx.UpdatePersonnel(ctx, next, rec.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		if out.Conversion != nil {
			c := *out.Conversion
			c.ID = uuid.NewString()
			c.ConvertedBy = strings.TrimSpace(actor)
			if err := tx.InsertConversion(ctx, c); err != nil {
				return generic.AuditEntry{}, err
			}
		}
		result = next

		after := out.After
		if after == nil {
			after = map[string]any{}
		}
		after["version"] = next.Version
		return generic.AuditEntry{
			Action:      out.Action,
			EntityType:  EntityPersonnel,
			EntityID:    string(rec.ID),
			Before:      out.Before,
			After:       after,
			Description: out.Description,
		}, nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

// =============================================================================
// DELETION
// =============================================================================

// Delete tombstones a live record and marks it INACTIVE.
func (s *Service) Delete(ctx context.Context, actor, token string, expected *int) (Record, error) {
	return s.changeDeletion(ctx, actor, token, expected, generic.EventTombstone)
}

// Restore brings a tombstoned record back as ACTIVE. Fails with
// DuplicateIdentifier or DuplicateField when a live record took over its
// label suffix or email meanwhile.
func (s *Service) Restore(ctx context.Context, actor, token string, expected *int) (Record, error) {
	return s.changeDeletion(ctx, actor, token, expected, generic.EventRestore)
}

func (s *Service) changeDeletion(ctx context.Context, actor, token string, expected *int, ev generic.DeletionEvent) (Record, error) {
	var result Record
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		rec, err := resolveIn(ctx, tx, token, true)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(rec, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		if _, err := generic.NextDeletionState(rec.DeletionState(), ev); err != nil {
			return generic.AuditEntry{}, err
		}

		next := rec.Clone()
		action := generic.AuditUserDeleted
		switch ev {
		case generic.EventTombstone:
			next.DeletedAt = &now
			next.Status = StatusInactive
		case generic.EventRestore:
			if err := checkEmail(ctx, tx, rec.Email, rec.ID); err != nil {
				return generic.AuditEntry{}, err
			}
			next.DeletedAt = nil
			next.Status = StatusActive
			action = generic.AuditUserRestored
		}
		next.Version = generic.NextVersion(rec)
		next.UpdatedAt = now
		if err := tx.UpdatePersonnel(ctx, next, rec.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		result = next

		return generic.AuditEntry{
			Action:      action,
			EntityType:  EntityPersonnel,
			EntityID:    string(rec.ID),
			Before:      map[string]any{"status": string(rec.Status), "deleted": rec.DeletedAt != nil},
			After:       map[string]any{"status": string(next.Status), "deleted": next.DeletedAt != nil},
			Description: fmt.Sprintf("%s %s", ev, rec.Name),
		}, nil
	})
	if err != nil {
		return Record{}, err
	}
	return result, nil
}

// Purge irreversibly removes a record with its internship and assignments.
// Audit entries and conversion history are kept.
func (s *Service) Purge(ctx context.Context, actor, token string, expected *int) error {
	return s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		rec, err := resolveIn(ctx, tx, token, true)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(rec, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		if _, err := generic.NextDeletionState(rec.DeletionState(), generic.EventPurge); err != nil {
			return generic.AuditEntry{}, err
		}

		removed, err := purgePersonnel(ctx, tx, rec.ID)
		if err != nil {
			return generic.AuditEntry{}, err
		}

		return generic.AuditEntry{
			Action:      generic.AuditUserPurged,
			EntityType:  EntityPersonnel,
			EntityID:    string(rec.ID),
			Before:      rec.Snapshot(),
			Description: fmt.Sprintf("permanently deleted %s and %d assignment(s)", rec.Name, removed),
		}, nil
	})
}

// purgePersonnel is the cascade run on the Purged transition.
func purgePersonnel(ctx context.Context, tx Tx, id identity.ID) (int, error) {
	removed, err := tx.DeleteAssignmentsForPersonnel(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := tx.DeleteInternship(ctx, id); err != nil {
		return 0, err
	}
	if err := tx.DeletePersonnel(ctx, id); err != nil {
		return 0, err
	}
	return removed, nil
}
