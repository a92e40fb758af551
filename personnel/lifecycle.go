/*
lifecycle.go - Category/status state machine (pure)

PURPOSE:
  Decides every category and status change of a personnel record. Apply is a
  function from (record, event, now) to (new record, effects); it performs no
  I/O and never reads the system clock. The service persists what it returns.

STATES:
  INTERN_ACTIVE    intern, status ACTIVE, internship ACTIVE
  INTERN_EXTENDED  intern, status ACTIVE, internship EXTENDED
  INTERN_EXPIRED   intern, status EXPIRED
  EMPLOYEE_ACTIVE  employee, status ACTIVE (includes converted interns)
  INACTIVE         status INACTIVE (retired employee or tombstoned person)

TRANSITIONS:
  INTERN_ACTIVE|EXTENDED|EXPIRED -> EMPLOYEE_ACTIVE   Convert
  INTERN_ACTIVE|EXTENDED|EXPIRED -> INTERN_EXTENDED   Extend (new end > end)
  INTERN_ACTIVE|EXTENDED         -> INTERN_EXPIRED    EndEarly
  INTERN_ACTIVE|EXTENDED         -> INTERN_EXPIRED    Expire (end < today)
  EMPLOYEE_ACTIVE                -> INACTIVE          Retire

  Converted interns never go back: CONVERTED is terminal for the intern
  identity, INACTIVE is terminal for employees.

SEE ALSO:
  - service.go: runs Apply inside a transaction with version check and audit
  - sweep.go:   drives Expire
*/
package personnel

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
)

// State is the lifecycle position derived from category and statuses.
type State string

const (
	StateInternActive   State = "INTERN_ACTIVE"
	StateInternExtended State = "INTERN_EXTENDED"
	StateInternExpired  State = "INTERN_EXPIRED"
	StateEmployeeActive State = "EMPLOYEE_ACTIVE"
	StateInactive       State = "INACTIVE"
)

// StateOf derives the lifecycle state of r.
func StateOf(r Record) State {
	if r.Status == StatusInactive {
		return StateInactive
	}
	switch r.Category {
	case CategoryIntern:
		if r.Status == StatusExpired {
			return StateInternExpired
		}
		if r.Internship != nil && r.Internship.Status == InternshipExtended {
			return StateInternExtended
		}
		return StateInternActive
	default:
		return StateEmployeeActive
	}
}

// IsTerminal reports whether no lifecycle event can leave s.
func IsTerminal(s State) bool {
	return s == StateInactive
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is a closed set of lifecycle requests.
type Event interface {
	eventName() string
}

// ConvertEvent promotes an intern to employee. ActiveRoles are the names of
// the roles assigned at conversion time.
type ConvertEvent struct {
	ActiveRoles []string
}

// ExtendEvent moves the internship end date later.
type ExtendEvent struct {
	NewEnd generic.TimePoint
	Reason string
}

// EndEarlyEvent terminates an internship today.
type EndEarlyEvent struct{}

// RetireEvent deactivates an employee.
type RetireEvent struct{}

// ExpireEvent is raised by the sweep for overdue internships.
type ExpireEvent struct{}

func (ConvertEvent) eventName() string  { return "convert" }
func (ExtendEvent) eventName() string   { return "extend" }
func (EndEarlyEvent) eventName() string { return "end_internship" }
func (RetireEvent) eventName() string   { return "retire" }
func (ExpireEvent) eventName() string   { return "expire" }

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the result of an accepted event. Record is a fresh copy; the
// input record is never modified. Version and UpdatedAt are left to the
// service.
type Outcome struct {
	From        State
	To          State
	Record      Record
	Action      generic.AuditAction
	Before      map[string]any
	After       map[string]any
	Description string

	// Conversion is set only by ConvertEvent.
	Conversion *ConversionRecord
}

// Apply validates ev against r and returns the resulting record and effects.
func Apply(r Record, ev Event, now time.Time) (Outcome, error) {
	today := generic.DateOf(now)
	from := StateOf(r)
	next := r.Clone()

	var out Outcome
	var err error
	switch e := ev.(type) {
	case ConvertEvent:
		out, err = applyConvert(r, next, e, now)
	case ExtendEvent:
		out, err = applyExtend(r, next, e)
	case EndEarlyEvent:
		out, err = applyEndEarly(r, next, today)
	case RetireEvent:
		out, err = applyRetire(r, next, today)
	case ExpireEvent:
		out, err = applyExpire(r, next, today)
	default:
		return Outcome{}, fmt.Errorf("unknown lifecycle event %T", ev)
	}
	if err != nil {
		return Outcome{}, err
	}

	out.From = from
	out.To = StateOf(out.Record)
	return out, nil
}

func reject(r Record, ev Event, kind error, reason string) error {
	return &generic.TransitionError{
		From:   string(StateOf(r)),
		Event:  ev.eventName(),
		Kind:   kind,
		Reason: reason,
	}
}

func applyConvert(r, next Record, e ConvertEvent, now time.Time) (Outcome, error) {
	if r.Category != CategoryIntern {
		if r.ConvertedAt != nil {
			return Outcome{}, reject(r, e, generic.ErrAlreadyConverted, "converted on "+r.ConvertedAt.UTC().Format(generic.DateLayout))
		}
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "only interns can be converted")
	}
	if r.Status == StatusConverted {
		return Outcome{}, reject(r, e, generic.ErrAlreadyConverted, "")
	}
	if r.Status == StatusInactive {
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "record is inactive")
	}

	at := now.UTC()
	next.Category = CategoryEmployee
	next.Status = StatusActive
	next.ConvertedAt = &at
	if next.Internship != nil {
		next.Internship.Status = InternshipConverted
	}

	roles := append([]string{}, e.ActiveRoles...)
	return Outcome{
		Record: next,
		Action: generic.AuditInternConverted,
		Before: map[string]any{"category": string(r.Category), "status": string(r.Status)},
		After: map[string]any{
			"category":       string(CategoryEmployee),
			"status":         string(StatusActive),
			"roles_migrated": roles,
			"label":          identity.Encode(r.ID, CategoryEmployee.LabelTag()),
		},
		Description: fmt.Sprintf("%s converted from intern to employee", r.Name),
		Conversion: &ConversionRecord{
			PersonnelID:  r.ID,
			FromCategory: r.Category,
			ToCategory:   CategoryEmployee,
			Roles:        roles,
			ConvertedAt:  at,
		},
	}, nil
}

func applyExtend(r, next Record, e ExtendEvent) (Outcome, error) {
	if r.Category != CategoryIntern || r.Internship == nil {
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "only interns with an internship can be extended")
	}
	if r.Status == StatusInactive {
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "record is inactive")
	}
	oldEnd := r.Internship.Period.End
	if e.NewEnd.IsZero() || !e.NewEnd.After(oldEnd) {
		return Outcome{}, generic.InvalidRangef("new end date %s must be after current end date %s", e.NewEnd, oldEnd)
	}

	next.Internship.Period.End = e.NewEnd
	next.Internship.Extensions++
	next.Internship.OverrideReason = strings.TrimSpace(e.Reason)
	next.Internship.Status = InternshipExtended
	if r.Status == StatusExpired {
		next.Status = StatusActive
	}

	return Outcome{
		Record: next,
		Action: generic.AuditInternshipExtended,
		Before: map[string]any{"end_date": oldEnd.String(), "status": string(r.Status)},
		After: map[string]any{
			"end_date":   e.NewEnd.String(),
			"status":     string(next.Status),
			"reason":     next.Internship.OverrideReason,
			"extensions": next.Internship.Extensions,
		},
		Description: fmt.Sprintf("internship for %s extended to %s", r.Name, e.NewEnd),
	}, nil
}

func applyEndEarly(r, next Record, today generic.TimePoint) (Outcome, error) {
	e := EndEarlyEvent{}
	if r.Category != CategoryIntern || r.Internship == nil {
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "only interns with an internship can be ended")
	}
	switch r.Status {
	case StatusExpired, StatusConverted, StatusInactive:
		return Outcome{}, reject(r, e, generic.ErrAlreadyEnded, "status "+string(r.Status))
	}

	oldEnd := r.Internship.Period.End
	next.Internship.Status = InternshipExpired
	next.Internship.Period.End = today
	next.Status = StatusExpired

	return Outcome{
		Record:      next,
		Action:      generic.AuditInternshipEnded,
		Before:      map[string]any{"end_date": oldEnd.String(), "status": string(r.Status)},
		After:       map[string]any{"end_date": today.String(), "status": string(StatusExpired)},
		Description: fmt.Sprintf("internship for %s ended early", r.Name),
	}, nil
}

func applyRetire(r, next Record, today generic.TimePoint) (Outcome, error) {
	e := RetireEvent{}
	if r.Category != CategoryEmployee {
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "only employees can be retired")
	}
	if r.Status == StatusInactive {
		return Outcome{}, reject(r, e, generic.ErrAlreadyInactive, "")
	}

	next.Status = StatusInactive
	next.EndDate = today

	return Outcome{
		Record:      next,
		Action:      generic.AuditUserRetired,
		Before:      map[string]any{"status": string(r.Status)},
		After:       map[string]any{"status": string(StatusInactive), "end_date": today.String()},
		Description: fmt.Sprintf("employee %s retired", r.Name),
	}, nil
}

func applyExpire(r, next Record, today generic.TimePoint) (Outcome, error) {
	e := ExpireEvent{}
	if !IsOverdue(r, today) {
		return Outcome{}, reject(r, e, generic.ErrInvalidTransition, "internship is not overdue")
	}

	next.Status = StatusExpired
	next.Internship.Status = InternshipExpired

	return Outcome{
		Record:      next,
		Action:      generic.AuditInternExpired,
		Before:      map[string]any{"status": string(r.Status), "internship_status": string(r.Internship.Status)},
		After:       map[string]any{"status": string(StatusExpired), "internship_status": string(InternshipExpired)},
		Description: fmt.Sprintf("internship for %s expired on %s", r.Name, r.Internship.Period.End),
	}, nil
}

// IsOverdue reports whether the sweep must expire r on the given day: an
// active intern whose running internship ended strictly before today.
func IsOverdue(r Record, today generic.TimePoint) bool {
	return r.Category == CategoryIntern &&
		r.Status == StatusActive &&
		r.DeletedAt == nil &&
		isRunning(r.Internship) &&
		r.Internship.Period.End.Before(today)
}

// ExpiryWarning returns the warning for r when its running internship ends
// within [today, today+windowDays].
func ExpiryWarning(r Record, today generic.TimePoint, windowDays int) (Warning, bool) {
	if r.Category != CategoryIntern || r.Status != StatusActive || r.DeletedAt != nil || !isRunning(r.Internship) {
		return Warning{}, false
	}
	end := r.Internship.Period.End
	if !generic.WindowFrom(today, windowDays).Contains(end) {
		return Warning{}, false
	}
	return Warning{
		Identifier:    r.ID,
		Label:         r.Label(),
		Name:          r.Name,
		EndDate:       end.String(),
		DaysRemaining: generic.DaysBetween(today, end),
	}, true
}

func isRunning(in *Internship) bool {
	return in != nil && (in.Status == InternshipActive || in.Status == InternshipExtended)
}

// =============================================================================
// ADMISSION - Record creation rules
// =============================================================================

// Admission is the caller-supplied part of a new record.
type Admission struct {
	Name       string
	Email      string
	Phone      string
	Category   Category
	JoinDate   generic.TimePoint
	Internship *generic.Period
	DomainID   string
	DivisionID string
}

// Admit validates a and builds the initial record for id. Interns get an
// internship sub-record; employees never do.
func Admit(a Admission, id identity.ID, now time.Time) (Record, error) {
	name := strings.TrimSpace(a.Name)
	email := strings.ToLower(strings.TrimSpace(a.Email))
	if name == "" {
		return Record{}, generic.Validationf("name is required")
	}
	if email == "" {
		return Record{}, generic.Validationf("email is required")
	}

	rec := Record{
		ID:         id,
		Name:       name,
		Email:      email,
		Phone:      strings.TrimSpace(a.Phone),
		Category:   a.Category,
		Status:     StatusActive,
		DomainID:   a.DomainID,
		DivisionID: a.DivisionID,
		JoinDate:   a.JoinDate,
		Version:    generic.InitialVersion,
		CreatedAt:  now.UTC(),
		UpdatedAt:  now.UTC(),
	}

	switch a.Category {
	case CategoryIntern:
		if a.Internship == nil {
			return Record{}, generic.InvalidRangef("interns require start and end dates")
		}
		if err := a.Internship.Validate(); err != nil {
			return Record{}, err
		}
		rec.Internship = &Internship{
			PersonnelID: id,
			Period:      *a.Internship,
			Status:      InternshipActive,
			UpdatedAt:   now.UTC(),
		}
		if rec.JoinDate.IsZero() {
			rec.JoinDate = a.Internship.Start
		}
	case CategoryEmployee:
		if a.Internship != nil {
			return Record{}, generic.Validationf("employees cannot have an internship")
		}
		if rec.JoinDate.IsZero() {
			rec.JoinDate = generic.DateOf(now)
		}
	default:
		return Record{}, generic.Validationf("unknown category %q", a.Category)
	}
	return rec, nil
}
