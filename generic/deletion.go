/*
deletion.go - Three-state deletion lifecycle

PURPOSE:
  Personnel, roles and organizational units move through the same deletion
  states. The state is derived from the tombstone timestamp; Purged is never
  stored, it is what a caller observes after the row is gone.

STATES:
  Live       -> tombstone is NULL, visible to default queries
  Tombstoned -> tombstone set, hidden by default, restorable
  Purged     -> row removed, irreversible

TRANSITIONS:
  Live       -> Tombstoned   (Delete)
  Tombstoned -> Live         (Restore)
  Live       -> Purged       (Purge)
  Tombstoned -> Purged       (Purge)

  Any transition out of Purged fails with ErrNotFound.

SEE ALSO:
  - personnel/service.go: cascade functions invoked on the Purged transition
*/
package generic

import "time"

// DeletionState is the position of a record in the deletion lifecycle.
type DeletionState int

const (
	Live DeletionState = iota
	Tombstoned
	Purged
)

func (s DeletionState) String() string {
	switch s {
	case Live:
		return "live"
	case Tombstoned:
		return "tombstoned"
	case Purged:
		return "purged"
	default:
		return "unknown"
	}
}

// DeletionStateOf derives the state of a stored row from its tombstone.
func DeletionStateOf(deletedAt *time.Time) DeletionState {
	if deletedAt == nil {
		return Live
	}
	return Tombstoned
}

// DeletionEvent names a request to move between deletion states.
type DeletionEvent string

const (
	EventTombstone DeletionEvent = "delete"
	EventRestore   DeletionEvent = "restore"
	EventPurge     DeletionEvent = "purge"
)

// NextDeletionState validates a deletion event and returns the target state.
func NextDeletionState(from DeletionState, ev DeletionEvent) (DeletionState, error) {
	if from == Purged {
		return Purged, ErrNotFound
	}
	switch ev {
	case EventTombstone:
		if from == Live {
			return Tombstoned, nil
		}
	case EventRestore:
		if from == Tombstoned {
			return Live, nil
		}
	case EventPurge:
		return Purged, nil
	}
	return from, &TransitionError{From: from.String(), Event: string(ev), Kind: ErrInvalidTransition}
}
