package personnel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/personnel-engine/generic"
)

// Organizational units: domains and divisions. Names are unique per axis
// among live units (enforced by storage).

type UnitPatch struct {
	Name        *string
	Description *string
}

func (s *Service) GetUnit(ctx context.Context, id string, includeDeleted bool) (OrgUnit, error) {
	return getUnit(ctx, s.store, id, includeDeleted)
}

func (s *Service) ListUnits(ctx context.Context, q UnitQuery) ([]OrgUnit, error) {
	return s.store.ListUnits(ctx, q)
}

func getUnit(ctx context.Context, r Reader, id string, includeDeleted bool) (OrgUnit, error) {
	u, err := r.GetUnit(ctx, id, includeDeleted)
	if err != nil {
		return OrgUnit{}, err
	}
	if u == nil {
		return OrgUnit{}, generic.NotFoundf("unit %s", id)
	}
	return *u, nil
}

func (s *Service) CreateUnit(ctx context.Context, actor string, axis Axis, name, description string) (OrgUnit, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return OrgUnit{}, generic.Validationf("unit name is required")
	}
	if _, err := ParseAxis(string(axis)); err != nil {
		return OrgUnit{}, err
	}

	var created OrgUnit
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		u := OrgUnit{
			ID:          uuid.NewString(),
			Axis:        axis,
			Name:        name,
			Description: strings.TrimSpace(description),
			Version:     generic.InitialVersion,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertUnit(ctx, u); err != nil {
			return generic.AuditEntry{}, err
		}
		created = u

		return generic.AuditEntry{
			Action:      generic.AuditUnitCreated,
			EntityType:  EntityUnit,
			EntityID:    u.ID,
			After:       u.Snapshot(),
			Description: fmt.Sprintf("created %s %s", strings.ToLower(string(axis)), name),
		}, nil
	})
	if err != nil {
		return OrgUnit{}, err
	}
	return created, nil
}

func (s *Service) UpdateUnit(ctx context.Context, actor, id string, p UnitPatch, expected *int) (OrgUnit, error) {
	var updated OrgUnit
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		u, err := getUnit(ctx, tx, id, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(u, expected); err != nil {
			return generic.AuditEntry{}, err
		}

		next := u
		if p.Name != nil {
			next.Name = strings.TrimSpace(*p.Name)
			if next.Name == "" {
				return generic.AuditEntry{}, generic.Validationf("unit name cannot be empty")
			}
		}
		if p.Description != nil {
			next.Description = strings.TrimSpace(*p.Description)
		}
		next.Version = generic.NextVersion(u)
		next.UpdatedAt = now
		if err := tx.UpdateUnit(ctx, next, u.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		updated = next

		return generic.AuditEntry{
			Action:      generic.AuditUnitUpdated,
			EntityType:  EntityUnit,
			EntityID:    u.ID,
			Before:      u.Snapshot(),
			After:       next.Snapshot(),
			Description: fmt.Sprintf("updated %s %s", strings.ToLower(string(u.Axis)), next.Name),
		}, nil
	})
	if err != nil {
		return OrgUnit{}, err
	}
	return updated, nil
}

func (s *Service) DeleteUnit(ctx context.Context, actor, id string, expected *int) (OrgUnit, error) {
	return s.changeUnitDeletion(ctx, actor, id, expected, generic.EventTombstone)
}

func (s *Service) RestoreUnit(ctx context.Context, actor, id string, expected *int) (OrgUnit, error) {
	return s.changeUnitDeletion(ctx, actor, id, expected, generic.EventRestore)
}

func (s *Service) changeUnitDeletion(ctx context.Context, actor, id string, expected *int, ev generic.DeletionEvent) (OrgUnit, error) {
	var result OrgUnit
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		u, err := getUnit(ctx, tx, id, true)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(u, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		if _, err := generic.NextDeletionState(u.DeletionState(), ev); err != nil {
			return generic.AuditEntry{}, err
		}

		next := u
		action := generic.AuditUnitDeleted
		if ev == generic.EventTombstone {
			next.DeletedAt = &now
		} else {
			next.DeletedAt = nil
			action = generic.AuditUnitRestored
		}
		next.Version = generic.NextVersion(u)
		next.UpdatedAt = now
		if err := tx.UpdateUnit(ctx, next, u.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		result = next

		return generic.AuditEntry{
			Action:      action,
			EntityType:  EntityUnit,
			EntityID:    u.ID,
			Description: fmt.Sprintf("%s %s %s", ev, strings.ToLower(string(u.Axis)), u.Name),
		}, nil
	})
	if err != nil {
		return OrgUnit{}, err
	}
	return result, nil
}

// PurgeUnit irreversibly removes a unit. Personnel referencing it lose the
// reference in the same transaction.
func (s *Service) PurgeUnit(ctx context.Context, actor, id string, expected *int) error {
	return s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		u, err := getUnit(ctx, tx, id, true)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(u, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		if _, err := generic.NextDeletionState(u.DeletionState(), generic.EventPurge); err != nil {
			return generic.AuditEntry{}, err
		}

		cleared, err := tx.ClearUnitReferences(ctx, u.Axis, u.ID)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := tx.DeleteUnit(ctx, u.ID); err != nil {
			return generic.AuditEntry{}, err
		}
		ids := make([]string, len(cleared))
		for i, id := range cleared {
			ids[i] = string(id)
		}

		return generic.AuditEntry{
			Action:      generic.AuditUnitPurged,
			EntityType:  EntityUnit,
			EntityID:    u.ID,
			Before:      u.Snapshot(),
			After:       map[string]any{"cleared_personnel": ids},
			Description: fmt.Sprintf("permanently deleted %s %s, cleared %d reference(s)", strings.ToLower(string(u.Axis)), u.Name, len(cleared)),
		}, nil
	})
}
