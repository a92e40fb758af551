package personnel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/personnel-engine/generic"
)

// =============================================================================
// ROLES
// =============================================================================

// RoleDraft is the caller-supplied part of a new role.
type RoleDraft struct {
	Name        string
	Description string
	Clearance   int
	Active      *bool
}

// RolePatch lists the fields a role update may change. Nil means unchanged.
type RolePatch struct {
	Name        *string
	Description *string
	Clearance   *int
	Active      *bool
}

func (s *Service) GetRole(ctx context.Context, id string, includeDeleted bool) (Role, error) {
	return getRole(ctx, s.store, id, includeDeleted)
}

func (s *Service) ListRoles(ctx context.Context, q RoleQuery) ([]Role, error) {
	return s.store.ListRoles(ctx, q)
}

func getRole(ctx context.Context, r Reader, id string, includeDeleted bool) (Role, error) {
	role, err := r.GetRole(ctx, id, includeDeleted)
	if err != nil {
		return Role{}, err
	}
	if role == nil {
		return Role{}, generic.NotFoundf("role %s", id)
	}
	return *role, nil
}

// checkRoleName enforces name uniqueness among active, live roles.
func checkRoleName(ctx context.Context, r Reader, name, exclude string) error {
	taken, err := r.RoleNameTaken(ctx, name, exclude)
	if err != nil {
		return err
	}
	if taken {
		return &generic.DuplicateFieldError{Entity: EntityRole, Field: "name", Value: name}
	}
	return nil
}

func (s *Service) CreateRole(ctx context.Context, actor string, d RoleDraft) (Role, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Role{}, generic.Validationf("role name is required")
	}
	if d.Clearance < 0 {
		return Role{}, generic.Validationf("clearance must not be negative")
	}
	active := true
	if d.Active != nil {
		active = *d.Active
	}

	var created Role
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		if active {
			if err := checkRoleName(ctx, tx, name, ""); err != nil {
				return generic.AuditEntry{}, err
			}
		}
		role := Role{
			ID:          uuid.NewString(),
			Name:        name,
			Description: strings.TrimSpace(d.Description),
			Clearance:   d.Clearance,
			Active:      active,
			Version:     generic.InitialVersion,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertRole(ctx, role); err != nil {
			return generic.AuditEntry{}, err
		}
		created = role

		return generic.AuditEntry{
			Action:      generic.AuditRoleCreated,
			EntityType:  EntityRole,
			EntityID:    role.ID,
			After:       role.Snapshot(),
			Description: fmt.Sprintf("created role %s", role.Name),
		}, nil
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// UpdateRole changes a live role under optimistic locking. A stale expected
// version leaves the role and the audit trail untouched.
func (s *Service) UpdateRole(ctx context.Context, actor, id string, p RolePatch, expected *int) (Role, error) {
	var updated Role
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		role, err := getRole(ctx, tx, id, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(role, expected); err != nil {
			return generic.AuditEntry{}, err
		}

		next := role
		if p.Name != nil {
			next.Name = strings.TrimSpace(*p.Name)
			if next.Name == "" {
				return generic.AuditEntry{}, generic.Validationf("role name cannot be empty")
			}
		}
		if p.Description != nil {
			next.Description = strings.TrimSpace(*p.Description)
		}
		if p.Clearance != nil {
			if *p.Clearance < 0 {
				return generic.AuditEntry{}, generic.Validationf("clearance must not be negative")
			}
			next.Clearance = *p.Clearance
		}
		if p.Active != nil {
			next.Active = *p.Active
		}
		if next.Active && (next.Name != role.Name || !role.Active) {
			if err := checkRoleName(ctx, tx, next.Name, role.ID); err != nil {
				return generic.AuditEntry{}, err
			}
		}

		next.Version = generic.NextVersion(role)
		next.UpdatedAt = now
		if err := tx.UpdateRole(ctx, next, role.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		updated = next

		return generic.AuditEntry{
			Action:      generic.AuditRoleUpdated,
			EntityType:  EntityRole,
			EntityID:    role.ID,
			Before:      role.Snapshot(),
			After:       next.Snapshot(),
			Description: fmt.Sprintf("updated role %s", next.Name),
		}, nil
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// checkRoleUnused returns *generic.RoleInUseError while the role has live
// assignments to live personnel.
func checkRoleUnused(ctx context.Context, r Reader, roleID string) error {
	n, err := r.CountBlockingAssignments(ctx, roleID)
	if err != nil {
		return err
	}
	if n > 0 {
		return &generic.RoleInUseError{RoleID: roleID, Assignments: n}
	}
	return nil
}

// DeleteRole tombstones a role that no live person holds.
func (s *Service) DeleteRole(ctx context.Context, actor, id string, expected *int) (Role, error) {
	return s.changeRoleDeletion(ctx, actor, id, expected, generic.EventTombstone)
}

func (s *Service) RestoreRole(ctx context.Context, actor, id string, expected *int) (Role, error) {
	return s.changeRoleDeletion(ctx, actor, id, expected, generic.EventRestore)
}

func (s *Service) changeRoleDeletion(ctx context.Context, actor, id string, expected *int, ev generic.DeletionEvent) (Role, error) {
	var result Role
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		role, err := getRole(ctx, tx, id, true)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(role, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		if _, err := generic.NextDeletionState(role.DeletionState(), ev); err != nil {
			return generic.AuditEntry{}, err
		}

		next := role
		action := generic.AuditRoleDeleted
		if ev == generic.EventTombstone {
			if err := checkRoleUnused(ctx, tx, role.ID); err != nil {
				return generic.AuditEntry{}, err
			}
			next.DeletedAt = &now
		} else {
			if role.Active {
				if err := checkRoleName(ctx, tx, role.Name, role.ID); err != nil {
					return generic.AuditEntry{}, err
				}
			}
			next.DeletedAt = nil
			action = generic.AuditRoleRestored
		}
		next.Version = generic.NextVersion(role)
		next.UpdatedAt = now
		if err := tx.UpdateRole(ctx, next, role.Version); err != nil {
			return generic.AuditEntry{}, err
		}
		result = next

		return generic.AuditEntry{
			Action:      action,
			EntityType:  EntityRole,
			EntityID:    role.ID,
			Description: fmt.Sprintf("%s role %s", ev, role.Name),
		}, nil
	})
	if err != nil {
		return Role{}, err
	}
	return result, nil
}

// PurgeRole irreversibly removes a role and its leftover soft-removed
// assignments.
func (s *Service) PurgeRole(ctx context.Context, actor, id string, expected *int) error {
	return s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		role, err := getRole(ctx, tx, id, true)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := generic.CheckVersion(role, expected); err != nil {
			return generic.AuditEntry{}, err
		}
		if _, err := generic.NextDeletionState(role.DeletionState(), generic.EventPurge); err != nil {
			return generic.AuditEntry{}, err
		}
		if err := checkRoleUnused(ctx, tx, role.ID); err != nil {
			return generic.AuditEntry{}, err
		}

		removed, err := tx.DeleteAssignmentsForRole(ctx, role.ID)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if err := tx.DeleteRole(ctx, role.ID); err != nil {
			return generic.AuditEntry{}, err
		}

		return generic.AuditEntry{
			Action:      generic.AuditRolePurged,
			EntityType:  EntityRole,
			EntityID:    role.ID,
			Before:      role.Snapshot(),
			Description: fmt.Sprintf("permanently deleted role %s and %d assignment(s)", role.Name, removed),
		}, nil
	})
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

// Assign gives a live person a live, active role.
func (s *Service) Assign(ctx context.Context, actor, token, roleID string) (Assignment, error) {
	var created Assignment
	err := s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		rec, err := resolveIn(ctx, tx, token, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		role, err := getRole(ctx, tx, roleID, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if !role.Active {
			return generic.AuditEntry{}, generic.Validationf("role %s is inactive", role.Name)
		}
		existing, err := tx.FindLiveAssignment(ctx, rec.ID, role.ID)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if existing != nil {
			return generic.AuditEntry{}, &generic.DuplicateFieldError{Entity: "assignment", Field: "role", Value: role.Name}
		}

		a := Assignment{
			ID:          uuid.NewString(),
			PersonnelID: rec.ID,
			RoleID:      role.ID,
			RoleName:    role.Name,
			AssignedBy:  strings.TrimSpace(actor),
			AssignedAt:  now,
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return generic.AuditEntry{}, err
		}
		created = a

		return generic.AuditEntry{
			Action:      generic.AuditRoleAssigned,
			EntityType:  EntityPersonnel,
			EntityID:    string(rec.ID),
			After:       map[string]any{"role_id": role.ID, "role": role.Name},
			Description: fmt.Sprintf("assigned role %s to %s", role.Name, rec.Name),
		}, nil
	})
	if err != nil {
		return Assignment{}, err
	}
	return created, nil
}

// Unassign soft-removes a live assignment.
func (s *Service) Unassign(ctx context.Context, actor, token, roleID string) error {
	return s.mutate(ctx, actor, func(ctx context.Context, tx Tx, now time.Time) (generic.AuditEntry, error) {
		rec, err := resolveIn(ctx, tx, token, false)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		a, err := tx.FindLiveAssignment(ctx, rec.ID, roleID)
		if err != nil {
			return generic.AuditEntry{}, err
		}
		if a == nil {
			return generic.AuditEntry{}, generic.NotFoundf("no live assignment of role %s to %s", roleID, rec.ID)
		}
		if err := tx.RemoveAssignment(ctx, a.ID, now); err != nil {
			return generic.AuditEntry{}, err
		}

		return generic.AuditEntry{
			Action:      generic.AuditRoleRemoved,
			EntityType:  EntityPersonnel,
			EntityID:    string(rec.ID),
			Before:      map[string]any{"role_id": a.RoleID, "role": a.RoleName},
			Description: fmt.Sprintf("removed role %s from %s", a.RoleName, rec.Name),
		}, nil
	})
}
