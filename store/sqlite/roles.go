package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// ROLES
// =============================================================================

const roleSelect = `
	SELECT r.id, r.name, r.description, r.clearance, r.active, r.version,
	       r.created_at, r.updated_at, r.deleted_at,
	       (SELECT COUNT(*) FROM assignments a WHERE a.role_id = r.id AND a.removed_at IS NULL)
	FROM roles r
`

func scanRole(row scanner) (personnel.Role, error) {
	var (
		r                    personnel.Role
		active               int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Clearance, &active, &r.Version,
		&createdAt, &updatedAt, &deletedAt, &r.LiveAssignments)
	if err != nil {
		return r, err
	}
	r.Active = active == 1
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.DeletedAt = parseNullTime(deletedAt)
	return r, nil
}

func (c *conn) GetRole(ctx context.Context, id string, includeDeleted bool) (*personnel.Role, error) {
	query := roleSelect + ` WHERE r.id = ? AND ` + deletedClause("r.deleted_at", includeDeleted, false)
	r, err := scanRole(c.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return &r, nil
}

func (c *conn) RoleNameTaken(ctx context.Context, name string, exclude string) (bool, error) {
	var taken bool
	err := c.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM roles
			WHERE name = ? AND active = 1 AND deleted_at IS NULL AND id != ?
		)`, name, exclude,
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check role name: %w", err)
	}
	return taken, nil
}

func (c *conn) ListRoles(ctx context.Context, q personnel.RoleQuery) ([]personnel.Role, error) {
	query := roleSelect + ` WHERE ` + deletedClause("r.deleted_at", false, q.DeletedOnly)
	if !q.IncludeInactive {
		query += ` AND r.active = 1`
	}
	query += ` ORDER BY r.clearance DESC, r.name ASC`

	rows, err := c.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var out []personnel.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (c *conn) InsertRole(ctx context.Context, r personnel.Role) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO roles (id, name, description, clearance, active, version, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.Clearance, boolToInt(r.Active), r.Version,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt), formatNullTime(r.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return mapUniqueError(err, r.Name)
		}
		return fmt.Errorf("failed to insert role: %w", err)
	}
	return nil
}

func (c *conn) UpdateRole(ctx context.Context, r personnel.Role, readVersion int) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE roles SET
			name = ?, description = ?, clearance = ?, active = ?, version = ?, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ?`,
		r.Name, r.Description, r.Clearance, boolToInt(r.Active), r.Version,
		formatTime(r.UpdatedAt), formatNullTime(r.DeletedAt),
		r.ID, readVersion,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return mapUniqueError(err, r.Name)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	return c.checkCAS(ctx, res, "roles", "id", personnel.EntityRole, r.ID, readVersion)
}

func (c *conn) DeleteRole(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFoundf("role %s", id)
	}
	return nil
}

// =============================================================================
// ASSIGNMENTS
// =============================================================================

const assignmentSelect = `
	SELECT a.id, a.personnel_id, a.role_id, r.name, a.assigned_by, a.assigned_at, a.removed_at
	FROM assignments a
	JOIN roles r ON r.id = a.role_id
`

func scanAssignment(row scanner) (personnel.Assignment, error) {
	var (
		a           personnel.Assignment
		personnelID string
		assignedAt  string
		removedAt   sql.NullString
	)
	err := row.Scan(&a.ID, &personnelID, &a.RoleID, &a.RoleName, &a.AssignedBy, &assignedAt, &removedAt)
	if err != nil {
		return a, err
	}
	a.PersonnelID = identity.ID(personnelID)
	a.AssignedAt = parseTime(assignedAt)
	a.RemovedAt = parseNullTime(removedAt)
	return a, nil
}

func (c *conn) ListAssignments(ctx context.Context, personnelID identity.ID, liveOnly bool) ([]personnel.Assignment, error) {
	query := assignmentSelect + ` WHERE a.personnel_id = ?`
	if liveOnly {
		query += ` AND a.removed_at IS NULL`
	}
	query += ` ORDER BY a.assigned_at DESC, r.name ASC`

	rows, err := c.q.QueryContext(ctx, query, string(personnelID))
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var out []personnel.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (c *conn) FindLiveAssignment(ctx context.Context, personnelID identity.ID, roleID string) (*personnel.Assignment, error) {
	query := assignmentSelect + ` WHERE a.personnel_id = ? AND a.role_id = ? AND a.removed_at IS NULL`
	a, err := scanAssignment(c.q.QueryRowContext(ctx, query, string(personnelID), roleID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return &a, nil
}

func (c *conn) CountBlockingAssignments(ctx context.Context, roleID string) (int, error) {
	var n int
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM assignments a
		JOIN personnel p ON p.identifier = a.personnel_id
		WHERE a.role_id = ? AND a.removed_at IS NULL AND p.deleted_at IS NULL`,
		roleID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count role assignments: %w", err)
	}
	return n, nil
}

func (c *conn) InsertAssignment(ctx context.Context, a personnel.Assignment) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO assignments (id, personnel_id, role_id, assigned_by, assigned_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.PersonnelID), a.RoleID, a.AssignedBy, formatTime(a.AssignedAt), formatNullTime(a.RemovedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return mapUniqueError(err, a.RoleName)
		}
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

func (c *conn) RemoveAssignment(ctx context.Context, id string, at time.Time) error {
	res, err := c.q.ExecContext(ctx,
		`UPDATE assignments SET removed_at = ? WHERE id = ? AND removed_at IS NULL`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("failed to remove assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFoundf("live assignment %s", id)
	}
	return nil
}

func (c *conn) DeleteAssignmentsForPersonnel(ctx context.Context, id identity.ID) (int, error) {
	return c.deleteAssignments(ctx, "personnel_id", string(id))
}

func (c *conn) DeleteAssignmentsForRole(ctx context.Context, roleID string) (int, error) {
	return c.deleteAssignments(ctx, "role_id", roleID)
}

func (c *conn) deleteAssignments(ctx context.Context, column, key string) (int, error) {
	res, err := c.q.ExecContext(ctx, "DELETE FROM assignments WHERE "+column+" = ?", key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assignments: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// CONVERSION HISTORY (append-only)
// =============================================================================

func (c *conn) InsertConversion(ctx context.Context, cr personnel.ConversionRecord) error {
	roles := cr.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to encode conversion roles: %w", err)
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO conversions (id, personnel_id, from_category, to_category, roles_json, converted_by, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cr.ID, string(cr.PersonnelID), string(cr.FromCategory), string(cr.ToCategory),
		string(rolesJSON), cr.ConvertedBy, formatTime(cr.ConvertedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversion: %w", err)
	}
	return nil
}

func (c *conn) ListConversions(ctx context.Context, personnelID identity.ID) ([]personnel.ConversionRecord, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, personnel_id, from_category, to_category, roles_json, converted_by, converted_at
		FROM conversions
		WHERE personnel_id = ?
		ORDER BY converted_at ASC`,
		string(personnelID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversions: %w", err)
	}
	defer rows.Close()

	var out []personnel.ConversionRecord
	for rows.Next() {
		var (
			cr            personnel.ConversionRecord
			pid, from, to string
			rolesJSON, at string
		)
		if err := rows.Scan(&cr.ID, &pid, &from, &to, &rolesJSON, &cr.ConvertedBy, &at); err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		cr.PersonnelID = identity.ID(pid)
		cr.FromCategory = personnel.Category(from)
		cr.ToCategory = personnel.Category(to)
		cr.ConvertedAt = parseTime(at)
		if err := json.Unmarshal([]byte(rolesJSON), &cr.Roles); err != nil {
			return nil, fmt.Errorf("failed to decode conversion roles: %w", err)
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
