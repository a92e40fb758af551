package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// ORGANIZATIONAL UNITS
// =============================================================================

const unitSelect = `
	SELECT id, axis, name, description, version, created_at, updated_at, deleted_at
	FROM org_units
`

func scanUnit(row scanner) (personnel.OrgUnit, error) {
	var (
		u                    personnel.OrgUnit
		axis                 string
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := row.Scan(&u.ID, &axis, &u.Name, &u.Description, &u.Version, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return u, err
	}
	u.Axis = personnel.Axis(axis)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	u.DeletedAt = parseNullTime(deletedAt)
	return u, nil
}

func (c *conn) GetUnit(ctx context.Context, id string, includeDeleted bool) (*personnel.OrgUnit, error) {
	query := unitSelect + ` WHERE id = ? AND ` + deletedClause("deleted_at", includeDeleted, false)
	u, err := scanUnit(c.q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}
	return &u, nil
}

func (c *conn) ListUnits(ctx context.Context, q personnel.UnitQuery) ([]personnel.OrgUnit, error) {
	query := unitSelect + ` WHERE ` + deletedClause("deleted_at", q.IncludeDeleted, q.DeletedOnly)
	var args []any
	if q.Axis != "" {
		query += ` AND axis = ?`
		args = append(args, string(q.Axis))
	}
	query += ` ORDER BY axis ASC, name ASC`

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var out []personnel.OrgUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (c *conn) InsertUnit(ctx context.Context, u personnel.OrgUnit) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO org_units (id, axis, name, description, version, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, string(u.Axis), u.Name, u.Description, u.Version,
		formatTime(u.CreatedAt), formatTime(u.UpdatedAt), formatNullTime(u.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return mapUniqueError(err, u.Name)
		}
		return fmt.Errorf("failed to insert unit: %w", err)
	}
	return nil
}

func (c *conn) UpdateUnit(ctx context.Context, u personnel.OrgUnit, readVersion int) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE org_units SET
			name = ?, description = ?, version = ?, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ?`,
		u.Name, u.Description, u.Version, formatTime(u.UpdatedAt), formatNullTime(u.DeletedAt),
		u.ID, readVersion,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return mapUniqueError(err, u.Name)
		}
		return fmt.Errorf("failed to update unit: %w", err)
	}
	return c.checkCAS(ctx, res, "org_units", "id", personnel.EntityUnit, u.ID, readVersion)
}

func (c *conn) DeleteUnit(ctx context.Context, id string) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM org_units WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFoundf("unit %s", id)
	}
	return nil
}
