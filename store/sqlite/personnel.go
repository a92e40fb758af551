package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/warp/personnel-engine/generic"
	"github.com/warp/personnel-engine/identity"
	"github.com/warp/personnel-engine/personnel"
)

// =============================================================================
// PERSONNEL RECORDS
// =============================================================================

const personnelSelect = `
	SELECT p.identifier, p.name, p.email, p.phone, p.category, p.status,
	       p.domain_id, p.division_id, p.join_date, p.end_date, p.converted_at,
	       p.version, p.created_at, p.updated_at, p.deleted_at,
	       i.start_date, i.end_date, i.extensions, i.override_reason, i.status, i.updated_at
	FROM personnel p
	LEFT JOIN internships i ON i.personnel_id = p.identifier
`

// likeEscaper makes free text match literally inside a LIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func scanPersonnel(row scanner) (personnel.Record, error) {
	var (
		rec                       personnel.Record
		id, category, status      string
		domainID, divisionID      sql.NullString
		joinDate, endDate         sql.NullString
		convertedAt, deletedAt    sql.NullString
		createdAt, updatedAt      string
		inStart, inEnd            sql.NullString
		inExtensions              sql.NullInt64
		inReason, inStatus, inUpd sql.NullString
	)

	err := row.Scan(
		&id, &rec.Name, &rec.Email, &rec.Phone, &category, &status,
		&domainID, &divisionID, &joinDate, &endDate, &convertedAt,
		&rec.Version, &createdAt, &updatedAt, &deletedAt,
		&inStart, &inEnd, &inExtensions, &inReason, &inStatus, &inUpd,
	)
	if err != nil {
		return rec, err
	}

	rec.ID = identity.ID(id)
	rec.Category = personnel.Category(category)
	rec.Status = personnel.Status(status)
	rec.DomainID = domainID.String
	rec.DivisionID = divisionID.String
	rec.JoinDate = parseDate(joinDate)
	rec.EndDate = parseDate(endDate)
	rec.ConvertedAt = parseNullTime(convertedAt)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.DeletedAt = parseNullTime(deletedAt)

	if inStatus.Valid {
		rec.Internship = &personnel.Internship{
			PersonnelID: rec.ID,
			Period: generic.Period{
				Start: parseDate(inStart),
				End:   parseDate(inEnd),
			},
			Extensions:     int(inExtensions.Int64),
			OverrideReason: inReason.String,
			Status:         personnel.InternshipStatus(inStatus.String),
			UpdatedAt:      parseTime(inUpd.String),
		}
	}
	return rec, nil
}

func (c *conn) getOnePersonnel(ctx context.Context, query string, args ...any) (*personnel.Record, error) {
	rec, err := scanPersonnel(c.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get personnel: %w", err)
	}
	return &rec, nil
}

func (c *conn) queryPersonnel(ctx context.Context, query string, args ...any) ([]personnel.Record, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query personnel: %w", err)
	}
	defer rows.Close()

	var out []personnel.Record
	for rows.Next() {
		rec, err := scanPersonnel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan personnel: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (c *conn) GetPersonnel(ctx context.Context, id identity.ID, includeDeleted bool) (*personnel.Record, error) {
	query := personnelSelect + ` WHERE p.identifier = ? AND ` + deletedClause("p.deleted_at", includeDeleted, false)
	return c.getOnePersonnel(ctx, query, string(id))
}

func (c *conn) FindBySuffix(ctx context.Context, suffix string, includeDeleted bool) (*personnel.Record, error) {
	query := personnelSelect + `
		WHERE substr(p.identifier, 17) = ? AND ` + deletedClause("p.deleted_at", includeDeleted, false) + `
		ORDER BY (p.deleted_at IS NULL) DESC, p.deleted_at DESC
		LIMIT 1`
	return c.getOnePersonnel(ctx, query, strings.ToUpper(suffix))
}

func (c *conn) IdentifierTaken(ctx context.Context, id identity.ID) (bool, error) {
	var taken bool
	err := c.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM personnel
			WHERE identifier = ?
			   OR (substr(identifier, 17) = ? AND deleted_at IS NULL)
		)`, string(id), id.Suffix(),
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check identifier: %w", err)
	}
	return taken, nil
}

func (c *conn) EmailTaken(ctx context.Context, email string, exclude identity.ID) (bool, error) {
	var taken bool
	err := c.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM personnel
			WHERE email = ? AND deleted_at IS NULL AND identifier != ?
		)`, email, string(exclude),
	).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return taken, nil
}

// ListPersonnel returns one page of matching records, newest first, and the
// total number of matches.
func (c *conn) ListPersonnel(ctx context.Context, q personnel.Query) ([]personnel.Record, int, error) {
	where := []string{deletedClause("p.deleted_at", q.IncludeDeleted, q.DeletedOnly)}
	var args []any

	if text := strings.TrimSpace(q.Text); text != "" {
		suffix := strings.ToUpper(text)
		if identity.LooksLikeLabel(text) {
			if s, err := identity.Decode(text); err == nil {
				suffix = s
			}
		}
		like := "%" + likeEscaper.Replace(strings.ToLower(text)) + "%"
		where = append(where, `(lower(p.name) LIKE ? ESCAPE '\' OR p.email LIKE ? ESCAPE '\' OR p.identifier = ? OR substr(p.identifier, 17) = ?)`)
		args = append(args, like, like, strings.ToUpper(text), suffix)
	}
	if q.Category != "" {
		where = append(where, "p.category = ?")
		args = append(args, string(q.Category))
	}
	if len(q.Statuses) > 0 {
		where = append(where, "p.status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}
	if q.DomainID != "" {
		where = append(where, "p.domain_id = ?")
		args = append(args, q.DomainID)
	}
	if q.DivisionID != "" {
		where = append(where, "p.division_id = ?")
		args = append(args, q.DivisionID)
	}
	if q.RoleName != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM assignments a JOIN roles r ON r.id = a.role_id
			WHERE a.personnel_id = p.identifier AND a.removed_at IS NULL AND r.name = ?)`)
		args = append(args, q.RoleName)
	}
	clause := " WHERE " + strings.Join(where, " AND ")

	var total int
	if err := c.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM personnel p"+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count personnel: %w", err)
	}

	q = q.Normalize()
	query := personnelSelect + clause + ` ORDER BY p.created_at DESC, p.identifier DESC LIMIT ? OFFSET ?`
	records, err := c.queryPersonnel(ctx, query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

const runningInternFilter = `
	WHERE p.category = 'INTERN'
	  AND p.status = 'ACTIVE'
	  AND p.deleted_at IS NULL
	  AND i.status IN ('ACTIVE', 'EXTENDED')
`

func (c *conn) ListOverdue(ctx context.Context, today generic.TimePoint) ([]personnel.Record, error) {
	query := personnelSelect + runningInternFilter + ` AND i.end_date < ? ORDER BY i.end_date ASC, p.identifier ASC`
	return c.queryPersonnel(ctx, query, today.String())
}

func (c *conn) ListExpiring(ctx context.Context, window generic.Period) ([]personnel.Record, error) {
	query := personnelSelect + runningInternFilter + ` AND i.end_date >= ? AND i.end_date <= ? ORDER BY i.end_date ASC, p.identifier ASC`
	return c.queryPersonnel(ctx, query, window.Start.String(), window.End.String())
}

// InsertPersonnel writes a new record and, for interns, its internship.
func (c *conn) InsertPersonnel(ctx context.Context, rec personnel.Record) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO personnel
		(identifier, name, email, phone, category, status, domain_id, division_id,
		 join_date, end_date, converted_at, version, created_at, updated_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), rec.Name, rec.Email, rec.Phone, string(rec.Category), string(rec.Status),
		nullString(rec.DomainID), nullString(rec.DivisionID),
		rec.JoinDate.String(), formatDate(rec.EndDate), formatNullTime(rec.ConvertedAt),
		rec.Version, formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), formatNullTime(rec.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			value := string(rec.ID)
			if strings.Contains(err.Error(), "personnel.email") {
				value = rec.Email
			}
			return mapUniqueError(err, value)
		}
		return fmt.Errorf("failed to insert personnel: %w", err)
	}

	if rec.Internship == nil {
		return nil
	}
	in := rec.Internship
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO internships
		(personnel_id, start_date, end_date, extensions, override_reason, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(rec.ID), in.Period.Start.String(), in.Period.End.String(),
		in.Extensions, in.OverrideReason, string(in.Status), formatTime(in.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert internship: %w", err)
	}
	return nil
}

// UpdatePersonnel overwrites a record (and its internship) if its stored
// version still equals readVersion.
func (c *conn) UpdatePersonnel(ctx context.Context, rec personnel.Record, readVersion int) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE personnel SET
			name = ?, email = ?, phone = ?, category = ?, status = ?,
			domain_id = ?, division_id = ?, join_date = ?, end_date = ?,
			converted_at = ?, version = ?, updated_at = ?, deleted_at = ?
		WHERE identifier = ? AND version = ?`,
		rec.Name, rec.Email, rec.Phone, string(rec.Category), string(rec.Status),
		nullString(rec.DomainID), nullString(rec.DivisionID), rec.JoinDate.String(), formatDate(rec.EndDate),
		formatNullTime(rec.ConvertedAt), rec.Version, formatTime(rec.UpdatedAt), formatNullTime(rec.DeletedAt),
		string(rec.ID), readVersion,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			value := string(rec.ID)
			if strings.Contains(err.Error(), "personnel.email") {
				value = rec.Email
			}
			return mapUniqueError(err, value)
		}
		return fmt.Errorf("failed to update personnel: %w", err)
	}
	if err := c.checkCAS(ctx, res, "personnel", "identifier", personnel.EntityPersonnel, string(rec.ID), readVersion); err != nil {
		return err
	}

	if rec.Internship == nil {
		return nil
	}
	in := rec.Internship
	_, err = c.q.ExecContext(ctx, `
		UPDATE internships SET
			start_date = ?, end_date = ?, extensions = ?, override_reason = ?, status = ?, updated_at = ?
		WHERE personnel_id = ?`,
		in.Period.Start.String(), in.Period.End.String(), in.Extensions, in.OverrideReason,
		string(in.Status), formatTime(in.UpdatedAt), string(rec.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update internship: %w", err)
	}
	return nil
}

func (c *conn) DeletePersonnel(ctx context.Context, id identity.ID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM personnel WHERE identifier = ?`, string(id))
	if err != nil {
		return fmt.Errorf("failed to delete personnel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFoundf("personnel %s", id)
	}
	return nil
}

func (c *conn) DeleteInternship(ctx context.Context, id identity.ID) error {
	if _, err := c.q.ExecContext(ctx, `DELETE FROM internships WHERE personnel_id = ?`, string(id)); err != nil {
		return fmt.Errorf("failed to delete internship: %w", err)
	}
	return nil
}

// ClearUnitReferences detaches every record from a unit and returns the
// identifiers it detached. Versions are left alone; the unit's purge entry
// lists the affected records.
func (c *conn) ClearUnitReferences(ctx context.Context, axis personnel.Axis, unitID string) ([]identity.ID, error) {
	column := "domain_id"
	if axis == personnel.AxisDivision {
		column = "division_id"
	}

	rows, err := c.q.QueryContext(ctx,
		"SELECT identifier FROM personnel WHERE "+column+" = ? ORDER BY identifier", unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unit references: %w", err)
	}
	defer rows.Close()

	var ids []identity.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, identity.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := c.q.ExecContext(ctx,
		"UPDATE personnel SET "+column+" = NULL WHERE "+column+" = ?", unitID,
	); err != nil {
		return nil, fmt.Errorf("failed to clear unit references: %w", err)
	}
	return ids, nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

func (c *conn) Counts(ctx context.Context) (personnel.Counts, error) {
	var counts personnel.Counts
	err := c.q.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM personnel WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM personnel WHERE deleted_at IS NULL AND status = 'ACTIVE'),
			(SELECT COUNT(*) FROM personnel WHERE deleted_at IS NULL AND category = 'INTERN'),
			(SELECT COUNT(*) FROM personnel WHERE deleted_at IS NULL AND category = 'EMPLOYEE'),
			(SELECT COUNT(*) FROM roles WHERE deleted_at IS NULL AND active = 1),
			(SELECT COUNT(*) FROM conversions)
	`).Scan(&counts.Total, &counts.Active, &counts.Interns, &counts.Employees, &counts.ActiveRoles, &counts.Conversions)
	if err != nil {
		return counts, fmt.Errorf("failed to count personnel: %w", err)
	}
	return counts, nil
}

func (c *conn) CreationTrend(ctx context.Context, since generic.TimePoint) (map[string]int, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day, COUNT(*)
		FROM personnel
		WHERE deleted_at IS NULL AND created_at >= ?
		GROUP BY day`,
		formatTime(since.Time),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query creation trend: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, fmt.Errorf("failed to scan creation trend: %w", err)
		}
		out[day] = n
	}
	return out, rows.Err()
}
