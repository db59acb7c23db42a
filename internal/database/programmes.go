package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parish/internal/models"
)

const programmeColumns = `id, name, type, description, status, start_at, end_at,
                          location, coordinator, recurrence, created_at, updated_at`

func scanProgramme(row rowScanner) (*models.Programme, error) {
	var (
		p          models.Programme
		start, end sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.Description, &p.Status, &start, &end,
		&p.Location, &p.Coordinator, &p.Recurrence, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Start = start.Time
	p.End = end.Time
	return &p, nil
}

func (db *DB) CreateProgramme(ctx context.Context, p *models.Programme) error {
	if p.Status == "" {
		p.Status = models.ProgrammePlanning
	}
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO programmes (
                    name, type, description, status, start_at, end_at,
                    location, coordinator, recurrence, created_at, updated_at
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Name, p.Type, p.Description, p.Status, nullTime(p.Start), nullTime(p.End),
			p.Location, p.Coordinator, p.Recurrence, now, now)
		if err != nil {
			return fmt.Errorf("failed to create programme: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		p.ID = id
		p.CreatedAt = now
		p.UpdatedAt = now

		for _, memberID := range p.Attendees {
			if err := addAttendeeTx(ctx, tx, id, memberID); err != nil {
				return err
			}
		}
		p.Attendees = uniqueIDs(p.Attendees)
		p.AttendeeCount = len(p.Attendees)
		return nil
	})
}

func (db *DB) UpdateProgramme(ctx context.Context, p *models.Programme) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `UPDATE programmes SET
                name = ?, type = ?, description = ?, status = ?, start_at = ?, end_at = ?,
                location = ?, coordinator = ?, recurrence = ?, updated_at = ?
              WHERE id = ?`,
		p.Name, p.Type, p.Description, p.Status, nullTime(p.Start), nullTime(p.End),
		p.Location, p.Coordinator, p.Recurrence, now, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update programme: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("programme %d: %w", p.ID, ErrNotFound)
	}
	p.UpdatedAt = now
	return nil
}

func (db *DB) DeleteProgramme(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM programmes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete programme: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("programme %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) GetProgramme(ctx context.Context, id int64) (*models.Programme, error) {
	row := db.QueryRowContext(ctx, `SELECT `+programmeColumns+` FROM programmes WHERE id = ?`, id)
	p, err := scanProgramme(row)
	if err != nil {
		return nil, notFound(err, "programme", id)
	}

	attendees, err := db.attendees(ctx, &id)
	if err != nil {
		return nil, err
	}
	p.Attendees = attendees[id]
	p.AttendeeCount = len(p.Attendees)
	return p, nil
}

func (db *DB) ListProgrammes(ctx context.Context) ([]models.Programme, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+programmeColumns+` FROM programmes ORDER BY start_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programmes: %w", err)
	}

	var programmes []models.Programme
	for rows.Next() {
		p, err := scanProgramme(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan programme: %w", err)
		}
		programmes = append(programmes, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attendees, err := db.attendees(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range programmes {
		programmes[i].Attendees = attendees[programmes[i].ID]
		programmes[i].AttendeeCount = len(programmes[i].Attendees)
	}
	return programmes, nil
}

// AddAttendee registers a member on the programme. Adding twice is a no-op.
func (db *DB) AddAttendee(ctx context.Context, programmeID, memberID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM programmes WHERE id = ?`, programmeID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check programme: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("programme %d: %w", programmeID, ErrNotFound)
		}
		return addAttendeeTx(ctx, tx, programmeID, memberID)
	})
}

func addAttendeeTx(ctx context.Context, tx *sql.Tx, programmeID, memberID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO programme_attendees (programme_id, member_id, added_at)
              VALUES (?, ?, ?)`, programmeID, memberID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add attendee: %w", err)
	}
	return nil
}

func (db *DB) attendees(ctx context.Context, programmeID *int64) (map[int64][]int64, error) {
	query := `SELECT programme_id, member_id FROM programme_attendees`
	var args []interface{}
	if programmeID != nil {
		query += ` WHERE programme_id = ?`
		args = append(args, *programmeID)
	}
	query += ` ORDER BY programme_id, member_id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendees: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]int64)
	for rows.Next() {
		var pid, mid int64
		if err := rows.Scan(&pid, &mid); err != nil {
			return nil, fmt.Errorf("failed to scan attendee: %w", err)
		}
		out[pid] = append(out[pid], mid)
	}
	return out, rows.Err()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
