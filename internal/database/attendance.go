package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parish/internal/models"
)

const attendanceColumns = `id, programme_id, member_id, date, present, notes, created_at`

func (db *DB) RecordAttendance(ctx context.Context, rec *models.AttendanceRecord) error {
	if rec.Date.IsZero() {
		rec.Date = time.Now()
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO attendance (programme_id, member_id, date, present, notes, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ProgrammeID, rec.MemberID, dbTime(rec.Date), rec.Present, rec.Notes, now)
	if err != nil {
		return fmt.Errorf("failed to record attendance: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rec.ID = id
	rec.Date = dbTime(rec.Date)
	rec.CreatedAt = now
	return nil
}

func (db *DB) ListAttendance(ctx context.Context) ([]models.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+attendanceColumns+` FROM attendance ORDER BY date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return collectAttendance(rows)
}

func (db *DB) ListAttendanceForProgramme(ctx context.Context, programmeID int64) ([]models.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+attendanceColumns+` FROM attendance
              WHERE programme_id = ? ORDER BY date ASC, id ASC`, programmeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance for programme: %w", err)
	}
	return collectAttendance(rows)
}

func collectAttendance(rows *sql.Rows) ([]models.AttendanceRecord, error) {
	defer rows.Close()
	var records []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		if err := rows.Scan(&r.ID, &r.ProgrammeID, &r.MemberID, &r.Date, &r.Present, &r.Notes, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
