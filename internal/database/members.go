package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parish/internal/models"
)

const memberColumns = `id, first_name, last_name, email, phone, status, joined_at, created_at, updated_at`

func scanMember(row rowScanner) (*models.Member, error) {
	var (
		m            models.Member
		email, phone sql.NullString
		joined       sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &email, &phone, &m.Status,
		&joined, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Email = email.String
	m.Phone = phone.String
	m.JoinedAt = joined.Time
	return &m, nil
}

func (db *DB) CreateMember(ctx context.Context, m *models.Member) error {
	if m.Status == "" {
		m.Status = models.MemberActive
	}
	now := time.Now()
	res, err := db.ExecContext(ctx, `INSERT INTO members (first_name, last_name, email, phone, status, joined_at, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.FirstName, m.LastName, m.Email, m.Phone, m.Status, nullTime(m.JoinedAt), now, now)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

func (db *DB) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	m, err := scanMember(db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "member", id)
	}
	return m, nil
}

func (db *DB) ListMembers(ctx context.Context) ([]models.Member, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+memberColumns+` FROM members ORDER BY last_name, first_name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}
