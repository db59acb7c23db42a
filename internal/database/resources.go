package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parish/internal/models"
)

const resourceColumns = `id, name, category, location, capacity, status, description, created_at, updated_at`

func scanResource(row rowScanner) (*models.Resource, error) {
	var r models.Resource
	if err := row.Scan(&r.ID, &r.Name, &r.Category, &r.Location, &r.Capacity,
		&r.Status, &r.Description, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	if r.Status == "" {
		r.Status = models.ResourceAvailable
	}
	now := time.Now()
	query := `INSERT INTO resources (name, category, location, capacity, status, description, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := db.ExecContext(ctx, query, r.Name, r.Category, r.Location, r.Capacity,
		r.Status, r.Description, now, now)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	row := db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if err != nil {
		return nil, notFound(err, "resource", id)
	}
	return r, nil
}

func getResourceTx(ctx context.Context, tx *sql.Tx, id int64) (*models.Resource, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if err != nil {
		return nil, notFound(err, "resource", id)
	}
	return r, nil
}

func (db *DB) ListResources(ctx context.Context) ([]models.Resource, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var resources []models.Resource
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		resources = append(resources, *r)
	}
	return resources, rows.Err()
}

func (db *DB) UpdateResourceStatus(ctx context.Context, id int64, status models.ResourceStatus) error {
	res, err := db.ExecContext(ctx, `UPDATE resources SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update resource status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %d: %w", id, ErrNotFound)
	}
	return nil
}

// SyncResources upserts the configured resource list by ID.
// Resources missing from the list are left untouched.
func (db *DB) SyncResources(ctx context.Context, resources []models.Resource) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
            INSERT INTO resources (id, name, category, location, capacity, status, description, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                category = excluded.category,
                location = excluded.location,
                capacity = excluded.capacity,
                status = excluded.status,
                description = excluded.description,
                updated_at = excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("failed to prepare resource sync: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, r := range resources {
			status := r.Status
			if status == "" {
				status = models.ResourceAvailable
			}
			if _, err := stmt.ExecContext(ctx, r.ID, r.Name, r.Category, r.Location, r.Capacity,
				status, r.Description, now, now); err != nil {
				return fmt.Errorf("failed to sync resource %d: %w", r.ID, err)
			}
		}
		return nil
	})
}
