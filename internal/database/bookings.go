package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parish/internal/availability"
	"parish/internal/models"
)

const bookingColumns = `id, resource_id, resource_name, member_id, member_name, purpose,
                        start_at, end_at, status, notes, created_at, updated_at, version`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.ResourceID, &b.ResourceName, &b.MemberID, &b.MemberName, &b.Purpose,
		&b.Start, &b.End, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	defer rows.Close()
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// CreateBookingWithLock inserts the booking only if the resource is bookable
// and no pending or approved booking overlaps the requested window. The check
// and the insert share one transaction.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	if !booking.Start.Before(booking.End) {
		return ErrInvalidWindow
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		resource, err := getResourceTx(ctx, tx, booking.ResourceID)
		if err != nil {
			return err
		}
		if !resource.Status.Bookable() {
			return fmt.Errorf("resource %d is %s: %w", resource.ID, resource.Status, ErrResourceNotBookable)
		}

		rows, err := tx.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
                  WHERE resource_id = ? AND status IN (?, ?)`,
			booking.ResourceID, models.BookingPending, models.BookingApproved)
		if err != nil {
			return fmt.Errorf("failed to load bookings in tx: %w", err)
		}
		existing, err := collectBookings(rows)
		if err != nil {
			return err
		}

		if !availability.IsResourceAvailable(*resource, existing, booking.Start, booking.End) {
			return ErrNotAvailable
		}

		if booking.Status == "" {
			booking.Status = models.BookingPending
		}
		booking.ResourceName = resource.Name
		booking.Start = dbTime(booking.Start)
		booking.End = dbTime(booking.End)

		now := time.Now()
		res, err := tx.ExecContext(ctx, `INSERT INTO bookings (
                    resource_id, resource_name, member_id, member_name, purpose,
                    start_at, end_at, status, notes, created_at, updated_at, version
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			booking.ResourceID, booking.ResourceName, booking.MemberID, booking.MemberName, booking.Purpose,
			booking.Start, booking.End, booking.Status, booking.Notes, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}

		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}
		booking.ID = id
		booking.CreatedAt = now
		booking.UpdatedAt = now
		booking.Version = 1
		return nil
	})
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return b, nil
}

// ListBookingsForResource returns every booking of the resource regardless of status.
func (db *DB) ListBookingsForResource(ctx context.Context, resourceID int64) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
              WHERE resource_id = ? ORDER BY start_at ASC`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings for resource: %w", err)
	}
	return collectBookings(rows)
}

// ListBookingsByRange returns bookings intersecting [from, to).
func (db *DB) ListBookingsByRange(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
              WHERE start_at < ? AND end_at > ? ORDER BY start_at ASC`, dbTime(to), dbTime(from))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by range: %w", err)
	}
	return collectBookings(rows)
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CompleteElapsedBookings marks approved bookings whose window ended before now
// as completed and returns them.
func (db *DB) CompleteElapsedBookings(ctx context.Context, now time.Time) ([]models.Booking, error) {
	var done []models.Booking
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings
                  WHERE status = ? AND end_at <= ?`, models.BookingApproved, dbTime(now))
		if err != nil {
			return fmt.Errorf("failed to find elapsed bookings: %w", err)
		}
		elapsed, err := collectBookings(rows)
		if err != nil {
			return err
		}

		ts := time.Now()
		for i := range elapsed {
			b := &elapsed[i]
			if _, err := tx.ExecContext(ctx, `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
                      WHERE id = ? AND version = ?`, models.BookingCompleted, ts, b.ID, b.Version); err != nil {
				return fmt.Errorf("failed to complete booking %d: %w", b.ID, err)
			}
			b.Status = models.BookingCompleted
			b.Version++
			b.UpdatedAt = ts
		}
		done = elapsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return done, nil
}
