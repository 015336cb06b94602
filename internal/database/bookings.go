package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"
)

const bookingColumns = `b.id, b.customer_id, b.center_id, b.service_id, b.technician_slot_id,
                 ts.technician_id, ts.slot_id, ts.work_date, b.status, b.applied_credit_id,
                 b.special_requests, ts.notes, b.created_at, b.updated_at, b.version
              FROM bookings b
              JOIN technician_time_slots ts ON ts.id = b.technician_slot_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b       models.Booking
		dateStr string
		credit  sql.NullInt64
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.CenterID, &b.ServiceID, &b.TechnicianSlotID,
		&b.TechnicianID, &b.SlotID, &dateStr, &b.Status, &credit,
		&b.SpecialRequests, &b.SlotNotes, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.WorkDate, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	b.AppliedCreditID = int64Ptr(credit)
	return &b, nil
}

// CreateBookingWithSlot claims the technician slot and inserts the booking in
// one transaction. A second active booking on the same slot fails with
// domain.ErrSlotTaken.
func (db *DB) CreateBookingWithSlot(ctx context.Context, booking *models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	workDate := models.DateOnly(booking.WorkDate).Format(models.DateFormat)
	now := time.Now()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		// a slot row left by a cancelled booking is reused with the new notes
		_, err := tx.ExecContext(ctx, `INSERT INTO technician_time_slots (technician_id, center_id, slot_id, work_date, notes)
                VALUES (?, ?, ?, ?, ?)
                ON CONFLICT (technician_id, slot_id, work_date) DO UPDATE SET notes = excluded.notes`,
			booking.TechnicianID, booking.CenterID, booking.SlotID, workDate, booking.SlotNotes)
		if err != nil {
			return fmt.Errorf("failed to upsert technician slot: %w", err)
		}

		var slotRowID int64
		err = tx.QueryRowContext(ctx, `SELECT id FROM technician_time_slots
                WHERE technician_id = ? AND slot_id = ? AND work_date = ?`,
			booking.TechnicianID, booking.SlotID, workDate).Scan(&slotRowID)
		if err != nil {
			return fmt.Errorf("failed to read technician slot: %w", err)
		}

		result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
                    customer_id, center_id, service_id, technician_slot_id, status,
                    applied_credit_id, special_requests, created_at, updated_at, version
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			booking.CustomerID, booking.CenterID, booking.ServiceID, slotRowID, booking.Status,
			nullInt64(booking.AppliedCreditID), booking.SpecialRequests, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrSlotTaken
			}
			return fmt.Errorf("failed to insert booking in tx: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id in tx: %w", err)
		}
		booking.ID = id
		booking.TechnicianSlotID = slotRowID
		return nil
	})
	if err != nil {
		return err
	}

	booking.WorkDate = models.DateOnly(booking.WorkDate)
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` WHERE b.id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("booking", id)
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// UpdateBookingStatusWithVersion moves the booking to status only if nobody
// changed it since version was read. COMPLETED is additionally refused in the
// same statement while any checklist result is PENDING.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	args := []interface{}{status, time.Now(), id, version}
	if status == models.StatusCompleted {
		query += ` AND NOT EXISTS (SELECT 1 FROM checklist_results cr WHERE cr.booking_id = bookings.id AND cr.result = ?)`
		args = append(args, models.ChecklistPending)
	}
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSlotTaken
		}
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var current int64
	err = db.QueryRowContext(ctx, `SELECT version FROM bookings WHERE id = ?`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("booking", id)
		}
		return fmt.Errorf("failed to check booking: %w", err)
	}
	if current != version {
		return domain.ErrConcurrentModification
	}
	if status == models.StatusCompleted {
		return fmt.Errorf("%w: booking %d", domain.ErrChecklistIncomplete, id)
	}
	return domain.ErrConcurrentModification
}

func (db *DB) GetBookingsByCenterDate(ctx context.Context, centerID int64, date time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              WHERE b.center_id = ? AND ts.work_date = ?
              ORDER BY ts.slot_id, ts.technician_id, b.id`
	rows, err := db.QueryContext(ctx, query, centerID, date.Format(models.DateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by center: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// IsSlotBooked reports whether an active (non-cancelled) booking occupies key.
func (db *DB) IsSlotBooked(ctx context.Context, key models.SlotKey) (bool, error) {
	query := `SELECT COUNT(*) FROM bookings b
              JOIN technician_time_slots ts ON ts.id = b.technician_slot_id
              WHERE ts.technician_id = ? AND ts.slot_id = ? AND ts.work_date = ? AND b.status <> ?`
	var count int
	err := db.QueryRowContext(ctx, query, key.TechnicianID, key.SlotID, key.DateString(), models.StatusCancelled).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return count > 0, nil
}

// GetBookedSlots lists the technician slots of a center that carry an active booking on date.
func (db *DB) GetBookedSlots(ctx context.Context, centerID int64, date time.Time) ([]*models.TechnicianTimeSlot, error) {
	query := `SELECT ts.id, ts.technician_id, ts.center_id, ts.slot_id, ts.work_date, ts.notes
              FROM technician_time_slots ts
              JOIN bookings b ON b.technician_slot_id = ts.id
              WHERE ts.center_id = ? AND ts.work_date = ? AND b.status <> ?
              ORDER BY ts.slot_id, ts.technician_id`
	rows, err := db.QueryContext(ctx, query, centerID, date.Format(models.DateFormat), models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked slots: %w", err)
	}
	defer rows.Close()

	var slots []*models.TechnicianTimeSlot
	for rows.Next() {
		var (
			s       models.TechnicianTimeSlot
			dateStr string
		)
		if err := rows.Scan(&s.ID, &s.TechnicianID, &s.CenterID, &s.SlotID, &dateStr, &s.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan technician slot: %w", err)
		}
		if s.WorkDate, err = models.ParseDate(dateStr); err != nil {
			return nil, fmt.Errorf("failed to parse slot date %s: %w", dateStr, err)
		}
		slots = append(slots, &s)
	}
	return slots, rows.Err()
}
