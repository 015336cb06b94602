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

func (db *DB) CountPendingChecklist(ctx context.Context, bookingID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checklist_results WHERE booking_id = ? AND result = ?`,
		bookingID, models.ChecklistPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending checklist: %w", err)
	}
	return count, nil
}

// UpsertChecklistResult records the outcome for one category, replacing any
// earlier one. The write is refused once the booking is COMPLETED, PAID or
// CANCELLED.
func (db *DB) UpsertChecklistResult(ctx context.Context, result *models.ChecklistResult) error {
	now := time.Now()
	query := `INSERT INTO checklist_results (booking_id, category_id, result, notes, updated_at)
              SELECT ?, ?, ?, ?, ?
              WHERE EXISTS (SELECT 1 FROM bookings WHERE id = ? AND status NOT IN (?, ?, ?))
              ON CONFLICT (booking_id, category_id)
              DO UPDATE SET result = excluded.result, notes = excluded.notes, updated_at = excluded.updated_at`
	res, err := db.ExecContext(ctx, query,
		result.BookingID, result.CategoryID, result.Result, result.Notes, now,
		result.BookingID, models.StatusCompleted, models.StatusPaid, models.StatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to upsert checklist result: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var status models.BookingStatus
		err := db.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ?`, result.BookingID).Scan(&status)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFound("booking", result.BookingID)
			}
			return fmt.Errorf("failed to check booking: %w", err)
		}
		return fmt.Errorf("%w: checklist of booking %d is closed (%s)", domain.ErrConflict, result.BookingID, status)
	}

	err = db.QueryRowContext(ctx, `SELECT id FROM checklist_results WHERE booking_id = ? AND category_id = ?`,
		result.BookingID, result.CategoryID).Scan(&result.ID)
	if err != nil {
		return fmt.Errorf("failed to read checklist result id: %w", err)
	}
	result.UpdatedAt = now
	return nil
}

func (db *DB) GetChecklist(ctx context.Context, bookingID int64) ([]*models.ChecklistResult, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, booking_id, category_id, result, notes, updated_at
              FROM checklist_results WHERE booking_id = ? ORDER BY category_id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get checklist: %w", err)
	}
	defer rows.Close()

	var results []*models.ChecklistResult
	for rows.Next() {
		r := &models.ChecklistResult{}
		if err := rows.Scan(&r.ID, &r.BookingID, &r.CategoryID, &r.Result, &r.Notes, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checklist result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
