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

const partColumns = `id, booking_id, part_id, category_id, quantity_used, status, is_customer_supplied,
                 source_order_item_id, approved_by_staff_id, consumed_at, notes, created_at, updated_at
              FROM work_order_parts`

func scanPart(row rowScanner) (*models.WorkOrderPart, error) {
	var (
		p                       models.WorkOrderPart
		category, source, staff sql.NullInt64
		consumedAt              sql.NullTime
	)
	err := row.Scan(&p.ID, &p.BookingID, &p.PartID, &category, &p.QuantityUsed, &p.Status, &p.IsCustomerSupplied,
		&source, &staff, &consumedAt, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.CategoryID = int64Ptr(category)
	p.SourceOrderItemID = int64Ptr(source)
	p.ApprovedByStaffID = int64Ptr(staff)
	if consumedAt.Valid {
		t := consumedAt.Time
		p.ConsumedAt = &t
	}
	return &p, nil
}

func (db *DB) CreateWorkOrderPart(ctx context.Context, part *models.WorkOrderPart) error {
	if part.Status == "" {
		part.Status = models.PartPendingApproval
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, `INSERT INTO work_order_parts (
                booking_id, part_id, category_id, quantity_used, status, is_customer_supplied, notes,
                created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		part.BookingID, part.PartID, nullInt64(part.CategoryID), part.QuantityUsed, part.Status,
		part.IsCustomerSupplied, part.Notes, now, now)
	if err != nil {
		return fmt.Errorf("failed to create work order part: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	part.ID = id
	part.CreatedAt = now
	part.UpdatedAt = now
	return nil
}

// GetWorkOrderPart loads a part usage that belongs to bookingID.
func (db *DB) GetWorkOrderPart(ctx context.Context, bookingID, id int64) (*models.WorkOrderPart, error) {
	row := db.QueryRowContext(ctx, `SELECT `+partColumns+` WHERE id = ? AND booking_id = ?`, id, bookingID)
	p, err := scanPart(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("part usage", id)
		}
		return nil, fmt.Errorf("failed to get work order part: %w", err)
	}
	return p, nil
}

func (db *DB) ListWorkOrderParts(ctx context.Context, bookingID int64) ([]*models.WorkOrderPart, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+partColumns+` WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work order parts: %w", err)
	}
	defer rows.Close()

	var parts []*models.WorkOrderPart
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work order part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// UpdateWorkOrderPartStatus moves a part usage from one status to another;
// it fails with a conflict when the row is no longer in from.
func (db *DB) UpdateWorkOrderPartStatus(ctx context.Context, id int64, from, to models.PartStatus) error {
	result, err := db.ExecContext(ctx, `UPDATE work_order_parts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update work order part status: %w", err)
	}
	return db.checkPartUpdated(ctx, result, id, fmt.Sprintf("is no longer %s", from))
}

func (db *DB) UpdateWorkOrderPartDetails(ctx context.Context, id, quantity int64, notes string) error {
	result, err := db.ExecContext(ctx, `UPDATE work_order_parts SET quantity_used = ?, notes = ?, updated_at = ?
              WHERE id = ? AND status IN (?, ?)`,
		quantity, notes, time.Now(), id, models.PartDraft, models.PartPendingApproval)
	if err != nil {
		return fmt.Errorf("failed to update work order part: %w", err)
	}
	return db.checkPartUpdated(ctx, result, id, "can no longer be edited")
}

func (db *DB) ReplaceWorkOrderPart(ctx context.Context, id, newPartID int64, quantity int64) error {
	result, err := db.ExecContext(ctx, `UPDATE work_order_parts SET part_id = ?, quantity_used = ?, updated_at = ?
              WHERE id = ? AND status = ?`,
		newPartID, quantity, time.Now(), id, models.PartDraft)
	if err != nil {
		return fmt.Errorf("failed to replace work order part: %w", err)
	}
	return db.checkPartUpdated(ctx, result, id, "is no longer a draft")
}

func (db *DB) DeleteWorkOrderPart(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM work_order_parts WHERE id = ? AND status <> ?`, id, models.PartConsumed)
	if err != nil {
		return fmt.Errorf("failed to delete work order part: %w", err)
	}
	return db.checkPartUpdated(ctx, result, id, "is consumed")
}

func (db *DB) checkPartUpdated(ctx context.Context, result sql.Result, id int64, reason string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}
	status, err := partStatus(ctx, db.DB, id)
	if err != nil {
		return err
	}
	if status == models.PartConsumed {
		return domain.ErrAlreadyConsumed
	}
	return fmt.Errorf("%w: part usage %d %s", domain.ErrConflict, id, reason)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func partStatus(ctx context.Context, q queryRower, id int64) (models.PartStatus, error) {
	var status models.PartStatus
	err := q.QueryRowContext(ctx, `SELECT status FROM work_order_parts WHERE id = ?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.NotFound("part usage", id)
		}
		return "", fmt.Errorf("failed to read part status: %w", err)
	}
	return status, nil
}

// ConsumeFromInventory decrements center stock and marks the DRAFT part usage
// CONSUMED in one transaction. Stock never goes negative: the decrement only
// applies while current_stock covers the quantity.
func (db *DB) ConsumeFromInventory(ctx context.Context, req domain.ConsumeRequest) error {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE inventory SET current_stock = current_stock - ?
                WHERE center_id = ? AND part_id = ? AND current_stock >= ?`,
			req.Quantity, req.CenterID, req.PartID, req.Quantity)
		if err != nil {
			return fmt.Errorf("failed to decrement stock: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return classifyStockFailure(ctx, tx, req)
		}

		result, err = tx.ExecContext(ctx, `UPDATE work_order_parts
                SET status = ?, approved_by_staff_id = ?, consumed_at = ?, updated_at = ?
                WHERE id = ? AND status = ? AND is_customer_supplied = 0`,
			models.PartConsumed, req.StaffID, req.At, req.At, req.PartUsageID, models.PartDraft)
		if err != nil {
			return fmt.Errorf("failed to mark part consumed: %w", err)
		}
		if rows, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			status, err := partStatus(ctx, tx, req.PartUsageID)
			if err != nil {
				return err
			}
			if status == models.PartConsumed {
				return domain.ErrAlreadyConsumed
			}
			if status == models.PartDraft {
				return fmt.Errorf("%w: part usage %d", domain.ErrCustomerSupplied, req.PartUsageID)
			}
			return fmt.Errorf("%w: part usage %d is %s, not DRAFT", domain.ErrConflict, req.PartUsageID, status)
		}
		return nil
	})
}

func classifyStockFailure(ctx context.Context, tx *sql.Tx, req domain.ConsumeRequest) error {
	stockErr := &domain.StockError{CenterID: req.CenterID, PartID: req.PartID, Requested: req.Quantity}

	var current int64
	err := tx.QueryRowContext(ctx, `SELECT current_stock FROM inventory WHERE center_id = ? AND part_id = ?`,
		req.CenterID, req.PartID).Scan(&current)
	switch {
	case err == nil:
		stockErr.Code = domain.CodeInsufficientStock
		stockErr.Available = current
		return stockErr
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to read stock: %w", err)
	}

	var elsewhere, atCenter int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory WHERE part_id = ?`, req.PartID).Scan(&elsewhere); err != nil {
		return fmt.Errorf("failed to check part stocking: %w", err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM inventory WHERE center_id = ?`, req.CenterID).Scan(&atCenter); err != nil {
		return fmt.Errorf("failed to check center inventory: %w", err)
	}

	switch {
	case elsewhere > 0:
		stockErr.Code = domain.CodeCenterMismatch
	case atCenter == 0:
		stockErr.Code = domain.CodeInventoryNotFound
	default:
		stockErr.Code = domain.CodePartNotInInventory
	}
	return stockErr
}

// ConsumeFromOrderItem draws the quantity from a customer's order item and
// marks the part usage CONSUMED as customer-supplied. Stock is untouched.
func (db *DB) ConsumeFromOrderItem(ctx context.Context, req domain.SupplyRequest) error {
	if req.At.IsZero() {
		req.At = time.Now()
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE order_items SET consumed_qty = consumed_qty + ?
                WHERE id = ? AND quantity - consumed_qty >= ?`,
			req.Quantity, req.OrderItemID, req.Quantity)
		if err != nil {
			return fmt.Errorf("failed to draw from order item: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			var quantity, consumed int64
			err := tx.QueryRowContext(ctx, `SELECT quantity, consumed_qty FROM order_items WHERE id = ?`, req.OrderItemID).
				Scan(&quantity, &consumed)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return domain.NotFound("order item", req.OrderItemID)
				}
				return fmt.Errorf("failed to read order item: %w", err)
			}
			return &domain.StockError{
				Code:      domain.CodeInsufficientStock,
				PartID:    req.PartID,
				Requested: req.Quantity,
				Available: quantity - consumed,
			}
		}

		result, err = tx.ExecContext(ctx, `UPDATE work_order_parts
                SET status = ?, is_customer_supplied = 1, source_order_item_id = ?, part_id = ?, quantity_used = ?,
                    approved_by_staff_id = ?, consumed_at = ?, updated_at = ?
                WHERE id = ? AND booking_id = ? AND status <> ?`,
			models.PartConsumed, req.OrderItemID, req.PartID, req.Quantity,
			req.StaffID, req.At, req.At, req.PartUsageID, req.BookingID, models.PartConsumed)
		if err != nil {
			return fmt.Errorf("failed to mark part consumed: %w", err)
		}
		if rows, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			if _, err := partStatus(ctx, tx, req.PartUsageID); err != nil {
				return err
			}
			return domain.ErrAlreadyConsumed
		}
		return nil
	})
}

// GetOrderItem returns the order item together with its order.
func (db *DB) GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, *models.Order, error) {
	var (
		item  models.OrderItem
		order models.Order
	)
	err := db.QueryRowContext(ctx, `SELECT oi.id, oi.order_id, oi.part_id, oi.quantity, oi.consumed_qty,
                 o.id, o.customer_id, o.status, o.fulfillment_center_id
              FROM order_items oi JOIN orders o ON o.id = oi.order_id
              WHERE oi.id = ?`, id).
		Scan(&item.ID, &item.OrderID, &item.PartID, &item.Quantity, &item.ConsumedQty,
			&order.ID, &order.CustomerID, &order.Status, &order.FulfillmentCenterID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, domain.NotFound("order item", id)
		}
		return nil, nil, fmt.Errorf("failed to get order item: %w", err)
	}
	return &item, &order, nil
}
