package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"
)

// Catalog is the reference data a center runs on.
type Catalog struct {
	Technicians []*models.Technician    `yaml:"technicians"`
	TimeSlots   []*models.TimeSlot      `yaml:"time_slots"`
	Parts       []*models.Part          `yaml:"parts"`
	Inventory   []*models.InventoryPart `yaml:"inventory"`
	Orders      []*models.Order         `yaml:"orders"`
	OrderItems  []*models.OrderItem     `yaml:"order_items"`
}

// Validate rejects catalogues with missing or duplicate identifiers, malformed
// slot times, and references to unknown parts or orders.
func (c *Catalog) Validate() error {
	technicianIDs := make(map[int64]bool)
	for _, t := range c.Technicians {
		if t.ID == 0 || t.CenterID == 0 {
			return fmt.Errorf("technician '%s' has invalid id or center", t.Name)
		}
		if technicianIDs[t.ID] {
			return fmt.Errorf("duplicate technician ID found: %d", t.ID)
		}
		technicianIDs[t.ID] = true
	}

	slotIDs := make(map[int64]bool)
	for _, s := range c.TimeSlots {
		if s.ID == 0 {
			return errors.New("time slot has invalid ID 0")
		}
		if slotIDs[s.ID] {
			return fmt.Errorf("duplicate time slot ID found: %d", s.ID)
		}
		slotIDs[s.ID] = true
		start, err := time.Parse(models.TimeFormat, s.StartTime)
		if err != nil {
			return fmt.Errorf("time slot %d: bad start time %q", s.ID, s.StartTime)
		}
		end, err := time.Parse(models.TimeFormat, s.EndTime)
		if err != nil {
			return fmt.Errorf("time slot %d: bad end time %q", s.ID, s.EndTime)
		}
		if !end.After(start) {
			return fmt.Errorf("time slot %d ends before it starts", s.ID)
		}
	}

	partIDs := make(map[int64]bool)
	for _, p := range c.Parts {
		if p.ID == 0 {
			return fmt.Errorf("part '%s' has invalid ID 0", p.Name)
		}
		if partIDs[p.ID] {
			return fmt.Errorf("duplicate part ID found: %d", p.ID)
		}
		partIDs[p.ID] = true
	}
	for _, row := range c.Inventory {
		if !partIDs[row.PartID] {
			return fmt.Errorf("inventory of center %d references unknown part %d", row.CenterID, row.PartID)
		}
		if row.CurrentStock < 0 || row.ReservedQty < 0 {
			return fmt.Errorf("inventory of part %d at center %d is negative", row.PartID, row.CenterID)
		}
	}

	orderIDs := make(map[int64]bool)
	for _, o := range c.Orders {
		orderIDs[o.ID] = true
	}
	for _, item := range c.OrderItems {
		if !orderIDs[item.OrderID] {
			return fmt.Errorf("order item %d references unknown order %d", item.ID, item.OrderID)
		}
		if !partIDs[item.PartID] {
			return fmt.Errorf("order item %d references unknown part %d", item.ID, item.PartID)
		}
		if item.ConsumedQty > item.Quantity {
			return fmt.Errorf("order item %d consumed more than ordered", item.ID)
		}
	}
	return nil
}

// SyncCatalog upserts every catalogue section and refreshes the in-memory
// technician and slot caches.
func (db *DB) SyncCatalog(ctx context.Context, c *Catalog) error {
	if err := db.SyncTechnicians(ctx, c.Technicians); err != nil {
		return err
	}
	if err := db.SyncTimeSlots(ctx, c.TimeSlots); err != nil {
		return err
	}
	if err := db.SyncParts(ctx, c.Parts); err != nil {
		return err
	}
	if err := db.SyncInventory(ctx, c.Inventory); err != nil {
		return err
	}
	return db.SyncOrders(ctx, c.Orders, c.OrderItems)
}

func (db *DB) SyncTechnicians(ctx context.Context, technicians []*models.Technician) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, t := range technicians {
			_, err := tx.ExecContext(ctx, `INSERT INTO technicians (id, center_id, name, is_active) VALUES (?, ?, ?, ?)
                    ON CONFLICT (id) DO UPDATE SET center_id = excluded.center_id, name = excluded.name, is_active = excluded.is_active`,
				t.ID, t.CenterID, t.Name, t.IsActive)
			if err != nil {
				return fmt.Errorf("failed to upsert technician %d: %w", t.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM technician_services WHERE technician_id = ?`, t.ID); err != nil {
				return fmt.Errorf("failed to reset services of technician %d: %w", t.ID, err)
			}
			for _, serviceID := range t.ServiceIDs {
				_, err := tx.ExecContext(ctx, `INSERT INTO technician_services (technician_id, service_id) VALUES (?, ?)`,
					t.ID, serviceID)
				if err != nil {
					return fmt.Errorf("failed to add service %d to technician %d: %w", serviceID, t.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return db.loadTechnicians(ctx)
}

func (db *DB) SyncTimeSlots(ctx context.Context, slots []*models.TimeSlot) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for _, s := range slots {
			_, err := tx.ExecContext(ctx, `INSERT INTO time_slots (id, start_time, end_time) VALUES (?, ?, ?)
                    ON CONFLICT (id) DO UPDATE SET start_time = excluded.start_time, end_time = excluded.end_time`,
				s.ID, s.StartTime, s.EndTime)
			if err != nil {
				return fmt.Errorf("failed to upsert time slot %d: %w", s.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return db.loadTimeSlots(ctx)
}

func (db *DB) SyncParts(ctx context.Context, parts []*models.Part) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range parts {
			_, err := tx.ExecContext(ctx, `INSERT INTO parts (id, name, category_id, unit_price) VALUES (?, ?, ?, ?)
                    ON CONFLICT (id) DO UPDATE SET name = excluded.name, category_id = excluded.category_id,
                        unit_price = excluded.unit_price`,
				p.ID, p.Name, p.CategoryID, p.UnitPrice)
			if err != nil {
				return fmt.Errorf("failed to upsert part %d: %w", p.ID, err)
			}
		}
		return nil
	})
}

// SyncInventory sets stock levels; existing rows are overwritten.
func (db *DB) SyncInventory(ctx context.Context, rows []*models.InventoryPart) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.ExecContext(ctx, `INSERT INTO inventory (center_id, part_id, current_stock, reserved_qty, minimum_stock)
                    VALUES (?, ?, ?, ?, ?)
                    ON CONFLICT (center_id, part_id) DO UPDATE SET current_stock = excluded.current_stock,
                        reserved_qty = excluded.reserved_qty, minimum_stock = excluded.minimum_stock`,
				r.CenterID, r.PartID, r.CurrentStock, r.ReservedQty, r.MinimumStock)
			if err != nil {
				return fmt.Errorf("failed to upsert inventory %d/%d: %w", r.CenterID, r.PartID, err)
			}
		}
		return nil
	})
}

func (db *DB) SyncOrders(ctx context.Context, orders []*models.Order, items []*models.OrderItem) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for _, o := range orders {
			_, err := tx.ExecContext(ctx, `INSERT INTO orders (id, customer_id, status, fulfillment_center_id) VALUES (?, ?, ?, ?)
                    ON CONFLICT (id) DO UPDATE SET customer_id = excluded.customer_id, status = excluded.status,
                        fulfillment_center_id = excluded.fulfillment_center_id`,
				o.ID, o.CustomerID, o.Status, o.FulfillmentCenterID)
			if err != nil {
				return fmt.Errorf("failed to upsert order %d: %w", o.ID, err)
			}
		}
		for _, it := range items {
			_, err := tx.ExecContext(ctx, `INSERT INTO order_items (id, order_id, part_id, quantity, consumed_qty) VALUES (?, ?, ?, ?, ?)
                    ON CONFLICT (id) DO UPDATE SET order_id = excluded.order_id, part_id = excluded.part_id,
                        quantity = excluded.quantity, consumed_qty = excluded.consumed_qty`,
				it.ID, it.OrderID, it.PartID, it.Quantity, it.ConsumedQty)
			if err != nil {
				return fmt.Errorf("failed to upsert order item %d: %w", it.ID, err)
			}
		}
		return nil
	})
}

// LoadCatalog fills the technician and slot caches from the database.
func (db *DB) LoadCatalog(ctx context.Context) error {
	if err := db.loadTechnicians(ctx); err != nil {
		return err
	}
	return db.loadTimeSlots(ctx)
}

func (db *DB) loadTechnicians(ctx context.Context) error {
	rows, err := db.QueryContext(ctx, `SELECT id, center_id, name, is_active FROM technicians`)
	if err != nil {
		return fmt.Errorf("failed to load technicians: %w", err)
	}
	defer rows.Close()

	techs := make(map[int64]*models.Technician)
	for rows.Next() {
		t := &models.Technician{}
		if err := rows.Scan(&t.ID, &t.CenterID, &t.Name, &t.IsActive); err != nil {
			return fmt.Errorf("failed to scan technician: %w", err)
		}
		techs[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return err
	}

	srows, err := db.QueryContext(ctx, `SELECT technician_id, service_id FROM technician_services ORDER BY service_id`)
	if err != nil {
		return fmt.Errorf("failed to load technician services: %w", err)
	}
	defer srows.Close()
	for srows.Next() {
		var techID, serviceID int64
		if err := srows.Scan(&techID, &serviceID); err != nil {
			return fmt.Errorf("failed to scan technician service: %w", err)
		}
		if t, ok := techs[techID]; ok {
			t.ServiceIDs = append(t.ServiceIDs, serviceID)
		}
	}
	if err := srows.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	db.technicians = techs
	db.mu.Unlock()

	db.logger.Debug().Int("count", len(techs)).Msg("technician cache loaded")
	return nil
}

func (db *DB) loadTimeSlots(ctx context.Context) error {
	rows, err := db.QueryContext(ctx, `SELECT id, start_time, end_time FROM time_slots ORDER BY start_time, id`)
	if err != nil {
		return fmt.Errorf("failed to load time slots: %w", err)
	}
	defer rows.Close()

	slots := make(map[int64]*models.TimeSlot)
	var order []int64
	for rows.Next() {
		s := &models.TimeSlot{}
		if err := rows.Scan(&s.ID, &s.StartTime, &s.EndTime); err != nil {
			return fmt.Errorf("failed to scan time slot: %w", err)
		}
		slots[s.ID] = s
		order = append(order, s.ID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	db.mu.Lock()
	db.timeSlots = slots
	db.slotOrder = order
	db.mu.Unlock()
	return nil
}

func (db *DB) GetTechnician(ctx context.Context, id int64) (*models.Technician, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.technicians[id]
	if !ok {
		return nil, domain.NotFound("technician", id)
	}
	cp := *t
	return &cp, nil
}

// GetTechniciansByCenter returns the center's active technicians ordered by id.
func (db *DB) GetTechniciansByCenter(ctx context.Context, centerID int64) ([]*models.Technician, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []*models.Technician
	for _, t := range db.technicians {
		if t.CenterID == centerID && t.IsActive {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (db *DB) GetTimeSlots(ctx context.Context) ([]*models.TimeSlot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	out := make([]*models.TimeSlot, 0, len(db.slotOrder))
	for _, id := range db.slotOrder {
		cp := *db.timeSlots[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (db *DB) GetTimeSlot(ctx context.Context, id int64) (*models.TimeSlot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	s, ok := db.timeSlots[id]
	if !ok {
		return nil, domain.NotFound("time slot", id)
	}
	cp := *s
	return &cp, nil
}

func (db *DB) GetPartByID(ctx context.Context, id int64) (*models.Part, error) {
	p := &models.Part{}
	err := db.QueryRowContext(ctx, `SELECT id, name, category_id, unit_price FROM parts WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.CategoryID, &p.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("part", id)
		}
		return nil, fmt.Errorf("failed to get part: %w", err)
	}
	return p, nil
}

func (db *DB) GetInventoryByCenter(ctx context.Context, centerID int64) ([]*models.InventoryPart, error) {
	rows, err := db.QueryContext(ctx, `SELECT center_id, part_id, current_stock, reserved_qty, minimum_stock
              FROM inventory WHERE center_id = ? ORDER BY part_id`, centerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	defer rows.Close()

	var out []*models.InventoryPart
	for rows.Next() {
		p := &models.InventoryPart{}
		if err := rows.Scan(&p.CenterID, &p.PartID, &p.CurrentStock, &p.ReservedQty, &p.MinimumStock); err != nil {
			return nil, fmt.Errorf("failed to scan inventory: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (db *DB) GetInventoryPart(ctx context.Context, centerID, partID int64) (*models.InventoryPart, error) {
	p := &models.InventoryPart{}
	err := db.QueryRowContext(ctx, `SELECT center_id, part_id, current_stock, reserved_qty, minimum_stock
              FROM inventory WHERE center_id = ? AND part_id = ?`, centerID, partID).
		Scan(&p.CenterID, &p.PartID, &p.CurrentStock, &p.ReservedQty, &p.MinimumStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: inventory for part %d at center %d", domain.ErrNotFound, partID, centerID)
		}
		return nil, fmt.Errorf("failed to get inventory part: %w", err)
	}
	return p, nil
}
