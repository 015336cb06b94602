package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2030, 5, 14, 0, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SyncCatalog(context.Background(), testCatalog()))
	return db
}

func testCatalog() *Catalog {
	return &Catalog{
		Technicians: []*models.Technician{
			{ID: 1, CenterID: 10, Name: "Ivan", ServiceIDs: []int64{100, 200}, IsActive: true},
			{ID: 2, CenterID: 10, Name: "Petr", ServiceIDs: []int64{100}, IsActive: true},
			{ID: 3, CenterID: 20, Name: "Anna", ServiceIDs: []int64{100}, IsActive: true},
			{ID: 4, CenterID: 10, Name: "Oleg", ServiceIDs: []int64{100}, IsActive: false},
		},
		TimeSlots: []*models.TimeSlot{
			{ID: 2, StartTime: "10:00", EndTime: "11:00"},
			{ID: 1, StartTime: "09:00", EndTime: "10:00"},
		},
		Parts: []*models.Part{
			{ID: 500, Name: "Oil filter", CategoryID: 7, UnitPrice: 1200},
			{ID: 501, Name: "Brake pads", CategoryID: 8, UnitPrice: 5400},
			{ID: 502, Name: "Spark plug", CategoryID: 9, UnitPrice: 700},
		},
		Inventory: []*models.InventoryPart{
			{CenterID: 10, PartID: 500, CurrentStock: 5, MinimumStock: 2},
			{CenterID: 20, PartID: 501, CurrentStock: 3},
		},
		Orders: []*models.Order{
			{ID: 900, CustomerID: 42, Status: models.OrderPaid, FulfillmentCenterID: 10},
		},
		OrderItems: []*models.OrderItem{
			{ID: 901, OrderID: 900, PartID: 502, Quantity: 4},
		},
	}
}

func createTestBooking(t *testing.T, db *DB, technicianID, slotID int64) *models.Booking {
	t.Helper()
	b := &models.Booking{
		CustomerID:   42,
		CenterID:     10,
		ServiceID:    100,
		TechnicianID: technicianID,
		SlotID:       slotID,
		WorkDate:     testDate,
	}
	require.NoError(t, db.CreateBookingWithSlot(context.Background(), b))
	return b
}

func TestNewDB(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("nested directory is created", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "service.db")
		db, err := NewDB(path, &logger)
		require.NoError(t, err)
		defer db.Close()
		assert.FileExists(t, path)
	})

	t.Run("in memory", func(t *testing.T) {
		db, err := NewDB(":memory:", &logger)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, db.SyncCatalog(context.Background(), testCatalog()))
		techs, err := db.GetTechniciansByCenter(context.Background(), 10)
		require.NoError(t, err)
		assert.Len(t, techs, 2)
	})

	t.Run("nil logger", func(t *testing.T) {
		db, err := NewDB(":memory:", nil)
		require.NoError(t, err)
		db.Close()
	})
}

func TestCatalogCache(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tech, err := db.GetTechnician(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ivan", tech.Name)
	assert.ElementsMatch(t, []int64{100, 200}, tech.ServiceIDs)

	_, err = db.GetTechnician(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	techs, err := db.GetTechniciansByCenter(ctx, 10)
	require.NoError(t, err)
	require.Len(t, techs, 2, "inactive technician is skipped")
	assert.Equal(t, int64(1), techs[0].ID)
	assert.Equal(t, int64(2), techs[1].ID)

	slots, err := db.GetTimeSlots(ctx)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, "09:00", slots[0].StartTime, "slots are ordered by start time")

	_, err = db.GetTimeSlot(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// returned values are copies
	tech.Name = "changed"
	again, err := db.GetTechnician(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ivan", again.Name)
}

func TestLoadCatalogAfterReopen(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.SyncCatalog(ctx, testCatalog()))
	require.NoError(t, db.Close())

	db, err = NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetTechnician(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound, "cache is empty until loaded")

	require.NoError(t, db.LoadCatalog(ctx))
	tech, err := db.GetTechnician(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), tech.CenterID)
}

func TestInventoryLookups(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	part, err := db.GetPartByID(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(7), part.CategoryID)

	_, err = db.GetPartByID(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inv, err := db.GetInventoryByCenter(ctx, 10)
	require.NoError(t, err)
	require.Len(t, inv, 1)
	assert.Equal(t, int64(5), inv[0].CurrentStock)

	row, err := db.GetInventoryPart(ctx, 20, 501)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row.CurrentStock)

	_, err = db.GetInventoryPart(ctx, 10, 501)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClosedDBErrors(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Close())

	_, err := db.GetBooking(ctx, 1)
	assert.Error(t, err)
	_, err = db.IsSlotBooked(ctx, models.SlotKey{CenterID: 10, Date: testDate, SlotID: 1, TechnicianID: 1})
	assert.Error(t, err)
	_, err = db.GetPartByID(ctx, 500)
	assert.Error(t, err)
	err = db.CreateBookingWithSlot(ctx, &models.Booking{CenterID: 10, TechnicianID: 1, SlotID: 1, WorkDate: testDate})
	assert.Error(t, err)
	err = db.ConsumeFromInventory(ctx, domain.ConsumeRequest{CenterID: 10, PartID: 500, Quantity: 1})
	assert.Error(t, err)
}

func TestCatalogValidate(t *testing.T) {
	require.NoError(t, testCatalog().Validate())

	tests := []struct {
		name   string
		mutate func(c *Catalog)
		errMsg string
	}{
		{
			name:   "duplicate technician",
			mutate: func(c *Catalog) { c.Technicians[1].ID = 1 },
			errMsg: "duplicate technician ID found: 1",
		},
		{
			name:   "technician without center",
			mutate: func(c *Catalog) { c.Technicians[0].CenterID = 0 },
			errMsg: "technician 'Ivan' has invalid id or center",
		},
		{
			name:   "bad slot time",
			mutate: func(c *Catalog) { c.TimeSlots[0].StartTime = "10am" },
			errMsg: `time slot 2: bad start time "10am"`,
		},
		{
			name:   "inverted slot",
			mutate: func(c *Catalog) { c.TimeSlots[0].EndTime = "09:30" },
			errMsg: "time slot 2 ends before it starts",
		},
		{
			name:   "inventory of unknown part",
			mutate: func(c *Catalog) { c.Inventory[0].PartID = 999 },
			errMsg: "inventory of center 10 references unknown part 999",
		},
		{
			name:   "order item of unknown order",
			mutate: func(c *Catalog) { c.OrderItems[0].OrderID = 1 },
			errMsg: "order item 901 references unknown order 1",
		},
		{
			name:   "over consumed order item",
			mutate: func(c *Catalog) { c.OrderItems[0].ConsumedQty = 5 },
			errMsg: "order item 901 consumed more than ordered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testCatalog()
			tt.mutate(c)
			assert.EqualError(t, c.Validate(), tt.errMsg)
		})
	}
}
