package database

import (
	"context"
	"testing"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookingWithSlot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	credit := int64(77)
	b := &models.Booking{
		CustomerID:      42,
		CenterID:        10,
		ServiceID:       100,
		TechnicianID:    1,
		SlotID:          1,
		WorkDate:        testDate.Add(13 * time.Hour),
		AppliedCreditID: &credit,
		SpecialRequests: "check tyre pressure",
	}
	require.NoError(t, db.CreateBookingWithSlot(ctx, b))
	assert.NotZero(t, b.ID)
	assert.NotZero(t, b.TechnicianSlotID)
	assert.Equal(t, models.StatusPending, b.Status)
	assert.Equal(t, int64(1), b.Version)
	assert.Equal(t, testDate, b.WorkDate, "work date is truncated to the day")

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.TechnicianSlotID, got.TechnicianSlotID)
	assert.Equal(t, int64(1), got.TechnicianID)
	assert.Equal(t, int64(1), got.SlotID)
	assert.Equal(t, testDate, got.WorkDate)
	require.NotNil(t, got.AppliedCreditID)
	assert.Equal(t, credit, *got.AppliedCreditID)
	assert.Equal(t, "check tyre pressure", got.SpecialRequests)

	t.Run("second active booking on the slot is rejected", func(t *testing.T) {
		dup := &models.Booking{CustomerID: 43, CenterID: 10, ServiceID: 100, TechnicianID: 1, SlotID: 1, WorkDate: testDate}
		err := db.CreateBookingWithSlot(ctx, dup)
		assert.ErrorIs(t, err, domain.ErrSlotTaken)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("another technician on the same slot is fine", func(t *testing.T) {
		other := createTestBooking(t, db, 2, 1)
		assert.NotEqual(t, b.TechnicianSlotID, other.TechnicianSlotID)
	})

	t.Run("cancelled booking frees the slot", func(t *testing.T) {
		require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled))

		again := createTestBooking(t, db, 1, 1)
		assert.Equal(t, b.TechnicianSlotID, again.TechnicianSlotID, "technician slot row is reused")
	})
}

func TestGetBookingNotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetBooking(context.Background(), 12345)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateBookingStatusWithVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := createTestBooking(t, db, 1, 2)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusConfirmed))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.Equal(t, int64(2), got.Version)

	err = db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)

	err = db.UpdateBookingStatusWithVersion(ctx, 999, 1, models.StatusCancelled)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSlotOccupancy(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	key := models.SlotKey{CenterID: 10, Date: testDate, SlotID: 2, TechnicianID: 1}

	booked, err := db.IsSlotBooked(ctx, key)
	require.NoError(t, err)
	assert.False(t, booked)

	b := createTestBooking(t, db, 1, 2)
	createTestBooking(t, db, 2, 1)

	booked, err = db.IsSlotBooked(ctx, key)
	require.NoError(t, err)
	assert.True(t, booked)

	slots, err := db.GetBookedSlots(ctx, 10, testDate)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, int64(1), slots[0].SlotID)
	assert.Equal(t, int64(2), slots[1].SlotID)
	assert.Equal(t, testDate, slots[1].WorkDate)

	other, err := db.GetBookedSlots(ctx, 10, testDate.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, other)

	list, err := db.GetBookingsByCenterDate(ctx, 10, testDate)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled))
	booked, err = db.IsSlotBooked(ctx, key)
	require.NoError(t, err)
	assert.False(t, booked)

	slots, err = db.GetBookedSlots(ctx, 10, testDate)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestChecklist(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := createTestBooking(t, db, 1, 1)

	pending, err := db.CountPendingChecklist(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)

	brakes := &models.ChecklistResult{BookingID: b.ID, CategoryID: 3, Result: models.ChecklistPending}
	require.NoError(t, db.UpsertChecklistResult(ctx, brakes))
	require.NoError(t, db.UpsertChecklistResult(ctx, &models.ChecklistResult{BookingID: b.ID, CategoryID: 1, Result: models.ChecklistPass}))

	pending, err = db.CountPendingChecklist(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)

	updated := &models.ChecklistResult{BookingID: b.ID, CategoryID: 3, Result: models.ChecklistFail, Notes: "worn"}
	require.NoError(t, db.UpsertChecklistResult(ctx, updated))
	assert.Equal(t, brakes.ID, updated.ID, "upsert keeps the row")

	pending, err = db.CountPendingChecklist(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)

	list, err := db.GetChecklist(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].CategoryID)
	assert.Equal(t, models.ChecklistFail, list[1].Result)
	assert.Equal(t, "worn", list[1].Notes)
}

func TestCompleteRefusedWhileChecklistPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := createTestBooking(t, db, 1, 1)

	require.NoError(t, db.UpsertChecklistResult(ctx, &models.ChecklistResult{BookingID: b.ID, CategoryID: 3, Result: models.ChecklistPending}))

	err := db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCompleted)
	assert.ErrorIs(t, err, domain.ErrChecklistIncomplete)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, int64(1), got.Version)

	err = db.UpdateBookingStatusWithVersion(ctx, b.ID, 7, models.StatusCompleted)
	assert.ErrorIs(t, err, domain.ErrConcurrentModification, "a stale version is reported before the checklist")

	require.NoError(t, db.UpsertChecklistResult(ctx, &models.ChecklistResult{BookingID: b.ID, CategoryID: 3, Result: models.ChecklistPass}))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCompleted))
}

func TestChecklistClosedOnTerminalBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := createTestBooking(t, db, 1, 1)
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCompleted))

	err := db.UpsertChecklistResult(ctx, &models.ChecklistResult{BookingID: b.ID, CategoryID: 3, Result: models.ChecklistPending})
	assert.ErrorIs(t, err, domain.ErrConflict)

	pending, err := db.CountPendingChecklist(ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, pending)

	err = db.UpsertChecklistResult(ctx, &models.ChecklistResult{BookingID: 999, CategoryID: 3, Result: models.ChecklistPass})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateBookingStoresSlotNotes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := &models.Booking{
		CustomerID: 42, CenterID: 10, ServiceID: 100, TechnicianID: 1, SlotID: 1,
		WorkDate: testDate, SlotNotes: "bring winter tyres",
	}
	require.NoError(t, db.CreateBookingWithSlot(ctx, b))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "bring winter tyres", got.SlotNotes)

	slots, err := db.GetBookedSlots(ctx, 10, testDate)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "bring winter tyres", slots[0].Notes)

	// rebooking a cancelled slot replaces the notes
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, 1, models.StatusCancelled))
	again := &models.Booking{
		CustomerID: 43, CenterID: 10, ServiceID: 100, TechnicianID: 1, SlotID: 1,
		WorkDate: testDate, SlotNotes: "fleet car",
	}
	require.NoError(t, db.CreateBookingWithSlot(ctx, again))
	assert.Equal(t, b.TechnicianSlotID, again.TechnicianSlotID)

	got, err = db.GetBooking(ctx, again.ID)
	require.NoError(t, err)
	assert.Equal(t, "fleet car", got.SlotNotes)
}
