package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/logging"
	"autoservice/internal/models"
	"autoservice/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAvailabilityFixture(t *testing.T, now time.Time, holds domain.HoldStore) (*AvailabilityService, *mockBookingRepo) {
	t.Helper()
	repo := new(mockBookingRepo)
	catalog := new(mockScheduleCatalog)

	catalog.On("GetTimeSlots", mock.Anything).Return([]*models.TimeSlot{
		{ID: 1, StartTime: "09:00", EndTime: "10:00"},
		{ID: 2, StartTime: "10:00", EndTime: "11:00"},
		{ID: 3, StartTime: "11:00", EndTime: "12:00"},
	}, nil)
	catalog.On("GetTechniciansByCenter", mock.Anything, int64(1)).Return([]*models.Technician{
		{ID: 7, CenterID: 1, Name: "Ivan", ServiceIDs: []int64{100, 200}, IsActive: true},
		{ID: 8, CenterID: 1, Name: "Petr", ServiceIDs: []int64{100}, IsActive: true},
	}, nil)

	return NewAvailabilityService(repo, holds, catalog, clock.NewManual(now), logging.Nop()), repo
}

func TestGetAvailability(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(now0)
	holds := repository.NewMemoryHoldStore(clk)
	svc, repo := newAvailabilityFixture(t, now0, holds)

	repo.On("GetBookedSlots", ctx, int64(1), holdDay).Return([]*models.TechnicianTimeSlot{
		{TechnicianID: 7, SlotID: 1, CenterID: 1, WorkDate: holdDay},
	}, nil)

	_, _, err := holds.TryHold(ctx, models.SlotKey{CenterID: 1, Date: holdDay, SlotID: 2, TechnicianID: 7}, "guest:abc", 5*time.Minute)
	require.NoError(t, err)
	_, _, err = holds.TryHold(ctx, models.SlotKey{CenterID: 1, Date: holdDay, SlotID: 3, TechnicianID: 8}, "42", 5*time.Minute)
	require.NoError(t, err)

	got, err := svc.GetAvailability(ctx, domain.AvailabilityQuery{CenterID: 1, Date: holdDay, HolderID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", got.Date)
	require.Len(t, got.Technicians, 2)

	ivan := got.Technicians[0].Slots
	assert.Equal(t, models.SlotBooked, ivan[0].State)
	assert.Equal(t, models.SlotHeld, ivan[1].State)
	require.NotNil(t, ivan[1].HeldUntil)
	assert.Equal(t, now0.Add(5*time.Minute), *ivan[1].HeldUntil)
	assert.False(t, ivan[1].HeldByRequester)
	assert.False(t, ivan[1].Available())
	assert.Equal(t, models.SlotAvailable, ivan[2].State)

	petr := got.Technicians[1].Slots
	assert.Equal(t, models.SlotAvailable, petr[0].State)
	assert.Equal(t, models.SlotHeld, petr[2].State)
	assert.True(t, petr[2].HeldByRequester)
	assert.True(t, petr[2].Available(), "own hold counts as available")
}

func TestGetAvailabilityServiceFilter(t *testing.T) {
	ctx := context.Background()
	svc, repo := newAvailabilityFixture(t, now0, repository.NewMemoryHoldStore(clock.NewManual(now0)))
	repo.On("GetBookedSlots", ctx, int64(1), holdDay).Return(nil, nil)

	got, err := svc.GetAvailability(ctx, domain.AvailabilityQuery{CenterID: 1, Date: holdDay, ServiceIDs: []int64{200}})
	require.NoError(t, err)
	require.Len(t, got.Technicians, 1)
	assert.Equal(t, int64(7), got.Technicians[0].TechnicianID)
}

func TestGetAvailabilityPastSlots(t *testing.T) {
	ctx := context.Background()
	now := holdDay.Add(10*time.Hour + 30*time.Minute)
	svc, repo := newAvailabilityFixture(t, now, repository.NewMemoryHoldStore(clock.NewManual(now)))
	repo.On("GetBookedSlots", ctx, int64(1), holdDay).Return(nil, nil)

	got, err := svc.GetAvailability(ctx, domain.AvailabilityQuery{CenterID: 1, Date: holdDay})
	require.NoError(t, err)

	slots := got.Technicians[0].Slots
	assert.Equal(t, models.SlotPast, slots[0].State)
	assert.Equal(t, models.SlotPast, slots[1].State)
	assert.Equal(t, models.SlotAvailable, slots[2].State)
}

type failingHolds struct{}

var errHoldsDown = errors.New("redis: connection refused")

func (failingHolds) TryHold(ctx context.Context, key models.SlotKey, holder string, ttl time.Duration) (bool, time.Time, error) {
	return false, time.Time{}, errHoldsDown
}

func (failingHolds) IsHeld(ctx context.Context, key models.SlotKey) (bool, error) {
	return false, errHoldsDown
}

func (failingHolds) Release(ctx context.Context, key models.SlotKey, holder string) (bool, error) {
	return false, errHoldsDown
}

func (failingHolds) Get(ctx context.Context, key models.SlotKey) (*models.SlotHold, error) {
	return nil, errHoldsDown
}

func TestGetAvailabilityHoldStoreDown(t *testing.T) {
	ctx := context.Background()
	svc, repo := newAvailabilityFixture(t, now0, failingHolds{})
	repo.On("GetBookedSlots", ctx, int64(1), holdDay).Return(nil, nil)

	got, err := svc.GetAvailability(ctx, domain.AvailabilityQuery{CenterID: 1, Date: holdDay})
	require.NoError(t, err)
	for _, ta := range got.Technicians {
		for _, s := range ta.Slots {
			assert.Equal(t, models.SlotAvailable, s.State)
		}
	}
}

func TestGetAvailabilityValidation(t *testing.T) {
	svc, _ := newAvailabilityFixture(t, now0, nil)

	_, err := svc.GetAvailability(context.Background(), domain.AvailabilityQuery{Date: holdDay})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = svc.GetAvailability(context.Background(), domain.AvailabilityQuery{CenterID: 1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}
