package repository

import (
	"context"
	"fmt"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/models"
)

// DurableHoldStore answers from the bookings table alone. It grants a hold
// whenever no active booking occupies the slot and keeps no hold state, so
// IsHeld and Release are always false. The unique slot index still prevents
// double-booking when two requesters race past it.
type DurableHoldStore struct {
	slots domain.SlotReader
	clock clock.Clock
}

func NewDurableHoldStore(slots domain.SlotReader, clk clock.Clock) *DurableHoldStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &DurableHoldStore{slots: slots, clock: clk}
}

func (s *DurableHoldStore) TryHold(ctx context.Context, key models.SlotKey, holder string, ttl time.Duration) (bool, time.Time, error) {
	if err := validateHold(key, holder); err != nil {
		return false, time.Time{}, err
	}
	booked, err := s.slots.IsSlotBooked(ctx, normalizeKey(key))
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to check slot occupancy: %w", err)
	}
	if booked {
		return false, time.Time{}, nil
	}
	return true, s.clock.Now().Add(ttl), nil
}

func (s *DurableHoldStore) IsHeld(ctx context.Context, key models.SlotKey) (bool, error) {
	return false, nil
}

func (s *DurableHoldStore) Release(ctx context.Context, key models.SlotKey, holder string) (bool, error) {
	return false, nil
}

func (s *DurableHoldStore) Get(ctx context.Context, key models.SlotKey) (*models.SlotHold, error) {
	return nil, nil
}
