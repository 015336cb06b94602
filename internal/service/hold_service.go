package service

import (
	"context"
	"fmt"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/events"
	"autoservice/internal/metrics"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

// HoldService grants and releases advisory slot holds and announces them to
// the center's calendar group.
type HoldService struct {
	store   domain.HoldStore
	slots   domain.SlotReader
	catalog domain.ScheduleCatalog
	events  domain.EventPublisher
	dates   DatePolicy
	ttl     time.Duration
	logger  *zerolog.Logger
}

func NewHoldService(
	store domain.HoldStore,
	slots domain.SlotReader,
	catalog domain.ScheduleCatalog,
	publisher domain.EventPublisher,
	dates DatePolicy,
	ttl time.Duration,
	logger *zerolog.Logger,
) *HoldService {
	if ttl <= 0 {
		ttl = models.DefaultHoldTTL * time.Second
	}
	return &HoldService{
		store:   store,
		slots:   slots,
		catalog: catalog,
		events:  publisher,
		dates:   dates,
		ttl:     ttl,
		logger:  logger,
	}
}

func (s *HoldService) TTL() time.Duration {
	return s.ttl
}

func (s *HoldService) validate(ctx context.Context, key models.SlotKey, holder string) error {
	if !key.Valid() {
		return domain.Invalid("centerId, date, slotId and technicianId are required")
	}
	if holder == "" {
		return domain.Invalid("holder is required")
	}
	if err := s.dates.Validate(key.Date); err != nil {
		return err
	}
	tech, err := s.catalog.GetTechnician(ctx, key.TechnicianID)
	if err != nil {
		return err
	}
	if tech.CenterID != key.CenterID || !tech.IsActive {
		return domain.Invalid("technician %d does not work at center %d", key.TechnicianID, key.CenterID)
	}
	if _, err := s.catalog.GetTimeSlot(ctx, key.SlotID); err != nil {
		return err
	}
	return nil
}

// Reserve holds key for holder for the configured TTL. A slot that is already
// booked fails with ErrSlotTaken, one held by somebody else with ErrSlotHeld.
func (s *HoldService) Reserve(ctx context.Context, key models.SlotKey, holder string) (*models.SlotHold, error) {
	if err := s.validate(ctx, key, holder); err != nil {
		return nil, err
	}
	key.Date = models.DateOnly(key.Date)

	booked, err := s.slots.IsSlotBooked(ctx, key)
	if err != nil {
		metrics.IncHold("error")
		return nil, fmt.Errorf("failed to check slot %s: %w", key, err)
	}
	if booked {
		metrics.IncHold("conflict")
		return nil, domain.ErrSlotTaken
	}

	granted, expiresAt, err := s.store.TryHold(ctx, key, holder, s.ttl)
	if err != nil {
		metrics.IncHold("error")
		return nil, fmt.Errorf("failed to hold slot %s: %w", key, err)
	}
	if !granted {
		metrics.IncHold("conflict")
		return nil, domain.ErrSlotHeld
	}
	metrics.IncHold("granted")

	s.logger.Debug().Str("slot", key.String()).Str("holder", holder).Time("expires_at", expiresAt).Msg("slot held")
	publishEvent(s.events, s.logger, events.EventSlotHeld, events.SlotHeldPayload{
		TechnicianID: key.TechnicianID,
		SlotID:       key.SlotID,
		ExpiresAt:    expiresAt,
	}, events.CenterDateGroup(key.CenterID, key.Date))

	return &models.SlotHold{Key: key, HolderID: holder, ExpiresAt: expiresAt}, nil
}

// Release drops holder's hold on key. It reports false when holder did not own a live hold.
func (s *HoldService) Release(ctx context.Context, key models.SlotKey, holder string) (bool, error) {
	if !key.Valid() {
		return false, domain.Invalid("centerId, date, slotId and technicianId are required")
	}
	if holder == "" {
		return false, domain.Invalid("holder is required")
	}
	key.Date = models.DateOnly(key.Date)

	released, err := s.store.Release(ctx, key, holder)
	if err != nil {
		metrics.IncHold("error")
		return false, fmt.Errorf("failed to release slot %s: %w", key, err)
	}
	if !released {
		metrics.IncHold("release_denied")
		return false, nil
	}
	metrics.IncHold("released")

	publishEvent(s.events, s.logger, events.EventSlotReleased, events.SlotReleasedPayload{
		TechnicianID: key.TechnicianID,
		SlotID:       key.SlotID,
	}, events.CenterDateGroup(key.CenterID, key.Date))
	return true, nil
}
