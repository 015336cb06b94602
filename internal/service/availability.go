package service

import (
	"context"
	"fmt"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityService merges booked technician slots with live holds into a
// per-technician view of one center's day.
type AvailabilityService struct {
	slots   domain.SlotReader
	holds   domain.HoldStore
	catalog domain.ScheduleCatalog
	clock   clock.Clock
	logger  *zerolog.Logger
}

func NewAvailabilityService(
	slots domain.SlotReader,
	holds domain.HoldStore,
	catalog domain.ScheduleCatalog,
	clk clock.Clock,
	logger *zerolog.Logger,
) *AvailabilityService {
	return &AvailabilityService{
		slots:   slots,
		holds:   holds,
		catalog: catalog,
		clock:   clk,
		logger:  logger,
	}
}

type techSlot struct {
	technicianID int64
	slotID       int64
}

func (s *AvailabilityService) GetAvailability(ctx context.Context, q domain.AvailabilityQuery) (*models.Availability, error) {
	if q.CenterID <= 0 {
		return nil, domain.Invalid("centerId is required")
	}
	if q.Date.IsZero() {
		return nil, domain.Invalid("date is required")
	}
	date := models.DateOnly(q.Date)

	grid, err := s.catalog.GetTimeSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load time slots: %w", err)
	}
	techs, err := s.catalog.GetTechniciansByCenter(ctx, q.CenterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load technicians: %w", err)
	}
	booked, err := s.slots.GetBookedSlots(ctx, q.CenterID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked slots: %w", err)
	}

	taken := make(map[techSlot]bool, len(booked))
	for _, b := range booked {
		taken[techSlot{b.TechnicianID, b.SlotID}] = true
	}

	now := s.clock.Now()
	result := &models.Availability{
		CenterID:    q.CenterID,
		Date:        date.Format(models.DateFormat),
		Technicians: []models.TechnicianAvailability{},
	}

	for _, tech := range techs {
		if !tech.Covers(q.ServiceIDs) {
			continue
		}
		ta := models.TechnicianAvailability{
			TechnicianID:   tech.ID,
			TechnicianName: tech.Name,
			Slots:          make([]models.SlotAvailability, 0, len(grid)),
		}
		for _, slot := range grid {
			ta.Slots = append(ta.Slots, s.slotState(ctx, q, date, now, tech.ID, slot, taken))
		}
		result.Technicians = append(result.Technicians, ta)
	}
	return result, nil
}

func (s *AvailabilityService) slotState(
	ctx context.Context,
	q domain.AvailabilityQuery,
	date, now time.Time,
	technicianID int64,
	slot *models.TimeSlot,
	taken map[techSlot]bool,
) models.SlotAvailability {
	sa := models.SlotAvailability{
		SlotID:    slot.ID,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		State:     models.SlotAvailable,
	}

	if taken[techSlot{technicianID, slot.ID}] {
		sa.State = models.SlotBooked
		return sa
	}
	if start, ok := slotStart(date, slot); ok && !start.After(now) {
		sa.State = models.SlotPast
		return sa
	}

	key := models.SlotKey{CenterID: q.CenterID, Date: date, SlotID: slot.ID, TechnicianID: technicianID}
	hold, err := s.holds.Get(ctx, key)
	if err != nil {
		// holds are advisory; an unreachable store shows the slot as free
		s.logger.Warn().Err(err).Str("slot", key.String()).Msg("hold lookup failed")
		return sa
	}
	if hold.Live(now) {
		expiresAt := hold.ExpiresAt
		sa.State = models.SlotHeld
		sa.HeldUntil = &expiresAt
		sa.HeldByRequester = q.HolderID != "" && hold.HolderID == q.HolderID
	}
	return sa
}
