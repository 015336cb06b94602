package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/events"
	"autoservice/internal/metrics"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

// maxTransitionAttempts bounds re-reads after a lost optimistic update.
const maxTransitionAttempts = 3

// allowedTransitions is the booking state machine. COMPLETED -> PAID is only
// taken through OnPaymentConfirmed.
var allowedTransitions = map[models.BookingStatus][]models.BookingStatus{
	models.StatusPending:    {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed:  {models.StatusCheckedIn, models.StatusInProgress, models.StatusCancelled},
	models.StatusCheckedIn:  {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
	models.StatusCompleted:  {models.StatusPaid},
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type BookingOptions struct {
	AutoConfirm     bool
	MaxAdvanceDays  int
	CheckInLeadDays int
}

type BookingService struct {
	repo     domain.BookingRepository
	holds    domain.HoldStore
	catalog  domain.ScheduleCatalog
	events   domain.EventPublisher
	notifier notifier
	clock    clock.Clock
	dates    DatePolicy
	opts     BookingOptions
	logger   *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	holds domain.HoldStore,
	catalog domain.ScheduleCatalog,
	publisher domain.EventPublisher,
	sender domain.Notifier,
	clk clock.Clock,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxAdvanceDays <= 0 {
		opts.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if opts.CheckInLeadDays < 0 {
		opts.CheckInLeadDays = models.DefaultCheckInLeadDays
	}
	return &BookingService{
		repo:     repo,
		holds:    holds,
		catalog:  catalog,
		events:   publisher,
		notifier: notifier{sender: sender, logger: logger},
		clock:    clk,
		dates:    DatePolicy{Clock: clk, MaxAdvanceDays: opts.MaxAdvanceDays},
		opts:     opts,
		logger:   logger,
	}
}

func (s *BookingService) ValidateBookingDate(date time.Time) error {
	return s.dates.Validate(date)
}

func validateCreate(req domain.CreateBookingRequest) error {
	switch {
	case req.CustomerID <= 0:
		return domain.Invalid("customerId is required")
	case req.CenterID <= 0:
		return domain.Invalid("centerId is required")
	case req.ServiceID <= 0:
		return domain.Invalid("serviceId is required")
	case req.TechnicianID <= 0:
		return domain.Invalid("technicianId is required")
	case req.SlotID <= 0:
		return domain.Invalid("slotId is required")
	case req.WorkDate.IsZero():
		return domain.Invalid("date is required")
	}
	return nil
}

// CreateBooking books the technician slot for the customer. The slot must be
// free or held by the requester; the requester's hold is released once the
// booking is stored.
func (s *BookingService) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.Booking, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}
	if err := s.ValidateBookingDate(req.WorkDate); err != nil {
		return nil, err
	}

	tech, err := s.catalog.GetTechnician(ctx, req.TechnicianID)
	if err != nil {
		return nil, err
	}
	if tech.CenterID != req.CenterID || !tech.IsActive {
		return nil, domain.Invalid("technician %d does not work at center %d", req.TechnicianID, req.CenterID)
	}
	if !tech.Covers([]int64{req.ServiceID}) {
		return nil, domain.Invalid("technician %d does not perform service %d", req.TechnicianID, req.ServiceID)
	}
	if _, err := s.catalog.GetTimeSlot(ctx, req.SlotID); err != nil {
		return nil, err
	}

	holder := req.HolderID
	if holder == "" {
		holder = strconv.FormatInt(req.CustomerID, 10)
	}
	key := models.SlotKey{
		CenterID:     req.CenterID,
		Date:         models.DateOnly(req.WorkDate),
		SlotID:       req.SlotID,
		TechnicianID: req.TechnicianID,
	}

	hold, err := s.holds.Get(ctx, key)
	if err != nil {
		// the unique slot index still guards the insert
		s.logger.Warn().Err(err).Str("slot", key.String()).Msg("hold lookup failed, relying on durable check")
	} else if hold.Live(s.clock.Now()) && hold.HolderID != holder {
		return nil, domain.ErrSlotHeld
	}

	booking := &models.Booking{
		CustomerID:      req.CustomerID,
		CenterID:        req.CenterID,
		ServiceID:       req.ServiceID,
		TechnicianID:    req.TechnicianID,
		SlotID:          req.SlotID,
		WorkDate:        key.Date,
		Status:          models.StatusPending,
		AppliedCreditID: req.AppliedCreditID,
		SpecialRequests: req.SpecialRequests,
		SlotNotes:       req.Notes,
	}
	if err := s.repo.CreateBookingWithSlot(ctx, booking); err != nil {
		return nil, err
	}

	released, err := s.holds.Release(ctx, key, holder)
	if err != nil {
		s.logger.Warn().Err(err).Str("slot", key.String()).Msg("failed to release superseded hold")
	}
	if released {
		publishEvent(s.events, s.logger, events.EventSlotReleased, events.SlotReleasedPayload{
			TechnicianID: key.TechnicianID,
			SlotID:       key.SlotID,
		}, events.CenterDateGroup(key.CenterID, key.Date))
	}

	metrics.IncTransition("NONE", string(models.StatusPending))
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("customer_id", booking.CustomerID).
		Str("slot", key.String()).
		Msg("booking created")
	s.afterTransition(ctx, booking)

	if s.opts.AutoConfirm {
		confirmed, err := s.Confirm(ctx, booking.ID, domain.SystemActor)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", booking.ID).Msg("auto-confirm failed")
			return booking, nil
		}
		return confirmed, nil
	}
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) ListBookings(ctx context.Context, centerID int64, date time.Time) ([]*models.Booking, error) {
	if centerID <= 0 || date.IsZero() {
		return nil, domain.Invalid("centerId and date are required")
	}
	return s.repo.GetBookingsByCenterDate(ctx, centerID, models.DateOnly(date))
}

// UpdateStatus dispatches a requested status to the matching transition.
func (s *BookingService) UpdateStatus(ctx context.Context, id int64, to models.BookingStatus, actor domain.Actor) (*models.Booking, error) {
	switch to {
	case models.StatusConfirmed:
		return s.Confirm(ctx, id, actor)
	case models.StatusCheckedIn:
		return s.CheckIn(ctx, id, actor)
	case models.StatusInProgress:
		return s.Start(ctx, id, actor)
	case models.StatusCompleted:
		return s.Complete(ctx, id, actor)
	case models.StatusCancelled:
		return s.Cancel(ctx, id, actor)
	case models.StatusPaid:
		b, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.TransitionError{BookingID: id, From: b.Status, To: to, Reason: "payment must be confirmed by the payment provider"}
	case models.StatusPending:
		b, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.TransitionError{BookingID: id, From: b.Status, To: to}
	}
	return nil, domain.Invalid("unknown booking status %q", to)
}

func (s *BookingService) Confirm(ctx context.Context, id int64, actor domain.Actor) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusConfirmed, actor, func(b *models.Booking) error {
		if !actor.IsStaff() && !s.opts.AutoConfirm {
			return &domain.TransitionError{BookingID: b.ID, From: b.Status, To: models.StatusConfirmed, Reason: "only staff can confirm"}
		}
		return nil
	})
}

// CheckIn opens CheckInLeadDays before the work date.
func (s *BookingService) CheckIn(ctx context.Context, id int64, actor domain.Actor) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusCheckedIn, actor, func(b *models.Booking) error {
		opensOn := models.DateOnly(b.WorkDate).AddDate(0, 0, -s.opts.CheckInLeadDays)
		if s.dates.today().Before(opensOn) {
			return &domain.TransitionError{
				BookingID: b.ID,
				From:      b.Status,
				To:        models.StatusCheckedIn,
				Reason:    "check-in opens on " + opensOn.Format(models.DateFormat),
			}
		}
		return nil
	})
}

func (s *BookingService) Start(ctx context.Context, id int64, actor domain.Actor) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusInProgress, actor, nil)
}

func (s *BookingService) Complete(ctx context.Context, id int64, actor domain.Actor) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusCompleted, actor, func(b *models.Booking) error {
		pending, err := s.repo.CountPendingChecklist(ctx, b.ID)
		if err != nil {
			return err
		}
		if pending > 0 {
			return &domain.TransitionError{BookingID: b.ID, From: b.Status, To: models.StatusCompleted, Reason: "checklist not complete"}
		}
		return nil
	})
}

func (s *BookingService) Cancel(ctx context.Context, id int64, actor domain.Actor) (*models.Booking, error) {
	return s.transition(ctx, id, models.StatusCancelled, actor, func(b *models.Booking) error {
		if actor.Role == domain.RoleCustomer && actor.ID != b.CustomerID {
			return fmt.Errorf("%w: booking %d belongs to another customer", domain.ErrOwnership, b.ID)
		}
		return nil
	})
}

// OnPaymentConfirmed finalizes a COMPLETED booking. Redelivered signals for
// an already PAID booking are acknowledged without a second transition.
func (s *BookingService) OnPaymentConfirmed(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.StatusPaid, domain.SystemActor, nil)
}

// transition applies from -> to under optimistic concurrency. When another
// writer wins the version race the booking is re-read and the edge and guard
// are evaluated again against the new status.
func (s *BookingService) transition(
	ctx context.Context,
	id int64,
	to models.BookingStatus,
	actor domain.Actor,
	guard func(b *models.Booking) error,
) (*models.Booking, error) {
	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		b, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}

		if to == models.StatusPaid && b.Status == models.StatusPaid {
			s.logger.Info().Int64("booking_id", id).Msg("duplicate payment confirmation ignored")
			return b, nil
		}
		if !CanTransition(b.Status, to) {
			terr := &domain.TransitionError{BookingID: id, From: b.Status, To: to}
			if to == models.StatusCancelled && (b.Status == models.StatusCompleted || b.Status == models.StatusPaid) {
				terr.Reason = "cannot cancel completed/paid booking"
			}
			return nil, terr
		}
		if guard != nil {
			if err := guard(b); err != nil {
				return nil, err
			}
		}

		err = s.repo.UpdateBookingStatusWithVersion(ctx, id, b.Version, to)
		if errors.Is(err, domain.ErrConcurrentModification) {
			s.logger.Debug().Int64("booking_id", id).Int("attempt", attempt+1).Msg("booking changed concurrently, re-reading")
			continue
		}
		if errors.Is(err, domain.ErrChecklistIncomplete) {
			// a PENDING result landed after the guard read the checklist
			return nil, &domain.TransitionError{BookingID: id, From: b.Status, To: to, Reason: "checklist not complete"}
		}
		if err != nil {
			return nil, err
		}

		from := b.Status
		b.Status = to
		b.Version++
		b.UpdatedAt = s.clock.Now()

		metrics.IncTransition(string(from), string(to))
		s.logger.Info().
			Int64("booking_id", id).
			Str("from", string(from)).
			Str("to", string(to)).
			Str("actor_role", string(actor.Role)).
			Int64("actor_id", actor.ID).
			Msg("booking status changed")
		s.afterTransition(ctx, b)
		return b, nil
	}
	return nil, fmt.Errorf("%w: booking %d", domain.ErrConcurrentModification, id)
}

func (s *BookingService) afterTransition(ctx context.Context, b *models.Booking) {
	groups := []string{events.BookingGroup(b.ID)}
	if b.HasSchedule() {
		groups = append(groups, events.CenterDateGroup(b.CenterID, b.WorkDate))
	}
	publishEvent(s.events, s.logger, events.EventBookingUpdated, events.BookingUpdatedPayload{
		BookingID: b.ID,
		Status:    string(b.Status),
	}, groups...)

	s.notifier.bookingStatus(ctx, b)
}

func (s *BookingService) RecordChecklistResult(ctx context.Context, req domain.ChecklistRequest) (*models.ChecklistResult, error) {
	outcome := models.ChecklistOutcome(req.Result)
	if !outcome.Valid() {
		return nil, domain.Invalid("unknown checklist result %q", req.Result)
	}
	if req.CategoryID <= 0 {
		return nil, domain.Invalid("categoryId is required")
	}

	b, err := s.repo.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, fmt.Errorf("%w: checklist of booking %d is closed (%s)", domain.ErrConflict, b.ID, b.Status)
	}

	result := &models.ChecklistResult{
		BookingID:  b.ID,
		CategoryID: req.CategoryID,
		Result:     outcome,
		Notes:      req.Notes,
	}
	if err := s.repo.UpsertChecklistResult(ctx, result); err != nil {
		return nil, err
	}

	publishEvent(s.events, s.logger, events.EventChecklistUpdated, events.ChecklistUpdatedPayload{BookingID: b.ID},
		events.BookingGroup(b.ID))
	return result, nil
}

func (s *BookingService) GetChecklist(ctx context.Context, bookingID int64) ([]*models.ChecklistResult, error) {
	if _, err := s.repo.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.GetChecklist(ctx, bookingID)
}
