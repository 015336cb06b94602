package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/events"
	"autoservice/internal/metrics"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

// PartService runs the work-order part workflow: technicians propose parts,
// customers approve them, staff consume them from center stock or from the
// customer's own paid order.
type PartService struct {
	parts    domain.PartRepository
	bookings domain.BookingRepository
	catalog  domain.PartCatalog
	events   domain.EventPublisher
	notifier notifier
	clock    clock.Clock
	logger   *zerolog.Logger
}

func NewPartService(
	parts domain.PartRepository,
	bookings domain.BookingRepository,
	catalog domain.PartCatalog,
	publisher domain.EventPublisher,
	sender domain.Notifier,
	clk clock.Clock,
	logger *zerolog.Logger,
) *PartService {
	return &PartService{
		parts:    parts,
		bookings: bookings,
		catalog:  catalog,
		events:   publisher,
		notifier: notifier{sender: sender, logger: logger},
		clock:    clk,
		logger:   logger,
	}
}

func (s *PartService) inProgressBooking(ctx context.Context, bookingID int64) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.StatusInProgress {
		return nil, fmt.Errorf("%w: booking %d is %s", domain.ErrNotInProgress, b.ID, b.Status)
	}
	return b, nil
}

// ensureStocked checks that partID has an inventory row at centerID.
func (s *PartService) ensureStocked(ctx context.Context, centerID, partID int64) error {
	inventory, err := s.catalog.GetInventoryByCenter(ctx, centerID)
	if err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}
	if len(inventory) == 0 {
		return &domain.StockError{Code: domain.CodeInventoryNotFound, CenterID: centerID, PartID: partID}
	}
	for _, row := range inventory {
		if row.PartID == partID {
			return nil
		}
	}
	return &domain.StockError{Code: domain.CodePartNotInInventory, CenterID: centerID, PartID: partID}
}

func wrongStatus(p *models.WorkOrderPart, want ...models.PartStatus) error {
	if p.Status == models.PartConsumed {
		return domain.ErrAlreadyConsumed
	}
	names := make([]string, len(want))
	for i, w := range want {
		names[i] = string(w)
	}
	return fmt.Errorf("%w: part usage %d is %s, expected %s", domain.ErrConflict, p.ID, p.Status, strings.Join(names, " or "))
}

func (s *PartService) ListParts(ctx context.Context, bookingID int64) ([]*models.WorkOrderPart, error) {
	if _, err := s.bookings.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.parts.ListWorkOrderParts(ctx, bookingID)
}

func (s *PartService) ProposePart(ctx context.Context, req domain.ProposePartRequest) (*models.WorkOrderPart, error) {
	if req.Quantity <= 0 {
		return nil, domain.Invalid("quantity must be positive")
	}
	b, err := s.inProgressBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}

	part, err := s.catalog.GetPartByID(ctx, req.PartID)
	if err != nil {
		return nil, err
	}
	if req.CategoryID != nil && *req.CategoryID != part.CategoryID {
		return nil, domain.Invalid("part %d is not in category %d", part.ID, *req.CategoryID)
	}
	if !req.IsCustomerSupplied {
		if err := s.ensureStocked(ctx, b.CenterID, part.ID); err != nil {
			return nil, err
		}
	}

	usage := &models.WorkOrderPart{
		BookingID:          b.ID,
		PartID:             part.ID,
		CategoryID:         req.CategoryID,
		QuantityUsed:       req.Quantity,
		Status:             models.PartPendingApproval,
		IsCustomerSupplied: req.IsCustomerSupplied,
		Notes:              req.Notes,
	}
	if err := s.parts.CreateWorkOrderPart(ctx, usage); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("part_usage_id", usage.ID).
		Int64("technician_id", req.TechnicianID).
		Msg("part proposed")
	s.changed(b, usage)
	s.notifier.partStatus(ctx, b, usage.Status)
	return usage, nil
}

func (s *PartService) UpdatePart(ctx context.Context, bookingID, partUsageID, quantity int64, notes string) (*models.WorkOrderPart, error) {
	if quantity <= 0 {
		return nil, domain.Invalid("quantity must be positive")
	}
	b, err := s.inProgressBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, bookingID, partUsageID)
	if err != nil {
		return nil, err
	}
	if !usage.Editable() {
		return nil, wrongStatus(usage, models.PartDraft, models.PartPendingApproval)
	}
	if err := s.parts.UpdateWorkOrderPartDetails(ctx, usage.ID, quantity, notes); err != nil {
		return nil, err
	}
	return s.reload(ctx, b, usage.ID)
}

func (s *PartService) DeletePart(ctx context.Context, bookingID, partUsageID int64) error {
	b, err := s.inProgressBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, bookingID, partUsageID)
	if err != nil {
		return err
	}
	if usage.Status == models.PartConsumed {
		return domain.ErrAlreadyConsumed
	}
	if err := s.parts.DeleteWorkOrderPart(ctx, usage.ID); err != nil {
		return err
	}

	publishEvent(s.events, s.logger, events.EventPartsUpdated, events.PartsUpdatedPayload{
		BookingID:   b.ID,
		PartUsageID: usage.ID,
		Status:      "DELETED",
	}, events.BookingGroup(b.ID))
	return nil
}

func (s *PartService) CustomerApprove(ctx context.Context, bookingID, partUsageID, customerID int64) (*models.WorkOrderPart, error) {
	return s.customerDecision(ctx, bookingID, partUsageID, customerID, models.PartDraft)
}

func (s *PartService) CustomerReject(ctx context.Context, bookingID, partUsageID, customerID int64) (*models.WorkOrderPart, error) {
	return s.customerDecision(ctx, bookingID, partUsageID, customerID, models.PartRejected)
}

func (s *PartService) customerDecision(ctx context.Context, bookingID, partUsageID, customerID int64, to models.PartStatus) (*models.WorkOrderPart, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != customerID {
		return nil, fmt.Errorf("%w: booking %d belongs to another customer", domain.ErrOwnership, b.ID)
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, bookingID, partUsageID)
	if err != nil {
		return nil, err
	}
	if usage.Status != models.PartPendingApproval {
		return nil, wrongStatus(usage, models.PartPendingApproval)
	}
	if err := s.parts.UpdateWorkOrderPartStatus(ctx, usage.ID, models.PartPendingApproval, to); err != nil {
		return nil, err
	}
	updated, err := s.reload(ctx, b, usage.ID)
	if err != nil {
		return nil, err
	}
	s.notifier.partStatus(ctx, b, to)
	return updated, nil
}

// StaffReject withdraws a part that has not been consumed yet.
func (s *PartService) StaffReject(ctx context.Context, bookingID, partUsageID, staffID int64) (*models.WorkOrderPart, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, bookingID, partUsageID)
	if err != nil {
		return nil, err
	}
	if !usage.Editable() {
		return nil, wrongStatus(usage, models.PartDraft, models.PartPendingApproval)
	}
	if err := s.parts.UpdateWorkOrderPartStatus(ctx, usage.ID, usage.Status, models.PartRejected); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("part_usage_id", usage.ID).Int64("staff_id", staffID).Msg("part rejected by staff")
	return s.reload(ctx, b, usage.ID)
}

// ApproveAndConsume draws a DRAFT part from the booking center's stock.
func (s *PartService) ApproveAndConsume(ctx context.Context, bookingID, partUsageID, staffID int64) (*models.WorkOrderPart, error) {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, bookingID, partUsageID)
	if err != nil {
		return nil, err
	}
	if usage.Status != models.PartDraft {
		return nil, wrongStatus(usage, models.PartDraft)
	}
	if usage.IsCustomerSupplied {
		return nil, fmt.Errorf("%w: part usage %d", domain.ErrCustomerSupplied, usage.ID)
	}

	err = s.parts.ConsumeFromInventory(ctx, domain.ConsumeRequest{
		PartUsageID: usage.ID,
		CenterID:    b.CenterID,
		PartID:      usage.PartID,
		Quantity:    usage.QuantityUsed,
		StaffID:     staffID,
		At:          s.clock.Now(),
	})
	metrics.IncConsumption(consumptionResult(err))
	if err != nil {
		s.logger.Warn().Err(err).
			Int64("booking_id", b.ID).
			Int64("part_usage_id", usage.ID).
			Msg("part consumption refused")
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("part_usage_id", usage.ID).
		Int64("part_id", usage.PartID).
		Int64("quantity", usage.QuantityUsed).
		Int64("staff_id", staffID).
		Msg("part consumed from inventory")
	return s.reload(ctx, b, usage.ID)
}

func consumptionResult(err error) string {
	if err == nil {
		return "consumed"
	}
	var stockErr *domain.StockError
	if errors.As(err, &stockErr) {
		return strings.ToLower(string(stockErr.Code))
	}
	if errors.Is(err, domain.ErrConflict) {
		return "conflict"
	}
	return "error"
}

// ReplacePart swaps a DRAFT part for another of the same category stocked at the center.
func (s *PartService) ReplacePart(ctx context.Context, bookingID, partUsageID, newPartID, quantity int64) (*models.WorkOrderPart, error) {
	if quantity < 0 {
		return nil, domain.Invalid("quantity must be positive")
	}
	b, err := s.inProgressBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, bookingID, partUsageID)
	if err != nil {
		return nil, err
	}
	if usage.Status != models.PartDraft {
		return nil, wrongStatus(usage, models.PartDraft)
	}
	if quantity == 0 {
		quantity = usage.QuantityUsed
	}

	newPart, err := s.catalog.GetPartByID(ctx, newPartID)
	if err != nil {
		return nil, err
	}
	category := usage.CategoryID
	if category == nil {
		current, err := s.catalog.GetPartByID(ctx, usage.PartID)
		if err != nil {
			return nil, err
		}
		category = &current.CategoryID
	}
	if newPart.CategoryID != *category {
		return nil, domain.Invalid("part %d is not in category %d", newPart.ID, *category)
	}
	if !usage.IsCustomerSupplied {
		if err := s.ensureStocked(ctx, b.CenterID, newPart.ID); err != nil {
			return nil, err
		}
	}

	if err := s.parts.ReplaceWorkOrderPart(ctx, usage.ID, newPart.ID, quantity); err != nil {
		return nil, err
	}
	return s.reload(ctx, b, usage.ID)
}

// ConsumeCustomerSupplied records a part the customer bought in a paid order.
// The order item's remaining quantity is drawn down; center stock is untouched.
func (s *PartService) ConsumeCustomerSupplied(ctx context.Context, req domain.SupplyRequest) (*models.WorkOrderPart, error) {
	if req.OrderItemID <= 0 {
		return nil, domain.Invalid("orderItemId is required")
	}
	if req.Quantity < 0 {
		return nil, domain.Invalid("quantity must be positive")
	}

	b, err := s.bookings.GetBooking(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	usage, err := s.parts.GetWorkOrderPart(ctx, req.BookingID, req.PartUsageID)
	if err != nil {
		return nil, err
	}
	if usage.Status == models.PartConsumed {
		return nil, domain.ErrAlreadyConsumed
	}
	if req.Quantity == 0 {
		req.Quantity = usage.QuantityUsed
	}

	item, order, err := s.parts.GetOrderItem(ctx, req.OrderItemID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != b.CustomerID {
		return nil, fmt.Errorf("%w: order %d belongs to customer %d, booking %d to customer %d",
			domain.ErrOwnership, order.ID, order.CustomerID, b.ID, b.CustomerID)
	}
	if order.Status != models.OrderPaid {
		return nil, domain.Invalid("order %d is %s, not PAID", order.ID, order.Status)
	}
	if order.FulfillmentCenterID != b.CenterID {
		return nil, fmt.Errorf("%w: order %d is fulfilled by center %d, booking %d is at center %d",
			domain.ErrCenterMismatch, order.ID, order.FulfillmentCenterID, b.ID, b.CenterID)
	}
	if item.Remaining() < req.Quantity {
		return nil, &domain.StockError{
			Code:      domain.CodeInsufficientStock,
			PartID:    item.PartID,
			Requested: req.Quantity,
			Available: item.Remaining(),
		}
	}
	if usage.CategoryID != nil {
		supplied, err := s.catalog.GetPartByID(ctx, item.PartID)
		if err != nil {
			return nil, err
		}
		if supplied.CategoryID != *usage.CategoryID {
			return nil, domain.Invalid("supplied part %d is not in category %d", supplied.ID, *usage.CategoryID)
		}
	}

	req.BookingID = b.ID
	req.PartUsageID = usage.ID
	req.PartID = item.PartID
	req.At = s.clock.Now()
	err = s.parts.ConsumeFromOrderItem(ctx, req)
	metrics.IncConsumption(consumptionResult(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("part_usage_id", usage.ID).
		Int64("order_item_id", item.ID).
		Int64("quantity", req.Quantity).
		Msg("customer-supplied part consumed")
	return s.reload(ctx, b, usage.ID)
}

func (s *PartService) reload(ctx context.Context, b *models.Booking, partUsageID int64) (*models.WorkOrderPart, error) {
	usage, err := s.parts.GetWorkOrderPart(ctx, b.ID, partUsageID)
	if err != nil {
		return nil, err
	}
	s.changed(b, usage)
	return usage, nil
}

func (s *PartService) changed(b *models.Booking, usage *models.WorkOrderPart) {
	publishEvent(s.events, s.logger, events.EventPartsUpdated, events.PartsUpdatedPayload{
		BookingID:   b.ID,
		PartUsageID: usage.ID,
		Status:      string(usage.Status),
	}, events.BookingGroup(b.ID))
}
