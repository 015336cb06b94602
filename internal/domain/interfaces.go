package domain

import (
	"context"
	"time"

	"autoservice/internal/models"
)

// HoldStore grants advisory, time-bounded holds on technician slots.
type HoldStore interface {
	TryHold(ctx context.Context, key models.SlotKey, holder string, ttl time.Duration) (bool, time.Time, error)
	IsHeld(ctx context.Context, key models.SlotKey) (bool, error)
	Release(ctx context.Context, key models.SlotKey, holder string) (bool, error)
	Get(ctx context.Context, key models.SlotKey) (*models.SlotHold, error)
}

// SlotReader answers durable occupancy questions about technician slots.
type SlotReader interface {
	IsSlotBooked(ctx context.Context, key models.SlotKey) (bool, error)
	GetBookedSlots(ctx context.Context, centerID int64, date time.Time) ([]*models.TechnicianTimeSlot, error)
}

type BookingRepository interface {
	SlotReader
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBookingWithSlot(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status models.BookingStatus) error
	GetBookingsByCenterDate(ctx context.Context, centerID int64, date time.Time) ([]*models.Booking, error)
	CountPendingChecklist(ctx context.Context, bookingID int64) (int, error)
	UpsertChecklistResult(ctx context.Context, result *models.ChecklistResult) error
	GetChecklist(ctx context.Context, bookingID int64) ([]*models.ChecklistResult, error)
}

type PartRepository interface {
	CreateWorkOrderPart(ctx context.Context, part *models.WorkOrderPart) error
	GetWorkOrderPart(ctx context.Context, bookingID, id int64) (*models.WorkOrderPart, error)
	ListWorkOrderParts(ctx context.Context, bookingID int64) ([]*models.WorkOrderPart, error)
	UpdateWorkOrderPartStatus(ctx context.Context, id int64, from, to models.PartStatus) error
	UpdateWorkOrderPartDetails(ctx context.Context, id, quantity int64, notes string) error
	ReplaceWorkOrderPart(ctx context.Context, id, newPartID int64, quantity int64) error
	DeleteWorkOrderPart(ctx context.Context, id int64) error
	ConsumeFromInventory(ctx context.Context, req ConsumeRequest) error
	ConsumeFromOrderItem(ctx context.Context, req SupplyRequest) error
	GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, *models.Order, error)
}

// PartCatalog is the inventory/part lookup collaborator.
type PartCatalog interface {
	GetPartByID(ctx context.Context, id int64) (*models.Part, error)
	GetInventoryByCenter(ctx context.Context, centerID int64) ([]*models.InventoryPart, error)
}

// ScheduleCatalog exposes the technician roster and the slot grid.
type ScheduleCatalog interface {
	GetTechnician(ctx context.Context, id int64) (*models.Technician, error)
	GetTechniciansByCenter(ctx context.Context, centerID int64) ([]*models.Technician, error)
	GetTimeSlots(ctx context.Context) ([]*models.TimeSlot, error)
	GetTimeSlot(ctx context.Context, id int64) (*models.TimeSlot, error)
}

// EventPublisher enqueues a domain event for the given fanout groups.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}, groups ...string) error
}

// Notifier delivers human readable messages to the parties of a booking.
type Notifier interface {
	SendCustomerNotification(ctx context.Context, customerID, bookingID int64, message string) error
	SendTechnicianNotification(ctx context.Context, technicianID, bookingID int64, message string) error
	SendStaffNotification(ctx context.Context, centerID, bookingID int64, message string) error
}

type HoldService interface {
	Reserve(ctx context.Context, key models.SlotKey, holder string) (*models.SlotHold, error)
	Release(ctx context.Context, key models.SlotKey, holder string) (bool, error)
}

type AvailabilityService interface {
	GetAvailability(ctx context.Context, q AvailabilityQuery) (*models.Availability, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, centerID int64, date time.Time) ([]*models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, to models.BookingStatus, actor Actor) (*models.Booking, error)
	Confirm(ctx context.Context, id int64, actor Actor) (*models.Booking, error)
	CheckIn(ctx context.Context, id int64, actor Actor) (*models.Booking, error)
	Start(ctx context.Context, id int64, actor Actor) (*models.Booking, error)
	Complete(ctx context.Context, id int64, actor Actor) (*models.Booking, error)
	Cancel(ctx context.Context, id int64, actor Actor) (*models.Booking, error)
	OnPaymentConfirmed(ctx context.Context, bookingID int64) (*models.Booking, error)
	RecordChecklistResult(ctx context.Context, req ChecklistRequest) (*models.ChecklistResult, error)
	GetChecklist(ctx context.Context, bookingID int64) ([]*models.ChecklistResult, error)
}

type PartService interface {
	ListParts(ctx context.Context, bookingID int64) ([]*models.WorkOrderPart, error)
	ProposePart(ctx context.Context, req ProposePartRequest) (*models.WorkOrderPart, error)
	UpdatePart(ctx context.Context, bookingID, partUsageID, quantity int64, notes string) (*models.WorkOrderPart, error)
	DeletePart(ctx context.Context, bookingID, partUsageID int64) error
	CustomerApprove(ctx context.Context, bookingID, partUsageID, customerID int64) (*models.WorkOrderPart, error)
	CustomerReject(ctx context.Context, bookingID, partUsageID, customerID int64) (*models.WorkOrderPart, error)
	StaffReject(ctx context.Context, bookingID, partUsageID, staffID int64) (*models.WorkOrderPart, error)
	ApproveAndConsume(ctx context.Context, bookingID, partUsageID, staffID int64) (*models.WorkOrderPart, error)
	ReplacePart(ctx context.Context, bookingID, partUsageID, newPartID, quantity int64) (*models.WorkOrderPart, error)
	ConsumeCustomerSupplied(ctx context.Context, req SupplyRequest) (*models.WorkOrderPart, error)
}
