package domain

import "time"

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTechnician Role = "technician"
	RoleStaff      Role = "staff"
	RoleSystem     Role = "system"
)

// Actor is the identity on whose behalf an operation runs.
type Actor struct {
	ID   int64
	Role Role
}

// SystemActor drives automatic transitions such as auto-confirmation.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleSystem
}

type AvailabilityQuery struct {
	CenterID   int64
	Date       time.Time
	ServiceIDs []int64
	HolderID   string
}

type CreateBookingRequest struct {
	CustomerID      int64
	CenterID        int64
	ServiceID       int64
	TechnicianID    int64
	SlotID          int64
	WorkDate        time.Time
	HolderID        string
	AppliedCreditID *int64
	SpecialRequests string
	Notes           string
}

type ChecklistRequest struct {
	BookingID  int64
	CategoryID int64
	Result     string
	Notes      string
}

type ProposePartRequest struct {
	BookingID          int64
	TechnicianID       int64
	PartID             int64
	CategoryID         *int64
	Quantity           int64
	IsCustomerSupplied bool
	Notes              string
}

// ConsumeRequest draws a work-order part's quantity from center inventory.
type ConsumeRequest struct {
	PartUsageID int64
	CenterID    int64
	PartID      int64
	Quantity    int64
	StaffID     int64
	At          time.Time
}

// SupplyRequest draws a work-order part's quantity from a paid customer order.
type SupplyRequest struct {
	BookingID   int64
	PartUsageID int64
	OrderItemID int64
	PartID      int64
	Quantity    int64
	StaffID     int64
	At          time.Time
}
