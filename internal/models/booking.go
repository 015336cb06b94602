package models

import "time"

type BookingStatus string

const (
	StatusPending    BookingStatus = "PENDING"
	StatusConfirmed  BookingStatus = "CONFIRMED"
	StatusCheckedIn  BookingStatus = "CHECKED_IN"
	StatusInProgress BookingStatus = "IN_PROGRESS"
	StatusCompleted  BookingStatus = "COMPLETED"
	StatusPaid       BookingStatus = "PAID"
	StatusCancelled  BookingStatus = "CANCELLED"
)

var bookingStatuses = map[BookingStatus]struct{}{
	StatusPending:    {},
	StatusConfirmed:  {},
	StatusCheckedIn:  {},
	StatusInProgress: {},
	StatusCompleted:  {},
	StatusPaid:       {},
	StatusCancelled:  {},
}

// Valid reports whether s is one of the known booking statuses.
func (s BookingStatus) Valid() bool {
	_, ok := bookingStatuses[s]
	return ok
}

// Terminal reports whether no transition other than COMPLETED -> PAID leaves s.
func (s BookingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusPaid || s == StatusCancelled
}

type Booking struct {
	ID               int64         `json:"id"`
	CustomerID       int64         `json:"customer_id"`
	CenterID         int64         `json:"center_id"`
	ServiceID        int64         `json:"service_id"`
	TechnicianSlotID int64         `json:"technician_slot_id"`
	TechnicianID     int64         `json:"technician_id"`
	SlotID           int64         `json:"slot_id"`
	WorkDate         time.Time     `json:"work_date"`
	Status           BookingStatus `json:"status"`
	AppliedCreditID  *int64        `json:"applied_credit_id,omitempty"`
	SpecialRequests  string        `json:"special_requests"`
	SlotNotes        string        `json:"slot_notes,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Version          int64         `json:"version"`
}

// HasSchedule reports whether the booking is tied to a technician and a work date.
func (b *Booking) HasSchedule() bool {
	return b.TechnicianID != 0 && !b.WorkDate.IsZero()
}

// TechnicianTimeSlot is one technician's assignment to one slot on one date.
type TechnicianTimeSlot struct {
	ID           int64     `json:"id"`
	TechnicianID int64     `json:"technician_id"`
	CenterID     int64     `json:"center_id"`
	SlotID       int64     `json:"slot_id"`
	WorkDate     time.Time `json:"work_date"`
	Notes        string    `json:"notes,omitempty"`
}
