package models

import "time"

type SlotState string

const (
	SlotAvailable SlotState = "AVAILABLE"
	SlotBooked    SlotState = "BOOKED"
	SlotHeld      SlotState = "HELD"
	SlotPast      SlotState = "PAST"
)

// SlotAvailability is the computed state of one slot for one technician.
type SlotAvailability struct {
	SlotID          int64      `json:"slot_id"`
	StartTime       string     `json:"start_time"`
	EndTime         string     `json:"end_time"`
	State           SlotState  `json:"state"`
	HeldUntil       *time.Time `json:"held_until,omitempty"`
	HeldByRequester bool       `json:"held_by_requester,omitempty"`
}

// Available reports whether a requester may hold the slot.
func (s SlotAvailability) Available() bool {
	return s.State == SlotAvailable || (s.State == SlotHeld && s.HeldByRequester)
}

type TechnicianAvailability struct {
	TechnicianID   int64              `json:"technician_id"`
	TechnicianName string             `json:"technician_name"`
	Slots          []SlotAvailability `json:"slots"`
}

type Availability struct {
	CenterID    int64                    `json:"center_id"`
	Date        string                   `json:"date"`
	Technicians []TechnicianAvailability `json:"technicians"`
}

// ParseDate parses a calendar date in DateFormat and normalizes it to UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, raw, time.UTC)
}

// DateOnly truncates t to its calendar date in UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
