package models

import "time"

type ChecklistOutcome string

const (
	ChecklistPending ChecklistOutcome = "PENDING"
	ChecklistPass    ChecklistOutcome = "PASS"
	ChecklistFail    ChecklistOutcome = "FAIL"
	ChecklistNA      ChecklistOutcome = "NA"
)

func (o ChecklistOutcome) Valid() bool {
	switch o {
	case ChecklistPending, ChecklistPass, ChecklistFail, ChecklistNA:
		return true
	}
	return false
}

// ChecklistResult is the evaluation of one maintenance category on a booking.
type ChecklistResult struct {
	ID         int64            `json:"id"`
	BookingID  int64            `json:"booking_id"`
	CategoryID int64            `json:"category_id"`
	Result     ChecklistOutcome `json:"result"`
	Notes      string           `json:"notes,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}
