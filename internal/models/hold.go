package models

import (
	"fmt"
	"time"
)

// SlotKey identifies one technician slot on one date at one center.
type SlotKey struct {
	CenterID     int64     `json:"center_id"`
	Date         time.Time `json:"date"`
	SlotID       int64     `json:"slot_id"`
	TechnicianID int64     `json:"technician_id"`
}

func (k SlotKey) DateString() string {
	return k.Date.Format(DateFormat)
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%d:%s:%d:%d", k.CenterID, k.DateString(), k.SlotID, k.TechnicianID)
}

// Valid reports whether every component of the key is set.
func (k SlotKey) Valid() bool {
	return k.CenterID > 0 && k.SlotID > 0 && k.TechnicianID > 0 && !k.Date.IsZero()
}

// SlotHold is an advisory, time-bounded reservation of a slot.
type SlotHold struct {
	Key       SlotKey   `json:"key"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the hold is still in force at now.
func (h *SlotHold) Live(now time.Time) bool {
	return h != nil && now.Before(h.ExpiresAt)
}
