package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventSlotHeld         = "slotHeld"
	EventSlotReleased     = "slotReleased"
	EventBookingUpdated   = "booking.updated"
	EventChecklistUpdated = "checklist.updated"
	EventPartsUpdated     = "parts.updated"
)

// CenterDateGroup is the fanout group watching one center's schedule for a day.
func CenterDateGroup(centerID int64, date time.Time) string {
	return fmt.Sprintf("center:%d:date:%s", centerID, date.Format("2006-01-02"))
}

// BookingGroup is the fanout group watching a single booking.
func BookingGroup(bookingID int64) string {
	return fmt.Sprintf("booking:%d", bookingID)
}

type SlotHeldPayload struct {
	TechnicianID int64     `json:"technicianId"`
	SlotID       int64     `json:"slotId"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type SlotReleasedPayload struct {
	TechnicianID int64 `json:"technicianId"`
	SlotID       int64 `json:"slotId"`
}

type BookingUpdatedPayload struct {
	BookingID int64  `json:"bookingId"`
	Status    string `json:"status"`
}

type ChecklistUpdatedPayload struct {
	BookingID int64 `json:"bookingId"`
}

type PartsUpdatedPayload struct {
	BookingID   int64  `json:"bookingId"`
	PartUsageID int64  `json:"partUsageId"`
	Status      string `json:"status"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Groups    []string        `json:"-"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events keyed by type.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs regardless.
func (b *EventBus) Publish(event *Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var firstErr error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewJSONEvent builds an Event with JSON payload addressed to groups.
func NewJSONEvent(eventType string, payload interface{}, groups ...string) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Groups:    groups,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}, nil
}
