package events

import (
	"sync"

	"autoservice/internal/metrics"
)

// Subscription receives the events of one fanout group.
type Subscription struct {
	Group string
	C     <-chan *Event

	ch   chan *Event
	once sync.Once
}

// Hub delivers events to every subscription of the event's groups. A
// subscriber that does not keep up loses events; publishing never blocks.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{groups: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(group string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan *Event, buffer)
	sub := &Subscription{Group: group, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.groups[group] == nil {
		h.groups[group] = make(map[*Subscription]struct{})
	}
	h.groups[group][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if subs, ok := h.groups[sub.Group]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.groups, sub.Group)
		}
	}
	h.mu.Unlock()

	sub.once.Do(func() { close(sub.ch) })
}

// Broadcast returns how many deliveries were dropped because a subscriber buffer was full.
func (h *Hub) Broadcast(event *Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for _, group := range event.Groups {
		for sub := range h.groups[group] {
			select {
			case sub.ch <- event:
			default:
				dropped++
				metrics.IncFanoutDropped()
			}
		}
	}
	return dropped
}

func (h *Hub) Subscribers(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}
