package events

import (
	"context"
	"errors"
	"sync/atomic"

	"autoservice/internal/metrics"

	"github.com/rs/zerolog"
)

var ErrOutboxFull = errors.New("event outbox is full")

// Outbox decouples publishers from delivery. PublishJSON only enqueues; Run
// drains the queue into the bus and the hub.
type Outbox struct {
	queue   chan *Event
	bus     *EventBus
	hub     *Hub
	logger  *zerolog.Logger
	dropped atomic.Int64
}

func NewOutbox(size int, bus *EventBus, hub *Hub, logger *zerolog.Logger) *Outbox {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Outbox{
		queue:  make(chan *Event, size),
		bus:    bus,
		hub:    hub,
		logger: logger,
	}
}

// PublishJSON enqueues an event for groups without blocking. A full queue
// drops the event and returns ErrOutboxFull.
func (o *Outbox) PublishJSON(eventType string, payload interface{}, groups ...string) error {
	event, err := NewJSONEvent(eventType, payload, groups...)
	if err != nil {
		return err
	}

	select {
	case o.queue <- event:
		return nil
	default:
		o.dropped.Add(1)
		metrics.IncFanoutDropped()
		return ErrOutboxFull
	}
}

// Run delivers queued events until ctx is done, then flushes what is left.
func (o *Outbox) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			o.flush()
			return
		case event := <-o.queue:
			o.deliver(event)
		}
	}
}

func (o *Outbox) flush() {
	for {
		select {
		case event := <-o.queue:
			o.deliver(event)
		default:
			return
		}
	}
}

func (o *Outbox) deliver(event *Event) {
	if o.bus != nil {
		if err := o.bus.Publish(event); err != nil {
			o.logger.Error().Err(err).Str("event_type", event.Type).Str("event_id", event.ID).Msg("event handler failed")
		}
	}
	if o.hub != nil {
		if n := o.hub.Broadcast(event); n > 0 {
			o.dropped.Add(int64(n))
			o.logger.Warn().Int("dropped", n).Str("event_type", event.Type).Msg("slow subscribers skipped")
		}
	}
}

func (o *Outbox) Dropped() int64 {
	return o.dropped.Load()
}

func (o *Outbox) Pending() int {
	return len(o.queue)
}
