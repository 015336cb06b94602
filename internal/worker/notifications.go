package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"autoservice/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ErrQueueFull = errors.New("notification queue is full")

// Notification is one message to one party of a booking.
type Notification struct {
	ID          string    `json:"id"`
	Audience    string    `json:"audience"`
	RecipientID int64     `json:"recipient_id"`
	BookingID   int64     `json:"booking_id"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
	Attempt     int       `json:"attempt"`
}

// Sender delivers a notification to its transport.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationDispatcher queues notifications and delivers them from a pool
// of workers, retrying failed deliveries with exponential backoff. It
// satisfies domain.Notifier; enqueueing never blocks the caller.
type NotificationDispatcher struct {
	sender        Sender
	retry         RetryPolicy
	queue         chan Notification
	workers       int
	redis         *redis.Client
	deadLetterKey string
	logger        *zerolog.Logger

	wg        sync.WaitGroup
	delivered atomic.Int64
	failed    atomic.Int64
}

func NewNotificationDispatcher(sender Sender, retry RetryPolicy, workers int, logger *zerolog.Logger) *NotificationDispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &NotificationDispatcher{
		sender:        sender,
		retry:         retry.withDefaults(),
		queue:         make(chan Notification, models.NotificationQueueSize),
		workers:       workers,
		deadLetterKey: "notifications:deadletter",
		logger:        logger,
	}
}

// WithDeadLetter parks notifications that exhausted their retries in a redis list.
func (d *NotificationDispatcher) WithDeadLetter(client *redis.Client, key string) *NotificationDispatcher {
	d.redis = client
	if key != "" {
		d.deadLetterKey = key
	}
	return d
}

func (d *NotificationDispatcher) SendCustomerNotification(ctx context.Context, customerID, bookingID int64, message string) error {
	return d.enqueue("customer", customerID, bookingID, message)
}

func (d *NotificationDispatcher) SendTechnicianNotification(ctx context.Context, technicianID, bookingID int64, message string) error {
	return d.enqueue("technician", technicianID, bookingID, message)
}

func (d *NotificationDispatcher) SendStaffNotification(ctx context.Context, centerID, bookingID int64, message string) error {
	return d.enqueue("staff", centerID, bookingID, message)
}

func (d *NotificationDispatcher) enqueue(audience string, recipientID, bookingID int64, message string) error {
	n := Notification{
		ID:          uuid.NewString(),
		Audience:    audience,
		RecipientID: recipientID,
		BookingID:   bookingID,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	}
	select {
	case d.queue <- n:
		return nil
	default:
		return fmt.Errorf("%w: %s notification for booking %d", ErrQueueFull, audience, bookingID)
	}
}

// Start launches the workers; they stop when ctx is done.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.logger.Info().Int("workers", d.workers).Msg("notification dispatcher started")
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.loop(ctx)
		}()
	}
}

// Wait blocks until every worker has returned.
func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}

func (d *NotificationDispatcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.process(ctx, n)
		}
	}
}

func (d *NotificationDispatcher) process(ctx context.Context, n Notification) {
	err := d.sender.Send(ctx, n)
	if err == nil {
		d.delivered.Add(1)
		return
	}

	n.Attempt++
	if d.retry.Exhausted(n.Attempt) {
		d.failed.Add(1)
		d.logger.Error().Err(err).
			Str("notification_id", n.ID).
			Int64("booking_id", n.BookingID).
			Str("audience", n.Audience).
			Int("attempts", n.Attempt).
			Msg("notification dropped after retries")
		d.pushDeadLetter(ctx, n)
		return
	}

	delay := d.retry.NextDelay(n.Attempt)
	d.logger.Warn().Err(err).
		Str("notification_id", n.ID).
		Int("attempt", n.Attempt).
		Dur("retry_in", delay).
		Msg("notification delivery failed")

	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		select {
		case d.queue <- n:
		default:
			d.failed.Add(1)
			d.logger.Error().Str("notification_id", n.ID).Msg("notification queue full, retry dropped")
		}
	})
}

func (d *NotificationDispatcher) pushDeadLetter(ctx context.Context, n Notification) {
	if d.redis == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		d.logger.Error().Err(err).Str("notification_id", n.ID).Msg("encode deadletter")
		return
	}
	if err := d.redis.LPush(ctx, d.deadLetterKey, data).Err(); err != nil {
		d.logger.Error().Err(err).Str("notification_id", n.ID).Msg("deadletter push failed")
	}
}

// Delivered and Failed count terminal outcomes.
func (d *NotificationDispatcher) Delivered() int64 { return d.delivered.Load() }
func (d *NotificationDispatcher) Failed() int64    { return d.failed.Load() }

// LogSender writes notifications to the log instead of a broker.
type LogSender struct {
	logger *zerolog.Logger
}

func NewLogSender(logger *zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.logger.Info().
		Str("notification_id", n.ID).
		Str("audience", n.Audience).
		Int64("recipient_id", n.RecipientID).
		Int64("booking_id", n.BookingID).
		Msg(n.Message)
	return nil
}
