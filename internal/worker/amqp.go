package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSender publishes notifications as persistent JSON messages to a durable queue.
type AMQPSender struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel amqpPublisher
	queue   string
	logger  *zerolog.Logger
}

func NewAMQPSender(url, queue string, logger *zerolog.Logger) (*AMQPSender, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp queue declare %s: %w", queue, err)
	}
	return &AMQPSender{conn: conn, channel: ch, queue: queue, logger: logger}, nil
}

func (s *AMQPSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channel.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    time.Now().UTC(),
		Type:         "notification." + n.Audience,
		Body:         body,
	})
}

func (s *AMQPSender) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// PaymentConfirmed is the body of a payment provider's confirmation message.
type PaymentConfirmed struct {
	BookingID int64  `json:"bookingId"`
	PaymentID string `json:"paymentId,omitempty"`
}

// PaymentHandler finalizes a booking once its payment is confirmed.
type PaymentHandler interface {
	OnPaymentConfirmed(ctx context.Context, bookingID int64) (*models.Booking, error)
}

type ackAction int

const (
	ackDone ackAction = iota
	ackRequeue
	ackReject
)

// PaymentConsumer feeds payment confirmations from a durable queue into the
// booking state machine, reconnecting with backoff when the broker goes away.
type PaymentConsumer struct {
	url     string
	queue   string
	handler PaymentHandler
	backoff RetryPolicy
	logger  *zerolog.Logger
}

func NewPaymentConsumer(url, queue string, handler PaymentHandler, logger *zerolog.Logger) *PaymentConsumer {
	return &PaymentConsumer{
		url:     url,
		queue:   queue,
		handler: handler,
		backoff: RetryPolicy{InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2},
		logger:  logger,
	}
}

// Run consumes until ctx is done.
func (c *PaymentConsumer) Run(ctx context.Context) error {
	attempt := 0
	for {
		conn, err := amqp.Dial(c.url)
		if err == nil {
			attempt = 0
			err = c.consume(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return nil
			}
		}

		attempt++
		delay := c.backoff.NextDelay(attempt)
		c.logger.Warn().Err(err).Dur("retry_in", delay).Msg("payment consumer disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (c *PaymentConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(16, 0, false); err != nil {
		c.logger.Warn().Err(err).Msg("payment consumer: set QoS failed")
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.logger.Info().Str("queue", c.queue).Msg("payment consumer started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch c.process(ctx, d.Body, d.Redelivered) {
			case ackDone:
				_ = d.Ack(false)
			case ackRequeue:
				_ = d.Nack(false, true)
			default:
				_ = d.Nack(false, false)
			}
		}
	}
}

// process applies one confirmation. Malformed messages and confirmations the
// state machine refuses are rejected; transient failures are requeued once.
func (c *PaymentConsumer) process(ctx context.Context, body []byte, redelivered bool) ackAction {
	var msg PaymentConfirmed
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Error().Err(err).Msg("payment consumer: malformed message")
		return ackReject
	}
	if msg.BookingID <= 0 {
		c.logger.Error().Msg("payment consumer: message without bookingId")
		return ackReject
	}

	b, err := c.handler.OnPaymentConfirmed(ctx, msg.BookingID)
	switch {
	case err == nil:
		c.logger.Info().
			Int64("booking_id", b.ID).
			Str("payment_id", msg.PaymentID).
			Msg("payment confirmation applied")
		return ackDone
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrValidation):
		c.logger.Error().Err(err).Int64("booking_id", msg.BookingID).Msg("payment confirmation refused")
		return ackReject
	case redelivered:
		c.logger.Error().Err(err).Int64("booking_id", msg.BookingID).Msg("payment confirmation failed twice")
		return ackReject
	default:
		c.logger.Warn().Err(err).Int64("booking_id", msg.BookingID).Msg("payment confirmation failed, requeueing")
		return ackRequeue
	}
}
