package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"autoservice/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySender struct {
	mu       sync.Mutex
	failures int
	calls    int
	sent     []Notification
}

func (s *flakySender) Send(ctx context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.failures {
		return errors.New("broker unavailable")
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *flakySender) snapshot() (int, []Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]Notification(nil), s.sent...)
}

var fastRetry = RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func TestDispatcherDelivers(t *testing.T) {
	sender := &flakySender{}
	d := NewNotificationDispatcher(sender, fastRetry, 2, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	require.NoError(t, d.SendCustomerNotification(ctx, 42, 11, "confirmed"))
	require.NoError(t, d.SendTechnicianNotification(ctx, 7, 11, "assigned"))
	require.NoError(t, d.SendStaffNotification(ctx, 1, 11, "approved"))

	require.Eventually(t, func() bool { return d.Delivered() == 3 }, time.Second, 5*time.Millisecond)

	_, sent := sender.snapshot()
	audiences := map[string]int64{}
	for _, n := range sent {
		audiences[n.Audience] = n.RecipientID
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, int64(11), n.BookingID)
	}
	assert.Equal(t, map[string]int64{"customer": 42, "technician": 7, "staff": 1}, audiences)

	cancel()
	d.Wait()
}

func TestDispatcherRetries(t *testing.T) {
	sender := &flakySender{failures: 2}
	d := NewNotificationDispatcher(sender, fastRetry, 1, logging.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	require.NoError(t, d.SendCustomerNotification(ctx, 42, 11, "confirmed"))
	require.Eventually(t, func() bool { return d.Delivered() == 1 }, time.Second, 5*time.Millisecond)

	calls, sent := sender.snapshot()
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, sent[0].Attempt)
	assert.Zero(t, d.Failed())
}

func TestDispatcherDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sender := &flakySender{failures: 100}
	d := NewNotificationDispatcher(sender, fastRetry, 1, logging.Nop()).WithDeadLetter(client, "test:deadletter")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	require.NoError(t, d.SendStaffNotification(ctx, 1, 11, "approved"))
	require.Eventually(t, func() bool { return d.Failed() == 1 }, time.Second, 5*time.Millisecond)

	calls, _ := sender.snapshot()
	assert.Equal(t, fastRetry.MaxRetries, calls)

	require.Eventually(t, func() bool {
		n, _ := client.LLen(ctx, "test:deadletter").Result()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	raw, err := client.LIndex(ctx, "test:deadletter", 0).Result()
	require.NoError(t, err)
	var parked Notification
	require.NoError(t, json.Unmarshal([]byte(raw), &parked))
	assert.Equal(t, "staff", parked.Audience)
	assert.Equal(t, fastRetry.MaxRetries, parked.Attempt)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewNotificationDispatcher(&flakySender{}, fastRetry, 1, logging.Nop())

	var err error
	for i := 0; i <= cap(d.queue); i++ {
		err = d.SendCustomerNotification(context.Background(), 42, int64(i), "hello")
	}
	assert.ErrorIs(t, err, ErrQueueFull)
}
