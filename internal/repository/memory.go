package repository

import (
	"context"
	"sync"
	"time"

	"autoservice/internal/clock"
	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

// MemoryHoldStore keeps holds in a process-local map. Expired entries are
// ignored on read and reclaimed by Sweep.
type MemoryHoldStore struct {
	mu    sync.Mutex
	holds map[models.SlotKey]*models.SlotHold
	clock clock.Clock
}

func NewMemoryHoldStore(clk clock.Clock) *MemoryHoldStore {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &MemoryHoldStore{
		holds: make(map[models.SlotKey]*models.SlotHold),
		clock: clk,
	}
}

func normalizeKey(key models.SlotKey) models.SlotKey {
	key.Date = models.DateOnly(key.Date)
	return key
}

func validateHold(key models.SlotKey, holder string) error {
	if !key.Valid() {
		return domain.Invalid("incomplete slot key %s", key)
	}
	if holder == "" {
		return domain.Invalid("holder is required")
	}
	return nil
}

func (s *MemoryHoldStore) TryHold(ctx context.Context, key models.SlotKey, holder string, ttl time.Duration) (bool, time.Time, error) {
	if err := validateHold(key, holder); err != nil {
		return false, time.Time{}, err
	}
	if ttl <= 0 {
		return false, time.Time{}, domain.Invalid("hold ttl must be positive")
	}
	key = normalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if cur, ok := s.holds[key]; ok && cur.Live(now) && cur.HolderID != holder {
		return false, time.Time{}, nil
	}

	expiresAt := now.Add(ttl)
	s.holds[key] = &models.SlotHold{Key: key, HolderID: holder, ExpiresAt: expiresAt}
	return true, expiresAt, nil
}

func (s *MemoryHoldStore) IsHeld(ctx context.Context, key models.SlotKey) (bool, error) {
	h, err := s.Get(ctx, key)
	return h != nil, err
}

// Release drops the hold only when holder owns a live one.
func (s *MemoryHoldStore) Release(ctx context.Context, key models.SlotKey, holder string) (bool, error) {
	key = normalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.holds[key]
	if !ok {
		return false, nil
	}
	if !cur.Live(s.clock.Now()) {
		delete(s.holds, key)
		return false, nil
	}
	if cur.HolderID != holder {
		return false, nil
	}
	delete(s.holds, key)
	return true, nil
}

func (s *MemoryHoldStore) Get(ctx context.Context, key models.SlotKey) (*models.SlotHold, error) {
	key = normalizeKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.holds[key]
	if !ok {
		return nil, nil
	}
	if !cur.Live(s.clock.Now()) {
		delete(s.holds, key)
		return nil, nil
	}
	cp := *cur
	return &cp, nil
}

// Sweep removes expired holds and returns how many were dropped.
func (s *MemoryHoldStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for key, h := range s.holds {
		if !h.Live(now) {
			delete(s.holds, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryHoldStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.holds)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryHoldStore) RunSweeper(ctx context.Context, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && logger != nil {
				logger.Debug().Int("removed", n).Msg("expired slot holds swept")
			}
		}
	}
}
