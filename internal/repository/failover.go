package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"autoservice/internal/domain"
	"autoservice/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverHoldStore serves holds from primary and switches to fallback when
// primary errors. Primary is probed again once a minute.
type FailoverHoldStore struct {
	primary  domain.HoldStore
	fallback domain.HoldStore
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverHoldStore(primary, fallback domain.HoldStore, logger *zerolog.Logger) *FailoverHoldStore {
	return &FailoverHoldStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the call should go to primary: either it is
// healthy or the recovery interval has elapsed.
func (s *FailoverHoldStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) > recoveryInterval {
		s.lastCheck = time.Now()
		return true
	}
	return false
}

func (s *FailoverHoldStore) primaryFailed(op string, err error) {
	if !s.isDown.Swap(true) {
		s.logger.Error().Err(err).Str("op", op).Msg("Primary hold store failed, falling back")
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverHoldStore) primaryOK() {
	if s.isDown.Swap(false) {
		s.logger.Info().Msg("Primary hold store recovered")
	}
}

func (s *FailoverHoldStore) TryHold(ctx context.Context, key models.SlotKey, holder string, ttl time.Duration) (bool, time.Time, error) {
	if s.usePrimary() {
		granted, expiresAt, err := s.primary.TryHold(ctx, key, holder, ttl)
		switch {
		case err == nil:
			s.primaryOK()
			return granted, expiresAt, nil
		case errors.Is(err, domain.ErrValidation):
			return false, time.Time{}, err
		}
		s.primaryFailed("try_hold", err)
	}
	return s.fallback.TryHold(ctx, key, holder, ttl)
}

func (s *FailoverHoldStore) IsHeld(ctx context.Context, key models.SlotKey) (bool, error) {
	if s.usePrimary() {
		held, err := s.primary.IsHeld(ctx, key)
		if err == nil {
			s.primaryOK()
			return held, nil
		}
		s.primaryFailed("is_held", err)
	}
	return s.fallback.IsHeld(ctx, key)
}

func (s *FailoverHoldStore) Release(ctx context.Context, key models.SlotKey, holder string) (bool, error) {
	if s.usePrimary() {
		released, err := s.primary.Release(ctx, key, holder)
		if err == nil {
			s.primaryOK()
			return released, nil
		}
		s.primaryFailed("release", err)
	}
	return s.fallback.Release(ctx, key, holder)
}

func (s *FailoverHoldStore) Get(ctx context.Context, key models.SlotKey) (*models.SlotHold, error) {
	if s.usePrimary() {
		h, err := s.primary.Get(ctx, key)
		if err == nil {
			s.primaryOK()
			return h, nil
		}
		s.primaryFailed("get", err)
	}
	return s.fallback.Get(ctx, key)
}
