package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/apperr"
	"complaint_server/pkg/logger"
)

const caseLockPoll = 100 * time.Millisecond

// LockStore is the token lock primitive; *cache.RedisCache implements it.
type LockStore interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// CaseLockAdapter serializes writers of one case key across processes.
type CaseLockAdapter struct {
	store LockStore
	ttl   time.Duration
	poll  time.Duration
	log   zerolog.Logger
}

var _ out.CaseLocker = (*CaseLockAdapter)(nil)

func NewCaseLockAdapter(store LockStore, ttl time.Duration) *CaseLockAdapter {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &CaseLockAdapter{
		store: store,
		ttl:   ttl,
		poll:  caseLockPoll,
		log:   logger.Component("case-lock"),
	}
}

func caseLockKey(key domain.CaseKey) string {
	return "lock:case:" + string(key)
}

// LockCase blocks until the lock is held or ctx ends.
func (a *CaseLockAdapter) LockCase(ctx context.Context, key domain.CaseKey) (func(), error) {
	lockKey := caseLockKey(key)
	token := uuid.NewString()

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	for {
		ok, err := a.store.Acquire(ctx, lockKey, token, a.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire case lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, apperr.LockNotAcquired(string(key)).WithError(ctx.Err())
		case <-ticker.C:
		}
	}

	release := func() {
		// Release must run even when the caller's ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.store.Release(rctx, lockKey, token); err != nil {
			a.log.Warn().Err(err).Str("case_key", string(key)).Msg("failed to release case lock")
		}
	}
	return release, nil
}
