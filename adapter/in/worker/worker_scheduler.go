package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"complaint_server/core/domain"
	"complaint_server/pkg/apperr"
	"complaint_server/pkg/logger"
)

// =============================================================================
// Scheduler - periodic pipeline runs
// =============================================================================

// BatchRunFunc runs one pipeline batch.
type BatchRunFunc func(ctx context.Context) (*domain.BatchSummary, error)

// Scheduler runs the pipeline every interval. Runs never overlap: a trigger
// while a run is in progress is rejected with a conflict.
type Scheduler struct {
	run      BatchRunFunc
	interval time.Duration

	mu      sync.Mutex
	running bool
	last    *domain.BatchSummary

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

func NewScheduler(run BatchRunFunc, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:      run,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start runs one batch immediately and then one per interval.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	logger.Info("[Scheduler] Starting, interval=%s", s.interval)
	go s.loop()
}

// Stop cancels the in-flight run and waits for the loop to exit. It is safe
// to call on a scheduler that was never started.
func (s *Scheduler) Stop() {
	logger.Info("[Scheduler] Stopping...")
	s.cancel()
	if s.started.Load() {
		<-s.done
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	s.tick()

	if s.interval <= 0 {
		<-s.ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("[Scheduler] Stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(s.ctx); err != nil && !apperr.IsCode(err, apperr.CodeConflict) {
		logger.Error("[Scheduler] batch failed: %v", err)
	}
}

// RunOnce runs a batch now unless one is already running.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.BatchSummary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, apperr.Conflict("sync already running")
	}
	s.running = true
	s.mu.Unlock()

	summary, err := s.run(ctx)

	s.mu.Lock()
	s.running = false
	if summary != nil {
		s.last = summary
	}
	s.mu.Unlock()

	return summary, err
}

// Last returns the most recent batch summary, or nil.
func (s *Scheduler) Last() *domain.BatchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
