package worker

import (
	"context"
	"time"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"

	"complaint_server/core/domain"
	"complaint_server/core/service/pipeline"
	"complaint_server/pkg/logger"
)

// =============================================================================
// BatchRunner - go-pkgz/pool executor for pipeline batches
// =============================================================================

// BatchRunnerConfig holds pool sizing.
type BatchRunnerConfig struct {
	Workers        int
	BatchSize      int
	WorkerChanSize int
}

// DefaultBatchRunnerConfig returns default pool sizing.
func DefaultBatchRunnerConfig() BatchRunnerConfig {
	return BatchRunnerConfig{
		Workers:        4,
		BatchSize:      1,
		WorkerChanSize: 16,
	}
}

// BatchRunner fans messages out over a bounded pool. Messages from one sender
// domain always land on the same worker, so one process never builds two
// records for the same case key at once.
type BatchRunner struct {
	config BatchRunnerConfig
	log    zerolog.Logger
}

var _ pipeline.Executor = (*BatchRunner)(nil)

func NewBatchRunner(config BatchRunnerConfig) *BatchRunner {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.WorkerChanSize <= 0 {
		config.WorkerChanSize = 1
	}
	return &BatchRunner{
		config: config,
		log:    logger.Component("batch-runner"),
	}
}

// job carries the message index so outcomes stay aligned with input.
type job struct {
	index int
	msg   *domain.RawMessage
}

// Execute implements pipeline.Executor.
func (r *BatchRunner) Execute(ctx context.Context, msgs []*domain.RawMessage, process pipeline.ProcessFunc) []pipeline.Outcome {
	outcomes := make([]pipeline.Outcome, len(msgs))
	if len(msgs) == 0 {
		return outcomes
	}

	start := time.Now()

	// Each worker writes only its own indexes.
	worker := pool.WorkerFunc[job](func(wctx context.Context, j job) error {
		if ctx.Err() != nil {
			outcomes[j.index] = pipeline.Skipped(j.msg, ctx.Err())
			return nil
		}
		outcomes[j.index] = process(ctx, j.msg)
		return nil
	})

	p := pool.New[job](r.config.Workers, worker).
		WithChunkFn(func(j job) string { return j.msg.SenderDomain() }).
		WithBatchSize(r.config.BatchSize).
		WithWorkerChanSize(r.config.WorkerChanSize).
		WithContinueOnError()

	// The pool outlives cancellation so Submit never blocks on stopped
	// workers; cancelled jobs are turned into skips by the worker above.
	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	if err := p.Go(poolCtx); err != nil {
		r.log.Error().Err(err).Msg("failed to start pool")
		for i, msg := range msgs {
			outcomes[i] = pipeline.Skipped(msg, err)
		}
		return outcomes
	}

	for i, msg := range msgs {
		p.Submit(job{index: i, msg: msg})
	}

	if err := p.Close(poolCtx); err != nil {
		r.log.Warn().Err(err).Msg("pool closed with error")
	}

	// A job the pool never ran has no outcome.
	for i, msg := range msgs {
		if outcomes[i].Kind == "" {
			outcomes[i] = pipeline.Skipped(msg, ctx.Err())
		}
	}

	r.log.Debug().
		Int("messages", len(msgs)).
		Int("workers", r.config.Workers).
		Dur("took", time.Since(start)).
		Msg("batch executed")
	return outcomes
}
