package bootstrap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"complaint_server/adapter/out/messaging"
	"complaint_server/core/domain"
	"complaint_server/pkg/logger"
)

const auditGroup = "complaint-archivers"

// Worker runs the scheduled pipeline and the audit relay.
type Worker struct {
	deps     *Dependencies
	consumer *messaging.Consumer
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	zlog     zerolog.Logger
}

func NewWorker(deps *Dependencies) (*Worker, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("worker needs mailbox credentials")
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		zlog:   logger.Component("worker"),
	}

	// Relay build events from the stream into the archive
	if deps.Redis != nil && deps.Archive != nil {
		w.consumer = messaging.NewConsumer(deps.Redis, &messaging.ConsumerConfig{
			Stream:   messaging.StreamComplaintAudit,
			Group:    auditGroup,
			Consumer: deps.Config.WorkerID,
			Handler:  messaging.NewArchiveRelay(deps.Archive),
			Logger:   w.zlog,
		})
		logger.Info("[Worker] audit relay configured for stream %s", messaging.StreamComplaintAudit)
	} else if deps.Redis != nil {
		logger.Warn("[Worker] MongoDB not configured, audit stream is not archived")
	}

	return w, nil
}

// Start blocks until Stop is called.
func (w *Worker) Start() {
	w.deps.Scheduler.Start()

	if w.consumer != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			if err := w.consumer.Run(w.ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.zlog.Error().Err(err).Msg("audit relay stopped")
			}
		}()
	}

	<-w.ctx.Done()
}

// Stop stops the scheduler and the relay, waiting up to 30 seconds.
func (w *Worker) Stop() {
	w.deps.Scheduler.Stop()
	w.cancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("[Worker] stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("[Worker] stop timed out")
	}
}

// RunOnce runs a single batch and returns its summary.
func RunOnce(ctx context.Context, deps *Dependencies) (*domain.BatchSummary, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("sync needs mailbox credentials")
	}
	return deps.Scheduler.RunOnce(ctx)
}
