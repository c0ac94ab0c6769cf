package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"apodetl/internal/models"
	"apodetl/internal/pipeline"
)

// PipelineRunner executes one pipeline run.
type PipelineRunner interface {
	Run(ctx context.Context, trigger string) (*pipeline.RunResult, error)
}

// ETLWorker triggers the APOD pipeline once at start and then on every tick.
type ETLWorker struct {
	runner   PipelineRunner
	interval time.Duration

	mu      sync.Mutex
	running bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewETLWorker(runner PipelineRunner, interval time.Duration) *ETLWorker {
	return &ETLWorker{
		runner:   runner,
		interval: interval,
	}
}

// Start is a no-op once Stop has been called, even if Start never ran.
func (w *ETLWorker) Start() {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.done = make(chan struct{})
	ctx, done := w.ctx, w.done
	w.mu.Unlock()

	slog.Info("ETL worker started", "interval", w.interval)

	// First run right away, then on schedule.
	w.runOnce(ctx)

	go w.loop(ctx, done)
}

func (w *ETLWorker) Stop() {
	w.mu.Lock()
	w.stopped = true
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	slog.Info("ETL worker stopped")
}

func (w *ETLWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *ETLWorker) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	res, err := w.runner.Run(ctx, models.TriggerScheduled)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		slog.Info("ETL worker: previous run still in progress, skipping tick")
	case err != nil:
		slog.Error("ETL worker: run failed", "error", err)
	default:
		slog.Info("ETL worker: run completed", "run_id", res.ID.String(), "inserted", res.Inserted)
	}
}
