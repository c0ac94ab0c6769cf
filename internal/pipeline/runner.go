package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"apodetl/internal/metrics"
	"apodetl/internal/models"
	"apodetl/internal/repository"
	"apodetl/internal/service"
	"apodetl/pkg/logger"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when a run is requested while another one
// has not finished yet.
var ErrRunInProgress = errors.New("a pipeline run is already in progress")

const runLockTTL = 2 * time.Hour

// RunResult summarizes one execution of the DAG.
type RunResult struct {
	ID         uuid.UUID             `json:"id"`
	Trigger    string                `json:"trigger"`
	Status     string                `json:"status"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	States     map[string]State      `json:"states"`
	Inserted   bool                  `json:"inserted"`
	Report     *service.VerifyReport `json:"-"`
	Error      string                `json:"error,omitempty"`
}

type Runner struct {
	svc      service.ETLService
	policy   Policy
	archiver Archiver
	history  History
	cache    repository.CacheRepository
	metrics  *metrics.Metrics

	mu      sync.Mutex
	running atomic.Bool
}

type RunnerOption func(*Runner)

func WithArchiver(a Archiver) RunnerOption {
	return func(r *Runner) { r.archiver = a }
}

func WithHistory(h History) RunnerOption {
	return func(r *Runner) { r.history = h }
}

// WithLock guards runs across processes with a Redis lock.
func WithLock(cache repository.CacheRepository) RunnerOption {
	return func(r *Runner) { r.cache = cache }
}

func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func NewRunner(svc service.ETLService, policy Policy, opts ...RunnerOption) *Runner {
	r := &Runner{svc: svc, policy: policy}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Running reports whether a run is executing in this process.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run executes the DAG once. The returned error is non-nil when any task
// that is not allowed to fail did fail; the result is still populated.
func (r *Runner) Run(ctx context.Context, trigger string) (*RunResult, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()
	r.running.Store(true)
	defer r.running.Store(false)

	state := &RunState{ID: uuid.New()}
	log := slog.Default().With("dag_id", DAGID, "run_id", state.ID.String(), "trigger", trigger)
	ctx = logger.WithLogger(ctx, log)

	if r.cache != nil {
		lockKey := "lock:" + DAGID
		ok, err := r.cache.AcquireLock(ctx, lockKey, state.ID.String(), runLockTTL)
		if err != nil {
			log.Warn("Run lock unavailable, continuing without it", "error", err)
		} else if !ok {
			return nil, ErrRunInProgress
		} else {
			defer func() {
				if err := r.cache.ReleaseLock(context.Background(), lockKey, state.ID.String()); err != nil {
					log.Warn("Failed to release run lock", "error", err)
				}
			}()
		}
	}

	result := &RunResult{
		ID:        state.ID,
		Trigger:   trigger,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	if r.history != nil {
		run := &models.PipelineRun{
			ID:        state.ID,
			DAGID:     DAGID,
			Trigger:   trigger,
			Status:    models.RunStatusRunning,
			StartedAt: result.StartedAt,
		}
		if err := r.history.Start(ctx, run); err != nil {
			log.Warn("Failed to record run start", "error", err)
		}
	}

	log.Info("Run started")
	runErr := r.execute(ctx, state, result)
	result.FinishedAt = time.Now().UTC()

	result.Status = models.RunStatusSuccess
	if runErr != nil {
		result.Status = models.RunStatusFailed
		result.Error = runErr.Error()
	}

	if r.history != nil {
		tasks, _ := json.Marshal(result.States)
		// The run context may be canceled by now; the outcome is still recorded.
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		if err := r.history.Finish(hctx, state.ID, result.Status, result.Error, tasks); err != nil {
			log.Warn("Failed to record run outcome", "error", err)
		}
		cancel()
	}

	if r.metrics != nil {
		r.metrics.ObserveRun(trigger, result.Status, result.FinishedAt.Sub(result.StartedAt))
	}

	if runErr != nil {
		log.Error("Run failed", "error", runErr, "states", result.States)
		return result, runErr
	}
	log.Info("Run finished", "states", result.States, "inserted", result.Inserted)
	return result, nil
}

func (r *Runner) execute(ctx context.Context, state *RunState, result *RunResult) error {
	var onLoad func(bool)
	var hooks Hooks
	if r.metrics != nil {
		onLoad = r.metrics.IncRows
		hooks.OnAttempt = r.metrics.ObserveTask
		hooks.OnRetry = func(taskID string, _ int, _ error) { r.metrics.IncRetry(taskID) }
	}

	dag, err := BuildAPODDAG(r.svc, state, r.policy, r.archiver, onLoad)
	if err != nil {
		return err
	}

	res, err := dag.Execute(ctx, hooks)
	if res != nil {
		result.States = res.States
	}
	result.Inserted = state.Inserted
	result.Report = state.Report
	return err
}
