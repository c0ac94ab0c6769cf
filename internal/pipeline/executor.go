package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"apodetl/pkg/logger"
)

// State is the final state of a task in one execution.
type State string

const (
	StateSuccess        State = "success"
	StateFailed         State = "failed"
	StateUpstreamFailed State = "upstream_failed"
)

// Hooks observe task attempts. Nil fields are ignored.
type Hooks struct {
	OnAttempt func(taskID string, took time.Duration, err error)
	OnRetry   func(taskID string, attempt int, err error)
}

// Result holds the final state and error of every task.
type Result struct {
	States map[string]State
	Errors map[string]error
}

// Execute runs the DAG once. Tasks whose upstream tasks all succeeded run
// concurrently; a failed task marks everything downstream upstream_failed.
// The returned error names the failed tasks that are not allowed to fail.
func (d *DAG) Execute(ctx context.Context, hooks Hooks) (*Result, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		States: make(map[string]State, len(d.order)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	done := make(map[string]chan struct{}, len(d.order))
	for _, id := range d.order {
		done[id] = make(chan struct{})
	}

	var wg sync.WaitGroup
	for _, id := range d.order {
		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			defer close(done[task.ID])

			for _, up := range d.upstream[task.ID] {
				<-done[up]
			}

			mu.Lock()
			var failedUp string
			for _, up := range d.upstream[task.ID] {
				if res.States[up] != StateSuccess {
					failedUp = up
					break
				}
			}
			mu.Unlock()

			log := logger.FromContext(ctx).With("task", task.ID)
			if failedUp != "" {
				log.Warn("Skipping task due to upstream failure", "upstream", failedUp)
				mu.Lock()
				res.States[task.ID] = StateUpstreamFailed
				mu.Unlock()
				return
			}

			err := d.runTask(logger.WithLogger(ctx, log), task, hooks)

			mu.Lock()
			if err != nil {
				res.States[task.ID] = StateFailed
				res.Errors[task.ID] = err
			} else {
				res.States[task.ID] = StateSuccess
			}
			mu.Unlock()
		}(d.tasks[id])
	}
	wg.Wait()

	var failed []string
	var rootCause error
	for _, id := range d.order {
		if res.States[id] != StateFailed || d.tasks[id].AllowFailure {
			continue
		}
		failed = append(failed, id)
		if rootCause == nil {
			rootCause = res.Errors[id]
		}
	}

	if rootCause != nil {
		return res, fmt.Errorf("execution failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	return res, nil
}

func (d *DAG) runTask(ctx context.Context, task *Task, hooks Hooks) error {
	log := logger.FromContext(ctx)

	var err error
	for attempt := 0; attempt <= task.Retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		start := time.Now()
		err = task.Run(ctx)
		took := time.Since(start)
		if hooks.OnAttempt != nil {
			hooks.OnAttempt(task.ID, took, err)
		}
		if err == nil {
			log.Info("Task succeeded", "attempt", attempt+1, "took", took)
			return nil
		}

		log.Error("Task attempt failed", "attempt", attempt+1, "error", err)
		if attempt == task.Retries {
			break
		}

		if hooks.OnRetry != nil {
			hooks.OnRetry(task.ID, attempt+1, err)
		}
		log.Info("Retrying task", "delay", task.RetryDelay)

		timer := time.NewTimer(task.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (retry abandoned: %v)", err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
