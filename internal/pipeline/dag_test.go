package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(context.Context) error { return nil }

func TestAddAndSetUpstream(t *testing.T) {
	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{ID: "a", Run: noop}))
	require.NoError(t, d.Add(&Task{ID: "b", Run: noop}))

	assert.ErrorContains(t, d.Add(&Task{ID: "a", Run: noop}), "duplicate task id")
	assert.ErrorContains(t, d.Add(&Task{ID: "c"}), "has no function")
	assert.ErrorContains(t, d.Add(&Task{Run: noop}), "must have an id")

	assert.ErrorContains(t, d.SetUpstream("dne", "a"), "task not found")
	assert.ErrorContains(t, d.SetUpstream("a", "dne"), "upstream task not found")
	assert.ErrorContains(t, d.SetUpstream("a", "a"), "self-referential edge")

	require.NoError(t, d.SetUpstream("b", "a"))
	require.NoError(t, d.SetUpstream("b", "a"))
	assert.Equal(t, []string{"a"}, d.Upstream("b"))
	assert.Equal(t, []string{"a", "b"}, d.Tasks())
}

func TestValidateDetectsCycles(t *testing.T) {
	d := NewDAG("test")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Add(&Task{ID: id, Run: noop}))
	}
	require.NoError(t, d.Chain("a", "b", "c"))
	require.NoError(t, d.Validate())

	require.NoError(t, d.SetUpstream("a", "c"))
	assert.ErrorContains(t, d.Validate(), "cycle detected")

	_, err := d.Execute(context.Background(), Hooks{})
	assert.ErrorContains(t, err, "cycle detected")
}

func TestExecuteRespectsOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	record := func(id string) TaskFunc {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			return nil
		}
	}

	d := NewDAG("test")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, d.Add(&Task{ID: id, Run: record(id)}))
	}
	require.NoError(t, d.Chain("a", "b", "c"))

	res, err := d.Execute(context.Background(), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, StateSuccess, res.States[id])
	}
}

func TestExecuteRunsIndependentTasksConcurrently(t *testing.T) {
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})

	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{ID: "a", Run: func(ctx context.Context) error {
		close(aStarted)
		select {
		case <-bStarted:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("b never started")
		}
	}}))
	require.NoError(t, d.Add(&Task{ID: "b", Run: func(ctx context.Context) error {
		close(bStarted)
		select {
		case <-aStarted:
			return nil
		case <-time.After(5 * time.Second):
			return errors.New("a never started")
		}
	}}))
	require.NoError(t, d.Add(&Task{ID: "join", Run: noop}))
	require.NoError(t, d.SetUpstream("join", "a", "b"))

	res, err := d.Execute(context.Background(), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.States["join"])
}

func TestExecuteSkipsDependentsOnFailure(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Bool

	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{ID: "a", Run: func(context.Context) error { return boom }}))
	require.NoError(t, d.Add(&Task{ID: "b", Run: func(context.Context) error { ran.Store(true); return nil }}))
	require.NoError(t, d.Add(&Task{ID: "c", Run: func(context.Context) error { ran.Store(true); return nil }}))
	require.NoError(t, d.Add(&Task{ID: "side", Run: noop}))
	require.NoError(t, d.Chain("a", "b", "c"))

	res, err := d.Execute(context.Background(), Hooks{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "execution failed for a")
	assert.False(t, ran.Load())

	assert.Equal(t, StateFailed, res.States["a"])
	assert.Equal(t, StateUpstreamFailed, res.States["b"])
	assert.Equal(t, StateUpstreamFailed, res.States["c"])
	assert.Equal(t, StateSuccess, res.States["side"])
}

func TestExecuteRetriesOnceAfterDelay(t *testing.T) {
	var attempts atomic.Int32
	var times []time.Time
	var retried []string

	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{
		ID:         "flaky",
		Retries:    1,
		RetryDelay: 20 * time.Millisecond,
		Run: func(context.Context) error {
			times = append(times, time.Now())
			if attempts.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}))

	var attemptErrs []error
	res, err := d.Execute(context.Background(), Hooks{
		OnAttempt: func(_ string, _ time.Duration, err error) { attemptErrs = append(attemptErrs, err) },
		OnRetry:   func(id string, _ int, _ error) { retried = append(retried, id) },
	})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, res.States["flaky"])
	assert.EqualValues(t, 2, attempts.Load())
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), 20*time.Millisecond)
	assert.Equal(t, []string{"flaky"}, retried)
	require.Len(t, attemptErrs, 2)
	assert.Error(t, attemptErrs[0])
	assert.NoError(t, attemptErrs[1])
}

func TestExecuteGivesUpAfterRetries(t *testing.T) {
	var attempts atomic.Int32

	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{
		ID:         "broken",
		Retries:    1,
		RetryDelay: time.Millisecond,
		Run: func(context.Context) error {
			attempts.Add(1)
			return errors.New("still broken")
		},
	}))

	_, err := d.Execute(context.Background(), Hooks{})
	assert.ErrorContains(t, err, "still broken")
	assert.EqualValues(t, 2, attempts.Load())
}

func TestExecuteAllowFailure(t *testing.T) {
	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{ID: "main", Run: noop}))
	require.NoError(t, d.Add(&Task{ID: "report", Run: func(context.Context) error { return errors.New("no db") }, AllowFailure: true}))
	require.NoError(t, d.Chain("main", "report"))

	res, err := d.Execute(context.Background(), Hooks{})
	require.NoError(t, err)
	assert.Equal(t, StateFailed, res.States["report"])
	assert.ErrorContains(t, res.Errors["report"], "no db")
}

func TestExecuteCanceledDuringRetryWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	d := NewDAG("test")
	require.NoError(t, d.Add(&Task{
		ID:         "slow-retry",
		Retries:    1,
		RetryDelay: time.Hour,
		Run: func(context.Context) error {
			cancel()
			return errors.New("first failure")
		},
	}))

	done := make(chan struct{})
	var err error
	go func() {
		_, err = d.Execute(ctx, Hooks{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("execute did not return after cancellation")
	}
	assert.ErrorContains(t, err, "first failure")
	assert.ErrorContains(t, err, "retry abandoned")
}
