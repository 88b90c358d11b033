package idfy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedWaits struct {
	waits []time.Duration
}

func (r *recordedWaits) wait(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func newTestPoller(rec *recordedWaits) *Poller {
	return &Poller{InitialDelay: 5 * time.Second, RetryDelay: 3 * time.Second, wait: rec.wait}
}

func scripted(results ...Result) (FetchFunc, *int) {
	calls := 0
	return func(ctx context.Context, attempt int) (Result, error) {
		calls++
		if attempt != calls {
			return Result{}, errors.New("attempt numbering out of order")
		}
		return results[calls-1], nil
	}, &calls
}

var (
	completedResult = NewResult(map[string]any{"status": "completed"})
	failedResult    = NewResult(map[string]any{"status": "failed", "message": "first"})
)

func TestPollerStopsAfterSuccessfulFirstPoll(t *testing.T) {
	rec := &recordedWaits{}
	fetch, calls := scripted(completedResult)

	out, err := newTestPoller(rec).Run(context.Background(), fetch)

	require.NoError(t, err)
	assert.Equal(t, 1, *calls)
	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, []time.Duration{5 * time.Second}, rec.waits)
	assert.Equal(t, []string{"submitted", "polled_once", "final"}, out.Trace)
	assert.False(t, out.Result.Failed())
}

func TestPollerRetriesExactlyOnce(t *testing.T) {
	rec := &recordedWaits{}
	secondFailure := NewResult(map[string]any{"status": "failed", "message": "second"})
	fetch, calls := scripted(failedResult, secondFailure, completedResult)

	out, err := newTestPoller(rec).Run(context.Background(), fetch)

	require.NoError(t, err)
	assert.Equal(t, 2, *calls, "no third poll even though the retry failed")
	assert.Equal(t, []time.Duration{5 * time.Second, 3 * time.Second}, rec.waits)
	assert.Equal(t, []string{"submitted", "polled_once", "retried_once", "final"}, out.Trace)
	assert.Equal(t, "second", out.Result.Message())
}

func TestPollerReturnsRetriedSuccess(t *testing.T) {
	rec := &recordedWaits{}
	fetch, calls := scripted(failedResult, completedResult)

	out, err := newTestPoller(rec).Run(context.Background(), fetch)

	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
	assert.False(t, out.Result.Failed())
}

func TestPollerRetriesEmptyResult(t *testing.T) {
	rec := &recordedWaits{}
	empty, err := Normalize([]byte("[]"))
	require.NoError(t, err)
	fetch, calls := scripted(empty, completedResult)

	_, err = newTestPoller(rec).Run(context.Background(), fetch)

	require.NoError(t, err)
	assert.Equal(t, 2, *calls)
}

func TestPollerPropagatesFetchError(t *testing.T) {
	rec := &recordedWaits{}
	boom := errors.New("connection refused")
	calls := 0

	out, err := newTestPoller(rec).Run(context.Background(), func(ctx context.Context, attempt int) (Result, error) {
		calls++
		return Result{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
}

func TestPollerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := NewPoller(time.Hour, time.Hour).Run(ctx, func(ctx context.Context, attempt int) (Result, error) {
		calls++
		return completedResult, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestSleepContextZeroDelay(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), 0))
}
