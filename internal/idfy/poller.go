package idfy

import (
	"context"
	"time"
)

type pollState int

const (
	stateSubmitted pollState = iota
	statePolledOnce
	stateRetriedOnce
	stateFinal
)

func (s pollState) String() string {
	switch s {
	case stateSubmitted:
		return "submitted"
	case statePolledOnce:
		return "polled_once"
	case stateRetriedOnce:
		return "retried_once"
	case stateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// FetchFunc performs one poll. attempt is 1 for the first poll, 2 for the retry.
type FetchFunc func(ctx context.Context, attempt int) (Result, error)

// PollOutcome is what the poller ended with.
type PollOutcome struct {
	Result   Result
	Attempts int
	// Trace lists the states visited, ending with "final".
	Trace []string
}

// Poller waits a fixed delay, polls once and, only when that result is
// failed, waits a second fixed delay and polls exactly once more. The last
// polled result is final either way.
type Poller struct {
	InitialDelay time.Duration
	RetryDelay   time.Duration

	wait func(ctx context.Context, d time.Duration) error
}

// NewPoller builds a poller with real timers.
func NewPoller(initialDelay, retryDelay time.Duration) *Poller {
	return &Poller{InitialDelay: initialDelay, RetryDelay: retryDelay, wait: sleepContext}
}

// Run drives the state machine to its final state.
func (p *Poller) Run(ctx context.Context, fetch FetchFunc) (PollOutcome, error) {
	out := PollOutcome{}
	state := stateSubmitted
	for {
		out.Trace = append(out.Trace, state.String())
		if state == stateFinal {
			return out, nil
		}
		next, err := p.step(ctx, state, &out, fetch)
		if err != nil {
			return out, err
		}
		state = next
	}
}

func (p *Poller) step(ctx context.Context, state pollState, out *PollOutcome, fetch FetchFunc) (pollState, error) {
	switch state {
	case stateSubmitted:
		if err := p.sleep(ctx, p.InitialDelay); err != nil {
			return stateFinal, err
		}
		return statePolledOnce, p.poll(ctx, out, fetch)
	case statePolledOnce:
		if !out.Result.Failed() {
			return stateFinal, nil
		}
		if err := p.sleep(ctx, p.RetryDelay); err != nil {
			return stateFinal, err
		}
		return stateRetriedOnce, p.poll(ctx, out, fetch)
	default:
		return stateFinal, nil
	}
}

func (p *Poller) poll(ctx context.Context, out *PollOutcome, fetch FetchFunc) error {
	out.Attempts++
	result, err := fetch(ctx, out.Attempts)
	if err != nil {
		return err
	}
	out.Result = result
	return nil
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	if p.wait == nil {
		return sleepContext(ctx, d)
	}
	return p.wait(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
