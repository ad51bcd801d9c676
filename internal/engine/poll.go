package engine

import (
	"context"
	"fmt"
	"time"
)

// PollOutcome reports how a bounded retry loop ended. Final and FinalErr come
// from the last attempt, whether or not it was terminal.
type PollOutcome[T any] struct {
	Final           T
	FinalErr        error
	TerminalReached bool
	Attempts        int
	Elapsed         time.Duration
}

// PollUntil repeatedly sleeps interval then invokes op until isTerminal holds
// or the budget is exhausted. It never starts an attempt that cannot be
// accounted for within the budget plus at most one interval of slack.
//
// Attempt failures do not stop the loop; they count as a non-terminal attempt
// unless isTerminal decides otherwise. Context cancellation ends the loop
// early with TerminalReached=false.
func PollUntil[T any](ctx context.Context, op func(context.Context) (T, error), isTerminal func(T, error) bool, interval, budget time.Duration) PollOutcome[T] {
	var out PollOutcome[T]
	start := time.Now()
	for {
		elapsed := time.Since(start)
		if elapsed+interval > budget {
			out.Elapsed = elapsed
			return out
		}
		select {
		case <-ctx.Done():
			out.FinalErr = ctx.Err()
			out.Elapsed = time.Since(start)
			return out
		case <-time.After(interval):
		}
		out.Final, out.FinalErr = op(ctx)
		out.Attempts++
		if isTerminal(out.Final, out.FinalErr) {
			out.TerminalReached = true
			out.Elapsed = time.Since(start)
			return out
		}
	}
}

// Step folds a whole polling phase into one StepResult. When the terminal
// state was reached, verdict decides whether it was the desired one.
func (o PollOutcome[T]) Step(name string, verdict func(final T) error) StepResult {
	step := StepResult{Name: name, DurationMs: o.Elapsed.Milliseconds()}
	if !o.TerminalReached {
		step.Status = StatusFail
		step.Error = fmt.Sprintf("no terminal state after %d attempts in %s", o.Attempts, o.Elapsed.Round(time.Millisecond))
		if o.FinalErr != nil {
			step.Error += fmt.Sprintf(" (last error: %v)", o.FinalErr)
		}
		return step
	}
	if err := verdict(o.Final); err != nil {
		step.Status = StatusFail
		step.Error = err.Error()
		step.Detail = fmt.Sprintf("%d attempts", o.Attempts)
		return step
	}
	step.Status = StatusPass
	step.Detail = fmt.Sprintf("terminal after %d attempts", o.Attempts)
	return step
}
