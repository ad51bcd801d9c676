package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Check is one independently runnable probe. Implementations own their whole
// lifecycle: pre-run cleanup of leftovers, step recording, and guaranteed
// cleanup of anything they created. They talk to the platform only through
// the supplied Executor and never write to shared state.
type Check interface {
	Name() string
	Run(ctx context.Context, exec *Executor) CheckResult
}

// Runner executes registered checks strictly sequentially, in registration
// order, isolating each check's failures from the rest of the run.
type Runner struct {
	exec   *Executor
	checks []Check
	byName map[string]Check
	logger *slog.Logger
}

// NewRunner builds a runner around the given executor.
func NewRunner(exec *Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		exec:   exec,
		byName: map[string]Check{},
		logger: logger,
	}
}

// Register appends a check to the run order. Names must be unique.
func (r *Runner) Register(c Check) error {
	name := c.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("duplicate check %q", name)
	}
	r.checks = append(r.checks, c)
	r.byName[name] = c
	return nil
}

// Names lists registered check names in registration order.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.checks))
	for _, c := range r.checks {
		names = append(names, c.Name())
	}
	return names
}

// RunAll executes every registered check in order and assembles the report.
// Checks never run concurrently: lifecycle checks create fixed-name singleton
// resources and must not collide with themselves.
func (r *Runner) RunAll(ctx context.Context) Report {
	start := time.Now()
	results := make([]CheckResult, 0, len(r.checks))
	for _, c := range r.checks {
		result := r.runIsolated(ctx, c)
		r.logger.Info("check finished", "check", result.Name, "status", result.Status, "duration_ms", result.DurationMs)
		results = append(results, result)
	}
	return Report{
		RunID:       uuid.NewString(),
		GeneratedAt: start.UTC(),
		DurationMs:  time.Since(start).Milliseconds(),
		Summary:     Summarize(results),
		Checks:      results,
	}
}

// RunOne executes a single named check with the same isolation as RunAll.
// The second return is false when no check has that name.
func (r *Runner) RunOne(ctx context.Context, name string) (CheckResult, bool) {
	c, ok := r.byName[name]
	if !ok {
		return CheckResult{}, false
	}
	result := r.runIsolated(ctx, c)
	r.logger.Info("check finished", "check", result.Name, "status", result.Status, "duration_ms", result.DurationMs)
	return result, true
}

// runIsolated converts any panic escaping a check into a synthetic fail
// result so one broken check cannot abort or corrupt the run.
func (r *Runner) runIsolated(ctx context.Context, c Check) (result CheckResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("check panicked", "check", c.Name(), "panic", rec)
			result = CheckResult{
				Name:       c.Name(),
				Status:     StatusFail,
				DurationMs: time.Since(start).Milliseconds(),
				Error:      fmt.Sprintf("check panicked: %v", rec),
			}
		}
	}()
	return c.Run(ctx, r.exec)
}
