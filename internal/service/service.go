// Package service wires the check runner, the single-flight run lock, the
// last-report slot and optional persistence into the surface the host process
// exposes over HTTP or a schedule.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/osbits/apiwatch/internal/engine"
	"github.com/osbits/apiwatch/internal/storage"
)

// ErrBusy signals that a run is already in progress. It reflects caller
// timing, not platform health: callers should report it as a distinct busy
// outcome, never as a check failure.
var ErrBusy = errors.New("a run is already in progress")

// ErrUnknownCheck signals a RunOne request for an unregistered name.
var ErrUnknownCheck = errors.New("unknown check")

// Service owns the run entry points. The lock wraps exactly RunAll and
// RunOne; listing names and reading the last report never contend with a run.
type Service struct {
	runner *engine.Runner
	lock   *engine.RunLock
	store  *storage.Store
	logger *slog.Logger

	mu   sync.Mutex
	last *engine.Report
}

// New builds a Service. The store may be nil when persistence is disabled.
func New(runner *engine.Runner, lock *engine.RunLock, store *storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner: runner,
		lock:   lock,
		store:  store,
		logger: logger,
	}
}

// RunAll executes every registered check and retains the resulting report as
// the last known run. A concurrent run request gets ErrBusy immediately.
func (s *Service) RunAll(ctx context.Context) (*engine.Report, error) {
	if !s.lock.TryAcquire() {
		return nil, ErrBusy
	}
	defer s.lock.Release()

	report := s.runner.RunAll(ctx)
	s.logger.Info("run complete",
		"run_id", report.RunID,
		"pass", report.Summary.Pass,
		"fail", report.Summary.Fail,
		"warn", report.Summary.Warn,
		"skip", report.Summary.Skip,
		"duration_ms", report.DurationMs)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.persist(ctx, &report)
	return &report, nil
}

// RunOne executes a single named check under the same lock discipline.
func (s *Service) RunOne(ctx context.Context, name string) (*engine.CheckResult, error) {
	if !s.lock.TryAcquire() {
		return nil, ErrBusy
	}
	defer s.lock.Release()

	result, ok := s.runner.RunOne(ctx, name)
	if !ok {
		return nil, ErrUnknownCheck
	}
	return &result, nil
}

// LastReport returns the most recent report, or nil before the first run.
func (s *Service) LastReport() *engine.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Names lists registered check names in registration order.
func (s *Service) Names() []string {
	return s.runner.Names()
}

func (s *Service) persist(ctx context.Context, report *engine.Report) {
	if s.store == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		s.logger.Error("encode report for storage", "run_id", report.RunID, "error", err)
		return
	}
	if err := s.store.SaveReport(ctx, report.RunID, report.GeneratedAt, payload); err != nil {
		s.logger.Error("persist report", "run_id", report.RunID, "error", err)
	}
}
