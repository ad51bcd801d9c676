package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/osbits/apiwatch/internal/engine"
	"github.com/osbits/apiwatch/internal/storage"
)

type blockingCheck struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func (c *blockingCheck) Name() string { return c.name }

func (c *blockingCheck) Run(ctx context.Context, exec *engine.Executor) engine.CheckResult {
	if c.started != nil {
		close(c.started)
	}
	if c.release != nil {
		<-c.release
	}
	return engine.FinishCheck(c.name, time.Now(), []engine.StepResult{{Name: "step", Status: engine.StatusPass}}, nil)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, store *storage.Store, checks ...engine.Check) *Service {
	t.Helper()
	runner := engine.NewRunner(nil, quietLogger())
	for _, c := range checks {
		if err := runner.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	lock := engine.NewRunLock(time.Minute, quietLogger())
	return New(runner, lock, store, quietLogger())
}

func TestRunAllRejectsConcurrentRun(t *testing.T) {
	check := &blockingCheck{name: "slow", started: make(chan struct{}), release: make(chan struct{})}
	svc := newService(t, nil, check)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := svc.RunAll(context.Background()); err != nil {
			t.Errorf("first run failed: %v", err)
		}
	}()

	<-check.started
	if _, err := svc.RunAll(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second run error = %v, want ErrBusy", err)
	}
	if _, err := svc.RunOne(context.Background(), "slow"); !errors.Is(err, ErrBusy) {
		t.Fatalf("run one during a run error = %v, want ErrBusy", err)
	}

	close(check.release)
	<-done

	if _, err := svc.RunAll(context.Background()); err != nil {
		t.Fatalf("run after release failed: %v", err)
	}
}

func TestRunAllRetainsLastReport(t *testing.T) {
	svc := newService(t, nil, &blockingCheck{name: "fast"})

	if svc.LastReport() != nil {
		t.Fatalf("no report expected before the first run")
	}

	first, err := svc.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if svc.LastReport().RunID != first.RunID {
		t.Fatalf("last report not retained")
	}

	second, err := svc.RunAll(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if svc.LastReport().RunID != second.RunID {
		t.Fatalf("a new run must supersede the previous report")
	}
}

func TestRunOneUnknownCheck(t *testing.T) {
	svc := newService(t, nil, &blockingCheck{name: "known"})
	if _, err := svc.RunOne(context.Background(), "unknown"); !errors.Is(err, ErrUnknownCheck) {
		t.Fatalf("error = %v, want ErrUnknownCheck", err)
	}
}

func TestRunAllPersistsReport(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}

	svc := newService(t, store, &blockingCheck{name: "fast"})
	report, err := svc.RunAll(context.Background())
	if err != nil {
		t.Fatalf("run all: %v", err)
	}

	stored, err := store.LatestReport(context.Background())
	if err != nil {
		t.Fatalf("load stored report: %v", err)
	}
	if stored == nil || stored.RunID != report.RunID {
		t.Fatalf("stored report = %+v, want run %s", stored, report.RunID)
	}
	var decoded engine.Report
	if err := json.Unmarshal(stored.Payload, &decoded); err != nil {
		t.Fatalf("decode stored payload: %v", err)
	}
	if decoded.Summary.Pass != 1 {
		t.Fatalf("decoded summary %+v", decoded.Summary)
	}
}

func TestNamesDoesNotContendWithRun(t *testing.T) {
	check := &blockingCheck{name: "slow", started: make(chan struct{}), release: make(chan struct{})}
	svc := newService(t, nil, check)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.RunAll(context.Background())
	}()
	<-check.started

	names := svc.Names()
	if len(names) != 1 || names[0] != "slow" {
		t.Fatalf("names = %v", names)
	}

	close(check.release)
	<-done
}
