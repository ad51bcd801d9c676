package engine

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultStaleAfter is how long a run may hold the lock before a later
// acquire is allowed to force recovery.
const DefaultStaleAfter = 120 * time.Second

// RunLock is the single-flight guard around run entry points. A second
// acquire while a run is in progress is rejected immediately rather than
// queued; a holder older than the staleness threshold is forcibly cleared so
// a crashed or hung run cannot block future ones.
type RunLock struct {
	mu         sync.Mutex
	running    bool
	startedAt  time.Time
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewRunLock builds a lock with the given staleness threshold. A non-positive
// threshold falls back to DefaultStaleAfter.
func NewRunLock(staleAfter time.Duration, logger *slog.Logger) *RunLock {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunLock{
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// TryAcquire attempts to take the lock without blocking. It returns false
// while a non-stale run is in progress.
func (l *RunLock) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.running {
		age := now.Sub(l.startedAt)
		if age < l.staleAfter {
			return false
		}
		l.logger.Warn("forcing recovery of stale run lock", "held_for", age, "threshold", l.staleAfter)
	}
	l.running = true
	l.startedAt = now
	return true
}

// Release clears the lock unconditionally.
func (l *RunLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
}

// Running reports whether a run currently holds the lock.
func (l *RunLock) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}
