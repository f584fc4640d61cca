// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package process

import (
	"context"
	"os"
	"syscall"
	"time"

	"github.com/DealsBeam/PresentMon/lib/clock"
)

// DefaultPollInterval is how often a Watcher checks target liveness.
// Short enough to converge within a few milliseconds of the process
// actually exiting, per the broker's TargetLost convergence bound.
const DefaultPollInterval = 2 * time.Millisecond

// Watcher polls a single target process id for liveness and reports
// when it has terminated. Unlike a wait() on a child process, the
// target pid is typically unrelated to this process (a tracked
// presenter), so liveness can only be observed by polling, not by
// blocking on an exit notification.
type Watcher struct {
	pid      int
	clock    clock.Clock
	interval time.Duration
}

// NewWatcher creates a Watcher for the given process id. clock is
// injected for deterministic tests; production code passes
// clock.Real(). interval of 0 uses DefaultPollInterval.
func NewWatcher(pid int, c clock.Clock, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Watcher{pid: pid, clock: c, interval: interval}
}

// Alive reports whether the target process still exists. On Linux this
// sends signal 0, which performs existence and permission checks
// without actually delivering a signal. An exited process that its
// parent has not yet reaped (a zombie) still exists and reports true.
func Alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}

// Wait blocks until the target process terminates or ctx is cancelled.
// Returns nil if the process terminated, or ctx.Err() if cancelled
// first. Polling rather than a wait-based primitive is the only
// portable option for a pid this process did not fork.
func (w *Watcher) Wait(ctx context.Context) error {
	if !Alive(w.pid) {
		return nil
	}
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !Alive(w.pid) {
				return nil
			}
		}
	}
}
