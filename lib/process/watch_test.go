// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package process

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/DealsBeam/PresentMon/lib/clock"
)

func TestAliveSelf(t *testing.T) {
	if !Alive(os.Getpid()) {
		t.Fatal("Alive(self) = false, want true")
	}
}

func TestAliveNonexistentPid(t *testing.T) {
	// PID 1 always exists on a running system; use an implausibly
	// large pid that the OS will never assign.
	if Alive(1 << 30) {
		t.Fatal("Alive(huge pid) = true, want false")
	}
}

func TestWatcherWaitReturnsWhenProcessExits(t *testing.T) {
	cmd := exec.Command("sleep", "0.05")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep subprocess: %v", err)
	}
	pid := cmd.Process.Pid
	// Reap the child as soon as it exits: an unreaped child stays a
	// zombie, which Alive still reports as existing.
	go cmd.Wait()

	watcher := NewWatcher(pid, clock.Real(), time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := watcher.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}
}

func TestWatcherWaitRespectsContextCancellation(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep subprocess: %v", err)
	}
	defer func() {
		cmd.Process.Kill()
		cmd.Wait()
	}()

	watcher := NewWatcher(cmd.Process.Pid, clock.Real(), time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := watcher.Wait(ctx); err == nil {
		t.Fatal("Wait() = nil, want context deadline error")
	}
}
