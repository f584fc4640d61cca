// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package broker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/DealsBeam/PresentMon/lib/clock"
	"github.com/DealsBeam/PresentMon/lib/process"
)

// Broker is the Session & Parameter Broker: it tracks every connected
// client session, arbitrates their competing parameter requests into
// one effective value per parameter, and owns the Process Streaming
// Registry that multiplexes pid streams across sessions.
//
// All exported methods are safe for concurrent use.
type Broker struct {
	mu       sync.Mutex
	sessions map[string]*ClientSession
	nextRank uint64

	registry *Registry
	logger   *slog.Logger
	clock    clock.Clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// watchCancel holds the cancel function for each pid's liveness
	// watcher, so it can be stopped when the pid is no longer streamed
	// by anyone.
	watchCancel map[int]context.CancelFunc
}

// New creates a Broker. opener is used by the Process Streaming
// Registry to begin collection for a pid; logger and c (injected for
// deterministic tests) are threaded through to every subcomponent.
func New(opener SourceOpener, logger *slog.Logger, c clock.Clock) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		sessions:    make(map[string]*ClientSession),
		registry:    NewRegistry(opener),
		logger:      logger,
		clock:       c,
		ctx:         ctx,
		cancel:      cancel,
		watchCancel: make(map[int]context.CancelFunc),
	}
}

// Close stops every pid liveness watcher and waits for their
// goroutines to exit. It does not close any active stream handles;
// callers should Disconnect every session first if a full shutdown is
// wanted.
func (b *Broker) Close() {
	b.cancel()
	b.wg.Wait()
}

// RegisterSession creates and tracks a new client session, assigning
// it the next monotonic ordering rank.
func (b *Broker) RegisterSession(id string) *ClientSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextRank++
	session := newClientSession(id, b.nextRank)
	b.sessions[id] = session
	return session
}

// Session returns the session registered under id, or nil if none
// exists (including after disconnect).
func (b *Broker) Session(id string) *ClientSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[id]
}

// Disconnect removes a session, releasing every pid it referenced and
// withdrawing its parameter requests. graceful distinguishes a quit
// command from an abrupt rupture purely for logging; the cleanup is
// identical either way, per the bounded-convergence-lag requirement
// that abrupt loss must not leave stale arbitration state.
func (b *Broker) Disconnect(sessionID string, graceful bool) error {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	pids := session.TrackedPids()
	delete(b.sessions, sessionID)
	b.mu.Unlock()

	if !graceful {
		b.logger.Warn("session control channel ruptured", "session", sessionID)
	}

	for _, pid := range pids {
		b.untrackPidLocked(sessionID, pid)
	}
	return nil
}

// TelemetrySamplePeriodMs returns the currently arbitrated telemetry
// sampling period across all connected sessions.
func (b *Broker) TelemetrySamplePeriodMs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return arbitrateTelemetryPeriod(b.sessionList())
}

// ETWFlushPeriodMs returns the currently arbitrated ETW flush period
// across all connected sessions.
func (b *Broker) ETWFlushPeriodMs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return arbitrateETWFlushPeriod(b.sessionList())
}

func (b *Broker) sessionList() []*ClientSession {
	list := make([]*ClientSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		list = append(list, s)
	}
	return list
}

// TrackPid starts streaming pid on behalf of sessionID, opening the
// underlying trace source stream if no other session already
// references pid. Also starts a liveness watcher for pid if one is
// not already running, so an abrupt exit of the target process is
// detected as TargetLost rather than going unnoticed.
func (b *Broker) TrackPid(sessionID string, pid int) error {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	if err := b.registry.Start(pid, sessionID); err != nil {
		return err
	}

	b.mu.Lock()
	session.trackedPids[pid] = struct{}{}
	_, watching := b.watchCancel[pid]
	if !watching {
		watchCtx, watchCancel := context.WithCancel(b.ctx)
		b.watchCancel[pid] = watchCancel
		b.wg.Add(1)
		go b.watchTarget(watchCtx, pid)
	}
	b.mu.Unlock()
	return nil
}

// UntrackPid stops streaming pid on behalf of sessionID.
func (b *Broker) UntrackPid(sessionID string, pid int) error {
	b.mu.Lock()
	session, ok := b.sessions[sessionID]
	if ok {
		delete(session.trackedPids, pid)
	}
	b.mu.Unlock()
	return b.untrackPidLocked(sessionID, pid)
}

func (b *Broker) untrackPidLocked(sessionID string, pid int) error {
	err := b.registry.Stop(pid, sessionID)

	b.mu.Lock()
	if b.registry.RefCount(pid) == 0 {
		if cancel, ok := b.watchCancel[pid]; ok {
			cancel()
			delete(b.watchCancel, pid)
		}
	}
	b.mu.Unlock()
	return err
}

// watchTarget polls pid's liveness until it exits or the watch is
// cancelled (because every referencing session already untracked it).
// On an actual exit it force-untracks the pid from every remaining
// referrer, matching the "bounded convergence lag" requirement for
// TargetLost.
func (b *Broker) watchTarget(ctx context.Context, pid int) {
	defer b.wg.Done()
	watcher := process.NewWatcher(pid, b.clock, process.DefaultPollInterval)
	if err := watcher.Wait(ctx); err != nil {
		// Context cancelled: every referrer already untracked pid.
		return
	}

	b.logger.Warn("target process lost", "pid", pid)
	b.mu.Lock()
	var referrers []string
	for id, s := range b.sessions {
		if _, ok := s.trackedPids[pid]; ok {
			referrers = append(referrers, id)
			delete(s.trackedPids, pid)
			s.SetLastError(ErrorCodeTargetLost)
		}
	}
	delete(b.watchCancel, pid)
	b.mu.Unlock()

	for _, id := range referrers {
		b.registry.Stop(pid, id)
	}
}

