// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package broker

import "sync"

// StreamHandle is the tracing source's live connection to one target
// process. Closing it stops collection for that pid.
type StreamHandle interface {
	Close() error
}

// SourceOpener begins collection for a pid. It is the registry's only
// dependency on the tracing source, which this package does not
// itself implement.
type SourceOpener interface {
	OpenStream(pid int) (StreamHandle, error)
}

// streamedPid tracks which sessions currently reference a pid's
// stream and the underlying handle to close once the last one
// dereferences it.
type streamedPid struct {
	handle StreamHandle
	refs   map[string]struct{}
}

// Registry is the Process Streaming Registry: it maps each streamed
// pid to the set of sessions referring to it, opening the underlying
// trace source stream on the first reference and closing it on the
// last.
type Registry struct {
	mu     sync.Mutex
	opener SourceOpener
	pids   map[int]*streamedPid
}

// NewRegistry creates a Registry that opens new pid streams through
// opener.
func NewRegistry(opener SourceOpener) *Registry {
	return &Registry{opener: opener, pids: make(map[int]*streamedPid)}
}

// Start adds sessionID as a referrer of pid, opening the underlying
// stream if this is the first referrer. Calling Start again for a
// pid/session pair already tracked is a no-op (idempotent).
func (r *Registry) Start(pid int, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pids[pid]
	if !ok {
		handle, err := r.opener.OpenStream(pid)
		if err != nil {
			return &SourceInitFailureError{Pid: pid, Err: err}
		}
		entry = &streamedPid{handle: handle, refs: make(map[string]struct{})}
		r.pids[pid] = entry
	}
	entry.refs[sessionID] = struct{}{}
	return nil
}

// Stop removes sessionID as a referrer of pid. If sessionID was the
// last referrer, the underlying stream is closed and the pid is
// dropped from the registry. Calling Stop for a pid/session pair that
// is not tracked is a no-op (idempotent).
func (r *Registry) Stop(pid int, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pids[pid]
	if !ok {
		return nil
	}
	delete(entry.refs, sessionID)
	if len(entry.refs) == 0 {
		delete(r.pids, pid)
		return entry.handle.Close()
	}
	return nil
}

// StopAll removes sessionID as a referrer of every pid in pids,
// closing any stream whose last referrer was this session.
// Broker.Disconnect does not call it; it releases each pid through
// the broker's own untrack path.
func (r *Registry) StopAll(sessionID string, pids []int) error {
	var firstErr error
	for _, pid := range pids {
		if err := r.Stop(pid, sessionID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ActivePids returns every pid currently streamed, in no particular
// order.
func (r *Registry) ActivePids() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pids := make([]int, 0, len(r.pids))
	for pid := range r.pids {
		pids = append(pids, pid)
	}
	return pids
}

// RefCount returns how many sessions currently reference pid. Zero
// means the pid is not streamed.
func (r *Registry) RefCount(pid int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pids[pid]
	if !ok {
		return 0
	}
	return len(entry.refs)
}
