// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package broker

// ClientSession is one connected client's registration state: its
// parameter requests (if any) and the set of pids it is streaming
// frame data for.
//
// orderingRank is assigned once, at registration, from the broker's
// monotonic counter. It never changes for the life of the session,
// which is what makes "first writer wins" arbitration well defined
// even as sessions come and go.
type ClientSession struct {
	ID           string
	orderingRank uint64

	telemetryPeriodMs *int
	etwFlushPeriodMs  *int

	trackedPids map[int]struct{}

	// closed is not set by Broker: Broker.Disconnect removes a session
	// from the broker outright (gracefully via quit, or abruptly on a
	// channel rupture), so it drops out of arbitration and registry
	// bookkeeping at once and its record is not kept.
	closed bool

	// lastError is the most recent error condition observed for this
	// session (an out-of-range request, a lost target pid, ...),
	// reported back to the client by the err-check command.
	lastError ErrorCode
}

func newClientSession(id string, rank uint64) *ClientSession {
	return &ClientSession{
		ID:           id,
		orderingRank: rank,
		trackedPids:  make(map[int]struct{}),
		lastError:    ErrorCodeNone,
	}
}

// SetLastError records the most recent error condition for this
// session, reported back by err-check.
func (s *ClientSession) SetLastError(code ErrorCode) {
	s.lastError = code
}

// LastError returns the most recent error condition recorded for this
// session, or ErrorCodeNone if none has occurred.
func (s *ClientSession) LastError() ErrorCode {
	return s.lastError
}

// RequestTelemetrySamplePeriod registers this session's desired
// telemetry sampling period. Returns an error if value is outside the
// valid range; the request is not applied when invalid.
func (s *ClientSession) RequestTelemetrySamplePeriod(valueMs int) error {
	if err := validateRange(ParameterTelemetrySamplePeriod, valueMs); err != nil {
		s.lastError = ErrorCodeOutOfRange
		return err
	}
	s.telemetryPeriodMs = &valueMs
	return nil
}

// RequestETWFlushPeriod registers this session's desired ETW flush
// period. Returns an error if value is outside the valid range; the
// request is not applied when invalid.
func (s *ClientSession) RequestETWFlushPeriod(valueMs int) error {
	if err := validateRange(ParameterETWFlushPeriod, valueMs); err != nil {
		s.lastError = ErrorCodeOutOfRange
		return err
	}
	s.etwFlushPeriodMs = &valueMs
	return nil
}

// ClearRequests withdraws this session's parameter requests, so it no
// longer participates in arbitration. Broker.Disconnect does not call
// it; removing the session from the broker has the same effect.
func (s *ClientSession) ClearRequests() {
	s.telemetryPeriodMs = nil
	s.etwFlushPeriodMs = nil
}

// TrackedPids returns the pids this session currently references.
func (s *ClientSession) TrackedPids() []int {
	pids := make([]int, 0, len(s.trackedPids))
	for pid := range s.trackedPids {
		pids = append(pids, pid)
	}
	return pids
}
