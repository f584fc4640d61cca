// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package broker

import "fmt"

// ErrorCode is the closed set of error conditions a client can query
// via the control channel's err-check command. Values are the literal
// tokens written after "err-check-ok:" on the wire, so renaming a
// constant changes the protocol — treat these as frozen.
type ErrorCode string

const (
	ErrorCodeNone           ErrorCode = "OK"
	ErrorCodeOutOfRange     ErrorCode = "OUT_OF_RANGE"
	ErrorCodeUnknownMetric  ErrorCode = "UNKNOWN_METRIC"
	ErrorCodeTargetLost     ErrorCode = "TARGET_LOST"
	ErrorCodeChannelRupture ErrorCode = "CHANNEL_RUPTURE"
	ErrorCodeSourceInitFail ErrorCode = "SOURCE_INIT_FAILURE"
)

// OutOfRangeError is returned when a session registers a parameter
// request (telemetry sampling period, ETW flush period) outside the
// range the broker accepts.
type OutOfRangeError struct {
	Parameter string
	Value     int
	Min       int
	Max       int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s=%d out of range [%d, %d]", e.Parameter, e.Value, e.Min, e.Max)
}

func (e *OutOfRangeError) Code() ErrorCode { return ErrorCodeOutOfRange }

// UnknownMetricError describes a query element naming a metric the
// frame compiler does not recognize. The compiler itself logs and
// skips such elements; set-query does not record this error or its
// code against the session, so err-check does not report it.
type UnknownMetricError struct {
	Metric uint32
}

func (e *UnknownMetricError) Error() string {
	return fmt.Sprintf("unknown metric id %d", e.Metric)
}

func (e *UnknownMetricError) Code() ErrorCode { return ErrorCodeUnknownMetric }

// TargetLostError is recorded against a streamed pid when its process
// watcher observes the target has exited without the owning session(s)
// explicitly stopping the stream.
type TargetLostError struct {
	Pid int
}

func (e *TargetLostError) Error() string {
	return fmt.Sprintf("target process %d is no longer running", e.Pid)
}

func (e *TargetLostError) Code() ErrorCode { return ErrorCodeTargetLost }

// ChannelRuptureError describes a session whose control channel was
// observed closed or broken without a preceding quit command.
// Broker.Disconnect logs such a rupture and removes the session; it
// does not record this error or its code.
type ChannelRuptureError struct {
	SessionID string
}

func (e *ChannelRuptureError) Error() string {
	return fmt.Sprintf("session %s control channel ruptured", e.SessionID)
}

func (e *ChannelRuptureError) Code() ErrorCode { return ErrorCodeChannelRupture }

// SourceInitFailureError wraps a failure to begin streaming a pid's
// frame events from the tracing source.
type SourceInitFailureError struct {
	Pid int
	Err error
}

func (e *SourceInitFailureError) Error() string {
	return fmt.Sprintf("failed to initialize tracing source for pid %d: %v", e.Pid, e.Err)
}

func (e *SourceInitFailureError) Unwrap() error { return e.Err }

func (e *SourceInitFailureError) Code() ErrorCode { return ErrorCodeSourceInitFail }
