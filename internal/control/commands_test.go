// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package control

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/DealsBeam/PresentMon/internal/broker"
	"github.com/DealsBeam/PresentMon/internal/frame"
	"github.com/DealsBeam/PresentMon/lib/clock"
	"github.com/DealsBeam/PresentMon/lib/codec"
)

type stubOpener struct{}

func (stubOpener) OpenStream(pid int) (broker.StreamHandle, error) {
	return stubHandle{}, nil
}

type stubHandle struct{}

func (stubHandle) Close() error { return nil }

type stubSink struct {
	queued map[string][][]byte
}

func (s *stubSink) DrainFrames(sessionID string) [][]byte {
	blobs := s.queued[sessionID]
	delete(s.queued, sessionID)
	return blobs
}

func testDispatcher(t *testing.T) *dispatcher {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := broker.New(stubOpener{}, logger, clock.Real())
	session := b.RegisterSession("s1")
	return &dispatcher{
		b:       b,
		sink:    &stubSink{queued: make(map[string][][]byte)},
		session: session,
		queries: newQueryStore(),
		logger:  logger,
	}
}

func TestDispatchPing(t *testing.T) {
	d := testDispatcher(t)
	reply, closeAfter, err := d.handle("ping")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "ping-ok\r\n" {
		t.Errorf("reply = %q, want %q", reply, "ping-ok\r\n")
	}
	if closeAfter {
		t.Error("closeAfter = true, want false for ping")
	}
}

func TestDispatchQuitClosesConnection(t *testing.T) {
	d := testDispatcher(t)
	reply, closeAfter, err := d.handle("quit")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "quit-ok\r\n" {
		t.Errorf("reply = %q, want %q", reply, "quit-ok\r\n")
	}
	if !closeAfter {
		t.Error("closeAfter = false, want true for quit")
	}
}

func TestDispatchStatusIsStructuredJSON(t *testing.T) {
	d := testDispatcher(t)
	reply, _, err := d.handle("status")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if !strings.HasPrefix(reply, structuredOpen) || !strings.HasSuffix(reply, structuredClose) {
		t.Fatalf("reply = %q, want framed with %q/%q", reply, structuredOpen, structuredClose)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(reply, structuredOpen), structuredClose)
	var payload statusPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("status body did not parse as JSON: %v", err)
	}
	if payload.TelemetryPeriodMs != broker.DefaultTelemetrySamplePeriodMs {
		t.Errorf("TelemetryPeriodMs = %d, want default %d", payload.TelemetryPeriodMs, broker.DefaultTelemetrySamplePeriodMs)
	}
	if payload.NsmStreamedPids == nil || len(payload.NsmStreamedPids) != 0 {
		t.Errorf("NsmStreamedPids = %v, want empty slice", payload.NsmStreamedPids)
	}
}

func TestDispatchErrCheckDefaultsToOK(t *testing.T) {
	d := testDispatcher(t)
	reply, _, err := d.handle("err-check")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "err-check-ok:OK\r\n" {
		t.Errorf("reply = %q, want %q", reply, "err-check-ok:OK\r\n")
	}
}

func TestDispatchSetTelemetryPeriodOutOfRangeReportedByErrCheck(t *testing.T) {
	d := testDispatcher(t)
	reply, _, err := d.handle("set-telemetry-period 999999")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if !strings.HasPrefix(reply, "set-telemetry-period-err:") {
		t.Fatalf("reply = %q, want an err reply for an out-of-range value", reply)
	}

	reply, _, err = d.handle("err-check")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "err-check-ok:OUT_OF_RANGE\r\n" {
		t.Errorf("reply = %q, want %q", reply, "err-check-ok:OUT_OF_RANGE\r\n")
	}
}

func TestDispatchTrackAndUntrack(t *testing.T) {
	d := testDispatcher(t)
	reply, _, err := d.handle("track 4242")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "track-ok\r\n" {
		t.Fatalf("reply = %q, want %q", reply, "track-ok\r\n")
	}

	reply, _, err = d.handle("untrack 4242")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "untrack-ok\r\n" {
		t.Fatalf("reply = %q, want %q", reply, "untrack-ok\r\n")
	}
}

func TestDispatchGetFramesEmptyWhenNothingQueued(t *testing.T) {
	d := testDispatcher(t)
	reply, _, err := d.handle("get-frames")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(reply, structuredOpen), structuredClose)
	var payload framesPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("get-frames body did not parse as JSON: %v", err)
	}
	if len(payload.Frames) != 0 {
		t.Errorf("len(Frames) = %d, want 0", len(payload.Frames))
	}
	if payload.Status != "get-frames-ok" {
		t.Errorf("Status = %q, want %q", payload.Status, "get-frames-ok")
	}
}

func TestDispatchSetQueryCompilesAndStores(t *testing.T) {
	d := testDispatcher(t)

	wire := []wireQueryElement{{Metric: uint32(frame.MetricPresentQpc)}}
	raw, err := codec.Marshal(wire)
	if err != nil {
		t.Fatalf("codec.Marshal() error = %v", err)
	}
	arg := base64.StdEncoding.EncodeToString(raw)

	reply, _, err := d.handle("set-query " + arg)
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if !strings.HasPrefix(reply, "set-query-ok:") {
		t.Fatalf("reply = %q, want set-query-ok prefix", reply)
	}

	if q := d.queries.Get(d.session.ID); q == nil {
		t.Fatal("queries.Get() = nil, want compiled query stored for session")
	} else if len(q.Commands) != 1 {
		t.Errorf("len(Commands) = %d, want 1", len(q.Commands))
	}
}

func TestDispatchSetQueryRejectsInvalidBase64(t *testing.T) {
	d := testDispatcher(t)
	reply, _, err := d.handle("set-query not-base64!!!")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if !strings.HasPrefix(reply, "set-query-err:") {
		t.Fatalf("reply = %q, want set-query-err prefix", reply)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := testDispatcher(t)
	reply, closeAfter, err := d.handle("frobnicate")
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if reply != "unknown-command:frobnicate\r\n" {
		t.Errorf("reply = %q, want %q", reply, "unknown-command:frobnicate\r\n")
	}
	if closeAfter {
		t.Error("closeAfter = true, want false for unknown command")
	}
}
