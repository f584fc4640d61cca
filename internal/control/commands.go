// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package control

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/DealsBeam/PresentMon/internal/broker"
	"github.com/DealsBeam/PresentMon/internal/frame"
	"github.com/DealsBeam/PresentMon/lib/codec"
)

// FrameSink supplies the gathered blobs queued for a session since its
// last get-frames call. The gather pipeline (frame.Compile plus
// frame.GatherToBlob, run against whatever cadence the arbitrated
// telemetry period implies) is wired in by the caller that owns the
// tracing source; this package only consumes its output.
type FrameSink interface {
	DrainFrames(sessionID string) [][]byte
}

// statusPayload is the JSON body of a structured status reply. Field
// names are the wire contract a client parses against and must match
// spec exactly: nsmStreamedPids, telemetryPeriodMs, etwFlushPeriodMs.
type statusPayload struct {
	SessionID         string `json:"sessionId"`
	TelemetryPeriodMs int    `json:"telemetryPeriodMs"`
	ETWFlushPeriodMs  int    `json:"etwFlushPeriodMs"`
	NsmStreamedPids   []int  `json:"nsmStreamedPids"`
}

// framesPayload is the JSON body of a structured get-frames reply.
// Frames are base64-encoded since a gathered blob is arbitrary binary
// data and the reply itself must stay valid JSON text.
type framesPayload struct {
	Status string   `json:"status"`
	Frames []string `json:"frames"`
}

// queryStore holds each session's most recently compiled frame query,
// keyed by session id. Compiling happens on the control goroutine that
// handles set-query; any gather loop consuming the result reads
// through Get.
type queryStore struct {
	mu   sync.Mutex
	byID map[string]*frame.FrameQuery
}

func newQueryStore() *queryStore {
	return &queryStore{byID: make(map[string]*frame.FrameQuery)}
}

func (qs *queryStore) set(sessionID string, q *frame.FrameQuery) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	qs.byID[sessionID] = q
}

// Get returns the most recently compiled query for sessionID, or nil
// if none has been set.
func (qs *queryStore) Get(sessionID string) *frame.FrameQuery {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	return qs.byID[sessionID]
}

func (qs *queryStore) forget(sessionID string) {
	qs.mu.Lock()
	defer qs.mu.Unlock()
	delete(qs.byID, sessionID)
}

// dispatcher routes one connection's command lines to handlers. It
// holds no network state of its own so it can be exercised directly
// in tests without a real connection.
type dispatcher struct {
	b       *broker.Broker
	sink    FrameSink
	session *broker.ClientSession
	queries *queryStore
	logger  *slog.Logger
}

// handle processes a single command line and returns the reply to
// write back verbatim (already including its own line terminator),
// and whether the connection should close after sending it.
func (d *dispatcher) handle(line string) (reply string, closeAfter bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false, fmt.Errorf("empty command")
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "ping":
		return "ping-ok\r\n", false, nil

	case "quit":
		return "quit-ok\r\n", true, nil

	case "status":
		return d.status()

	case "err-check":
		return fmt.Sprintf("err-check-ok:%s\r\n", d.session.LastError()), false, nil

	case "get-frames":
		return d.getFrames()

	case "track":
		return d.track(args)

	case "untrack":
		return d.untrack(args)

	case "set-telemetry-period":
		return d.setParameter(args, d.session.RequestTelemetrySamplePeriod, "set-telemetry-period")

	case "set-etw-flush-period":
		return d.setParameter(args, d.session.RequestETWFlushPeriod, "set-etw-flush-period")

	case "set-query":
		return d.setQuery(args)

	default:
		return fmt.Sprintf("unknown-command:%s\r\n", name), false, nil
	}
}

func (d *dispatcher) status() (string, bool, error) {
	payload := statusPayload{
		SessionID:         d.session.ID,
		TelemetryPeriodMs: d.b.TelemetrySamplePeriodMs(),
		ETWFlushPeriodMs:  d.b.ETWFlushPeriodMs(),
		NsmStreamedPids:   d.session.TrackedPids(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, err
	}
	return structuredOpen + string(body) + structuredClose, false, nil
}

func (d *dispatcher) getFrames() (string, bool, error) {
	var blobs [][]byte
	if d.sink != nil {
		blobs = d.sink.DrainFrames(d.session.ID)
	}
	frames := make([]string, len(blobs))
	for i, blob := range blobs {
		frames[i] = base64.StdEncoding.EncodeToString(blob)
	}
	payload := framesPayload{Status: "get-frames-ok", Frames: frames}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", false, err
	}
	return structuredOpen + string(body) + structuredClose, false, nil
}

// wireQueryElement is the CBOR-encoded form of a query element a
// client sends with set-query. It mirrors frame.QueryElement's input
// fields (Metric/DeviceID/ArrayIndex) without the compiler-assigned
// output fields, which the client has no reason to send.
type wireQueryElement struct {
	Metric     uint32 `cbor:"metric"`
	DeviceID   uint32 `cbor:"deviceId"`
	ArrayIndex uint32 `cbor:"arrayIndex"`
}

// setQuery decodes a base64'd, CBOR-encoded list of query elements,
// compiles it with the frame package, and stores the result for this
// session so a later get-frames (once the gather pipeline is wired to
// a real tracing source) knows what to gather.
func (d *dispatcher) setQuery(args []string) (string, bool, error) {
	if len(args) != 1 {
		return "set-query-err:expected one argument\r\n", false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(args[0])
	if err != nil {
		return fmt.Sprintf("set-query-err:%v\r\n", err), false, nil
	}

	var wire []wireQueryElement
	if err := codec.Unmarshal(raw, &wire); err != nil {
		return fmt.Sprintf("set-query-err:%v\r\n", err), false, nil
	}

	elements := make([]frame.QueryElement, len(wire))
	for i, w := range wire {
		elements[i] = frame.QueryElement{
			Metric:     frame.MetricID(w.Metric),
			DeviceID:   w.DeviceID,
			ArrayIndex: w.ArrayIndex,
		}
	}

	logger := d.logger
	if logger == nil {
		logger = slog.Default()
	}
	compiled, err := frame.Compile(logger, elements)
	if err != nil {
		return fmt.Sprintf("set-query-err:%v\r\n", err), false, nil
	}
	d.queries.set(d.session.ID, compiled)
	return fmt.Sprintf("set-query-ok:%d\r\n", compiled.BlobSize), false, nil
}

func (d *dispatcher) track(args []string) (string, bool, error) {
	pid, err := parsePid(args)
	if err != nil {
		return fmt.Sprintf("track-err:%v\r\n", err), false, nil
	}
	if err := d.b.TrackPid(d.session.ID, pid); err != nil {
		return fmt.Sprintf("track-err:%v\r\n", err), false, nil
	}
	return "track-ok\r\n", false, nil
}

func (d *dispatcher) untrack(args []string) (string, bool, error) {
	pid, err := parsePid(args)
	if err != nil {
		return fmt.Sprintf("untrack-err:%v\r\n", err), false, nil
	}
	if err := d.b.UntrackPid(d.session.ID, pid); err != nil {
		return fmt.Sprintf("untrack-err:%v\r\n", err), false, nil
	}
	return "untrack-ok\r\n", false, nil
}

func (d *dispatcher) setParameter(args []string, apply func(int) error, name string) (string, bool, error) {
	if len(args) != 1 {
		return fmt.Sprintf("%s-err:expected one argument\r\n", name), false, nil
	}
	value, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Sprintf("%s-err:%v\r\n", name, err), false, nil
	}
	if err := apply(value); err != nil {
		return fmt.Sprintf("%s-err:%v\r\n", name, err), false, nil
	}
	return fmt.Sprintf("%s-ok\r\n", name), false, nil
}

func parsePid(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one pid argument")
	}
	return strconv.Atoi(args[0])
}
