// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

// Command presentmon-service runs the multi-client frame telemetry
// broker: it accepts client connections on a control channel, compiles
// and arbitrates their requests, and streams gathered per-frame blobs
// back to each.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/DealsBeam/PresentMon/internal/broker"
	"github.com/DealsBeam/PresentMon/internal/control"
	"github.com/DealsBeam/PresentMon/lib/clock"
	"github.com/DealsBeam/PresentMon/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		controlPipe = flag.String("control-pipe", "/tmp/presentmon-control", "path of the control channel named pipe")
		verbose     = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opener := noopSourceOpener{}
	b := broker.New(opener, logger, clock.Real())
	defer b.Close()

	sink := newQueueSink()
	server := control.NewServer(b, sink, logger)

	listener, err := control.NewFIFOListener(*controlPipe)
	if err != nil {
		return fmt.Errorf("start control listener: %w", err)
	}
	defer listener.Close()

	logger.Info("presentmon-service listening", "controlPipe", *controlPipe)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		listener.Close()
		return nil
	case err := <-serveErr:
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return fmt.Errorf("control server stopped: %w", err)
	}
}

// noopSourceOpener stands in for the tracing source integration: this
// service's scope is the query compiler and multi-client broker, not
// the ETW/ftrace capture itself. A production deployment wires a real
// SourceOpener that starts actual frame-event capture for a pid.
type noopSourceOpener struct{}

func (noopSourceOpener) OpenStream(pid int) (broker.StreamHandle, error) {
	return noopStreamHandle{}, nil
}

type noopStreamHandle struct{}

func (noopStreamHandle) Close() error { return nil }

// queueSink is a minimal FrameSink: it holds whatever blobs were
// queued for a session until the next get-frames drains them. Nothing
// in this binary currently populates it since frame gathering is
// driven by the tracing source integration above; it exists so the
// control surface is complete and testable independent of that wiring.
type queueSink struct {
	mu     sync.Mutex
	queued map[string][][]byte
}

func newQueueSink() *queueSink {
	return &queueSink{queued: make(map[string][][]byte)}
}

func (s *queueSink) DrainFrames(sessionID string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	blobs := s.queued[sessionID]
	delete(s.queued, sessionID)
	return blobs
}

func (s *queueSink) Enqueue(sessionID string, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued[sessionID] = append(s.queued[sessionID], blob)
}
