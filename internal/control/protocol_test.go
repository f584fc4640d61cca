// Copyright 2026 PresentMon Contributors
// SPDX-License-Identifier: MIT

package control

import (
	"bytes"
	"strings"
	"testing"
)

func TestCommandReaderStripsCarriageReturn(t *testing.T) {
	r := NewCommandReader(strings.NewReader("ping\r\nquit\r\n"))

	line, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand() error = %v", err)
	}
	if line != "ping" {
		t.Errorf("ReadCommand() = %q, want %q", line, "ping")
	}

	line, err = r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand() error = %v", err)
	}
	if line != "quit" {
		t.Errorf("ReadCommand() = %q, want %q", line, "quit")
	}
}

func TestCommandReaderReturnsEOF(t *testing.T) {
	r := NewCommandReader(strings.NewReader(""))
	_, err := r.ReadCommand()
	if err == nil {
		t.Fatal("ReadCommand() error = nil, want EOF")
	}
}

func TestWriteSimpleReply(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSimpleReply(&buf, "ping-ok"); err != nil {
		t.Fatalf("WriteSimpleReply() error = %v", err)
	}
	if got, want := buf.String(), "ping-ok\r\n"; got != want {
		t.Errorf("buf = %q, want %q", got, want)
	}
}

func TestWriteStructuredReplyFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteStructuredReply(&buf, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("WriteStructuredReply() error = %v", err)
	}
	want := `%%{{"a":1}}%%` + "\r\n"
	if got := buf.String(); got != want {
		t.Errorf("buf = %q, want %q", got, want)
	}
}
