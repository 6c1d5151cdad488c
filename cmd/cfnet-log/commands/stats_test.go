package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cfnet-project/cfnet-go/pkg/log"
)

func TestStatsAggregation(t *testing.T) {
	s := newStats()
	for _, e := range sampleEvents() {
		s.add(e)
	}

	if s.TotalEvents != 5 {
		t.Errorf("TotalEvents = %d, want 5", s.TotalEvents)
	}
	if s.EventsByLayer[log.LayerIPC] != 2 || s.EventsByLayer[log.LayerTransport] != 2 {
		t.Errorf("EventsByLayer = %v", s.EventsByLayer)
	}
	if s.Retries != 1 || s.Errors != 1 {
		t.Errorf("Retries = %d, Errors = %d", s.Retries, s.Errors)
	}

	ch := s.Connections["chan-aaaa-1111"]
	if ch == nil {
		t.Fatal("missing channel stats")
	}
	if ch.Messages != 1 || ch.Handles != 1 || ch.LastState != "OPEN" || ch.PID != 100 {
		t.Errorf("channel stats = %+v", ch)
	}

	sess := s.Connections["sess-bbbb-2222"]
	if sess == nil || sess.Remote != "127.0.0.1:5308" {
		t.Errorf("session stats = %+v", sess)
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	output := buf.String()

	for _, want := range []string{
		"Total Events: 5",
		"IPC:",
		"OWNERSHIP:",
		"Connections: 2",
		"[chan-aaa] 3 events",
		"Messages: 1, handles: 1",
		"Remote: 127.0.0.1:5308",
		"Retries: 1",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunStatsEmpty(t *testing.T) {
	path := createTestLogFile(t, nil)

	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Total Events: 0") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}
