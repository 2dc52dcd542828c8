package mux

import (
	"sync"
	"testing"
	"time"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// A flush fires on every 8KiB/newline+50ms/100ms-idle output boundary,
// far more often than a genuine Agent Detector state transition. Only
// the changed branch in run() (the `if changed` block) may publish
// EventPaneStateChanged; flush's job is strictly Broadcast(outBuf).
func TestPoller_FlushDoesNotPublishSpuriousStateChange(t *testing.T) {
	sink := &captureSink{}
	m := NewManager(testLogger(), sink, 1000)

	_, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	if err := m.SendInput(paneID, "echo hello\n", false, true); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	// Give the poller several flush cycles' worth of time (idleFlushDelay
	// is 100ms) to settle and potentially mis-fire.
	time.Sleep(350 * time.Millisecond)

	for _, ev := range sink.snapshot() {
		if ev.Kind == EventPaneStateChanged && ev.Activity == "" {
			t.Fatalf("flush published a spurious empty-Activity PaneStateChanged event: %+v", ev)
		}
	}
}
