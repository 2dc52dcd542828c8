package mux

import (
	"strings"
	"testing"
	"time"
)

func TestWatchdog_WritesMessagePeriodically(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	_, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	m.mu.Lock()
	pane := m.panes[paneID]
	m.mu.Unlock()

	w := StartWatchdog(pane, 50*time.Millisecond, "echo watchdog-tick")
	defer w.Stop()

	waitFor(t, 3*time.Second, func() bool {
		lines, _ := m.ReadPane(paneID, 50)
		for _, l := range lines {
			if strings.Contains(l, "watchdog-tick") {
				return true
			}
		}
		return false
	})
}

func TestWatchdog_StopIsIdempotent(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	_, _, paneID, _ := m.CreateSession("demo", []string{"sh"}, nil)
	defer m.ClosePane(paneID)

	m.mu.Lock()
	pane := m.panes[paneID]
	m.mu.Unlock()

	w := StartWatchdog(pane, time.Hour, "noop")
	w.Stop()
	w.Stop() // must not panic
}
