package mux

import (
	"log/slog"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestManager_CreateSessionSpawnsDefaultWindowAndPane(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)

	sessionID, windowID, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if sessionID == "" || windowID == "" || paneID == "" {
		t.Fatal("expected non-empty ids")
	}

	windows, err := m.ListWindows(sessionID)
	if err != nil || len(windows) != 1 {
		t.Fatalf("ListWindows = %v, %v", windows, err)
	}
	panes, err := m.ListPanesInWindow(windowID)
	if err != nil || len(panes) != 1 {
		t.Fatalf("ListPanesInWindow = %v, %v", panes, err)
	}

	_ = m.ClosePane(paneID)
}

func TestManager_SendInputAndReadBack(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	_, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := m.SendInput(paneID, "echo hi", true, false); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		lines, _ := m.ReadPane(paneID, 50)
		for _, l := range lines {
			if strings.Contains(l, "hi") {
				return true
			}
		}
		return false
	})

	_ = m.ClosePane(paneID)
}

func TestManager_CreatePane_SplitsWindow(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	sessionID, windowID, _, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	paneID, err := m.CreatePane(sessionID, windowID, Vertical, []string{"sh"}, "", nil, false)
	if err != nil {
		t.Fatalf("CreatePane: %v", err)
	}

	panes, _ := m.ListPanesInWindow(windowID)
	if len(panes) != 2 {
		t.Fatalf("expected 2 panes after split, got %d", len(panes))
	}

	_ = m.ClosePane(paneID)
}

func TestManager_ClosePane_CascadesToSessionViaCleanupLoop(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	sessionID, _, paneID, err := m.CreateSession("demo", []string{"sh", "-c", "exit 0"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	_ = paneID

	waitFor(t, 3*time.Second, func() bool {
		m.mu.Lock()
		_, ok := m.sessions[sessionID]
		m.mu.Unlock()
		return !ok
	})
}

func TestManager_ResolveSession_AmbiguousByName(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	_, _, p1, _ := m.CreateSession("dup", []string{"sh"}, nil)
	_, _, p2, _ := m.CreateSession("dup", []string{"sh"}, nil)
	defer m.ClosePane(p1)
	defer m.ClosePane(p2)

	_, err := m.GetEnvironment("dup", "anything")
	kind, ok := muxerr.KindOf(err)
	if !ok || kind != muxerr.Ambiguous {
		t.Fatalf("GetEnvironment(dup) = %v, want Ambiguous", err)
	}
}

func TestManager_CreatePane_OutOfPanes(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	sessionID, windowID, p0, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(p0)

	var created []string
	for i := 0; i < 9; i++ {
		paneID, err := m.CreatePane(sessionID, windowID, Vertical, []string{"sh"}, "", nil, false)
		if err != nil {
			t.Fatalf("CreatePane %d: %v", i, err)
		}
		created = append(created, paneID)
	}
	defer func() {
		for _, id := range created {
			m.ClosePane(id)
		}
	}()

	_, err = m.CreatePane(sessionID, windowID, Vertical, []string{"sh"}, "", nil, false)
	kind, ok := muxerr.KindOf(err)
	if !ok || kind != muxerr.OutOfPanes {
		t.Fatalf("CreatePane (11th) = %v, want OutOfPanes", err)
	}
}

func TestManager_FocusPane_BlockedByUserPriorityLock(t *testing.T) {
	m := NewManager(testLogger(), NopSink{}, 1000)
	_, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	m.EnterUserCommandMode("human-client", 200*time.Millisecond)
	err = m.FocusPane(paneID)
	kind, ok := muxerr.KindOf(err)
	if !ok || kind != muxerr.UserPriorityActive {
		t.Fatalf("FocusPane while locked = %v, want UserPriorityActive", err)
	}

	m.ExitUserCommandMode("human-client")
	if err := m.FocusPane(paneID); err != nil {
		t.Fatalf("FocusPane after exit = %v, want nil", err)
	}
}
