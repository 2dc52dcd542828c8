package registry

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/transport"
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

func drainOne(t *testing.T, ch <-chan transport.Frame, timeout time.Duration) transport.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(timeout):
		t.Fatal("timed out waiting for outbound frame")
		return transport.Frame{}
	}
}

func TestRegistry_AttachReturnsFullClearSnapshot(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	reg := New(testLogger(), m)

	sessionID, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	reg.Register("client1")
	attached, err := reg.Attach("client1", sessionID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if !attached.Snapshot.FullClear {
		t.Fatal("expected FullClear on initial attach")
	}
	if len(attached.Snapshot.Sessions) != 1 || attached.Snapshot.Sessions[0].ID != sessionID {
		t.Fatalf("snapshot sessions = %+v", attached.Snapshot.Sessions)
	}
}

func TestRegistry_PublishDeliversOnlyToAttachedClients(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	reg := New(testLogger(), m)

	sessionID, windowID, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	c1 := reg.Register("client1")
	reg.Register("client2")
	if _, err := reg.Attach("client1", sessionID); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	reg.Publish(mux.Event{Kind: mux.EventFocusChanged, SessionID: sessionID, WindowID: windowID, PaneID: paneID})

	f := drainOne(t, c1.Outbound(), time.Second)
	if f.Type != "FocusChanged" {
		t.Fatalf("client1 got %+v, want FocusChanged", f)
	}

	select {
	case f := <-reg.clients["client2"].Outbound():
		t.Fatalf("client2 (unattached) should not receive events, got %+v", f)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRegistry_OutputForwarderRelaysPaneBytes(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	reg := New(testLogger(), m)

	sessionID, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	c1 := reg.Register("client1")
	if _, err := reg.Attach("client1", sessionID); err != nil {
		t.Fatalf("Attach: %v", err)
	}

	if err := m.SendInput(paneID, "echo hi\n", false, true); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		select {
		case f := <-c1.Outbound():
			if f.Type != "Output" {
				return false
			}
			var out transport.OutputMsg
			if err := transport.DecodeInto(f, &out); err != nil {
				return false
			}
			return strings.Contains(string(out.Data), "hi")
		default:
			return false
		}
	})
}

func TestRegistry_AttachSnapshotIncludesScrollbackTail(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	reg := New(testLogger(), m)

	sessionID, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	if err := m.SendInput(paneID, "echo marker123\n", false, true); err != nil {
		t.Fatalf("SendInput: %v", err)
	}

	reg.Register("client1")
	waitFor(t, 3*time.Second, func() bool {
		attached, err := reg.Attach("client1", sessionID)
		if err != nil || len(attached.Snapshot.Sessions) == 0 {
			return false
		}
		for _, w := range attached.Snapshot.Sessions[0].Windows {
			for _, p := range w.Panes {
				for _, line := range p.Scrollback {
					if strings.Contains(line, "marker123") {
						return true
					}
				}
			}
		}
		return false
	})
}

func TestRegistry_UnregisterClosesOutboundQueue(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	reg := New(testLogger(), m)
	c := reg.Register("client1")
	reg.Unregister("client1")

	_, ok := <-c.Outbound()
	if ok {
		t.Fatal("expected outbound channel closed after Unregister")
	}
}
