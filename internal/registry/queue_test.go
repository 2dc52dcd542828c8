package registry

import (
	"encoding/json"
	"testing"

	"github.com/fugue-mux/fugue/internal/transport"
)

func outputFrame(t *testing.T, paneID, data string) transport.Frame {
	t.Helper()
	body, err := json.Marshal(transport.OutputMsg{PaneID: paneID, Data: []byte(data)})
	if err != nil {
		t.Fatalf("marshal OutputMsg: %v", err)
	}
	return transport.Frame{Type: "Output", Data: body}
}

func TestFrameQueue_NeverDropsUnderBurst(t *testing.T) {
	q := newFrameQueue()
	const n = 10000
	for i := 0; i < n; i++ {
		q.push(transport.Frame{Type: "FocusChanged"})
	}
	count := 0
	for {
		_, ok := q.pop()
		if !ok {
			t.Fatal("queue closed before draining everything pushed")
		}
		count++
		if count == n {
			break
		}
	}
	if count != n {
		t.Fatalf("drained %d frames, want %d", count, n)
	}
}

func TestFrameQueue_CoalescesOnlyRepeatedOutputForSamePane(t *testing.T) {
	q := newFrameQueue()
	q.push(outputFrame(t, "pane1", "a"))
	q.push(outputFrame(t, "pane1", "b"))
	q.push(transport.Frame{Type: "PaneClosed"})
	q.push(outputFrame(t, "pane2", "c"))

	f, ok := q.pop()
	if !ok || f.Type != "Output" {
		t.Fatalf("first pop = %+v, ok=%v, want merged Output", f, ok)
	}
	var merged transport.OutputMsg
	if err := json.Unmarshal(f.Data, &merged); err != nil {
		t.Fatalf("unmarshal merged: %v", err)
	}
	if merged.PaneID != "pane1" || string(merged.Data) != "ab" {
		t.Fatalf("merged = %+v, want pane1/\"ab\"", merged)
	}

	f, ok = q.pop()
	if !ok || f.Type != "PaneClosed" {
		t.Fatalf("second pop = %+v, ok=%v, want PaneClosed (never dropped or coalesced)", f, ok)
	}

	f, ok = q.pop()
	if !ok || f.Type != "Output" {
		t.Fatalf("third pop = %+v, ok=%v, want Output for pane2", f, ok)
	}
	var other transport.OutputMsg
	if err := json.Unmarshal(f.Data, &other); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if other.PaneID != "pane2" {
		t.Fatalf("third pop paneID = %q, want pane2 (distinct pane must not coalesce)", other.PaneID)
	}
}

func TestFrameQueue_PopBlocksUntilPushThenClose(t *testing.T) {
	q := newFrameQueue()
	got := make(chan transport.Frame, 1)
	go func() {
		f, _ := q.pop()
		got <- f
	}()
	q.push(transport.Frame{Type: "Ping"})
	f := <-got
	if f.Type != "Ping" {
		t.Fatalf("got %+v, want Ping", f)
	}

	closed := make(chan bool, 1)
	go func() {
		_, ok := q.pop()
		closed <- ok
	}()
	q.close()
	if ok := <-closed; ok {
		t.Error("expected pop to report closed after close(), got a frame instead")
	}
}
