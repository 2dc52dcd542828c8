package persist

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fugue-mux/fugue/internal/mux"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublishAppendsEvent(t *testing.T) {
	s := openTestStore(t)
	s.Publish(mux.Event{Kind: mux.EventWindowCreated, SessionID: "s1", WindowID: "w1"})

	var count int
	if err := s.DB().QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ?`, "s1").Scan(&count); err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("events for s1 = %d, want 1", count)
	}
}

func TestNextSeqMonotonic(t *testing.T) {
	s := openTestStore(t)
	first, err := s.NextSeq(context.Background())
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	second, err := s.NextSeq(context.Background())
	if err != nil {
		t.Fatalf("NextSeq: %v", err)
	}
	if second <= first {
		t.Fatalf("second seq %d did not exceed first %d", second, first)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, ok, err := s.LoadSnapshot("s1"); err != nil || ok {
		t.Fatalf("expected no snapshot yet, got ok=%v err=%v", ok, err)
	}

	if err := s.SaveSnapshot("s1", []byte(`{"name":"demo"}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	payload, ok, err := s.LoadSnapshot("s1")
	if err != nil || !ok {
		t.Fatalf("LoadSnapshot: ok=%v err=%v", ok, err)
	}
	if string(payload) != `{"name":"demo"}` {
		t.Fatalf("payload = %q", payload)
	}

	// overwrite
	if err := s.SaveSnapshot("s1", []byte(`{"name":"renamed"}`)); err != nil {
		t.Fatalf("SaveSnapshot overwrite: %v", err)
	}
	payload, _, _ = s.LoadSnapshot("s1")
	if string(payload) != `{"name":"renamed"}` {
		t.Fatalf("payload after overwrite = %q", payload)
	}

	if err := s.DeleteSnapshot("s1"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if _, ok, _ := s.LoadSnapshot("s1"); ok {
		t.Fatal("expected snapshot gone after delete")
	}
}
