package housekeep

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/persist"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSnapshotTickPersistsSessions(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	store, err := persist.Open(":memory:", testLogger())
	if err != nil {
		t.Fatalf("persist.Open: %v", err)
	}
	defer store.Close()

	sessionID, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.KillSession(sessionID)
	defer m.ClosePane(paneID)

	sched := New(testLogger(), m, store)
	if err := sched.Start("@every 25ms", "@every 25ms"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := store.LoadSnapshot(sessionID); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("snapshot was never persisted")
}

func TestSweepLocksRunsWithoutPanicking(t *testing.T) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	store, err := persist.Open(":memory:", testLogger())
	if err != nil {
		t.Fatalf("persist.Open: %v", err)
	}
	defer store.Close()

	m.EnterUserCommandMode("human", 1*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	sched := New(testLogger(), m, store)
	sched.sweepLocks()
}
