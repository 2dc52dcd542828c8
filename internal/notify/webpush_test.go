package notify

import (
	"io"
	"log/slog"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/fugue-mux/fugue/internal/agent"
	"github.com/fugue-mux/fugue/internal/mux"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	m, err := NewManager(testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestNewManagerGeneratesVAPIDKeys(t *testing.T) {
	m := newTestManager(t)
	if m.VAPIDPublicKey() == "" {
		t.Fatal("expected a generated VAPID public key")
	}
}

func TestNewManagerReloadsExistingVAPIDKeys(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	first, err := NewManager(testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	second, err := NewManager(testLogger())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if first.VAPIDPublicKey() != second.VAPIDPublicKey() {
		t.Fatal("expected the second Manager to load the same keys the first generated")
	}
}

// Publish is exercised with no subscriptions registered so it never
// makes an outbound network call; it only needs to prove the event
// filter fires notify for the right two cases and nothing else.
func TestPublishFiltersRelevantEvents(t *testing.T) {
	m := newTestManager(t)

	code := 1
	cases := []mux.Event{
		{Kind: mux.EventPaneClosed, SessionID: "s1", PaneID: "p1", ExitCode: &code},
		{Kind: mux.EventPaneStateChanged, SessionID: "s1", PaneID: "p1", Activity: agent.AwaitingConfirmation},
		{Kind: mux.EventPaneStateChanged, SessionID: "s1", PaneID: "p1", Activity: agent.Thinking},
		{Kind: mux.EventWindowCreated, SessionID: "s1"},
	}
	for _, ev := range cases {
		m.Publish(ev)
	}
}

func TestSubscribeDedupesByEndpoint(t *testing.T) {
	m := newTestManager(t)
	m.Subscribe(&webpush.Subscription{Endpoint: "https://push.example/a"})
	m.Subscribe(&webpush.Subscription{Endpoint: "https://push.example/a"})
	m.Subscribe(&webpush.Subscription{Endpoint: "https://push.example/b"})
	if len(m.subscriptions) != 2 {
		t.Fatalf("subscriptions = %d, want 2", len(m.subscriptions))
	}

	m.Unsubscribe("https://push.example/a")
	if len(m.subscriptions) != 1 {
		t.Fatalf("subscriptions after unsubscribe = %d, want 1", len(m.subscriptions))
	}
}
