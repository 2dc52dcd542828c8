package mcpbridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/router"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBridge() (*Bridge, *mux.Manager) {
	m := mux.NewManager(testLogger(), mux.NopSink{}, 1000)
	r := router.New(testLogger())
	m.SetSessionCreatedHook(r.RegisterSession)
	return New(m, r, testLogger()), m
}

func newReq(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func decodeText(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty result")
	}
	tc, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("result content is not text: %+v", res.Content[0])
	}
	if err := json.Unmarshal([]byte(tc.Text), v); err != nil {
		t.Fatalf("decode result %q: %v", tc.Text, err)
	}
}

func TestHandleCreateSession(t *testing.T) {
	b, m := newBridge()
	res, err := b.handleCreateSession(context.Background(), newReq(map[string]any{"name": "demo"}))
	if err != nil {
		t.Fatalf("handleCreateSession: %v", err)
	}
	if res.IsError {
		t.Fatalf("handleCreateSession returned tool error: %+v", res.Content)
	}
	var out struct {
		SessionID string `json:"session_id"`
		PaneID    string `json:"pane_id"`
	}
	decodeText(t, res, &out)
	if out.SessionID == "" || out.PaneID == "" {
		t.Fatalf("out = %+v, want non-empty ids", out)
	}
	defer m.KillSession(out.SessionID)
}

func TestHandleFocusPane_BlockedByUserPriorityLock(t *testing.T) {
	b, m := newBridge()
	_, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	m.EnterUserCommandMode("human", 200*time.Millisecond)
	res, err := b.handleFocusPane(context.Background(), newReq(map[string]any{"pane_id": paneID}))
	if err != nil {
		t.Fatalf("handleFocusPane: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error while user-priority lock held, got %+v", res.Content)
	}

	m.ExitUserCommandMode("human")
	res, err = b.handleFocusPane(context.Background(), newReq(map[string]any{"pane_id": paneID}))
	if err != nil {
		t.Fatalf("handleFocusPane: %v", err)
	}
	if res.IsError {
		t.Fatalf("expected success after lock release, got %+v", res.Content)
	}
}

func TestHandleRunParallel_AggregatesExitCodes(t *testing.T) {
	b, m := newBridge()
	sessionID, _, paneID, err := m.CreateSession("host", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.KillSession(sessionID)
	defer m.ClosePane(paneID)

	res, err := b.handleRunParallel(context.Background(), newReq(map[string]any{
		"session":    sessionID,
		"commands":   []any{"true", "false"},
		"timeout_ms": float64(5000),
		"cleanup":    false,
	}))
	if err != nil {
		t.Fatalf("handleRunParallel: %v", err)
	}
	if res.IsError {
		t.Fatalf("handleRunParallel returned tool error: %+v", res.Content)
	}
	var out struct {
		Results []commandResult `json:"results"`
	}
	decodeText(t, res, &out)
	if len(out.Results) != 2 {
		t.Fatalf("results = %+v, want 2 entries", out.Results)
	}
}

func TestHandleRunParallel_RejectsMoreThanMax(t *testing.T) {
	b, _ := newBridge()
	commands := make([]any, maxParallelPanes+1)
	for i := range commands {
		commands[i] = "true"
	}
	res, err := b.handleRunParallel(context.Background(), newReq(map[string]any{"commands": commands}))
	if err != nil {
		t.Fatalf("handleRunParallel: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected out_of_panes tool error, got %+v", res.Content)
	}
}

func TestWatchdogStartStop(t *testing.T) {
	b, m := newBridge()
	_, _, paneID, err := m.CreateSession("demo", []string{"sh"}, nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	defer m.ClosePane(paneID)

	if _, err := b.handleWatchdogStart(context.Background(), newReq(map[string]any{
		"pane_id":       paneID,
		"interval_secs": float64(1),
		"message":       "status",
	})); err != nil {
		t.Fatalf("handleWatchdogStart: %v", err)
	}

	pane, ok := m.Pane(paneID)
	if !ok {
		t.Fatalf("pane %s not found", paneID)
	}
	if pane.Watchdog() == nil {
		t.Fatal("expected watchdog attached to pane after start")
	}

	if _, err := b.handleWatchdogStop(context.Background(), newReq(map[string]any{"pane_id": paneID})); err != nil {
		t.Fatalf("handleWatchdogStop: %v", err)
	}
	// Stop leaves the *Watchdog attached but marked stopped rather than
	// detaching it; starting watchdog_start again is what replaces it.
	if w := pane.Watchdog(); w == nil {
		t.Fatal("expected watchdog still attached (stopped, not removed) after stop")
	}
}
