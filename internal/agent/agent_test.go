package agent

import (
	"testing"
	"time"
)

func TestShell_NeverReportsActivity(t *testing.T) {
	d := NewShell()
	if _, ok := d.Analyze([]byte("anything at all")); ok {
		t.Fatal("expected shell detector to never report activity")
	}
	if d.IsActive() {
		t.Fatal("expected shell detector to stay idle")
	}
}

func TestClaude_DetectsApprovalPrompt(t *testing.T) {
	d := NewClaude()
	activity, ok := d.Analyze([]byte("Do you want to proceed?\n1. Yes\n2. No\n"))
	if !ok {
		t.Fatal("expected first transition to emit immediately")
	}
	if activity != AwaitingConfirmation {
		t.Fatalf("activity = %v, want AwaitingConfirmation", activity)
	}
}

func TestDebounce_CollapsesRapidFlips(t *testing.T) {
	d := NewClaude().(*base)
	d.debounce = 50 * time.Millisecond

	// First transition emits (no prior lastChanged).
	_, ok := d.Analyze([]byte("Running tool now"))
	if !ok {
		t.Fatal("expected first transition to emit")
	}
	if d.CurrentActivity() != ToolUse {
		t.Fatalf("activity = %v, want ToolUse", d.CurrentActivity())
	}

	// Rapid second flip within debounce window should not emit yet.
	_, ok = d.Analyze([]byte("Do you want to proceed?\n1. Yes"))
	if ok {
		t.Fatal("expected rapid flip within debounce window to be suppressed")
	}
}

func TestIsolation_PerDetectorState(t *testing.T) {
	a := NewClaude()
	b := NewClaude()

	a.Analyze([]byte("Running tool now"))
	if b.CurrentActivity() != Idle {
		t.Fatalf("detector b should be unaffected by detector a, got %v", b.CurrentActivity())
	}
}
