package agent

import (
	"strings"
	"testing"
	"time"
)

// The Claude Code startup banner classifies as Idle, so a detector in a
// busy state (here ToolUse) returns to Idle when the banner appears,
// without waiting for one of the other three tokens.
func TestClaude_BannerPatternReturnsBusyDetectorToIdle(t *testing.T) {
	d := NewClaude().(*base)
	d.debounce = 10 * time.Millisecond

	if _, ok := d.Analyze([]byte("Running tool now")); !ok {
		t.Fatal("expected first transition to emit")
	}
	if d.CurrentActivity() != ToolUse {
		t.Fatalf("activity = %v, want ToolUse", d.CurrentActivity())
	}

	// Push the "Running tool now" bytes out of the detector's rolling
	// window so only the banner text below drives classification.
	d.Analyze([]byte(strings.Repeat("x", windowSize)))

	time.Sleep(20 * time.Millisecond)

	activity, ok := d.Analyze([]byte("Welcome to Claude Code!\n\nType a message to get started.\n"))
	if !ok {
		t.Fatal("expected banner text to register a transition back to Idle")
	}
	if activity != Idle {
		t.Fatalf("activity = %v, want Idle", activity)
	}
}
