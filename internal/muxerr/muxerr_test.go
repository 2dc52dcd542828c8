package muxerr

import (
	"errors"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := New(NotFound, "session xyz")
	kind, ok := KindOf(err)
	if !ok || kind != NotFound {
		t.Fatalf("KindOf = %v, %v; want NotFound, true", kind, ok)
	}

	if _, ok := KindOf(errors.New("plain")); ok {
		t.Fatalf("KindOf(plain error) = ok; want false")
	}
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(SpawnFailed, "could not start pty", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	if kind, _ := KindOf(err); kind != SpawnFailed {
		t.Fatalf("KindOf = %v, want SpawnFailed", kind)
	}
}

func TestIs_MatchesByKind(t *testing.T) {
	a := New(UserPriorityActive, "locked").WithField("retry_after_ms", 250)
	b := New(UserPriorityActive, "locked, different instance")

	if !errors.Is(a, b) {
		t.Fatalf("expected errors.Is to match same Kind")
	}

	c := New(Timeout, "different kind")
	if errors.Is(a, c) {
		t.Fatalf("expected errors.Is to reject different Kind")
	}
}

func TestWithField(t *testing.T) {
	err := New(UserPriorityActive, "locked").WithField("retry_after_ms", 250)
	if err.Fields["retry_after_ms"] != 250 {
		t.Fatalf("expected retry_after_ms field to be set")
	}
}
