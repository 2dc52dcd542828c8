package mux

import "testing"

func TestSession_MatchesQuery(t *testing.T) {
	s := NewSession("s1", "Editor", "w1", nil)

	exactID, exactName, ciName := s.MatchesQuery("s1")
	if !exactID {
		t.Fatal("expected exact id match")
	}

	_, exactName, _ = s.MatchesQuery("Editor")
	if !exactName {
		t.Fatal("expected exact name match")
	}

	_, _, ciName = s.MatchesQuery("editor")
	if !ciName {
		t.Fatal("expected case-insensitive name match")
	}
}

func TestSession_TagsRoundTrip(t *testing.T) {
	s := NewSession("s1", "Editor", "w1", nil)
	s.AddTag("orchestrator")
	s.AddTag("worker")

	if !s.HasTag("orchestrator") {
		t.Fatal("expected orchestrator tag to be present")
	}
	s.RemoveTag("worker")
	if s.HasTag("worker") {
		t.Fatal("expected worker tag to be removed")
	}
}

func TestSession_EnvAndMetadata(t *testing.T) {
	s := NewSession("s1", "Editor", "w1", map[string]string{"FOO": "bar"})
	if v, ok := s.GetEnv("FOO"); !ok || v != "bar" {
		t.Fatalf("GetEnv(FOO) = %q, %v", v, ok)
	}
	s.SetMetadata("cwd", "/tmp")
	if v, ok := s.GetMetadata("cwd"); !ok || v != "/tmp" {
		t.Fatalf("GetMetadata(cwd) = %q, %v", v, ok)
	}
}

func TestSession_RemoveWindow_EmptyWhenLast(t *testing.T) {
	s := NewSession("s1", "Editor", "w1", nil)
	s.AddWindow("w2")

	if empty := s.RemoveWindow("w1"); empty {
		t.Fatal("session should not be empty with one window left")
	}
	if empty := s.RemoveWindow("w2"); !empty {
		t.Fatal("session should be empty after removing its last window")
	}
}
