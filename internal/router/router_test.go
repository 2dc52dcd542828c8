package router

import "testing"

func TestSend_BySession(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "")
	r.RegisterSession("s2", "")

	r.Send(Target{Session: "s1"}, Message{MsgType: "ping"})

	msgs := r.PollMessages("s1", 10)
	if len(msgs) != 1 || msgs[0].MsgType != "ping" {
		t.Fatalf("PollMessages(s1) = %+v", msgs)
	}
	if msgs := r.PollMessages("s2", 10); len(msgs) != 0 {
		t.Fatalf("PollMessages(s2) = %+v, want none", msgs)
	}
}

func TestSend_ByTag_ZeroMatchesSucceeds(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "")

	r.Send(Target{Tag: "nonexistent"}, Message{MsgType: "noop"})
	// no panic, no error return value to check — success is the absence
	// of any delivery, which we confirm indirectly below.
	if msgs := r.PollMessages("s1", 10); len(msgs) != 0 {
		t.Fatalf("expected no delivery, got %+v", msgs)
	}
}

func TestSend_ByTag_DeliversToAllTagged(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "")
	r.RegisterSession("s2", "")
	r.RegisterSession("s3", "")
	r.SetTags("s1", []string{"worker"})
	r.SetTags("s2", []string{"worker"})

	r.Send(Target{Tag: "worker"}, Message{MsgType: "work"})

	if msgs := r.PollMessages("s1", 10); len(msgs) != 1 {
		t.Fatalf("s1 messages = %+v", msgs)
	}
	if msgs := r.PollMessages("s2", 10); len(msgs) != 1 {
		t.Fatalf("s2 messages = %+v", msgs)
	}
	if msgs := r.PollMessages("s3", 10); len(msgs) != 0 {
		t.Fatalf("s3 should not receive a worker-tagged message, got %+v", msgs)
	}
}

func TestSend_Worktree(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "/repo/a")
	r.RegisterSession("s2", "/repo/b")

	r.Send(Target{Worktree: "/repo/a"}, Message{MsgType: "scoped"})

	if msgs := r.PollMessages("s1", 10); len(msgs) != 1 {
		t.Fatalf("s1 messages = %+v", msgs)
	}
	if msgs := r.PollMessages("s2", 10); len(msgs) != 0 {
		t.Fatalf("s2 should not receive a different-worktree message, got %+v", msgs)
	}
}

func TestSend_BroadcastFallsBackToEverySessionWithNoWorktrees(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "")
	r.RegisterSession("s2", "")

	r.Send(Target{Broadcast: true}, Message{MsgType: "all"})

	if msgs := r.PollMessages("s1", 10); len(msgs) != 1 {
		t.Fatalf("s1 messages = %+v", msgs)
	}
	if msgs := r.PollMessages("s2", 10); len(msgs) != 1 {
		t.Fatalf("s2 messages = %+v", msgs)
	}
}

func TestSetTags_ReplacesPreviousSet(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "")
	r.SetTags("s1", []string{"a", "b"})
	r.SetTags("s1", []string{"c"})

	tags := r.GetTags("s1")
	if len(tags) != 1 || tags[0] != "c" {
		t.Fatalf("GetTags = %v, want [c]", tags)
	}

	r.Send(Target{Tag: "a"}, Message{MsgType: "stale"})
	if msgs := r.PollMessages("s1", 10); len(msgs) != 0 {
		t.Fatalf("expected no delivery for replaced tag, got %+v", msgs)
	}
}

func TestUnregisterSession_RemovesTagMemberships(t *testing.T) {
	r := New(nil)
	r.RegisterSession("s1", "")
	r.SetTags("s1", []string{"worker"})
	r.UnregisterSession("s1")

	r.Send(Target{Tag: "worker"}, Message{MsgType: "work"})
	// no panic expected; s1's queue is gone so nothing to poll.
}
