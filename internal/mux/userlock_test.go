package mux

import (
	"testing"
	"time"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

func TestUserLock_RejectModeBlocksWhileActive(t *testing.T) {
	u := NewUserLock(Reject)
	u.Enter("client1", 200*time.Millisecond)

	err := u.Guard()
	kind, ok := muxerr.KindOf(err)
	if !ok || kind != muxerr.UserPriorityActive {
		t.Fatalf("Guard() = %v, want UserPriorityActive", err)
	}
}

func TestUserLock_ExpiresAfterDeadline(t *testing.T) {
	u := NewUserLock(Reject)
	u.Enter("client1", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	if err := u.Guard(); err != nil {
		t.Fatalf("Guard() after expiry = %v, want nil", err)
	}
}

func TestUserLock_ExitReleasesImmediately(t *testing.T) {
	u := NewUserLock(Reject)
	u.Enter("client1", 5*time.Second)
	u.Exit("client1")

	if err := u.Guard(); err != nil {
		t.Fatalf("Guard() after Exit = %v, want nil", err)
	}
}

func TestUserLock_WarnModeAlwaysProceeds(t *testing.T) {
	u := NewUserLock(Warn)
	u.Enter("client1", 5*time.Second)

	if err := u.Guard(); err != nil {
		t.Fatalf("Guard() in Warn mode = %v, want nil", err)
	}
}

func TestUserLock_WaitModeTimesOut(t *testing.T) {
	u := NewUserLock(Wait)
	u.MaxWait = 30 * time.Millisecond
	u.Enter("client1", 5*time.Second)

	err := u.Guard()
	kind, ok := muxerr.KindOf(err)
	if !ok || kind != muxerr.UserPriorityTimeout {
		t.Fatalf("Guard() = %v, want UserPriorityTimeout", err)
	}
}
