package mux

import (
	"sync"
	"time"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

// PriorityMode is the behavior focus-changing MCP handlers take when
// a user has priority (spec §4.14).
type PriorityMode string

const (
	// Reject is the default per spec §4.14 ("Mode Reject (default)").
	// See DESIGN.md's Open Question decision #3: the "Warn" alternative
	// named in spec §9 is recorded there only as a rejected option.
	Reject PriorityMode = "reject"
	Wait   PriorityMode = "wait"
	Warn   PriorityMode = "warn"
)

const defaultMaxWait = 1 * time.Second

// UserLock is the short-lived per-client interlock that lets a user's
// prefix key beat an MCP focus change (spec §4.14).
type UserLock struct {
	mu      sync.Mutex
	entries map[string]time.Time // client_id -> deadline
	Mode    PriorityMode
	MaxWait time.Duration
}

func NewUserLock(mode PriorityMode) *UserLock {
	if mode == "" {
		mode = Reject
	}
	return &UserLock{
		entries: make(map[string]time.Time),
		Mode:    mode,
		MaxWait: defaultMaxWait,
	}
}

// Enter records that clientID has entered user-command mode until
// timeout elapses.
func (u *UserLock) Enter(clientID string, timeout time.Duration) {
	u.mu.Lock()
	u.entries[clientID] = time.Now().Add(timeout)
	u.mu.Unlock()
}

// Exit releases clientID's lock immediately (command completion,
// cancellation, or client disconnect).
func (u *UserLock) Exit(clientID string) {
	u.mu.Lock()
	delete(u.entries, clientID)
	u.mu.Unlock()
}

func (u *UserLock) activeLocked() bool {
	now := time.Now()
	for id, deadline := range u.entries {
		if now.After(deadline) {
			delete(u.entries, id)
			continue
		}
		return true
	}
	return false
}

func (u *UserLock) active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.activeLocked()
}

// retryAfterMs returns the longest remaining lock duration in ms, for
// UserPriorityActive{retry_after_ms}.
func (u *UserLock) retryAfterMs() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	var max time.Duration
	now := time.Now()
	for _, deadline := range u.entries {
		if d := deadline.Sub(now); d > max {
			max = d
		}
	}
	return max.Milliseconds()
}

// Sweep drops every expired entry without consulting the lock state,
// for a periodic housekeeping task to call so the entries map never
// grows unbounded between focus-change attempts.
func (u *UserLock) Sweep() {
	u.mu.Lock()
	defer u.mu.Unlock()
	now := time.Now()
	for id, deadline := range u.entries {
		if now.After(deadline) {
			delete(u.entries, id)
		}
	}
}

// Guard is consulted by focus-changing handlers (focus_pane,
// select_window, select_session) before they run.
func (u *UserLock) Guard() error {
	if !u.active() {
		return nil
	}
	switch u.Mode {
	case Wait:
		deadline := time.Now().Add(u.MaxWait)
		for time.Now().Before(deadline) {
			if !u.active() {
				return nil
			}
			time.Sleep(10 * time.Millisecond)
		}
		if u.active() {
			return muxerr.New(muxerr.UserPriorityTimeout, "user priority lock did not clear within max_wait_ms")
		}
		return nil
	case Warn:
		return nil
	default: // Reject
		return muxerr.New(muxerr.UserPriorityActive, "user has command-mode priority").
			WithField("retry_after_ms", u.retryAfterMs())
	}
}
