// Package mux implements the session/pane runtime: Pane, Window,
// Session, Session Manager, PTY Output Poller, Command Executor,
// Cleanup Loop, User-Priority Lock, and Watchdog Timer (spec §4.4-§4.7,
// §4.9, §4.13-§4.15).
//
// Grounded throughout on kojo's internal/session package: the single
// exclusive Manager lock (manager.go's mu), the per-resource broadcast
// channel (session.go's subscribers map + broadcast()), and the
// readLoop/waitLoop task-pair shape, generalized from kojo's flat
// session-only hierarchy into the spec's session→window→pane tree.
package mux

import "github.com/fugue-mux/fugue/internal/agent"

// EventKind names the broadcast frames the Command Executor and
// Cleanup Loop emit to attached clients (spec §4.9, §6).
type EventKind string

const (
	EventPaneCreated       EventKind = "PaneCreated"
	EventPaneClosed        EventKind = "PaneClosed"
	EventPaneResized       EventKind = "PaneResized"
	EventPaneStateChanged  EventKind = "PaneStateChanged"
	EventFocusChanged      EventKind = "FocusChanged"
	EventWindowCreated     EventKind = "WindowCreated"
	EventWindowClosed      EventKind = "WindowClosed"
	EventLayoutCreated     EventKind = "LayoutCreated"
	EventSessionEnded      EventKind = "SessionEnded"
)

// Event is one broadcast frame, scoped to the session it concerns so
// the Client Registry can route it to that session's attached clients
// only (spec §4.9's "dual-delivery" contract: the Command Executor
// must broadcast in addition to returning a response to the caller).
type Event struct {
	Kind      EventKind
	SessionID string
	WindowID  string `json:"window_id,omitempty"`
	PaneID    string `json:"pane_id,omitempty"`
	Activity  agent.Activity `json:"activity,omitempty"`
	Cols      uint16 `json:"cols,omitempty"`
	Rows      uint16 `json:"rows,omitempty"`
	ExitCode  *int   `json:"exit_code,omitempty"`
}

// Sink receives Events; the Client Registry implements this to fan
// events out to attached clients (kept decoupled so internal/mux has
// no import-time dependency on internal/registry).
type Sink interface {
	Publish(Event)
}

// NopSink discards every event; useful for tests that don't care about
// broadcast traffic.
type NopSink struct{}

func (NopSink) Publish(Event) {}
