package mux

import (
	"sync"
	"time"

	"github.com/fugue-mux/fugue/internal/agent"
	"github.com/fugue-mux/fugue/internal/ids"
	"github.com/fugue-mux/fugue/internal/muxerr"
	"github.com/fugue-mux/fugue/internal/ptyio"
	"github.com/fugue-mux/fugue/internal/scrollback"
	"github.com/fugue-mux/fugue/internal/vt"
)

// PaneState is the high-level lifecycle state named in spec.md's State
// Machines section: Starting → {Shell | Agent(Idle)} → ... → Exited(code).
type PaneState string

const (
	PaneStarting PaneState = "starting"
	PaneShell    PaneState = "shell"
	PaneAgent    PaneState = "agent"
	PaneExited   PaneState = "exited"
)

// Pane is one PTY + one parser + one scrollback + one detector, plus
// mutable metadata, exclusively owned by exactly one Window (spec §3).
type Pane struct {
	mu sync.Mutex

	ID        string
	WindowID  string
	Cols      uint16
	Rows      uint16
	Cwd       string
	Title     string
	Command   []string
	CreatedAt time.Time

	state           PaneState
	stateChangedAt  time.Time
	exitCode        *int
	lastActivity    agent.Activity

	scrollback *scrollback.Buffer
	parser     *vt.Parser
	detector   agent.Detector
	pty        *ptyio.Handle
	watchdog   *Watchdog

	subMu       sync.Mutex
	subscribers map[chan []byte]struct{}
}

// NewPane wires a freshly spawned PTY handle into a Pane. Ownership of
// h passes to the Pane; the caller must not use h directly afterward.
func NewPane(id, windowID string, h *ptyio.Handle, cols, rows uint16, cwd string, command []string, detector agent.Detector, maxScrollbackLines int) *Pane {
	now := time.Now()
	return &Pane{
		ID:             id,
		WindowID:       windowID,
		Cols:           cols,
		Rows:           rows,
		Cwd:            cwd,
		Command:        command,
		CreatedAt:      now,
		state:          PaneStarting,
		stateChangedAt: now,
		scrollback:     scrollback.New(maxScrollbackLines),
		parser:         vt.New(int(cols), int(rows)),
		detector:       detector,
		pty:            h,
		subscribers:    make(map[chan []byte]struct{}),
	}
}

// Process feeds clean (sideband-stripped) bytes through the parser,
// scrollback, and detector. If the detector emits a new activity
// distinct from the last broadcast one, it is returned for the caller
// to broadcast as PaneStateChanged; changed is false otherwise. Process is
// deterministic and only mutates internal state (spec §4.4).
func (p *Pane) Process(b []byte) (activity agent.Activity, changed bool) {
	p.scrollback.PushBytes(b)
	_, _ = p.parser.Write(b)

	activity, emitted := p.detector.Analyze(b)
	if !emitted {
		return "", false
	}

	p.mu.Lock()
	prev := p.lastActivity
	p.lastActivity = activity
	if p.state == PaneStarting {
		p.state = PaneAgent
	}
	p.stateChangedAt = time.Now()
	p.mu.Unlock()

	if activity == prev {
		return "", false
	}
	return activity, true
}

// Write forwards bytes to the PTY writer. Fails with PtyClosed once the
// child has exited.
func (p *Pane) Write(b []byte) error {
	p.mu.Lock()
	exited := p.state == PaneExited
	p.mu.Unlock()
	if exited {
		return muxerr.New(muxerr.PtyClosed, "pane "+p.ID+" has exited")
	}
	_, err := p.pty.Write(b)
	return err
}

// Resize updates the parser and PTY dimensions.
func (p *Pane) Resize(cols, rows uint16) error {
	if err := p.pty.Resize(ptyio.Size{Cols: cols, Rows: rows}); err != nil {
		return err
	}
	p.parser.Resize(int(cols), int(rows))
	p.mu.Lock()
	p.Cols, p.Rows = cols, rows
	p.mu.Unlock()
	return nil
}

// SetCwd, SetTitle mutate metadata under the manager's lock (the caller
// — Manager — is expected to already hold its own exclusive lock; Pane's
// own mutex guards against concurrent readers of these same fields from
// the poller/broadcast path).
func (p *Pane) SetCwd(cwd string) {
	p.mu.Lock()
	p.Cwd = cwd
	p.mu.Unlock()
}

func (p *Pane) SetTitle(title string) {
	p.mu.Lock()
	p.Title = title
	p.mu.Unlock()
}

// MarkExited transitions the pane to Exited(code), the terminal state.
func (p *Pane) MarkExited(code int) {
	p.mu.Lock()
	p.state = PaneExited
	p.exitCode = &code
	p.stateChangedAt = time.Now()
	p.mu.Unlock()
}

// State returns the pane's current high-level state and, if exited, its
// exit code.
func (p *Pane) State() (PaneState, *int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.exitCode
}

// Kill terminates the owning PTY; cleanup removal happens asynchronously
// via the Cleanup Loop once the poller observes EOF (spec §4.6's
// close_pane contract).
func (p *Pane) Kill() error {
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
	return p.pty.Kill()
}

// Done reports the PTY's exit channel, used by the poller to detect EOF
// alongside read errors.
func (p *Pane) Done() <-chan struct{} { return p.pty.Done() }

// Reader exposes the raw PTY reader for the poller's drain loop.
func (p *Pane) Reader() *ptyio.Handle { return p.pty }

// ScrollbackTail returns up to n of the most recent lines.
func (p *Pane) ScrollbackTail(n int) []string { return p.scrollback.LinesTail(n) }

// Screen returns the current virtual screen content, row by row.
func (p *Pane) Screen() []string { return p.parser.Screen() }

// Subscribe registers an output channel; Unsubscribe removes it. Both
// mirror kojo's session.go subscriber-set broadcast pattern, applied
// per-pane instead of per-session so a single session's many panes fan
// out independently.
func (p *Pane) Subscribe() chan []byte {
	ch := make(chan []byte, 256)
	p.subMu.Lock()
	p.subscribers[ch] = struct{}{}
	p.subMu.Unlock()
	return ch
}

func (p *Pane) Unsubscribe(ch chan []byte) {
	p.subMu.Lock()
	delete(p.subscribers, ch)
	p.subMu.Unlock()
}

// Broadcast fans bytes out to every subscriber without blocking; a
// stalled subscriber's channel buffer filling up drops on the floor for
// that subscriber rather than stalling every other one, consistent with
// spec §4.11's "never block producers" rule for the outer transport
// (this inner fan-out uses a generously sized buffer rather than an
// unbounded channel since it's a short-lived, in-process hop to the
// Connection Handler's own unbounded queue).
func (p *Pane) Broadcast(b []byte) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for ch := range p.subscribers {
		select {
		case ch <- b:
		default:
		}
	}
}

// SetWatchdog attaches a Watchdog to the pane (spec §4.15: at most one
// active watchdog per pane).
func (p *Pane) SetWatchdog(w *Watchdog) {
	p.mu.Lock()
	prev := p.watchdog
	p.watchdog = w
	p.mu.Unlock()
	if prev != nil {
		prev.Stop()
	}
}

func (p *Pane) Watchdog() *Watchdog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchdog
}

// NewID is a thin re-export so callers constructing Panes elsewhere
// (Manager) share one id-generation entry point.
func NewID() string { return ids.New(ids.Pane) }
