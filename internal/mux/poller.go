package mux

import (
	"log/slog"
	"time"

	"github.com/fugue-mux/fugue/internal/sideband"
)

const (
	pollerReadSize    = 64 * 1024
	flushSizeThreshold = 8 * 1024
	newlineFlushDelay  = 50 * time.Millisecond
	idleFlushDelay     = 100 * time.Millisecond
)

// Poller runs exactly one PTY Output Poller task per pane, from the
// moment the PTY is spawned until the reader reports EOF (spec §4.7).
type Poller struct {
	manager *Manager
	logger  *slog.Logger
}

func NewPoller(m *Manager, logger *slog.Logger) *Poller {
	return &Poller{manager: m, logger: logger}
}

// Start launches the poller loop for pane in its own goroutine.
func (pl *Poller) Start(pane *Pane) {
	go pl.run(pane)
}

func (pl *Poller) run(pane *Pane) {
	sb := sideband.New()
	executor := NewExecutor(pl.manager)

	var outBuf []byte
	var newlineC <-chan time.Time
	idleTimer := time.NewTimer(idleFlushDelay)
	defer idleTimer.Stop()

	flush := func() {
		if len(outBuf) == 0 {
			return
		}
		pane.Broadcast(outBuf)
		outBuf = nil
	}

	chunk := make([]byte, pollerReadSize)
	readCh := make(chan readResult, 1)
	go pl.readLoop(pane, chunk, readCh)

	for {
		select {
		case res, ok := <-readCh:
			if !ok {
				flush()
				pl.emitPaneClosed(pane)
				return
			}
			if res.err != nil {
				flush()
				pl.emitPaneClosed(pane)
				return
			}

			clean, commands := sb.Feed(res.data)
			for _, cmd := range commands {
				executor.Execute(pane, cmd)
			}

			activity, changed := pane.Process(clean)
			if changed {
				pl.manager.sink.Publish(Event{
					Kind:      EventPaneStateChanged,
					SessionID: pl.sessionOf(pane),
					PaneID:    pane.ID,
					Activity:  activity,
				})
			}

			outBuf = append(outBuf, clean...)
			hadNewline := containsByte(clean, '\n')

			if len(outBuf) >= flushSizeThreshold {
				flush()
			} else if hadNewline && newlineC == nil {
				newlineC = time.After(newlineFlushDelay)
			}
			idleTimer.Reset(idleFlushDelay)

			go pl.readLoop(pane, chunk, readCh)

		case <-newlineC:
			flush()
			newlineC = nil

		case <-idleTimer.C:
			flush()
			idleTimer.Reset(idleFlushDelay)
		}
	}
}

type readResult struct {
	data []byte
	err  error
}

func (pl *Poller) readLoop(pane *Pane, buf []byte, out chan<- readResult) {
	n, err := pane.Reader().Read(buf)
	if n > 0 {
		data := make([]byte, n)
		copy(data, buf[:n])
		out <- readResult{data: data}
		return
	}
	if err != nil {
		close(out)
		return
	}
	out <- readResult{}
}

func (pl *Poller) emitPaneClosed(pane *Pane) {
	code, _ := pane.pty.ExitCode()
	pane.MarkExited(code)
	sessionID := pl.sessionOf(pane)
	pl.manager.sink.Publish(Event{Kind: EventPaneClosed, SessionID: sessionID, PaneID: pane.ID, ExitCode: &code})
	pl.manager.deathCh <- deathNotice{paneID: pane.ID, code: code}
}

func (pl *Poller) sessionOf(pane *Pane) string {
	pl.manager.mu.Lock()
	defer pl.manager.mu.Unlock()
	w, ok := pl.manager.windows[pane.WindowID]
	if !ok {
		return ""
	}
	return w.SessionID
}

func containsByte(b []byte, target byte) bool {
	for _, c := range b {
		if c == target {
			return true
		}
	}
	return false
}
