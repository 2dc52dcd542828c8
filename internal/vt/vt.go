// Package vt adapts github.com/vito/midterm into Pane's "parser": a
// VT100/ANSI byte stream consumer that exposes a screen buffer.
//
// spec.md §1 treats ANSI/VT100 parsing as "explicitly out of scope...
// assumed available as a library capable of consuming bytes and
// exposing a screen buffer + scrollback" — the teacher (kojo) has no
// such component since it defers screen rendering to the browser's
// xterm.js. ekain-fr-h2, elsewhere in the pack, wraps midterm.Terminal
// exactly this way (NewTerminal(rows,cols), Write, Content, Resize);
// this package narrows that wrapper down to the read side Pane needs.
package vt

import (
	"sync"

	"github.com/vito/midterm"
)

// Parser owns one midterm.Terminal and serializes access to it, since
// Pane.process() and snapshot reads (for Attached{snapshot}) can race.
type Parser struct {
	mu   sync.Mutex
	term *midterm.Terminal
}

// New creates a Parser with the given initial screen size.
func New(cols, rows int) *Parser {
	return &Parser{term: midterm.NewTerminal(rows, cols)}
}

// Write feeds raw PTY output bytes into the virtual screen.
func (p *Parser) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term.Write(b)
}

// Resize updates the virtual screen's dimensions.
func (p *Parser) Resize(cols, rows int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.term.Resize(rows, cols)
}

// Screen returns a snapshot of the current screen content as plain
// strings, one per row, stripped of formatting — used to seed a newly
// attached client's redraw when scrollback tails alone aren't enough
// (e.g. a full-screen TUI agent mid-redraw).
func (p *Parser) Screen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows := make([]string, len(p.term.Content))
	for i, line := range p.term.Content {
		rows[i] = string(line)
	}
	return rows
}

// Rows reports the screen's current row count.
func (p *Parser) Rows() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.term.Content)
}
