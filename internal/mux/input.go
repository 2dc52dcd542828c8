package mux

import (
	"strings"
	"time"
)

// unescapeInput converts \n \r \t \b \e and caret-notation (^C) into
// their byte values, per spec §4.6's send_input(literal=false) contract.
func unescapeInput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case 'n':
				b.WriteByte('\n')
				i++
				continue
			case 'r':
				b.WriteByte('\r')
				i++
				continue
			case 't':
				b.WriteByte('\t')
				i++
				continue
			case 'b':
				b.WriteByte('\b')
				i++
				continue
			case 'e':
				b.WriteByte(0x1b)
				i++
				continue
			}
		}
		if c == '^' && i+1 < len(runes) {
			ctrl := runes[i+1]
			if ctrl >= 'A' && ctrl <= 'Z' {
				b.WriteByte(byte(ctrl - 'A' + 1))
				i++
				continue
			}
			if ctrl == '?' {
				b.WriteByte(0x7f)
				i++
				continue
			}
		}
		b.WriteRune(c)
	}
	return b.String()
}

// submitEnter implements the 100ms-settle-then-\r convention interactive
// TUI agents need to treat appended input as "Enter" rather than part of
// the buffer (spec §4.6's send_input rationale).
func submitEnter(pane *Pane) error {
	time.Sleep(100 * time.Millisecond)
	return pane.Write([]byte("\r"))
}
