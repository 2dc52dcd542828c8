// Package sideband implements the Sideband Parser (spec §4.8): a
// streaming extractor of self-closing <fugue:kind .../> and
// <fugue:kind>...</fugue:kind> tags from PTY output, stripping
// recognized tags before the bytes reach attached clients.
//
// Grounded on kojo's session.go CaptureToolSessionID technique of
// accumulating bytes in a bounded buffer across chunk-boundary reads
// before running a pattern over the accumulated buffer, generalized
// from a single regex capture into a tag scanner with a stale-buffer
// flush-through limit.
package sideband

import (
	"regexp"
)

// Kind is one of the recognized tag kinds.
type Kind string

const (
	Spawn   Kind = "spawn"
	Input   Kind = "input"
	Control Kind = "control"
	Canvas  Kind = "canvas"
)

var recognizedKinds = map[Kind]bool{Spawn: true, Input: true, Control: true, Canvas: true}

// Command is one parsed <fugue:...> tag.
type Command struct {
	Kind    Kind
	Attrs   map[string]string
	Content string // inner content for paired tags; empty for self-closing
}

// maxBuffer bounds the partial-tag carry; once exceeded the buffered
// bytes are flushed through verbatim rather than held indefinitely,
// per spec §4.8's "stale-buffer limit forces a flush-through".
const maxBuffer = 64 * 1024

var (
	selfClosing = regexp.MustCompile(`<fugue:([a-zA-Z]+)((?:\s+[a-zA-Z_][a-zA-Z0-9_]*="[^"]*")*)\s*/>`)
	paired      = regexp.MustCompile(`(?s)<fugue:([a-zA-Z]+)((?:\s+[a-zA-Z_][a-zA-Z0-9_]*="[^"]*")*)\s*>(.*?)</fugue:([a-zA-Z]+)>`)
	attrPair    = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)="([^"]*)"`)
	openTagStart = regexp.MustCompile(`<fugue:[a-zA-Z]*$|<fugue:[a-zA-Z]+[^>]*$|<fug$|<fu$|<f$|<$`)
)

// Parser accumulates bytes across reads and extracts tags as soon as a
// complete match is available.
type Parser struct {
	buf []byte
}

// New creates an empty Parser.
func New() *Parser { return &Parser{} }

// Feed processes a chunk of PTY output, returning the clean bytes (with
// recognized tags stripped) and any commands extracted from this call.
// Unrecognized <fugue:...> tags are left intact and passed through.
func (p *Parser) Feed(chunk []byte) (clean []byte, commands []Command) {
	p.buf = append(p.buf, chunk...)

	for {
		loc, kind, attrsRaw, content, _ := p.firstMatch()
		if loc == nil {
			break
		}

		before := p.buf[:loc[0]]
		clean = append(clean, before...)

		if recognizedKinds[Kind(kind)] {
			commands = append(commands, Command{
				Kind:    Kind(kind),
				Attrs:   parseAttrs(attrsRaw),
				Content: content,
			})
		} else {
			// unrecognized: pass through verbatim
			clean = append(clean, p.buf[loc[0]:loc[1]]...)
		}

		p.buf = p.buf[loc[1]:]
	}

	// flush-through: if what remains can't possibly be a partial tag
	// prefix, or the carry has grown stale, emit it and stop holding it.
	if !openTagStart.Match(p.buf) || len(p.buf) > maxBuffer {
		clean = append(clean, p.buf...)
		p.buf = nil
	}

	return clean, commands
}

// firstMatch finds the earliest complete tag (self-closing or paired)
// in p.buf, preferring whichever starts first.
func (p *Parser) firstMatch() (loc []int, kind, attrsRaw, content string, isPaired bool) {
	selfLoc := selfClosing.FindSubmatchIndex(p.buf)
	pairLoc := paired.FindSubmatchIndex(p.buf)
	// regexp has no backreferences, so the closing tag's kind is compared
	// here; a pair whose first closing tag names a different kind is not
	// treated as a paired tag.
	if pairLoc != nil && string(p.buf[pairLoc[2]:pairLoc[3]]) != string(p.buf[pairLoc[8]:pairLoc[9]]) {
		pairLoc = nil
	}

	useSelf := selfLoc != nil && (pairLoc == nil || selfLoc[0] <= pairLoc[0])
	usePair := pairLoc != nil && (selfLoc == nil || pairLoc[0] < selfLoc[0])

	switch {
	case useSelf:
		return []int{selfLoc[0], selfLoc[1]}, string(p.buf[selfLoc[2]:selfLoc[3]]), string(p.buf[selfLoc[4]:selfLoc[5]]), "", false
	case usePair:
		return []int{pairLoc[0], pairLoc[1]}, string(p.buf[pairLoc[2]:pairLoc[3]]), string(p.buf[pairLoc[4]:pairLoc[5]]), string(p.buf[pairLoc[6]:pairLoc[7]]), true
	default:
		return nil, "", "", "", false
	}
}

func parseAttrs(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, m := range attrPair.FindAllStringSubmatch(raw, -1) {
		out[m[1]] = m[2]
	}
	return out
}
