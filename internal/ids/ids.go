// Package ids generates the 128-bit unguessable identifiers used for
// sessions, windows, panes, and clients.
package ids

import (
	"github.com/google/uuid"
)

// Kind prefixes an id so log lines and wire messages are self-describing
// without a schema lookup, mirroring kojo's "s_"-prefixed session ids.
type Kind string

const (
	Session Kind = "s"
	Window  Kind = "w"
	Pane    Kind = "p"
	Client  Kind = "c"
)

// New returns a fresh id of the given kind, e.g. "s_3fa85f64...".
func New(k Kind) string {
	return string(k) + "_" + uuid.NewString()
}
