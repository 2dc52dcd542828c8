package mux

import (
	"log/slog"

	"github.com/fugue-mux/fugue/internal/sideband"
)

// Executor consumes sideband-emitted (and MCP-emitted) commands and
// translates them into Session Manager operations, broadcasting the
// resulting state-change frames in addition to returning a response to
// the caller — spec §4.9's dual-delivery contract. A state-mutating
// call that doesn't broadcast is treated as a defect; every path below
// goes through Manager methods, which already publish to m.sink.
type Executor struct {
	manager *Manager
}

func NewExecutor(m *Manager) *Executor {
	return &Executor{manager: m}
}

// Execute runs one sideband command against the Session Manager,
// attributed to the pane that emitted it.
func (e *Executor) Execute(origin *Pane, cmd sideband.Command) {
	switch cmd.Kind {
	case sideband.Spawn:
		e.executeSpawn(origin, cmd)
	case sideband.Input:
		e.executeInput(cmd)
	case sideband.Control:
		e.executeControl(origin, cmd)
	case sideband.Canvas:
		// UI hint only; no session-graph effect (spec §4.8).
	}
}

func (e *Executor) executeSpawn(origin *Pane, cmd sideband.Command) {
	dir := Horizontal
	if cmd.Attrs["direction"] == "vertical" {
		dir = Vertical
	}
	var command []string
	if c := cmd.Attrs["command"]; c != "" {
		command = []string{defaultShell(), "-c", c}
	}
	cwd := cmd.Attrs["cwd"]

	if _, err := e.manager.SplitPane(origin.ID, dir, command, cwd); err != nil {
		slog.Default().Debug("sideband spawn failed", "pane", origin.ID, "err", err)
	}
}

func (e *Executor) executeInput(cmd sideband.Command) {
	target := cmd.Attrs["target"]
	if target == "" {
		return
	}
	_ = e.manager.SendInput(target, cmd.Content, false, true)
}

func (e *Executor) executeControl(origin *Pane, cmd sideband.Command) {
	switch cmd.Attrs["action"] {
	case "focus":
		_ = e.manager.FocusPane(origin.ID)
	case "close":
		_ = e.manager.ClosePane(origin.ID)
	}
}
