package registry

import (
	"encoding/json"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/transport"
)

func setData(f *transport.Frame, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.Data = data
	return nil
}

// eventToFrame translates an internal/mux.Event into the wire frame
// named for it in spec §6. ok is false for event kinds with no client-
// facing representation (none currently, but kept for forward
// compatibility the way kojo's own switch-based dispatch degrades
// gracefully on an unknown type).
func eventToFrame(ev mux.Event) (transport.Frame, bool) {
	f := transport.Frame{Type: string(ev.Kind)}
	var body any

	switch ev.Kind {
	case mux.EventPaneCreated:
		body = transport.PaneCreatedMsg{SessionID: ev.SessionID, WindowID: ev.WindowID, PaneID: ev.PaneID}
	case mux.EventPaneClosed:
		body = transport.PaneClosedMsg{PaneID: ev.PaneID, ExitCode: ev.ExitCode}
	case mux.EventPaneResized:
		body = transport.PaneResizedMsg{PaneID: ev.PaneID, Cols: ev.Cols, Rows: ev.Rows}
	case mux.EventPaneStateChanged:
		body = transport.PaneStateChangedMsg{PaneID: ev.PaneID, Activity: string(ev.Activity)}
	case mux.EventFocusChanged:
		body = transport.FocusChangedMsg{SessionID: ev.SessionID, WindowID: ev.WindowID, PaneID: ev.PaneID}
	case mux.EventWindowCreated:
		body = transport.WindowCreatedMsg{SessionID: ev.SessionID, WindowID: ev.WindowID}
	case mux.EventWindowClosed:
		body = transport.WindowClosedMsg{SessionID: ev.SessionID, WindowID: ev.WindowID}
	case mux.EventLayoutCreated:
		body = transport.LayoutCreatedMsg{WindowID: ev.WindowID}
	case mux.EventSessionEnded:
		body = transport.SessionEndedMsg{SessionID: ev.SessionID}
	default:
		return transport.Frame{}, false
	}

	if err := setData(&f, body); err != nil {
		return transport.Frame{}, false
	}
	return f, true
}
