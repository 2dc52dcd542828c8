package transport

import (
	"encoding/json"
	"fmt"
)

// DecodeInto unmarshals a Frame's Data into v.
func DecodeInto(f Frame, v any) error {
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Type, err)
	}
	return nil
}

// Client -> daemon messages (spec §6). Frame.Type carries the struct's
// name without its Msg suffix (e.g. "AttachSession", "Input").

type AttachSessionMsg struct {
	SessionQuery string `json:"session_query"`
}

type DetachSessionMsg struct {
	SessionID string `json:"session_id"`
}

type CreateSessionMsg struct {
	Name    string            `json:"name"`
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
}

type CreateWindowMsg struct {
	SessionID string   `json:"session_id"`
	Name      string   `json:"name"`
	Command   []string `json:"command"`
}

type CreatePaneMsg struct {
	SessionID  string   `json:"session_id"`
	WindowID   string   `json:"window_id"`
	Direction  string   `json:"direction"`
	Command    []string `json:"command"`
	Cwd        string   `json:"cwd,omitempty"`
	AgentType  string   `json:"agent_type,omitempty"`
}

type SplitPaneMsg struct {
	PaneID    string   `json:"pane_id"`
	Direction string   `json:"direction"`
	Command   []string `json:"command"`
}

type ClosePaneMsg struct {
	PaneID string `json:"pane_id"`
}

type KillSessionMsg struct {
	SessionID string `json:"session_id"`
}

type ResizeMsg struct {
	PaneID string `json:"pane_id"`
	Cols   uint16 `json:"cols"`
	Rows   uint16 `json:"rows"`
}

type InputMsg struct {
	PaneID string `json:"pane_id"`
	Text   string `json:"text"`
	// Unescape controls whether backslash/caret escapes in Text are
	// interpreted (spec §4.9's dual-delivery input contract).
	Unescape bool `json:"unescape"`
	Submit   bool `json:"submit"`
}

type FocusPaneMsg struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
	PaneID    string `json:"pane_id"`
	ClientID  string `json:"client_id"`
}

type SetEnvironmentMsg struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type GetEnvironmentMsg struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
}

type SetMetadataMsg struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

type GetMetadataMsg struct {
	SessionID string `json:"session_id"`
	Key       string `json:"key"`
}

type SetTagsMsg struct {
	SessionID string   `json:"session_id"`
	Tags      []string `json:"tags"`
}

type AddTagMsg struct {
	SessionID string `json:"session_id"`
	Tag       string `json:"tag"`
}

type RemoveTagMsg struct {
	SessionID string `json:"session_id"`
	Tag       string `json:"tag"`
}

type ListSessionsMsg struct{}

type ListWindowsMsg struct {
	SessionID string `json:"session_id"`
}

type ListPanesMsg struct {
	WindowID string `json:"window_id"`
}

type ReadPaneMsg struct {
	PaneID string `json:"pane_id"`
	Lines  int    `json:"lines"`
}

type UserCommandModeEnteredMsg struct {
	ClientID string `json:"client_id"`
	Timeout  int    `json:"timeout_ms"`
}

type UserCommandModeExitedMsg struct {
	ClientID string `json:"client_id"`
}

type RedrawMsg struct {
	PaneID string `json:"pane_id"`
}

type SendOrchestrationMsg struct {
	Target  OrchestrationTarget `json:"target"`
	MsgType string              `json:"msg_type"`
	Payload any                 `json:"payload"`
}

type OrchestrationTarget struct {
	Session   string `json:"session,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Worktree  string `json:"worktree,omitempty"`
	Broadcast bool   `json:"broadcast,omitempty"`
}

type PollMessagesMsg struct {
	SessionID string `json:"session_id"`
	Max       int    `json:"max"`
}

// Daemon -> client messages.

type AttachedMsg struct {
	Snapshot StateSnapshotMsg `json:"snapshot"`
}

type StateSnapshotMsg struct {
	Sessions []SessionSummary `json:"sessions"`
	// FullClear instructs the client to discard any prior rendered state
	// before applying this snapshot (spec §4.11).
	FullClear bool `json:"full_clear"`
}

type SessionSummary struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Windows []WindowSummary  `json:"windows"`
	Tags    []string         `json:"tags,omitempty"`
}

type WindowSummary struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Panes []PaneSummary `json:"panes"`
}

type PaneSummary struct {
	ID      string `json:"id"`
	Cols    uint16 `json:"cols"`
	Rows    uint16 `json:"rows"`
	State   string `json:"state"`
	Command string `json:"command"`

	// Scrollback carries the pane's current scrollback tail (spec
	// §4.11(b)) so an attaching client can redraw its screen from
	// scratch without an empty-pane artifact.
	Scrollback []string `json:"scrollback,omitempty"`
	ExitCode   *int     `json:"exit_code,omitempty"`
}

type SessionListMsg struct {
	Sessions []SessionSummary `json:"sessions"`
}

type WindowListMsg struct {
	Windows []WindowSummary `json:"windows"`
}

type PaneListMsg struct {
	Panes []PaneSummary `json:"panes"`
}

type OutputMsg struct {
	PaneID string `json:"pane_id"`
	Data   []byte `json:"data"`
}

type PaneCreatedMsg struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
	PaneID    string `json:"pane_id"`
}

type PaneClosedMsg struct {
	PaneID   string `json:"pane_id"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

type PaneResizedMsg struct {
	PaneID string `json:"pane_id"`
	Cols   uint16 `json:"cols"`
	Rows   uint16 `json:"rows"`
}

type PaneStateChangedMsg struct {
	PaneID   string `json:"pane_id"`
	State    string `json:"state"`
	Activity string `json:"activity,omitempty"`
}

type FocusChangedMsg struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
	PaneID    string `json:"pane_id"`
}

type WindowCreatedMsg struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
	PaneID    string `json:"pane_id,omitempty"`
}

type WindowClosedMsg struct {
	SessionID string `json:"session_id"`
	WindowID  string `json:"window_id"`
}

type LayoutCreatedMsg struct {
	WindowID string `json:"window_id"`
}

type SessionEndedMsg struct {
	SessionID string `json:"session_id"`
}

type OrchestrationMessageMsg struct {
	MsgType string `json:"msg_type"`
	Payload any    `json:"payload"`
	From    string `json:"from"`
}

type ErrorMsg struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}
