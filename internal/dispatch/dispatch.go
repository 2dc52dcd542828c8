// Package dispatch translates inbound transport.Frame requests (spec
// §6's client->daemon message set) into internal/mux.Manager and
// internal/router.Router calls, and the result back into a response
// Frame.
//
// Grounded on kojo's server.go HTTP-handler-per-operation shape
// (one function per REST verb, each doing a Manager call then
// translating a returned error into an HTTP status) — generalized
// here to one case per message Type in a single Handle dispatch,
// since the wire protocol is a single framed connection rather than
// discrete HTTP requests.
package dispatch

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/muxerr"
	"github.com/fugue-mux/fugue/internal/router"
	"github.com/fugue-mux/fugue/internal/transport"
)

// Handler processes one inbound frame from clientID, optionally
// returning a response frame (ok is false for fire-and-forget types
// such as Input/DetachSession/UserCommandModeEntered that broadcast instead of replying directly,
// matching spec §4.9's dual-delivery contract).
type Handler interface {
	Handle(clientID string, f transport.Frame) (transport.Frame, bool)
}

// Attacher is the subset of internal/registry.Registry the Server
// needs, kept as an interface so internal/dispatch never imports
// internal/registry (registry already imports internal/mux and would
// create an import cycle if dispatch depended on it directly while
// registry depended on dispatch for ConnHandler's router field).
type Attacher interface {
	Attach(clientID, sessionID string) (transport.AttachedMsg, error)
	Detach(clientID string)
}

// Server is the concrete Handler wiring the Session Manager and
// Orchestration Router to the wire protocol.
type Server struct {
	manager  *mux.Manager
	router   *router.Router
	attacher Attacher
	logger   *slog.Logger
}

func NewServer(m *mux.Manager, r *router.Router, attacher Attacher, logger *slog.Logger) *Server {
	return &Server{manager: m, router: r, attacher: attacher, logger: logger}
}

func (s *Server) Handle(clientID string, f transport.Frame) (transport.Frame, bool) {
	switch f.Type {
	case "AttachSession":
		return s.handleAttach(clientID, f)
	case "DetachSession":
		s.attacher.Detach(clientID)
		return transport.Frame{}, false
	case "CreateSession":
		return s.handleCreateSession(f)
	case "CreateWindow":
		return s.handleCreateWindow(f)
	case "CreatePane":
		return s.handleCreatePane(f)
	case "SplitPane":
		return s.handleSplitPane(f)
	case "ClosePane":
		return s.handleClosePane(f)
	case "KillSession":
		return s.handleKillSession(f)
	case "Resize":
		return s.handleResize(f)
	case "Input":
		return s.handleInput(f)
	case "FocusPane":
		return s.handleFocusPane(f)
	case "SetEnvironment":
		return s.handleSetEnvironment(f)
	case "GetEnvironment":
		return s.handleGetEnvironment(f)
	case "SetMetadata":
		return s.handleSetMetadata(f)
	case "GetMetadata":
		return s.handleGetMetadata(f)
	case "SetTags":
		return s.handleSetTags(f)
	case "AddTag":
		return s.handleAddTag(f)
	case "RemoveTag":
		return s.handleRemoveTag(f)
	case "ListSessions":
		return s.handleListSessions()
	case "ListWindows":
		return s.handleListWindows(f)
	case "ListPanes":
		return s.handleListPanes(f)
	case "ReadPane":
		return s.handleReadPane(f)
	case "UserCommandModeEntered":
		return s.handleUserCommandModeEntered(clientID, f)
	case "UserCommandModeExited":
		s.manager.ExitUserCommandMode(clientID)
		return transport.Frame{}, false
	case "SendOrchestration":
		return s.handleSendOrchestration(f)
	case "PollMessages":
		return s.handlePollMessages(f)
	default:
		if s.logger != nil {
			s.logger.Warn("unrecognized frame type", "client", clientID, "type", f.Type)
		}
		return errorFrame(muxerr.New(muxerr.Unsupported, "unknown message type "+f.Type)), true
	}
}

func (s *Server) handleClosePane(f transport.Frame) (transport.Frame, bool) {
	var m transport.ClosePaneMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.ClosePane(m.PaneID); err != nil {
		return errorFrame(err), true
	}
	return okFrame(), true
}

func (s *Server) handleKillSession(f transport.Frame) (transport.Frame, bool) {
	var m transport.KillSessionMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.KillSession(m.SessionID); err != nil {
		return errorFrame(err), true
	}
	return okFrame(), true
}

func (s *Server) handleAttach(clientID string, f transport.Frame) (transport.Frame, bool) {
	var m transport.AttachSessionMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	session, err := s.manager.Session(m.SessionQuery)
	if err != nil {
		return errorFrame(err), true
	}
	attached, err := s.attacher.Attach(clientID, session.ID)
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("Attached", attached), true
}

func (s *Server) handleCreateSession(f transport.Frame) (transport.Frame, bool) {
	var m transport.CreateSessionMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	sessionID, windowID, paneID, err := s.manager.CreateSession(m.Name, m.Command, m.Env)
	if err != nil {
		return errorFrame(err), true
	}
	// Router registration happens inside Manager.CreateSession via the
	// onSessionCreated hook (see cmd/fuguemuxd/main.go's wiring), so
	// every creation path — this one and internal/mcpbridge's — is
	// covered without duplicating the call here.
	return frameFor("PaneCreated", transport.PaneCreatedMsg{SessionID: sessionID, WindowID: windowID, PaneID: paneID}), true
}

func (s *Server) handleCreateWindow(f transport.Frame) (transport.Frame, bool) {
	var m transport.CreateWindowMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	windowID, paneID, err := s.manager.CreateWindow(m.SessionID, m.Name, m.Command)
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("WindowCreated", transport.WindowCreatedMsg{SessionID: m.SessionID, WindowID: windowID, PaneID: paneID}), true
}

func (s *Server) handleCreatePane(f transport.Frame) (transport.Frame, bool) {
	var m transport.CreatePaneMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	dir := mux.Horizontal
	if m.Direction == "vertical" {
		dir = mux.Vertical
	}
	paneID, err := s.manager.CreatePane(m.SessionID, m.WindowID, dir, m.Command, m.Cwd, nil, false)
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("PaneCreated", transport.PaneCreatedMsg{SessionID: m.SessionID, WindowID: m.WindowID, PaneID: paneID}), true
}

func (s *Server) handleSplitPane(f transport.Frame) (transport.Frame, bool) {
	var m transport.SplitPaneMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	dir := mux.Horizontal
	if m.Direction == "vertical" {
		dir = mux.Vertical
	}
	paneID, err := s.manager.SplitPane(m.PaneID, dir, m.Command, "")
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("PaneCreated", transport.PaneCreatedMsg{PaneID: paneID}), true
}

func (s *Server) handleResize(f transport.Frame) (transport.Frame, bool) {
	var m transport.ResizeMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.ResizePane(m.PaneID, m.Cols, m.Rows); err != nil {
		return errorFrame(err), true
	}
	return okFrame(), true
}

func (s *Server) handleInput(f transport.Frame) (transport.Frame, bool) {
	var m transport.InputMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.SendInput(m.PaneID, m.Text, m.Submit, !m.Unescape); err != nil {
		return errorFrame(err), true
	}
	return transport.Frame{}, false
}

func (s *Server) handleFocusPane(f transport.Frame) (transport.Frame, bool) {
	var m transport.FocusPaneMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.FocusPane(m.PaneID); err != nil {
		return errorFrame(err), true
	}
	return okFrame(), true
}

func (s *Server) handleSetEnvironment(f transport.Frame) (transport.Frame, bool) {
	var m transport.SetEnvironmentMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.SetEnvironment(m.SessionID, m.Key, m.Value); err != nil {
		return errorFrame(err), true
	}
	return okFrame(), true
}

func (s *Server) handleGetEnvironment(f transport.Frame) (transport.Frame, bool) {
	var m transport.GetEnvironmentMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	v, err := s.manager.GetEnvironment(m.SessionID, m.Key)
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("GetEnvironment", map[string]string{"key": m.Key, "value": v}), true
}

func (s *Server) handleSetMetadata(f transport.Frame) (transport.Frame, bool) {
	var m transport.SetMetadataMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.SetMetadata(m.SessionID, m.Key, m.Value); err != nil {
		return errorFrame(err), true
	}
	return okFrame(), true
}

func (s *Server) handleGetMetadata(f transport.Frame) (transport.Frame, bool) {
	var m transport.GetMetadataMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	v, err := s.manager.GetMetadata(m.SessionID, m.Key)
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("GetMetadata", map[string]string{"key": m.Key, "value": v}), true
}

func (s *Server) handleSetTags(f transport.Frame) (transport.Frame, bool) {
	var m transport.SetTagsMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.SetTags(m.SessionID, m.Tags); err != nil {
		return errorFrame(err), true
	}
	s.router.SetTags(m.SessionID, m.Tags)
	return okFrame(), true
}

func (s *Server) handleAddTag(f transport.Frame) (transport.Frame, bool) {
	var m transport.AddTagMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.AddTag(m.SessionID, m.Tag); err != nil {
		return errorFrame(err), true
	}
	tags, _ := s.manager.GetTags(m.SessionID)
	s.router.SetTags(m.SessionID, tags)
	return okFrame(), true
}

func (s *Server) handleRemoveTag(f transport.Frame) (transport.Frame, bool) {
	var m transport.RemoveTagMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	if err := s.manager.RemoveTag(m.SessionID, m.Tag); err != nil {
		return errorFrame(err), true
	}
	tags, _ := s.manager.GetTags(m.SessionID)
	s.router.SetTags(m.SessionID, tags)
	return okFrame(), true
}

func (s *Server) handleListSessions() (transport.Frame, bool) {
	ids := s.manager.ListSessions()
	summaries := make([]transport.SessionSummary, 0, len(ids))
	for _, id := range ids {
		session, err := s.manager.Session(id)
		if err != nil {
			continue
		}
		summaries = append(summaries, transport.SessionSummary{ID: session.ID, Name: session.Name, Tags: session.Tags()})
	}
	return frameFor("SessionList", transport.SessionListMsg{Sessions: summaries}), true
}

func (s *Server) handleListWindows(f transport.Frame) (transport.Frame, bool) {
	var m transport.ListWindowsMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	ids, err := s.manager.ListWindows(m.SessionID)
	if err != nil {
		return errorFrame(err), true
	}
	out := make([]transport.WindowSummary, 0, len(ids))
	for _, id := range ids {
		if w, ok := s.manager.Window(id); ok {
			out = append(out, transport.WindowSummary{ID: w.ID, Name: w.Name})
		}
	}
	return frameFor("WindowList", transport.WindowListMsg{Windows: out}), true
}

func (s *Server) handleListPanes(f transport.Frame) (transport.Frame, bool) {
	var m transport.ListPanesMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	ids, err := s.manager.ListPanesInWindow(m.WindowID)
	if err != nil {
		return errorFrame(err), true
	}
	out := make([]transport.PaneSummary, 0, len(ids))
	for _, id := range ids {
		p, ok := s.manager.Pane(id)
		if !ok {
			continue
		}
		state, _ := p.State()
		cmd := ""
		if len(p.Command) > 0 {
			cmd = p.Command[0]
		}
		out = append(out, transport.PaneSummary{ID: p.ID, Cols: p.Cols, Rows: p.Rows, State: string(state), Command: cmd})
	}
	return frameFor("PaneList", transport.PaneListMsg{Panes: out}), true
}

func (s *Server) handleReadPane(f transport.Frame) (transport.Frame, bool) {
	var m transport.ReadPaneMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	lines, err := s.manager.ReadPane(m.PaneID, m.Lines)
	if err != nil {
		return errorFrame(err), true
	}
	return frameFor("ReadPane", map[string]any{"pane_id": m.PaneID, "lines": lines}), true
}

func (s *Server) handleUserCommandModeEntered(clientID string, f transport.Frame) (transport.Frame, bool) {
	var m transport.UserCommandModeEnteredMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	timeout := time.Duration(m.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Second
	}
	s.manager.EnterUserCommandMode(clientID, timeout)
	return transport.Frame{}, false
}

func (s *Server) handleSendOrchestration(f transport.Frame) (transport.Frame, bool) {
	var m transport.SendOrchestrationMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	s.router.Send(router.Target{
		Session:   m.Target.Session,
		Tag:       m.Target.Tag,
		Worktree:  m.Target.Worktree,
		Broadcast: m.Target.Broadcast,
	}, router.Message{MsgType: m.MsgType, Payload: m.Payload})
	return okFrame(), true
}

func (s *Server) handlePollMessages(f transport.Frame) (transport.Frame, bool) {
	var m transport.PollMessagesMsg
	if err := transport.DecodeInto(f, &m); err != nil {
		return decodeErrorFrame(err), true
	}
	msgs := s.router.PollMessages(m.SessionID, m.Max)
	out := make([]transport.OrchestrationMessageMsg, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, transport.OrchestrationMessageMsg{MsgType: msg.MsgType, Payload: msg.Payload, From: msg.From})
	}
	return frameFor("OrchestrationMessage", map[string]any{"messages": out}), true
}

func okFrame() transport.Frame {
	return frameFor("Ok", struct{}{})
}

func frameFor(frameType string, v any) transport.Frame {
	data, err := json.Marshal(v)
	if err != nil {
		return errorFrame(muxerr.Wrap(muxerr.InvalidArgument, "encode response", err))
	}
	return transport.Frame{Type: frameType, Data: data}
}

func errorFrame(err error) transport.Frame {
	kind := string(muxerr.Unsupported)
	var fields map[string]any
	var me *muxerr.Error
	if errors.As(err, &me) {
		kind = string(me.Kind)
		fields = me.Fields
	}
	return frameFor("Error", transport.ErrorMsg{Kind: kind, Message: err.Error(), Fields: fields})
}

func decodeErrorFrame(err error) transport.Frame {
	return errorFrame(muxerr.Wrap(muxerr.FrameDecodeError, "decode request", err))
}
