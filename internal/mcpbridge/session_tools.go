package mcpbridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fugue-mux/fugue/internal/mux"
)

// registerSessionTools wires one MCP tool per Session Manager
// operation named in spec §4.6, so every contract listed there is
// reachable from an agent directly, without going through the
// higher-level run_parallel/expect/run_pipeline helpers.
func (b *Bridge) registerSessionTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new session with one default window and pane running a live PTY."),
		mcp.WithString("name", mcp.Description("optional session name")),
		mcp.WithArray("command", mcp.Description("optional argv to run in the default pane instead of the default shell")),
		mcp.WithObject("env", mcp.Description("optional extra environment variables for the default pane")),
	), b.handleCreateSession)

	s.AddTool(mcp.NewTool("create_window",
		mcp.WithDescription("Create a new window (with one default pane) inside an existing session."),
		mcp.WithString("session", mcp.Required(), mcp.Description("session id or name")),
		mcp.WithString("name", mcp.Description("optional window name")),
		mcp.WithArray("command", mcp.Description("optional argv for the window's default pane")),
	), b.handleCreateWindow)

	s.AddTool(mcp.NewTool("create_pane",
		mcp.WithDescription("Create a new pane inside an existing window by splitting it."),
		mcp.WithString("session", mcp.Required(), mcp.Description("session id or name")),
		mcp.WithString("window", mcp.Required(), mcp.Description("window id")),
		mcp.WithString("direction", mcp.Description("horizontal or vertical"), mcp.Enum("horizontal", "vertical"), mcp.DefaultString("horizontal")),
		mcp.WithArray("command", mcp.Description("optional argv for the new pane")),
		mcp.WithString("cwd", mcp.Description("optional working directory")),
		mcp.WithObject("env", mcp.Description("optional extra environment variables")),
		mcp.WithBoolean("select", mcp.Description("move focus to the new pane"), mcp.DefaultBool(false)),
	), b.handleCreatePane)

	s.AddTool(mcp.NewTool("split_pane",
		mcp.WithDescription("Split an existing pane, creating a new pane in the same window."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithString("direction", mcp.Description("horizontal or vertical"), mcp.Enum("horizontal", "vertical"), mcp.DefaultString("horizontal")),
		mcp.WithArray("command", mcp.Description("optional argv for the new pane")),
		mcp.WithString("cwd", mcp.Description("optional working directory")),
	), b.handleSplitPane)

	s.AddTool(mcp.NewTool("close_pane",
		mcp.WithDescription("Kill a pane's PTY; the pane and, transitively, its empty window/session are removed asynchronously by the cleanup loop."),
		mcp.WithString("pane_id", mcp.Required()),
	), b.handleClosePane)

	s.AddTool(mcp.NewTool("kill_session",
		mcp.WithDescription("Tear down a session: every attached client receives SessionEnded, then the session is removed."),
		mcp.WithString("session", mcp.Required(), mcp.Description("session id or name")),
	), b.handleKillSession)

	s.AddTool(mcp.NewTool("resize_pane",
		mcp.WithDescription("Resize a pane's PTY to an absolute size."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithNumber("cols", mcp.Required()),
		mcp.WithNumber("rows", mcp.Required()),
	), b.handleResizePane)

	s.AddTool(mcp.NewTool("resize_pane_delta",
		mcp.WithDescription("Resize a pane's PTY by a relative delta."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithNumber("dcols", mcp.DefaultNumber(0)),
		mcp.WithNumber("drows", mcp.DefaultNumber(0)),
	), b.handleResizePaneDelta)

	s.AddTool(mcp.NewTool("send_input",
		mcp.WithDescription("Write text to a pane's PTY. Unless literal=true, \\n \\r \\t \\b \\e escapes and ^X caret-notation are decoded first. If submit=true, a trailing carriage return is sent after a short settle delay so TUI agents treat it as Enter."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithBoolean("submit", mcp.DefaultBool(false)),
		mcp.WithBoolean("literal", mcp.DefaultBool(false)),
	), b.handleSendInput)

	s.AddTool(mcp.NewTool("set_environment",
		mcp.WithDescription("Set a session environment variable, inherited by panes spawned afterward."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("value", mcp.Required()),
	), b.handleSetEnvironment)

	s.AddTool(mcp.NewTool("get_environment",
		mcp.WithDescription("Read a session environment variable."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
	), b.handleGetEnvironment)

	s.AddTool(mcp.NewTool("set_metadata",
		mcp.WithDescription("Set an opaque session metadata key/value pair."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
		mcp.WithString("value", mcp.Required()),
	), b.handleSetMetadata)

	s.AddTool(mcp.NewTool("get_metadata",
		mcp.WithDescription("Read an opaque session metadata value."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("key", mcp.Required()),
	), b.handleGetMetadata)

	s.AddTool(mcp.NewTool("set_tags",
		mcp.WithDescription("Replace a session's full tag set."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithArray("tags", mcp.Required()),
	), b.handleSetTags)

	s.AddTool(mcp.NewTool("add_tag",
		mcp.WithDescription("Add one tag to a session."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("tag", mcp.Required()),
	), b.handleAddTag)

	s.AddTool(mcp.NewTool("remove_tag",
		mcp.WithDescription("Remove one tag from a session."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("tag", mcp.Required()),
	), b.handleRemoveTag)

	s.AddTool(mcp.NewTool("get_tags",
		mcp.WithDescription("List a session's current tags."),
		mcp.WithString("session", mcp.Required()),
	), b.handleGetTags)

	s.AddTool(mcp.NewTool("list_sessions_tagged",
		mcp.WithDescription("List the ids of every session currently carrying a given tag."),
		mcp.WithString("tag", mcp.Required()),
	), b.handleListSessionsTagged)

	s.AddTool(mcp.NewTool("focus_pane",
		mcp.WithDescription("Move focus to a pane, broadcasting FocusChanged to attached clients. Subject to the User-Priority Lock: fails with user_priority_active while a human is in command mode."),
		mcp.WithString("pane_id", mcp.Required()),
	), b.handleFocusPane)

	s.AddTool(mcp.NewTool("select_window",
		mcp.WithDescription("Move the active window pointer within a session. Subject to the User-Priority Lock."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithString("window_id", mcp.Required()),
	), b.handleSelectWindow)

	s.AddTool(mcp.NewTool("select_session",
		mcp.WithDescription("Resolve a session and broadcast FocusChanged for it; no selection state is stored. Subject to the User-Priority Lock."),
		mcp.WithString("session", mcp.Required()),
	), b.handleSelectSession)

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List every live session id."),
	), b.handleListSessions)

	s.AddTool(mcp.NewTool("list_windows",
		mcp.WithDescription("List every window id belonging to a session."),
		mcp.WithString("session", mcp.Required()),
	), b.handleListWindows)

	s.AddTool(mcp.NewTool("list_panes",
		mcp.WithDescription("List every pane id belonging to a window."),
		mcp.WithString("window_id", mcp.Required()),
	), b.handleListPanes)

	s.AddTool(mcp.NewTool("read_pane",
		mcp.WithDescription("Read a pane's scrollback tail."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithNumber("lines", mcp.DefaultNumber(200)),
	), b.handleReadPane)

	s.AddTool(mcp.NewTool("user_command_mode_entered",
		mcp.WithDescription("Enter the User-Priority Lock (spec §4.14): MCP focus-changing tools are rejected until exited or the timeout elapses."),
		mcp.WithString("client_id", mcp.Required()),
		mcp.WithNumber("timeout_ms", mcp.DefaultNumber(2000)),
	), b.handleUserCommandModeEntered)

	s.AddTool(mcp.NewTool("user_command_mode_exited",
		mcp.WithDescription("Release a User-Priority Lock held by a client before its timeout."),
		mcp.WithString("client_id", mcp.Required()),
	), b.handleUserCommandModeExited)
}

func textResult(v any) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return toolErrorf("marshal result: %v", err)
	}
	return mcp.NewToolResultText(string(body)), nil
}

func (b *Bridge) handleCreateSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sessionID, windowID, paneID, err := b.manager.CreateSession(
		argString(args, "name", ""),
		argStringSlice(args, "command"),
		argStringMap(args, "env"),
	)
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"session_id": sessionID, "window_id": windowID, "pane_id": paneID})
}

func (b *Bridge) handleCreateWindow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	windowID, paneID, err := b.manager.CreateWindow(
		argString(args, "session", ""),
		argString(args, "name", ""),
		argStringSlice(args, "command"),
	)
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"window_id": windowID, "pane_id": paneID})
}

func (b *Bridge) handleCreatePane(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dir := mux.Direction(argString(args, "direction", string(mux.Horizontal)))
	paneID, err := b.manager.CreatePane(
		argString(args, "session", ""),
		argString(args, "window", ""),
		dir,
		argStringSlice(args, "command"),
		argString(args, "cwd", ""),
		argStringMap(args, "env"),
		argBool(args, "select", false),
	)
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"pane_id": paneID})
}

func (b *Bridge) handleSplitPane(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dir := mux.Direction(argString(args, "direction", string(mux.Horizontal)))
	paneID, err := b.manager.SplitPane(
		argString(args, "pane_id", ""),
		dir,
		argStringSlice(args, "command"),
		argString(args, "cwd", ""),
	)
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"pane_id": paneID})
}

func (b *Bridge) handleClosePane(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := b.manager.ClosePane(argString(args, "pane_id", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleKillSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := b.manager.KillSession(argString(args, "session", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleResizePane(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	cols := argInt(args, "cols", 0)
	rows := argInt(args, "rows", 0)
	if err := b.manager.ResizePane(argString(args, "pane_id", ""), uint16(cols), uint16(rows)); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleResizePaneDelta(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	dcols := argInt(args, "dcols", 0)
	drows := argInt(args, "drows", 0)
	if err := b.manager.ResizePaneDelta(argString(args, "pane_id", ""), int16(dcols), int16(drows)); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleSendInput(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	err := b.manager.SendInput(
		argString(args, "pane_id", ""),
		argString(args, "text", ""),
		argBool(args, "submit", false),
		argBool(args, "literal", false),
	)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleSetEnvironment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := b.manager.SetEnvironment(argString(args, "session", ""), argString(args, "key", ""), argString(args, "value", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleGetEnvironment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	v, err := b.manager.GetEnvironment(argString(args, "session", ""), argString(args, "key", ""))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"value": v})
}

func (b *Bridge) handleSetMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := b.manager.SetMetadata(argString(args, "session", ""), argString(args, "key", ""), argString(args, "value", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleGetMetadata(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	v, err := b.manager.GetMetadata(argString(args, "session", ""), argString(args, "key", ""))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"value": v})
}

func (b *Bridge) handleSetTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	session := argString(args, "session", "")
	tags := argStringSlice(args, "tags")
	if err := b.manager.SetTags(session, tags); err != nil {
		return toolError(err)
	}
	if resolved, err := b.manager.Session(session); err == nil {
		b.router.SetTags(resolved.ID, tags)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleAddTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	session := argString(args, "session", "")
	if err := b.manager.AddTag(session, argString(args, "tag", "")); err != nil {
		return toolError(err)
	}
	if resolved, err := b.manager.Session(session); err == nil {
		b.router.SetTags(resolved.ID, resolved.Tags())
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleRemoveTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	session := argString(args, "session", "")
	if err := b.manager.RemoveTag(session, argString(args, "tag", "")); err != nil {
		return toolError(err)
	}
	if resolved, err := b.manager.Session(session); err == nil {
		b.router.SetTags(resolved.ID, resolved.Tags())
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleGetTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	tags, err := b.manager.GetTags(argString(args, "session", ""))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string][]string{"tags": tags})
}

func (b *Bridge) handleListSessionsTagged(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	return textResult(map[string][]string{"sessions": b.manager.ListSessionsTagged(argString(args, "tag", ""))})
}

func (b *Bridge) handleFocusPane(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := b.manager.FocusPane(argString(args, "pane_id", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleSelectWindow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	if err := b.manager.SelectWindow(argString(args, "session", ""), argString(args, "window_id", "")); err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleSelectSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	id, err := b.manager.SelectSession(argString(args, "session", ""))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string]string{"session_id": id})
}

func (b *Bridge) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(map[string][]string{"sessions": b.manager.ListSessions()})
}

func (b *Bridge) handleListWindows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	windows, err := b.manager.ListWindows(argString(args, "session", ""))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string][]string{"windows": windows})
}

func (b *Bridge) handleListPanes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	panes, err := b.manager.ListPanesInWindow(argString(args, "window_id", ""))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string][]string{"panes": panes})
}

func (b *Bridge) handleReadPane(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	lines, err := b.manager.ReadPane(argString(args, "pane_id", ""), argInt(args, "lines", 200))
	if err != nil {
		return toolError(err)
	}
	return textResult(map[string][]string{"lines": lines})
}

func (b *Bridge) handleUserCommandModeEntered(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	timeout := time.Duration(argInt(args, "timeout_ms", 2000)) * time.Millisecond
	b.manager.EnterUserCommandMode(argString(args, "client_id", ""), timeout)
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleUserCommandModeExited(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	b.manager.ExitUserCommandMode(argString(args, "client_id", ""))
	return mcp.NewToolResultText("ok"), nil
}
