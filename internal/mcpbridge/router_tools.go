package mcpbridge

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fugue-mux/fugue/internal/router"
)

// registerRouterTools exposes the Orchestration Router (§4.10) to MCP
// agents. set_tags/get_tags already live in session_tools.go since
// they mutate both the Session Manager's tag store and the Router's
// tag index in lockstep; this file covers the remaining two: message
// delivery and polling.
func (b *Bridge) registerRouterTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("send_orchestration",
		mcp.WithDescription("Send an opaque orchestration message to one session, every session carrying a tag, every session sharing a worktree, or every session (broadcast). The router never interprets the payload."),
		mcp.WithString("msg_type", mcp.Required()),
		mcp.WithObject("payload", mcp.Description("opaque JSON payload")),
		mcp.WithString("from", mcp.Description("sender session id or agent label")),
		mcp.WithString("target_session", mcp.Description("deliver to this session id only")),
		mcp.WithString("target_tag", mcp.Description("deliver to every session carrying this tag")),
		mcp.WithString("target_worktree", mcp.Description("deliver to every session in this worktree")),
		mcp.WithBoolean("broadcast", mcp.Description("deliver to every session"), mcp.DefaultBool(false)),
	), b.handleSendOrchestration)

	s.AddTool(mcp.NewTool("poll_messages",
		mcp.WithDescription("Drain up to max pending orchestration messages queued for a session."),
		mcp.WithString("session", mcp.Required()),
		mcp.WithNumber("max", mcp.DefaultNumber(50)),
	), b.handlePollMessages)
}

func (b *Bridge) handleSendOrchestration(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	target := router.Target{
		Session:   argString(args, "target_session", ""),
		Tag:       argString(args, "target_tag", ""),
		Worktree:  argString(args, "target_worktree", ""),
		Broadcast: argBool(args, "broadcast", false),
	}
	msg := router.Message{
		MsgType: argString(args, "msg_type", ""),
		Payload: args["payload"],
		From:    argString(args, "from", ""),
	}
	b.router.Send(target, msg)
	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handlePollMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	msgs := b.router.PollMessages(argString(args, "session", ""), argInt(args, "max", 50))
	return textResult(map[string][]router.Message{"messages": msgs})
}
