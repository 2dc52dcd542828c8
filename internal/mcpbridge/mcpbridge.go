// Package mcpbridge exposes the Session Manager (spec §4.6) and the
// Orchestration Router (§4.10) as MCP tool calls (§4.12): a separate
// framed connection, distinct from TUI clients, that is a server from
// an agent tool's perspective and a client of internal/mux and
// internal/router from the daemon's perspective.
//
// Grounded on jaakkos/stringwork's cmd/mcp-server/main.go: the same
// mark3labs/mcp-go server.NewMCPServer + server.WithHooks +
// stdio-vs-HTTP transport split, generalized from stringwork's
// single hand-rolled collaboration-state tool surface to one tool per
// internal/mux.Manager / internal/router.Router operation.
package mcpbridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/muxerr"
	"github.com/fugue-mux/fugue/internal/router"
)

// exitMarkerFmt is the reserved completion marker run_parallel and
// run_pipeline append to every wrapped command (spec §6).
const exitMarkerFmt = "___FUGUE_EXIT_%d___"

// Bridge owns the MCP tool registrations; it never holds any state the
// Manager or Router don't already own. watchdog_start/watchdog_stop
// drive mux.Watchdog through the Pane directly rather than keeping a
// parallel cancellation table here, so a pane close (which already
// calls Pane.Kill -> Watchdog.Stop) can never leave this package's
// bookkeeping out of sync with the pane's actual state.
type Bridge struct {
	manager *mux.Manager
	router  *router.Router
	logger  *slog.Logger
}

func New(m *mux.Manager, r *router.Router, logger *slog.Logger) *Bridge {
	return &Bridge{
		manager: m,
		router:  r,
		logger:  logger,
	}
}

// NewMCPServer builds the mark3labs/mcp-go server with every tool
// registered, ready to be served over stdio or Streamable HTTP.
func (b *Bridge) NewMCPServer() *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result *mcp.CallToolResult) {
		if req != nil && b.logger != nil {
			b.logger.Debug("mcp tool call", "tool", req.Params.Name)
		}
	})

	s := server.NewMCPServer(
		"fuguemuxd",
		"1.0.0",
		server.WithHooks(hooks),
		server.WithToolCapabilities(true),
	)
	b.registerSessionTools(s)
	b.registerRouterTools(s)
	b.registerHelperTools(s)
	return s
}

// ServeStdio blocks serving the MCP protocol over stdin/stdout, the
// default transport for a single agent spawned as a PTY subprocess.
func (b *Bridge) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(b.NewMCPServer()).Listen(ctx, os.Stdin, os.Stdout)
}

// StreamableHTTPHandler returns an http.Handler serving the MCP
// Streamable HTTP transport, for agents that reach the daemon over a
// network socket instead of owning the process directly.
func (b *Bridge) StreamableHTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(b.NewMCPServer())
}

func toolError(err error) (*mcp.CallToolResult, error) {
	if me, ok := err.(*muxerr.Error); ok {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", me.Kind, me.Msg)), nil
	}
	return mcp.NewToolResultError(err.Error()), nil
}

func toolErrorf(format string, args ...any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}
