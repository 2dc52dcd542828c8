package mcpbridge

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/muxerr"
)

// maxParallelPanes enforces the OutOfPanes policy named in spec §7 for
// run_parallel/run_pipeline: at most 10 panes per call.
const maxParallelPanes = 10

var (
	exitMarkerRegex        = regexp.MustCompile(`___FUGUE_EXIT_(\d+)___`)
	exitMarkerShellLiteral = strings.ReplaceAll(exitMarkerFmt, "%d", "$?")
)

func wrapWithExitMarker(cmd string) string {
	return "{ " + cmd + ";}; echo \"" + exitMarkerShellLiteral + "\"\n"
}

type commandResult struct {
	Command    string `json:"command"`
	PaneID     string `json:"pane_id,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out"`
}

// registerHelperTools wires the higher-level helpers named in spec
// §4.12, built entirely out of the one-to-one Session Manager tools
// registered in session_tools.go.
func (b *Bridge) registerHelperTools(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("run_parallel",
		mcp.WithDescription("Run up to 10 shell commands concurrently, each in its own pane. Each command is wrapped with a reserved exit marker and polled via read_pane until it completes or the timeout elapses."),
		mcp.WithString("session", mcp.Description("existing session id/name to host the panes; a fresh session is created if omitted")),
		mcp.WithArray("commands", mcp.Required(), mcp.Description("shell command strings, one pane each, max 10")),
		mcp.WithString("layout", mcp.Description("tiled or hidden"), mcp.Enum("tiled", "hidden"), mcp.DefaultString("tiled")),
		mcp.WithNumber("timeout_ms", mcp.DefaultNumber(300000)),
		mcp.WithBoolean("cleanup", mcp.Description("close each pane once its command exits"), mcp.DefaultBool(true)),
	), b.handleRunParallel)

	s.AddTool(mcp.NewTool("run_pipeline",
		mcp.WithDescription("Sequential variant of run_parallel: runs each command in its own pane, one after another, stopping early on the first non-zero exit unless stop_on_error=false."),
		mcp.WithString("session", mcp.Description("existing session id/name; a fresh session is created if omitted")),
		mcp.WithArray("commands", mcp.Required()),
		mcp.WithNumber("timeout_ms", mcp.DefaultNumber(300000)),
		mcp.WithBoolean("cleanup", mcp.DefaultBool(true)),
		mcp.WithBoolean("stop_on_error", mcp.DefaultBool(true)),
	), b.handleRunPipeline)

	s.AddTool(mcp.NewTool("expect",
		mcp.WithDescription("Poll a pane's output roughly every 200ms until a regular expression pattern matches or a timeout elapses."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithString("pattern", mcp.Required()),
		mcp.WithNumber("timeout_ms", mcp.DefaultNumber(60000)),
		mcp.WithString("action", mcp.Description("notify, close_pane, or return_output"), mcp.Enum("notify", "close_pane", "return_output"), mcp.DefaultString("return_output")),
	), b.handleExpect)

	s.AddTool(mcp.NewTool("watchdog_start",
		mcp.WithDescription("Start a pane watchdog: every interval_secs, writes message (submitted like Enter) to the pane. At most one watchdog per pane; starting a new one replaces the old."),
		mcp.WithString("pane_id", mcp.Required()),
		mcp.WithNumber("interval_secs", mcp.Required()),
		mcp.WithString("message", mcp.Required()),
	), b.handleWatchdogStart)

	s.AddTool(mcp.NewTool("watchdog_stop",
		mcp.WithDescription("Cancel a pane's watchdog, if one is running."),
		mcp.WithString("pane_id", mcp.Required()),
	), b.handleWatchdogStop)
}

// resolveHostWindow returns a (session, window) pair to host run_parallel/
// run_pipeline panes, creating a throwaway session when the caller
// didn't name one.
func (b *Bridge) resolveHostWindow(args map[string]any) (session, windowID string, err error) {
	session = argString(args, "session", "")
	if session != "" {
		windows, werr := b.manager.ListWindows(session)
		if werr != nil {
			return "", "", werr
		}
		if len(windows) == 0 {
			return "", "", muxerr.New(muxerr.NotFound, "session "+session+" has no windows")
		}
		return session, windows[0], nil
	}
	sessionID, createdWindowID, _, cerr := b.manager.CreateSession("", nil, nil)
	if cerr != nil {
		return "", "", cerr
	}
	return sessionID, createdWindowID, nil
}

// waitForExitMarker polls a pane's scrollback tail for the exit-marker
// line, returning the parsed exit code, or timedOut=true if deadline
// passes first.
func (b *Bridge) waitForExitMarker(ctx context.Context, paneID string, deadline time.Time) (code *int, timedOut bool) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		if lines, err := b.manager.ReadPane(paneID, 50); err == nil {
			for i := len(lines) - 1; i >= 0; i-- {
				if m := exitMarkerRegex.FindStringSubmatch(lines[i]); m != nil {
					n, _ := strconv.Atoi(m[1])
					return &n, false
				}
			}
		}
		if time.Now().After(deadline) {
			return nil, true
		}
		select {
		case <-ctx.Done():
			return nil, true
		case <-ticker.C:
		}
	}
}

func (b *Bridge) handleRunParallel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	commands := argStringSlice(args, "commands")
	if len(commands) == 0 {
		return toolErrorf("commands must be a non-empty array")
	}
	if len(commands) > maxParallelPanes {
		return toolError(muxerr.Newf(muxerr.OutOfPanes, "run_parallel supports at most %d commands, got %d", maxParallelPanes, len(commands)))
	}
	timeout := time.Duration(argInt(args, "timeout_ms", 300000)) * time.Millisecond
	cleanup := argBool(args, "cleanup", true)
	deadline := time.Now().Add(timeout)

	session, windowID, err := b.resolveHostWindow(args)
	if err != nil {
		return toolError(err)
	}

	results := make([]commandResult, len(commands))
	var wg sync.WaitGroup
	for i, cmd := range commands {
		i, cmd := i, cmd
		paneID, perr := b.manager.CreatePane(session, windowID, mux.Horizontal, nil, "", nil, false)
		if perr != nil {
			results[i] = commandResult{Command: cmd}
			continue
		}
		start := time.Now()
		if serr := b.manager.SendInput(paneID, wrapWithExitMarker(cmd), false, true); serr != nil {
			results[i] = commandResult{Command: cmd, PaneID: paneID}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, timedOut := b.waitForExitMarker(ctx, paneID, deadline)
			results[i] = commandResult{
				Command:    cmd,
				PaneID:     paneID,
				ExitCode:   code,
				DurationMs: time.Since(start).Milliseconds(),
				TimedOut:   timedOut,
			}
			if cleanup {
				_ = b.manager.ClosePane(paneID)
			}
		}()
	}
	wg.Wait()
	return textResult(map[string]any{"results": results})
}

func (b *Bridge) handleRunPipeline(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	commands := argStringSlice(args, "commands")
	if len(commands) == 0 {
		return toolErrorf("commands must be a non-empty array")
	}
	if len(commands) > maxParallelPanes {
		return toolError(muxerr.Newf(muxerr.OutOfPanes, "run_pipeline supports at most %d commands, got %d", maxParallelPanes, len(commands)))
	}
	timeout := time.Duration(argInt(args, "timeout_ms", 300000)) * time.Millisecond
	cleanup := argBool(args, "cleanup", true)
	stopOnError := argBool(args, "stop_on_error", true)

	session, windowID, err := b.resolveHostWindow(args)
	if err != nil {
		return toolError(err)
	}

	results := make([]commandResult, 0, len(commands))
	for _, cmd := range commands {
		deadline := time.Now().Add(timeout)
		paneID, perr := b.manager.CreatePane(session, windowID, mux.Horizontal, nil, "", nil, false)
		if perr != nil {
			results = append(results, commandResult{Command: cmd})
			break
		}
		start := time.Now()
		if serr := b.manager.SendInput(paneID, wrapWithExitMarker(cmd), false, true); serr != nil {
			results = append(results, commandResult{Command: cmd, PaneID: paneID})
			break
		}
		code, timedOut := b.waitForExitMarker(ctx, paneID, deadline)
		res := commandResult{
			Command:    cmd,
			PaneID:     paneID,
			ExitCode:   code,
			DurationMs: time.Since(start).Milliseconds(),
			TimedOut:   timedOut,
		}
		results = append(results, res)
		if cleanup {
			_ = b.manager.ClosePane(paneID)
		}
		if timedOut || (stopOnError && (code == nil || *code != 0)) {
			break
		}
	}
	return textResult(map[string]any{"results": results})
}

func (b *Bridge) handleExpect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	paneID := argString(args, "pane_id", "")
	patternStr := argString(args, "pattern", "")
	action := argString(args, "action", "return_output")
	timeout := time.Duration(argInt(args, "timeout_ms", 60000)) * time.Millisecond

	re, rerr := regexp.Compile(patternStr)
	if rerr != nil {
		return toolErrorf("invalid pattern: %v", rerr)
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var matched bool
	var output []string
	for {
		if lines, err := b.manager.ReadPane(paneID, 200); err == nil {
			output = lines
			if re.MatchString(strings.Join(lines, "\n")) {
				matched = true
				break
			}
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return toolErrorf("expect cancelled")
		case <-ticker.C:
		}
	}

	if matched && action == "close_pane" {
		_ = b.manager.ClosePane(paneID)
	}
	return textResult(map[string]any{"matched": matched, "output": output})
}

func (b *Bridge) handleWatchdogStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	paneID := argString(args, "pane_id", "")
	pane, ok := b.manager.Pane(paneID)
	if !ok {
		return toolError(muxerr.New(muxerr.NotFound, "pane "+paneID))
	}
	interval := time.Duration(argInt(args, "interval_secs", 30)) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	message := argString(args, "message", "")

	// SetWatchdog (called by StartWatchdog) stops any watchdog already
	// attached to this pane, so starting a new one replaces the old
	// one as the tool description promises.
	mux.StartWatchdog(pane, interval, message)

	return mcp.NewToolResultText("ok"), nil
}

func (b *Bridge) handleWatchdogStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	paneID := argString(args, "pane_id", "")
	pane, ok := b.manager.Pane(paneID)
	if !ok {
		return toolError(muxerr.New(muxerr.NotFound, "pane "+paneID))
	}
	if w := pane.Watchdog(); w != nil {
		w.Stop()
	}
	return mcp.NewToolResultText("ok"), nil
}
