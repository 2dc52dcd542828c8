// Command fuguemuxd is the terminal-multiplexer daemon entrypoint: it
// wires the Session Manager, Orchestration Router, Client Registry,
// MCP Bridge, persistence, housekeeping, and pairing together and
// serves them over a Unix socket, a websocket gateway, and an MCP
// Streamable HTTP endpoint.
//
// Grounded almost directly on kojo's cmd/kojo/main.go: the same flag
// set shape (-port/-local/-dev/-version), listenWithFallback's
// port-busy retry loop, the tsnet branch for non-local mode, and
// signal.NotifyContext-driven graceful shutdown — generalized from
// kojo's single HTTP server to this daemon's extra raw Unix-socket
// listener loop (registry.ConnHandler accepts connections directly,
// mirroring wsgateway.Gateway.ServeHTTP's per-connection wiring but
// without an HTTP upgrade in front of it).
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"tailscale.com/tsnet"

	"github.com/fugue-mux/fugue/internal/dispatch"
	"github.com/fugue-mux/fugue/internal/housekeep"
	"github.com/fugue-mux/fugue/internal/ids"
	"github.com/fugue-mux/fugue/internal/mcpbridge"
	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/notify"
	"github.com/fugue-mux/fugue/internal/pairing"
	"github.com/fugue-mux/fugue/internal/persist"
	"github.com/fugue-mux/fugue/internal/registry"
	"github.com/fugue-mux/fugue/internal/router"
	"github.com/fugue-mux/fugue/internal/wsgateway"
)

var version = "0.1.0"

const defaultMaxScrollbackLines = 10000

func main() {
	port := flag.Int("port", 7771, "TCP/websocket port (auto-increments if busy)")
	socketPath := flag.String("socket", defaultSocketPath(), "Unix socket path for the raw frame listener")
	dbPath := flag.String("db", defaultDBPath(), "sqlite path for the event log and snapshots")
	dev := flag.Bool("dev", false, "enable debug logging")
	local := flag.Bool("local", false, "listen on localhost only (no Tailscale)")
	pair := flag.Bool("pair", true, "require a TOTP pairing code for TCP/websocket attach")
	showVersion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *showVersion {
		fmt.Println("fuguemuxd", version)
		return
	}

	logLevel := slog.LevelInfo
	if *dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	store, err := persist.Open(*dbPath, logger)
	if err != nil {
		logger.Error("failed to open persistence store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	notifier, err := notify.NewManager(logger)
	if err != nil {
		logger.Error("failed to set up push notifications", "err", err)
		os.Exit(1)
	}

	manager := mux.NewManager(logger, mux.NopSink{}, defaultMaxScrollbackLines)
	reg := registry.New(logger, manager)
	manager.SetSink(mux.MultiSink{reg, store, notifier})

	rtr := router.New(logger)
	manager.SetSessionCreatedHook(rtr.RegisterSession)
	dispatchServer := dispatch.NewServer(manager, rtr, reg, logger)
	bridge := mcpbridge.New(manager, rtr, logger)

	sched := housekeep.New(logger, manager, store)
	if err := sched.Start(housekeep.DefaultLockSweepSchedule, housekeep.DefaultSnapshotSchedule); err != nil {
		logger.Error("failed to start housekeeping", "err", err)
		os.Exit(1)
	}

	var pairer *pairing.Manager
	if *pair {
		pairer, err = pairing.New("fuguemuxd", fmt.Sprintf("localhost:%d", *port))
		if err != nil {
			logger.Error("failed to generate pairing secret", "err", err)
			os.Exit(1)
		}
		code, _ := pairer.Code()
		fmt.Fprintf(os.Stderr, "\n  pairing code: %s\n\n", code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	unixLn, err := listenUnixSocket(*socketPath, logger)
	if err != nil {
		logger.Error("failed to listen on unix socket", "err", err)
		os.Exit(1)
	}
	defer unixLn.Close()
	go acceptRawConns(ctx, unixLn, reg, dispatchServer, logger)

	httpMux := http.NewServeMux()
	gateway := wsgateway.New(reg, dispatchServer, logger)
	httpMux.Handle("/ws", pairingGate(pairer, gateway, logger))
	httpMux.Handle("/mcp/", http.StripPrefix("/mcp", bridge.StreamableHTTPHandler()))
	httpMux.HandleFunc("/pair/qr", func(w http.ResponseWriter, r *http.Request) {
		servePairingQR(w, pairer, *socketPath, logger)
	})

	srv := &http.Server{Handler: httpMux}

	if *local || *dev {
		ln, err := listenWithFallback("127.0.0.1", *port, 10, logger)
		if err != nil {
			logger.Error("failed to listen", "err", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "\n  fuguemuxd v%s running at:\n\n    http://%s\n    %s\n\n", version, ln.Addr().String(), *socketPath)
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "err", err)
				os.Exit(1)
			}
		}()
	} else {
		tsServer := &tsnet.Server{
			Hostname: "fuguemuxd",
			Logf:     func(format string, args ...any) { logger.Debug(fmt.Sprintf(format, args...)) },
		}
		defer tsServer.Close()

		ln, err := tsServer.ListenTLS("tcp", fmt.Sprintf(":%d", *port))
		if err != nil {
			logger.Error("failed to listen on tailscale", "err", err)
			os.Exit(1)
		}

		fmt.Fprintf(os.Stderr, "\n  fuguemuxd v%s running at:\n\n", version)
		lc, _ := tsServer.LocalClient()
		if lc != nil {
			if status, err := lc.Status(ctx); err == nil && status.Self != nil {
				dnsName := strings.TrimSuffix(status.Self.DNSName, ".")
				if dnsName != "" {
					fmt.Fprintf(os.Stderr, "    https://%s:%d\n", dnsName, *port)
				}
				for _, ip := range status.TailscaleIPs {
					fmt.Fprintf(os.Stderr, "    https://%s:%d\n", ip, *port)
				}
			} else {
				logger.Warn("could not get tailscale status", "err", err)
			}
		}
		fmt.Fprintln(os.Stderr)

		go func() {
			srv.TLSConfig = &tls.Config{}
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Error("server error", "err", err)
				os.Exit(1)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
}

func defaultSocketPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fuguemux", "fuguemuxd.sock")
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fuguemux", "fuguemux.db")
}

// listenUnixSocket removes a stale socket file left by a prior,
// uncleanly-terminated run before binding.
func listenUnixSocket(path string, logger *slog.Logger) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove stale socket", "path", path, "err", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return ln, nil
}

// acceptRawConns mirrors wsgateway.Gateway.ServeHTTP's per-connection
// wiring without an HTTP upgrade in front of it: every accepted
// connection gets its own registry.ConnHandler.
func acceptRawConns(ctx context.Context, ln net.Listener, reg *registry.Registry, handler dispatch.Handler, logger *slog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Warn("unix socket accept failed", "err", err)
			return
		}
		clientID := ids.New(ids.Client)
		client := reg.Register(clientID)
		h := registry.NewConnHandler(conn, client, reg, handler, logger)
		go h.Serve(ctx)
	}
}

// pairingGate requires a valid TOTP code in the X-Fugue-Pair header
// before handing a websocket upgrade request to gateway; nil pairer
// (pairing disabled) passes every request through.
func pairingGate(pairer *pairing.Manager, gateway http.Handler, logger *slog.Logger) http.Handler {
	if pairer == nil {
		return gateway
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get("X-Fugue-Pair")
		if !pairer.Validate(code) {
			logger.Warn("rejected attach with invalid pairing code", "remote", r.RemoteAddr)
			http.Error(w, "invalid pairing code", http.StatusUnauthorized)
			return
		}
		gateway.ServeHTTP(w, r)
	})
}

func servePairingQR(w http.ResponseWriter, pairer *pairing.Manager, socketPath string, logger *slog.Logger) {
	if pairer == nil {
		http.Error(w, "pairing disabled", http.StatusNotFound)
		return
	}
	content := fmt.Sprintf("%s|%s", pairer.URL(), socketPath)
	png, err := pairing.QRPNG(content)
	if err != nil {
		logger.Error("failed to render pairing qr", "err", err)
		http.Error(w, "failed to render qr", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func listenWithFallback(host string, startPort, maxAttempts int, logger *slog.Logger) (net.Listener, error) {
	for i := range maxAttempts {
		port := startPort + i
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			if i > 0 {
				logger.Info("port was busy, using fallback", "requested", startPort, "actual", port)
			}
			return ln, nil
		}
		if !strings.Contains(err.Error(), "address already in use") {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all ports %d-%d are in use", startPort, startPort+maxAttempts-1)
}
