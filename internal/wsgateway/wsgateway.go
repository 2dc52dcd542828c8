// Package wsgateway exposes the same transport.Frame wire protocol
// (§6) the raw Unix/TCP Connection Handler serves, carried over a
// websocket for thin/browser clients.
//
// Grounded almost directly on kojo's server/websocket.go: the same
// websocket.Accept call with the same OriginPatterns allow-list (the
// teacher's Tailscale-and-localhost pattern, since this daemon is
// meant to be reached the same way kojo's was), generalized by
// wrapping the accepted *websocket.Conn with coder/websocket's
// NetConn adapter so the rest of the stack — transport.ReadFrame/
// WriteFrame, registry.ConnHandler — never needs a websocket-specific
// code path at all.
package wsgateway

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/fugue-mux/fugue/internal/dispatch"
	"github.com/fugue-mux/fugue/internal/ids"
	"github.com/fugue-mux/fugue/internal/registry"
)

// Gateway upgrades HTTP requests to websockets and hands each one to a
// registry.ConnHandler exactly as the raw-socket listener does.
type Gateway struct {
	registry *registry.Registry
	handler  dispatch.Handler
	logger   *slog.Logger

	// OriginPatterns mirrors kojo's allow-list: Tailscale CGNAT range,
	// Tailscale MagicDNS names, and localhost for local development.
	OriginPatterns []string
}

func New(reg *registry.Registry, handler dispatch.Handler, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: reg,
		handler:  handler,
		logger:   logger,
		OriginPatterns: []string{
			"100.*.*.*", "*.ts.net", "localhost:*", "127.0.0.1:*",
		},
	}
}

// ServeHTTP accepts one websocket connection and serves it for its
// lifetime, exactly like kojo's handleWebSocket but generalized to the
// framed Manager protocol instead of one fixed per-session message set.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.OriginPatterns,
	})
	if err != nil {
		if g.logger != nil {
			g.logger.Warn("websocket accept failed", "err", err)
		}
		return
	}
	defer conn.CloseNow()

	conn.SetReadLimit(64 * 1024)

	clientID := ids.New(ids.Client)
	client := g.registry.Register(clientID)

	ctx := r.Context()
	netConn := websocket.NetConn(ctx, conn, websocket.MessageBinary)
	defer netConn.Close()

	h := registry.NewConnHandler(netConn, client, g.registry, g.handler, g.logger)
	h.Serve(ctx)

	conn.Close(websocket.StatusNormalClosure, "session ended")
}
