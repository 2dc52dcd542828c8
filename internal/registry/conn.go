package registry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/fugue-mux/fugue/internal/dispatch"
	"github.com/fugue-mux/fugue/internal/transport"
)

// pingInterval/pingTimeout mirror kojo's wsPingLoop cadence, carried
// over to a raw net.Conn via an application-level Ping/Pong frame pair
// instead of a websocket control frame.
const (
	pingInterval = 30 * time.Second
	pingTimeout  = 10 * time.Second
)

// ConnHandler runs one connection's reader/writer/ping task trio,
// directly grounded on kojo's wsReadLoop/wsWriteLoop/wsPingLoop split
// in internal/server/websocket.go, generalized from a websocket.Conn
// to any net.Conn carrying the transport.Frame wire format.
type ConnHandler struct {
	conn     net.Conn
	client   *Client
	registry *Registry
	router   dispatch.Handler
	logger   *slog.Logger
}

// NewConnHandler wires a freshly accepted connection to clientID's
// Registry entry and a command Handler responsible for mutating
// session state in response to inbound frames.
func NewConnHandler(conn net.Conn, client *Client, reg *Registry, router dispatch.Handler, logger *slog.Logger) *ConnHandler {
	return &ConnHandler{conn: conn, client: client, registry: reg, router: router, logger: logger}
}

// Serve blocks for the lifetime of the connection, running the reader
// and writer loops concurrently and returning once either exits.
func (h *ConnHandler) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer h.registry.Unregister(h.client.ID)

	done := make(chan struct{})
	go func() {
		h.readLoop(ctx, cancel)
		close(done)
	}()
	go h.pingLoop(ctx, cancel)

	h.writeLoop(ctx)
	<-done
}

func (h *ConnHandler) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		f, err := transport.ReadFrame(h.conn)
		if err != nil {
			if h.logger != nil && !errors.Is(err, context.Canceled) {
				h.logger.Debug("connection read loop ending", "client", h.client.ID, "err", err)
			}
			return
		}
		if f.Type == "Pong" {
			continue
		}
		resp, ok := h.router.Handle(h.client.ID, f)
		if ok {
			h.client.Enqueue(resp)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (h *ConnHandler) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-h.client.Outbound():
			if !ok {
				return
			}
			if err := writeFrameRaw(h.conn, f); err != nil {
				return
			}
		}
	}
}

func (h *ConnHandler) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.conn.SetWriteDeadline(time.Now().Add(pingTimeout)); err != nil {
				cancel()
				return
			}
			if err := transport.WriteFrame(h.conn, "Ping", struct{}{}); err != nil {
				cancel()
				return
			}
			_ = h.conn.SetWriteDeadline(time.Time{})
		}
	}
}

func writeFrameRaw(conn net.Conn, f transport.Frame) error {
	return transport.WriteRawFrame(conn, f)
}
