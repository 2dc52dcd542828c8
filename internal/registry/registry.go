// Package registry implements the Client Registry and Connection
// Handler (spec §4.11): it tracks every attached client's outbound
// frame queue and fans out internal/mux.Event broadcasts and pane
// output to the clients currently attached to the concerned session.
//
// Grounded on kojo's internal/server/websocket.go: one goroutine pair
// per connection (wsReadLoop/wsWriteLoop there; readLoop/writeLoop
// here), an output channel read via select alongside ctx.Done(), and
// a ping/keepalive loop — generalized from a single kojo session's
// subscriber channel to a per-client registry entry that can be
// attached to any session and re-attached after a focus change. Unlike
// kojo's fixed-capacity channel, the outbound queue here (frameQueue,
// in queue.go) is genuinely unbounded: a slow or stalled client can
// never make Publish, or any other producer, block or drop a frame.
package registry

import (
	"log/slog"
	"sync"

	"github.com/fugue-mux/fugue/internal/mux"
	"github.com/fugue-mux/fugue/internal/transport"
)

// Client is one attached connection's registry entry: a genuinely
// unbounded outbound queue of frames (frameQueue) plus the session it
// is currently attached to. A relay goroutine drains the queue onto
// out, a small channel that exists only so a Connection Handler's
// writer task can select on it alongside ctx.Done(); the queue itself,
// not out, is where frames accumulate, so a slow or stalled reader
// never makes a producer block or drop a frame.
type Client struct {
	ID        string
	sessionID string

	queue *frameQueue
	out   chan transport.Frame

	fwMu       sync.Mutex
	forwarders map[string]*paneForwarder
}

func newClient(id string) *Client {
	c := &Client{ID: id, queue: newFrameQueue(), out: make(chan transport.Frame), forwarders: make(map[string]*paneForwarder)}
	go c.relay()
	return c
}

// relay drains the unbounded queue one frame at a time onto out. It is
// the only goroutine that ever sends on out, and the only one that
// ever closes it, so writeLoop's `f, ok := <-Outbound()` sees a clean
// close exactly once, after every queued frame has been delivered.
func (c *Client) relay() {
	for {
		f, ok := c.queue.pop()
		if !ok {
			close(c.out)
			return
		}
		c.out <- f
	}
}

// Enqueue appends f to the client's outbound queue. It never blocks
// and never drops f (see frameQueue).
func (c *Client) Enqueue(f transport.Frame) {
	c.queue.push(f)
}

// paneForwarder relays one pane's Broadcast output into a client's
// outbound queue as Output frames, for as long as the client remains
// attached to that pane's session.
type paneForwarder struct {
	stop chan struct{}
}

// Outbound exposes the client's send queue to its Connection Handler's
// writer task.
func (c *Client) Outbound() <-chan transport.Frame { return c.out }

// Registry is the process-wide attach/detach table. It implements
// mux.Sink so the Manager can publish Events directly into it.
type Registry struct {
	mu sync.Mutex

	logger  *slog.Logger
	manager *mux.Manager

	clients       map[string]*Client
	clientsBySess map[string]map[string]struct{} // session_id -> client ids attached to it
}

func New(logger *slog.Logger, manager *mux.Manager) *Registry {
	return &Registry{
		logger:        logger,
		manager:       manager,
		clients:       make(map[string]*Client),
		clientsBySess: make(map[string]map[string]struct{}),
	}
}

// Register creates a Client entry with no session attachment yet.
func (r *Registry) Register(clientID string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := newClient(clientID)
	r.clients[clientID] = c
	return c
}

// Unregister removes a client and its session attachment, closing its
// outbound queue so the writer task exits once it has drained whatever
// was already queued.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	c, ok := r.clients[clientID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if c.sessionID != "" {
		delete(r.clientsBySess[c.sessionID], clientID)
	}
	delete(r.clients, clientID)
	r.mu.Unlock()

	r.stopAllForwarders(c)
	c.queue.close()
}

// Attach moves a client's subscription to sessionID and returns a full
// StateSnapshot for that session alone, marked FullClear so the client
// discards any prior rendered state before applying it (spec §4.11).
func (r *Registry) Attach(clientID, sessionID string) (transport.AttachedMsg, error) {
	summary, err := r.sessionSummary(sessionID)
	if err != nil {
		return transport.AttachedMsg{}, err
	}

	r.mu.Lock()
	c, ok := r.clients[clientID]
	if !ok {
		r.mu.Unlock()
		return transport.AttachedMsg{}, nil
	}
	if c.sessionID != "" {
		delete(r.clientsBySess[c.sessionID], clientID)
	}
	c.sessionID = sessionID
	if r.clientsBySess[sessionID] == nil {
		r.clientsBySess[sessionID] = make(map[string]struct{})
	}
	r.clientsBySess[sessionID][clientID] = struct{}{}
	r.mu.Unlock()

	r.stopAllForwarders(c)
	for _, w := range summary.Windows {
		for _, p := range w.Panes {
			r.startForwarder(c, p.ID)
		}
	}

	return transport.AttachedMsg{
		Snapshot: transport.StateSnapshotMsg{
			Sessions:  []transport.SessionSummary{summary},
			FullClear: true,
		},
	}, nil
}

// Detach removes a client's session attachment without removing the
// client itself (it may attach elsewhere next).
func (r *Registry) Detach(clientID string) {
	r.mu.Lock()
	c, ok := r.clients[clientID]
	if !ok || c.sessionID == "" {
		r.mu.Unlock()
		return
	}
	delete(r.clientsBySess[c.sessionID], clientID)
	c.sessionID = ""
	r.mu.Unlock()

	r.stopAllForwarders(c)
}

// startForwarder subscribes to a pane's Broadcast output and relays it
// into the client's outbound queue as an Output frame until stopped.
func (r *Registry) startForwarder(c *Client, paneID string) {
	pane, ok := r.manager.Pane(paneID)
	if !ok {
		return
	}

	c.fwMu.Lock()
	if _, exists := c.forwarders[paneID]; exists {
		c.fwMu.Unlock()
		return
	}
	sub := pane.Subscribe()
	fw := &paneForwarder{stop: make(chan struct{})}
	c.forwarders[paneID] = fw
	c.fwMu.Unlock()

	go func() {
		for {
			select {
			case b, ok := <-sub:
				if !ok {
					return
				}
				body := transport.OutputMsg{PaneID: paneID, Data: b}
				f := transport.Frame{Type: "Output"}
				if err := setData(&f, body); err == nil {
					c.Enqueue(f)
				}
			case <-fw.stop:
				pane.Unsubscribe(sub)
				return
			}
		}
	}()
}

func (r *Registry) stopForwarder(c *Client, paneID string) {
	c.fwMu.Lock()
	fw, ok := c.forwarders[paneID]
	if ok {
		delete(c.forwarders, paneID)
	}
	c.fwMu.Unlock()
	if ok {
		close(fw.stop)
	}
}

func (r *Registry) stopAllForwarders(c *Client) {
	c.fwMu.Lock()
	ids := make([]string, 0, len(c.forwarders))
	for id := range c.forwarders {
		ids = append(ids, id)
	}
	c.fwMu.Unlock()
	for _, id := range ids {
		r.stopForwarder(c, id)
	}
}

// Publish implements mux.Sink: it fans an Event out as the
// corresponding transport frame to every client attached to the
// event's session, never blocking the Manager that called it.
func (r *Registry) Publish(ev mux.Event) {
	frame, ok := eventToFrame(ev)
	if !ok {
		return
	}
	r.mu.Lock()
	ids := make([]string, 0, len(r.clientsBySess[ev.SessionID]))
	for id := range r.clientsBySess[ev.SessionID] {
		ids = append(ids, id)
	}
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		clients = append(clients, r.clients[id])
	}
	r.mu.Unlock()

	for _, c := range clients {
		c.Enqueue(frame)
		switch ev.Kind {
		case mux.EventPaneCreated:
			r.startForwarder(c, ev.PaneID)
		case mux.EventPaneClosed:
			r.stopForwarder(c, ev.PaneID)
		}
	}
}

func (r *Registry) sessionSummary(sessionID string) (transport.SessionSummary, error) {
	session, err := r.manager.Session(sessionID)
	if err != nil {
		return transport.SessionSummary{}, err
	}
	out := transport.SessionSummary{ID: session.ID, Name: session.Name, Tags: session.Tags()}
	for _, wID := range session.Windows() {
		w, ok := r.manager.Window(wID)
		if !ok {
			continue
		}
		ws := transport.WindowSummary{ID: w.ID, Name: w.Name}
		for _, pID := range w.Panes() {
			p, ok := r.manager.Pane(pID)
			if !ok {
				continue
			}
			state, exitCode := p.State()
			cmd := ""
			if len(p.Command) > 0 {
				cmd = p.Command[0]
			}
			ws.Panes = append(ws.Panes, transport.PaneSummary{
				ID:         p.ID,
				Cols:       p.Cols,
				Rows:       p.Rows,
				State:      string(state),
				Command:    cmd,
				Scrollback: p.ScrollbackTail(0),
				ExitCode:   exitCode,
			})
		}
		out.Windows = append(out.Windows, ws)
	}
	return out, nil
}
