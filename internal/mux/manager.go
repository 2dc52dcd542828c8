package mux

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fugue-mux/fugue/internal/agent"
	"github.com/fugue-mux/fugue/internal/ids"
	"github.com/fugue-mux/fugue/internal/muxerr"
	"github.com/fugue-mux/fugue/internal/ptyio"
)

const (
	DefaultCols = 80
	DefaultRows = 24
	maxPanesPerWindow = 10
)

// DetectorFactory builds a fresh Agent Detector for a spawned command,
// chosen by the first argv token (spec §4.3's Shell/Claude/Gemini/Codex
// variants).
type DetectorFactory func(command []string) agent.Detector

// DefaultDetectorFactory inspects argv[0] and returns the matching
// built-in variant, falling back to Shell.
func DefaultDetectorFactory(command []string) agent.Detector {
	if len(command) == 0 {
		return agent.NewShell()
	}
	switch {
	case strings.Contains(command[0], "claude"):
		return agent.NewClaude()
	case strings.Contains(command[0], "gemini"):
		return agent.NewGemini()
	case strings.Contains(command[0], "codex"):
		return agent.NewCodex()
	default:
		return agent.NewShell()
	}
}

// Manager is the process-wide session-graph registry (spec §4.6). A
// single exclusive lock guards the session/window/pane maps, mirroring
// kojo's manager.Manager.mu. Handlers release it before calling into
// Pane/Window/Session methods, which take their own per-resource locks,
// so it is not held for the whole of every handler.
type Manager struct {
	mu sync.Mutex

	logger   *slog.Logger
	sink     Sink
	detector DetectorFactory
	poller   *Poller

	maxScrollbackLines int

	sessions map[string]*Session
	windows  map[string]*Window
	panes    map[string]*Pane

	deathCh chan deathNotice

	userLock *UserLock

	// onSessionCreated, when set, is invoked with every new session's
	// ID and worktree as the last step of CreateSession. This is how
	// internal/router.Router learns about a session regardless of
	// which entry point created it — a client's CreateSession request
	// (internal/dispatch) or internal/mcpbridge's helpers.go, which
	// calls this same Manager method directly.
	onSessionCreated func(sessionID, worktree string)
}

type deathNotice struct {
	paneID string
	code   int
}

// NewManager constructs an empty Manager and starts its Cleanup Loop.
func NewManager(logger *slog.Logger, sink Sink, maxScrollbackLines int) *Manager {
	if sink == nil {
		sink = NopSink{}
	}
	m := &Manager{
		logger:             logger,
		sink:               sink,
		detector:           DefaultDetectorFactory,
		maxScrollbackLines: maxScrollbackLines,
		sessions:           make(map[string]*Session),
		windows:            make(map[string]*Window),
		panes:              make(map[string]*Pane),
		deathCh:            make(chan deathNotice, 256),
		userLock:           NewUserLock(Reject),
	}
	m.poller = NewPoller(m, logger)
	go runCleanupLoop(m)
	return m
}

// SetSessionCreatedHook registers fn to be called with (sessionID,
// worktree) every time CreateSession succeeds, from any caller.
func (m *Manager) SetSessionCreatedHook(fn func(sessionID, worktree string)) {
	m.mu.Lock()
	m.onSessionCreated = fn
	m.mu.Unlock()
}

func autoInjectedEnv(sessionID, sessionName, windowID, paneID string) map[string]string {
	return map[string]string{
		"FUGUE_SESSION_ID":   sessionID,
		"FUGUE_SESSION_NAME": sessionName,
		"FUGUE_WINDOW_ID":    windowID,
		"FUGUE_PANE_ID":      paneID,
	}
}

func mergeEnv(dst map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(dst)+len(extra))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// CreateSession always produces one default window containing one
// default pane with a live PTY. Fails SpawnFailed if the PTY can't be
// created; no session record is kept in that case (spec §4.6).
func (m *Manager) CreateSession(name string, command []string, env map[string]string) (sessionID, windowID, paneID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessionID = ids.New(ids.Session)
	windowID = ids.New(ids.Window)
	paneID = ids.New(ids.Pane)

	if name == "" {
		name = sessionID
	}
	if len(command) == 0 {
		command = []string{defaultShell()}
	}

	injected := autoInjectedEnv(sessionID, name, windowID, paneID)
	pane, err := m.spawnPane(paneID, windowID, command, "", mergeEnv(env, injected))
	if err != nil {
		return "", "", "", err
	}

	window := NewWindow(windowID, sessionID, "main", 0, paneID)
	session := NewSession(sessionID, name, windowID, env)

	m.panes[paneID] = pane
	m.windows[windowID] = window
	m.sessions[sessionID] = session

	m.poller.Start(pane)
	if m.onSessionCreated != nil {
		m.onSessionCreated(sessionID, session.Worktree)
	}
	return sessionID, windowID, paneID, nil
}

// CreateWindow creates a new window (with one default pane) in an
// existing session.
func (m *Manager) CreateWindow(sessionQuery, name string, command []string) (windowID, paneID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.resolveSessionLocked(sessionQuery)
	if err != nil {
		return "", "", err
	}

	windowID = ids.New(ids.Window)
	paneID = ids.New(ids.Pane)
	if len(command) == 0 {
		command = []string{defaultShell()}
	}
	if name == "" {
		name = "window"
	}

	injected := autoInjectedEnv(session.ID, session.Name, windowID, paneID)
	pane, err := m.spawnPane(paneID, windowID, command, "", mergeEnv(session.Env(), injected))
	if err != nil {
		return "", "", err
	}

	window := NewWindow(windowID, session.ID, name, len(session.Windows()), paneID)
	m.panes[paneID] = pane
	m.windows[windowID] = window
	session.AddWindow(windowID)

	m.poller.Start(pane)
	m.sink.Publish(Event{Kind: EventWindowCreated, SessionID: session.ID, WindowID: windowID})
	m.sink.Publish(Event{Kind: EventPaneCreated, SessionID: session.ID, WindowID: windowID, PaneID: paneID})
	return windowID, paneID, nil
}

// CreatePane creates a pane in an existing window via a split. select
// controls whether focus moves to the new pane (default false).
func (m *Manager) CreatePane(sessionQuery, windowID string, direction Direction, command []string, cwd string, env map[string]string, selectPane bool) (paneID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, err := m.resolveSessionLocked(sessionQuery)
	if err != nil {
		return "", err
	}
	window, ok := m.windows[windowID]
	if !ok || window.SessionID != session.ID {
		return "", muxerr.New(muxerr.NotFound, "window "+windowID)
	}
	if len(window.Panes()) >= maxPanesPerWindow {
		return "", muxerr.New(muxerr.OutOfPanes, "window "+windowID+" already has the maximum of 10 panes")
	}

	paneID = ids.New(ids.Pane)
	if len(command) == 0 {
		command = []string{defaultShell()}
	}
	injected := autoInjectedEnv(session.ID, session.Name, windowID, paneID)
	pane, err := m.spawnPane(paneID, windowID, command, cwd, mergeEnv(mergeEnv(session.Env(), env), injected))
	if err != nil {
		return "", err
	}

	if err := window.AddPane(paneID, direction, ""); err != nil {
		_ = pane.Kill()
		return "", err
	}
	m.panes[paneID] = pane
	if selectPane {
		_ = window.SetActivePane(paneID)
	}

	m.poller.Start(pane)
	m.sink.Publish(Event{Kind: EventPaneCreated, SessionID: session.ID, WindowID: windowID, PaneID: paneID})
	return paneID, nil
}

// SplitPane is CreatePane, but resolves the window from the source
// pane.
func (m *Manager) SplitPane(sourcePaneID string, direction Direction, command []string, cwd string) (paneID string, err error) {
	m.mu.Lock()
	src, ok := m.panes[sourcePaneID]
	if !ok {
		m.mu.Unlock()
		return "", muxerr.New(muxerr.NotFound, "pane "+sourcePaneID)
	}
	windowID := src.WindowID
	window := m.windows[windowID]
	sessionID := window.SessionID
	m.mu.Unlock()

	return m.CreatePane(sessionID, windowID, direction, command, cwd, nil, false)
}

// ClosePane kills the PTY; the Cleanup Loop performs the actual
// removal once the poller observes EOF (spec §4.6).
func (m *Manager) ClosePane(paneID string) error {
	m.mu.Lock()
	pane, ok := m.panes[paneID]
	m.mu.Unlock()
	if !ok {
		return muxerr.New(muxerr.NotFound, "pane "+paneID)
	}
	return pane.Kill()
}

// KillSession detaches all clients with SessionEnded, then removes the
// session.
func (m *Manager) KillSession(sessionQuery string) error {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	windowIDs := session.Windows()
	var paneIDs []string
	for _, wID := range windowIDs {
		if w, ok := m.windows[wID]; ok {
			paneIDs = append(paneIDs, w.Panes()...)
		}
	}
	m.mu.Unlock()

	m.sink.Publish(Event{Kind: EventSessionEnded, SessionID: session.ID})

	for _, pID := range paneIDs {
		m.mu.Lock()
		pane := m.panes[pID]
		m.mu.Unlock()
		if pane != nil {
			_ = pane.Kill()
		}
	}
	return nil
}

func (m *Manager) ResizePane(paneID string, cols, rows uint16) error {
	m.mu.Lock()
	pane, ok := m.panes[paneID]
	m.mu.Unlock()
	if !ok {
		return muxerr.New(muxerr.NotFound, "pane "+paneID)
	}
	if err := pane.Resize(cols, rows); err != nil {
		return err
	}
	m.sink.Publish(Event{Kind: EventPaneResized, PaneID: paneID, Cols: cols, Rows: rows})
	return nil
}

func (m *Manager) ResizePaneDelta(paneID string, dcols, drows int16) error {
	m.mu.Lock()
	pane, ok := m.panes[paneID]
	m.mu.Unlock()
	if !ok {
		return muxerr.New(muxerr.NotFound, "pane "+paneID)
	}
	cols := int32(pane.Cols) + int32(dcols)
	rows := int32(pane.Rows) + int32(drows)
	if cols < 1 || rows < 1 {
		return muxerr.New(muxerr.InvalidArgument, "resulting size would be non-positive")
	}
	return m.ResizePane(paneID, uint16(cols), uint16(rows))
}

func (m *Manager) SetEnvironment(sessionQuery, key, value string) error {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	session.SetEnv(key, value)
	return nil
}

func (m *Manager) GetEnvironment(sessionQuery, key string) (string, error) {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", muxerr.New(muxerr.InvalidArgument, "key required")
	}
	v, ok := session.GetEnv(key)
	if !ok {
		return "", muxerr.New(muxerr.NotFound, "env key "+key)
	}
	return v, nil
}

func (m *Manager) SetMetadata(sessionQuery, key, value string) error {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	session.SetMetadata(key, value)
	return nil
}

func (m *Manager) GetMetadata(sessionQuery, key string) (string, error) {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	v, ok := session.GetMetadata(key)
	if !ok {
		return "", muxerr.New(muxerr.NotFound, "metadata key "+key)
	}
	return v, nil
}

func (m *Manager) SetTags(sessionQuery string, tags []string) error {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	session.SetTags(tags)
	return nil
}

func (m *Manager) AddTag(sessionQuery, tag string) error {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	session.AddTag(tag)
	return nil
}

func (m *Manager) RemoveTag(sessionQuery, tag string) error {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	session.RemoveTag(tag)
	return nil
}

func (m *Manager) GetTags(sessionQuery string) ([]string, error) {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return session.Tags(), nil
}

func (m *Manager) ListSessionsTagged(tag string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, s := range m.sessions {
		if s.HasTag(tag) {
			out = append(out, id)
		}
	}
	return out
}

// EnterUserCommandMode records that clientID has a user-typed prefix
// key in flight, giving it priority over MCP-driven focus changes for
// up to timeout (spec §4.14).
func (m *Manager) EnterUserCommandMode(clientID string, timeout time.Duration) {
	m.userLock.Enter(clientID, timeout)
}

// ExitUserCommandMode releases clientID's priority immediately.
func (m *Manager) ExitUserCommandMode(clientID string) {
	m.userLock.Exit(clientID)
}

// SetSink replaces the Manager's event sink. Exists for callers whose
// sink construction needs the Manager itself (internal/registry.Registry
// takes a *Manager), breaking what would otherwise be a construction
// cycle: build the Manager with a NopSink, build the sink(s), then
// SetSink before anything can publish an Event.
func (m *Manager) SetSink(sink Sink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// SweepUserLocks drops expired User-Priority Lock entries; intended
// for a periodic housekeeping task rather than the request path, which
// already expires entries lazily on every Guard check.
func (m *Manager) SweepUserLocks() {
	m.userLock.Sweep()
}

// SetUserPriorityMode overrides the default Reject behavior (spec
// §4.14's Mode Reject/Wait/Warn), exposed for daemon configuration.
func (m *Manager) SetUserPriorityMode(mode PriorityMode) {
	m.userLock.Mode = mode
}

// FocusPane sets the active pane of its window and broadcasts
// FocusChanged to the owning session's attached clients only. Gated by
// the User-Priority Lock since it is the canonical MCP-driven focus
// change spec §4.14 exists to race-proof against a user's prefix key.
func (m *Manager) FocusPane(paneID string) error {
	if err := m.userLock.Guard(); err != nil {
		return err
	}
	m.mu.Lock()
	pane, ok := m.panes[paneID]
	if !ok {
		m.mu.Unlock()
		return muxerr.New(muxerr.NotFound, "pane "+paneID)
	}
	window := m.windows[pane.WindowID]
	m.mu.Unlock()

	if err := window.SetActivePane(paneID); err != nil {
		return err
	}
	m.sink.Publish(Event{Kind: EventFocusChanged, SessionID: window.SessionID, WindowID: window.ID, PaneID: paneID})
	return nil
}

func (m *Manager) SelectWindow(sessionQuery, windowID string) error {
	if err := m.userLock.Guard(); err != nil {
		return err
	}
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := session.SetActiveWindow(windowID); err != nil {
		return err
	}
	m.sink.Publish(Event{Kind: EventFocusChanged, SessionID: session.ID, WindowID: windowID})
	return nil
}

func (m *Manager) SelectSession(sessionQuery string) (string, error) {
	if err := m.userLock.Guard(); err != nil {
		return "", err
	}
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	m.sink.Publish(Event{Kind: EventFocusChanged, SessionID: session.ID})
	return session.ID, nil
}

func (m *Manager) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	return out
}

// SessionSnapshot is a session-graph dump (spec §6's "Persisted state
// layout": snapshots are session-graph dumps) — everything a restart
// would need to re-greet attached clients, nothing a restart would
// need to actually respawn PTYs, since those die with the process.
type SessionSnapshot struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	CreatedAt    time.Time         `json:"created_at"`
	Worktree     string            `json:"worktree,omitempty"`
	Windows      []string          `json:"windows"`
	ActiveWindow string            `json:"active_window"`
	Env          map[string]string `json:"env,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

// Snapshot dumps every live session's graph, for a periodic
// housekeeping task to hand to internal/persist.
func (m *Manager) Snapshot() []SessionSnapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]SessionSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionSnapshot{
			ID:           s.ID,
			Name:         s.Name,
			CreatedAt:    s.CreatedAt,
			Worktree:     s.Worktree,
			Windows:      s.Windows(),
			ActiveWindow: s.ActiveWindow(),
			Env:          s.Env(),
			Tags:         s.Tags(),
		})
	}
	return out
}

func (m *Manager) ListWindows(sessionQuery string) ([]string, error) {
	m.mu.Lock()
	session, err := m.resolveSessionLocked(sessionQuery)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return session.Windows(), nil
}

func (m *Manager) ListPanesInWindow(windowID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[windowID]
	if !ok {
		return nil, muxerr.New(muxerr.NotFound, "window "+windowID)
	}
	return w.Panes(), nil
}

func (m *Manager) ReadPane(paneID string, lines int) ([]string, error) {
	m.mu.Lock()
	pane, ok := m.panes[paneID]
	m.mu.Unlock()
	if !ok {
		return nil, muxerr.New(muxerr.NotFound, "pane "+paneID)
	}
	return pane.ScrollbackTail(lines), nil
}

// SendInput translates text into bytes and writes to the pane's PTY,
// per spec §4.6's escape/submit contract.
func (m *Manager) SendInput(paneID, text string, submit, literal bool) error {
	m.mu.Lock()
	pane, ok := m.panes[paneID]
	m.mu.Unlock()
	if !ok {
		return muxerr.New(muxerr.NotFound, "pane "+paneID)
	}

	payload := text
	if !literal {
		payload = unescapeInput(text)
	}
	if err := pane.Write([]byte(payload)); err != nil {
		return err
	}
	if submit {
		return submitEnter(pane)
	}
	return nil
}

// resolveSessionLocked implements spec §4.6's resolution rule; callers
// must already hold m.mu.
func (m *Manager) resolveSessionLocked(query string) (*Session, error) {
	if s, ok := m.sessions[query]; ok {
		return s, nil
	}
	var nameMatches []*Session
	for _, s := range m.sessions {
		if s.Name == query {
			nameMatches = append(nameMatches, s)
		}
	}
	if len(nameMatches) == 1 {
		return nameMatches[0], nil
	}
	if len(nameMatches) > 1 {
		return nil, muxerr.New(muxerr.Ambiguous, "multiple sessions named "+query)
	}

	var ciMatches []*Session
	for _, s := range m.sessions {
		if strings.EqualFold(s.Name, query) {
			ciMatches = append(ciMatches, s)
		}
	}
	if len(ciMatches) == 1 {
		return ciMatches[0], nil
	}
	if len(ciMatches) > 1 {
		return nil, muxerr.New(muxerr.Ambiguous, "multiple sessions matching "+query)
	}
	return nil, muxerr.New(muxerr.NotFound, "session "+query)
}

func (m *Manager) spawnPane(paneID, windowID string, command []string, cwd string, env map[string]string) (*Pane, error) {
	h, err := ptyio.Start(ptyio.Spawn{
		Command: command,
		Env:     env,
		Cwd:     cwd,
		Size:    ptyio.Size{Cols: DefaultCols, Rows: DefaultRows},
	})
	if err != nil {
		return nil, err
	}
	det := m.detector(command)
	return NewPane(paneID, windowID, h, DefaultCols, DefaultRows, cwd, command, det, m.maxScrollbackLines), nil
}

func defaultShell() string {
	return "/bin/sh"
}

// Pane, Window, and Session are read-only accessors for callers outside
// the package (the Client Registry's snapshot builder and Connection
// Handler's output-subscribe path) that need the underlying objects
// rather than a derived summary.
func (m *Manager) Pane(paneID string) (*Pane, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.panes[paneID]
	return p, ok
}

func (m *Manager) Window(windowID string) (*Window, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[windowID]
	return w, ok
}

func (m *Manager) Session(sessionQuery string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveSessionLocked(sessionQuery)
}
