package mux

import (
	"strings"
	"sync"
	"time"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

// Session is an ordered collection of windows, exclusively owned by the
// Session Manager (spec §3).
type Session struct {
	mu sync.Mutex

	ID        string
	Name      string
	CreatedAt time.Time
	Worktree  string

	windows      []string
	activeWindow string
	env          map[string]string
	metadata     map[string]string
	tags         map[string]struct{}
}

// NewSession creates a Session whose first window is windowID.
func NewSession(id, name, windowID string, env map[string]string) *Session {
	envCopy := make(map[string]string, len(env))
	for k, v := range env {
		envCopy[k] = v
	}
	return &Session{
		ID:           id,
		Name:         name,
		CreatedAt:    time.Now(),
		windows:      []string{windowID},
		activeWindow: windowID,
		env:          envCopy,
		metadata:     make(map[string]string),
		tags:         make(map[string]struct{}),
	}
}

func (s *Session) AddWindow(id string) {
	s.mu.Lock()
	s.windows = append(s.windows, id)
	s.mu.Unlock()
}

// RemoveWindow removes a window from the ordering. Returns true if the
// session now has no windows (caller should remove the session).
func (s *Session) RemoveWindow(id string) (empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.windows {
		if w == id {
			s.windows = append(s.windows[:i:i], s.windows[i+1:]...)
			break
		}
	}
	if s.activeWindow == id && len(s.windows) > 0 {
		s.activeWindow = s.windows[0]
	}
	return len(s.windows) == 0
}

func (s *Session) SetActiveWindow(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.windows {
		if w == id {
			s.activeWindow = id
			return nil
		}
	}
	return muxerr.New(muxerr.NotFound, "window "+id+" not in session "+s.ID)
}

func (s *Session) Windows() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.windows))
	copy(out, s.windows)
	return out
}

func (s *Session) ActiveWindow() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeWindow
}

// MatchesQuery implements spec §4.6's resolution rule: exact id, then
// exact name, then case-insensitive name.
func (s *Session) MatchesQuery(q string) (exactID, exactName, ciName bool) {
	s.mu.Lock()
	name := s.Name
	id := s.ID
	s.mu.Unlock()
	return q == id, q == name, strings.EqualFold(q, name)
}

func (s *Session) SetEnv(key, value string) {
	s.mu.Lock()
	s.env[key] = value
	s.mu.Unlock()
}

func (s *Session) GetEnv(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.env[key]
	return v, ok
}

func (s *Session) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.env))
	for k, v := range s.env {
		out[k] = v
	}
	return out
}

func (s *Session) SetMetadata(key, value string) {
	s.mu.Lock()
	s.metadata[key] = value
	s.mu.Unlock()
}

func (s *Session) GetMetadata(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.metadata[key]
	return v, ok
}

func (s *Session) SetTags(tags []string) {
	s.mu.Lock()
	s.tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		s.tags[t] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *Session) AddTag(tag string) {
	s.mu.Lock()
	s.tags[tag] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) RemoveTag(tag string) {
	s.mu.Lock()
	delete(s.tags, tag)
	s.mu.Unlock()
}

func (s *Session) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tags))
	for t := range s.tags {
		out = append(out, t)
	}
	return out
}

func (s *Session) HasTag(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tags[tag]
	return ok
}
