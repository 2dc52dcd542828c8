package mux

// runCleanupLoop is the single Cleanup Loop task consuming pane-death
// notifications in FIFO order (spec §4.13, §5's ordering guarantee).
// For each notification: remove the pane from its window; if the
// window is now empty, remove it from its session; if the session has
// no windows, remove it (after sending SessionEnded to its clients).
func runCleanupLoop(m *Manager) {
	for notice := range m.deathCh {
		m.mu.Lock()
		pane, ok := m.panes[notice.paneID]
		if !ok {
			m.mu.Unlock()
			continue
		}
		window := m.windows[pane.WindowID]
		delete(m.panes, notice.paneID)
		m.mu.Unlock()

		if window == nil {
			continue
		}

		windowEmpty := window.RemovePane(notice.paneID)
		if !windowEmpty {
			continue
		}

		m.mu.Lock()
		session := m.sessions[window.SessionID]
		delete(m.windows, window.ID)
		m.mu.Unlock()
		m.sink.Publish(Event{Kind: EventWindowClosed, SessionID: window.SessionID, WindowID: window.ID})

		if session == nil {
			continue
		}
		sessionEmpty := session.RemoveWindow(window.ID)
		if !sessionEmpty {
			continue
		}

		m.sink.Publish(Event{Kind: EventSessionEnded, SessionID: session.ID})
		m.mu.Lock()
		delete(m.sessions, session.ID)
		m.mu.Unlock()
	}
}
