package mux

// MultiSink fans a single Event out to every member, in order. The
// Manager only ever holds one Sink; callers that need an Event to
// reach both the Client Registry and, say, the push notifier
// construct a MultiSink and hand that to NewManager instead.
type MultiSink []Sink

func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(ev)
		}
	}
}
