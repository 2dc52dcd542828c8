package registry

import (
	"encoding/json"
	"sync"

	"github.com/fugue-mux/fugue/internal/transport"
)

// frameQueue is a genuinely unbounded FIFO of transport.Frame. Spec
// §4.11 is explicit that the per-client outbound queue "is unbounded;
// any bounded variant of this queue has been shown to deadlock" —
// push never blocks and never drops a frame, growing a backing slice
// instead of stalling against a fixed-capacity channel. The only
// coalescing spec §4.11 permits is "repeated Output frames"; push
// merges a new Output frame into the queue's tail only when the tail
// is itself an Output frame for the same pane, leaving every other
// frame kind, and every Output frame for a different pane, untouched.
type frameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []transport.Frame
	closed bool
}

func newFrameQueue() *frameQueue {
	q := &frameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *frameQueue) push(f transport.Frame) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if n := len(q.items); n > 0 {
		if merged, ok := coalesceOutput(q.items[n-1], f); ok {
			q.items[n-1] = merged
			q.cond.Signal()
			return
		}
	}
	q.items = append(q.items, f)
	q.cond.Signal()
}

// pop blocks until a frame is available or the queue is closed and
// drained, in which case ok is false.
func (q *frameQueue) pop() (transport.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return transport.Frame{}, false
	}
	f := q.items[0]
	q.items[0] = transport.Frame{}
	q.items = q.items[1:]
	return f, true
}

func (q *frameQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// coalesceOutput merges next into prev when both are Output frames for
// the same pane, returning the merged frame and ok=true. Any Sequenced
// envelope (Seq != nil) is left alone — merging would require
// renumbering, and a sequenced Output frame isn't one spec's
// coalescing note is written for.
func coalesceOutput(prev, next transport.Frame) (transport.Frame, bool) {
	if prev.Type != "Output" || next.Type != "Output" || prev.Seq != nil || next.Seq != nil {
		return transport.Frame{}, false
	}
	var pd, nd transport.OutputMsg
	if err := json.Unmarshal(prev.Data, &pd); err != nil {
		return transport.Frame{}, false
	}
	if err := json.Unmarshal(next.Data, &nd); err != nil {
		return transport.Frame{}, false
	}
	if pd.PaneID != nd.PaneID {
		return transport.Frame{}, false
	}
	merged := transport.OutputMsg{
		PaneID: pd.PaneID,
		Data:   append(append([]byte{}, pd.Data...), nd.Data...),
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return transport.Frame{}, false
	}
	return transport.Frame{Type: "Output", Data: data}, true
}
