package mux

import (
	"sync"

	"github.com/fugue-mux/fugue/internal/muxerr"
)

// Direction is a split orientation used by add_pane/split_pane.
type Direction string

const (
	Horizontal Direction = "horizontal"
	Vertical   Direction = "vertical"
)

// layoutNode is a binary tree of splits with ratios over pane ids,
// advisory to the client per spec §4.5 ("the client uses it to divide
// its terminal area") and mutated in lockstep with pane add/remove.
type layoutNode struct {
	PaneID    string      `json:"pane_id,omitempty"`
	Direction Direction   `json:"direction,omitempty"`
	Ratio     float64     `json:"ratio,omitempty"`
	Children  []*layoutNode `json:"children,omitempty"`
}

// Window is an ordered collection of panes with an active-pane pointer
// and a client-side layout tree, exclusively owned by exactly one
// Session (spec §3).
type Window struct {
	mu sync.Mutex

	ID        string
	SessionID string
	Name      string
	Index     int

	panes      []string // ordered pane ids; source of truth for ordering
	activePane string
	layout     *layoutNode
}

// NewWindow creates a Window whose first pane is paneID, the layout
// root being a single leaf.
func NewWindow(id, sessionID, name string, index int, paneID string) *Window {
	return &Window{
		ID:         id,
		SessionID:  sessionID,
		Name:       name,
		Index:      index,
		panes:      []string{paneID},
		activePane: paneID,
		layout:     &layoutNode{PaneID: paneID},
	}
}

// AddPane inserts a new pane into the ordering and layout tree,
// splitting relativeTo (or the active pane if relativeTo is empty) in
// the given direction.
func (w *Window) AddPane(newPaneID string, direction Direction, relativeTo string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if relativeTo == "" {
		relativeTo = w.activePane
	}
	if !w.containsLocked(relativeTo) {
		return muxerr.New(muxerr.NotFound, "pane "+relativeTo+" not in window "+w.ID)
	}

	w.panes = append(w.panes, newPaneID)
	w.layout = splitLeaf(w.layout, relativeTo, newPaneID, direction)
	return nil
}

// RemovePane removes a pane from the ordering and prunes the layout
// tree; a split that becomes single-child is replaced by that child
// (spec §4.5). Returns true if the window is now empty (caller should
// remove the window from its session).
func (w *Window) RemovePane(paneID string) (empty bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, id := range w.panes {
		if id == paneID {
			w.panes = append(w.panes[:i:i], w.panes[i+1:]...)
			break
		}
	}
	w.layout = pruneLeaf(w.layout, paneID)

	if w.activePane == paneID && len(w.panes) > 0 {
		w.activePane = w.panes[0]
	}
	return len(w.panes) == 0
}

// SetActivePane updates the active-pane pointer; fails NotFound if id
// isn't one of this window's panes.
func (w *Window) SetActivePane(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.containsLocked(id) {
		return muxerr.New(muxerr.NotFound, "pane "+id+" not in window "+w.ID)
	}
	w.activePane = id
	return nil
}

func (w *Window) Rename(name string) {
	w.mu.Lock()
	w.Name = name
	w.mu.Unlock()
}

func (w *Window) ActivePane() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activePane
}

func (w *Window) Panes() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.panes))
	copy(out, w.panes)
	return out
}

func (w *Window) Layout() *layoutNode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.layout
}

func (w *Window) containsLocked(id string) bool {
	for _, p := range w.panes {
		if p == id {
			return true
		}
	}
	return false
}

func splitLeaf(root *layoutNode, leafPaneID, newPaneID string, dir Direction) *layoutNode {
	if root == nil {
		return &layoutNode{PaneID: newPaneID}
	}
	if root.PaneID == leafPaneID {
		return &layoutNode{
			Direction: dir,
			Ratio:     0.5,
			Children: []*layoutNode{
				{PaneID: leafPaneID},
				{PaneID: newPaneID},
			},
		}
	}
	for i, child := range root.Children {
		root.Children[i] = splitLeaf(child, leafPaneID, newPaneID, dir)
	}
	return root
}

func pruneLeaf(root *layoutNode, paneID string) *layoutNode {
	if root == nil {
		return nil
	}
	if root.PaneID == paneID {
		return nil
	}
	var kept []*layoutNode
	for _, child := range root.Children {
		if pruned := pruneLeaf(child, paneID); pruned != nil {
			kept = append(kept, pruned)
		}
	}
	root.Children = kept
	// a split that becomes single-child collapses into that child
	if len(root.Children) == 1 {
		return root.Children[0]
	}
	return root
}
