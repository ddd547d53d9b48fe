package search

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Registry is the per-search arena of discovered nodes. Nodes are never
// removed, so every historical node keeps a valid path to the root.
//
// The coordinator is the only writer. Readers on other goroutines go through
// the exported accessors, which take a read lock and return copies.
type Registry[S comparable, A any] struct {
	mu       sync.RWMutex
	nodes    []*Node[S, A]
	index    map[S]NodeID
	children map[NodeID][]NodeID
}

// NewRegistry creates an empty registry.
func NewRegistry[S comparable, A any]() *Registry[S, A] {
	return &Registry[S, A]{
		index:    make(map[S]NodeID),
		children: make(map[NodeID][]NodeID),
	}
}

// Add registers a newly discovered state under parent and returns its ID.
// The first node seen for a state becomes that state's canonical node.
func (r *Registry[S, A]) Add(state S, parent NodeID, action A, kind Kind) NodeID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := NodeID(len(r.nodes))
	depth := 0
	if parent != NoParent {
		depth = r.nodes[parent].Depth + 1
		r.children[parent] = append(r.children[parent], id)
	}
	r.nodes = append(r.nodes, &Node[S, A]{
		ID:          id,
		State:       state,
		Parent:      parent,
		Action:      action,
		Kind:        kind,
		Depth:       depth,
		Status:      StatusUnexpanded,
		Annotations: make(Annotations),
	})
	if _, ok := r.index[state]; !ok {
		r.index[state] = id
	}
	return id
}

// Len returns the number of registered nodes.
func (r *Registry[S, A]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Get returns a copy of the node with the given ID.
func (r *Registry[S, A]) Get(id NodeID) (Node[S, A], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.valid(id) {
		return Node[S, A]{}, false
	}
	return r.nodes[id].clone(), true
}

// Lookup returns the canonical node ID for a state.
func (r *Registry[S, A]) Lookup(state S) (NodeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[state]
	return id, ok
}

// Children returns the current children of a node in discovery order.
func (r *Registry[S, A]) Children(id NodeID) []NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]NodeID(nil), r.children[id]...)
}

// Path reconstructs the root-to-node path.
func (r *Registry[S, A]) Path(id NodeID) (Path[S, A], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.valid(id) {
		return Path[S, A]{}, errors.Newf("unknown node %d", id)
	}
	return r.path(id), nil
}

// Walk visits nodes depth-first from the root in child discovery order until
// fn returns false. The node passed to fn is a copy.
func (r *Registry[S, A]) Walk(fn func(n Node[S, A]) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.nodes) == 0 {
		return
	}
	stack := []NodeID{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(r.nodes[id].clone()) {
			return
		}
		kids := r.children[id]
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}

// IsAncestor reports whether anc lies on the path from the root to id.
func (r *Registry[S, A]) IsAncestor(anc, id NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for cur := id; cur != NoParent; cur = r.nodes[cur].Parent {
		if cur == anc {
			return true
		}
	}
	return false
}

// SetStatus updates a node's status.
func (r *Registry[S, A]) SetStatus(id NodeID, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id].Status = status
}

// Annotate merges annotations into a node.
func (r *Registry[S, A]) Annotate(id NodeID, ann Annotations) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id].Annotations.Merge(ann)
}

func (r *Registry[S, A]) setGoal(id NodeID, goal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id].Goal = goal
}

func (r *Registry[S, A]) setAction(id NodeID, action A) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[id].Action = action
}

// Reparent moves id under newParent and returns the old parent. Depths of the
// moved subtree are recomputed. Moving a node under its own descendant is
// rejected.
func (r *Registry[S, A]) Reparent(id, newParent NodeID, action A) (NodeID, error) {
	if r.IsAncestor(id, newParent) {
		return NoParent, errors.Wrapf(ErrIllegalState, "node %d is an ancestor of %d", id, newParent)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.nodes[id]
	old := n.Parent
	if old != NoParent {
		kids := r.children[old]
		for i, k := range kids {
			if k == id {
				r.children[old] = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
	}
	n.Parent = newParent
	n.Action = action
	r.children[newParent] = append(r.children[newParent], id)

	// Depths below id shift with it.
	queue := []NodeID{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		r.nodes[cur].Depth = r.nodes[r.nodes[cur].Parent].Depth + 1
		queue = append(queue, r.children[cur]...)
	}
	return old, nil
}

// node returns the live node. Only the coordinator goroutine may use it.
func (r *Registry[S, A]) node(id NodeID) *Node[S, A] {
	return r.nodes[id]
}

func (r *Registry[S, A]) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(r.nodes)
}

func (r *Registry[S, A]) path(id NodeID) Path[S, A] {
	var ids []NodeID
	for cur := id; cur != NoParent; cur = r.nodes[cur].Parent {
		ids = append(ids, cur)
	}
	p := Path[S, A]{
		Nodes:       make([]NodeID, len(ids)),
		States:      make([]S, len(ids)),
		Actions:     make([]A, 0, len(ids)),
		Annotations: r.nodes[id].Annotations.Clone(),
	}
	for i := range ids {
		n := r.nodes[ids[len(ids)-1-i]]
		p.Nodes[i] = n.ID
		p.States[i] = n.State
		if i > 0 {
			p.Actions = append(p.Actions, n.Action)
		}
	}
	return p
}
