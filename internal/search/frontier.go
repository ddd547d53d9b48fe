package search

import (
	"math"

	"github.com/tidwall/btree"
)

// Key is a frontier sort key. Keys compare lexicographically unless the
// frontier is built with a different Comparator.
type Key []float64

// Comparator orders two keys: negative if a sorts first, positive if b does.
type Comparator func(a, b Key) int

// Lexicographic compares keys component by component, shorter keys first on
// a common prefix. NaN sorts after every number so the order stays total.
func Lexicographic(a, b Key) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareComponent(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareComponent(x, y float64) int {
	xn, yn := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xn && yn:
		return 0
	case xn:
		return 1
	case yn:
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

type frontierEntry struct {
	id  NodeID
	key Key
}

// Frontier holds discovered, unexpanded nodes ordered by key. Ties break by
// node ID, which is discovery order. A node holds at most one slot: pushing
// it again replaces its entry.
type Frontier struct {
	tree *btree.BTreeG[frontierEntry]
	keys map[NodeID]Key
}

// NewFrontier creates an empty frontier. A nil comparator means
// Lexicographic.
func NewFrontier(cmp Comparator) *Frontier {
	if cmp == nil {
		cmp = Lexicographic
	}
	less := func(a, b frontierEntry) bool {
		if c := cmp(a.key, b.key); c != 0 {
			return c < 0
		}
		return a.id < b.id
	}
	return &Frontier{
		tree: btree.NewBTreeG[frontierEntry](less),
		keys: make(map[NodeID]Key),
	}
}

// Push inserts id with key, replacing any previous entry for id.
func (f *Frontier) Push(id NodeID, key Key) {
	if old, ok := f.keys[id]; ok {
		f.tree.Delete(frontierEntry{id: id, key: old})
	}
	f.keys[id] = key
	f.tree.Set(frontierEntry{id: id, key: key})
}

// Remove drops id from the frontier.
func (f *Frontier) Remove(id NodeID) bool {
	key, ok := f.keys[id]
	if !ok {
		return false
	}
	f.tree.Delete(frontierEntry{id: id, key: key})
	delete(f.keys, id)
	return true
}

// Contains reports whether id is on the frontier.
func (f *Frontier) Contains(id NodeID) bool {
	_, ok := f.keys[id]
	return ok
}

// Key returns the key of id.
func (f *Frontier) Key(id NodeID) (Key, bool) {
	k, ok := f.keys[id]
	return k, ok
}

// Peek returns the best entry without removing it.
func (f *Frontier) Peek() (NodeID, Key, bool) {
	e, ok := f.tree.Min()
	if !ok {
		return NoParent, nil, false
	}
	return e.id, e.key, true
}

// Pop removes and returns the best entry.
func (f *Frontier) Pop() (NodeID, Key, bool) {
	e, ok := f.tree.PopMin()
	if !ok {
		return NoParent, nil, false
	}
	delete(f.keys, e.id)
	return e.id, e.key, true
}

// Len returns the number of entries.
func (f *Frontier) Len() int {
	return f.tree.Len()
}

// Ascend visits entries best first until fn returns false.
func (f *Frontier) Ascend(fn func(id NodeID, key Key) bool) {
	f.tree.Scan(func(e frontierEntry) bool {
		return fn(e.id, e.key)
	})
}

// Descend visits entries worst first until fn returns false.
func (f *Frontier) Descend(fn func(id NodeID, key Key) bool) {
	f.tree.Reverse(func(e frontierEntry) bool {
		return fn(e.id, e.key)
	})
}

// IDs returns the frontier's node IDs best first.
func (f *Frontier) IDs() []NodeID {
	out := make([]NodeID, 0, f.Len())
	f.Ascend(func(id NodeID, _ Key) bool {
		out = append(out, id)
		return true
	})
	return out
}
