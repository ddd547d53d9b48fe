package search

import "math"

// NodeID indexes a node in a Registry. IDs follow discovery order.
type NodeID int

// NoParent is the parent of the root node.
const NoParent NodeID = -1

// Kind tags a node as an alternative (OR) or a mandatory joint sub-goal (AND).
type Kind uint8

const (
	KindOr Kind = iota
	KindAnd
)

func (k Kind) String() string {
	if k == KindAnd {
		return "and"
	}
	return "or"
}

// Status represents the expansion lifecycle of a node.
type Status string

const (
	StatusUnexpanded Status = "unexpanded"
	StatusExpanding  Status = "expanding"
	StatusExpanded   Status = "expanded"
	StatusDeferred   Status = "deferred"
	StatusFailed     Status = "failed"
	StatusPruned     Status = "pruned"
)

// Closed reports whether a node with this status will never be expanded again
// without an explicit reopen.
func (s Status) Closed() bool {
	return s == StatusExpanded || s == StatusDeferred || s == StatusFailed || s == StatusPruned
}

// Annotation keys written by the engine and the bundled strategies.
const (
	AnnotationF           = "f"
	AnnotationG           = "g"
	AnnotationH           = "h"
	AnnotationUncertainty = "uncertainty"
	AnnotationVisits      = "visits"
	AnnotationReward      = "reward"
	AnnotationSamples     = "samples"
	AnnotationTime        = "f_time"
	AnnotationError       = "f_error"
)

// Annotations holds per-node evaluation results.
type Annotations map[string]any

// Float returns a numeric annotation.
func (a Annotations) Float(key string) (float64, bool) {
	switch v := a[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// FloatOr returns a numeric annotation or def when it is missing.
func (a Annotations) FloatOr(key string, def float64) float64 {
	if v, ok := a.Float(key); ok {
		return v
	}
	return def
}

// Int returns an integer annotation.
func (a Annotations) Int(key string) (int, bool) {
	switch v := a[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Clone returns a shallow copy.
func (a Annotations) Clone() Annotations {
	out := make(Annotations, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Merge copies every entry of b into a.
func (a Annotations) Merge(b Annotations) {
	for k, v := range b {
		a[k] = v
	}
}

// Node wraps a problem state discovered during the search.
type Node[S comparable, A any] struct {
	ID          NodeID
	State       S
	Parent      NodeID
	Action      A
	Kind        Kind
	Depth       int
	Goal        bool
	Status      Status
	Annotations Annotations
}

// F returns the node's score. A node without one is not on the frontier.
func (n *Node[S, A]) F() (float64, bool) {
	return n.Annotations.Float(AnnotationF)
}

// Score returns the node's score or +Inf.
func (n *Node[S, A]) Score() float64 {
	return n.Annotations.FloatOr(AnnotationF, math.Inf(1))
}

// IsRoot reports whether the node has no parent.
func (n *Node[S, A]) IsRoot() bool {
	return n.Parent == NoParent
}

func (n *Node[S, A]) clone() Node[S, A] {
	c := *n
	c.Annotations = n.Annotations.Clone()
	return c
}
