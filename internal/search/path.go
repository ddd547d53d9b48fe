package search

import (
	"fmt"
	"strings"
)

// Path is an immutable root-to-head snapshot handed to evaluators.
// Actions[i] labels the edge States[i] -> States[i+1].
//
// Nodes holds the registry IDs of the registered prefix. A path that extends
// past registered nodes (a child under evaluation or a rollout) has fewer
// Nodes than States.
type Path[S comparable, A any] struct {
	Nodes       []NodeID
	States      []S
	Actions     []A
	Annotations Annotations

	// Siblings is the number of children generated together with the head,
	// the head included. Zero for the root.
	Siblings int
	// Parent holds the annotations of the head's parent, if any.
	Parent Annotations
}

// Head returns the last state of the path.
func (p Path[S, A]) Head() S {
	return p.States[len(p.States)-1]
}

// Len returns the number of states on the path.
func (p Path[S, A]) Len() int {
	return len(p.States)
}

// Extend returns a copy of p with one more state. The result carries no
// annotations and no node ID for the new head.
func (p Path[S, A]) Extend(state S, action A) Path[S, A] {
	out := Path[S, A]{
		Nodes:       append([]NodeID(nil), p.Nodes...),
		States:      make([]S, len(p.States), len(p.States)+1),
		Actions:     make([]A, len(p.Actions), len(p.Actions)+1),
		Annotations: make(Annotations),
	}
	copy(out.States, p.States)
	copy(out.Actions, p.Actions)
	out.States = append(out.States, state)
	out.Actions = append(out.Actions, action)
	return out
}

// Key identifies the path by its states and edge labels.
func (p Path[S, A]) Key() string {
	var b strings.Builder
	for i, s := range p.States {
		if i > 0 {
			fmt.Fprintf(&b, "|%v|", p.Actions[i-1])
		}
		fmt.Fprintf(&b, "%v", s)
	}
	return b.String()
}

func (p Path[S, A]) String() string {
	parts := make([]string, len(p.States))
	for i, s := range p.States {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, " -> ")
}

// Solution is a goal path reported by the search.
type Solution[S comparable, A any] struct {
	Path     Path[S, A]
	Score    float64
	HasScore bool
	// Node is the goal node, or NoParent for goals found outside the
	// registry (for example by a rollout).
	Node NodeID
}
