package search

import "context"

// Selection is what a policy wants the coordinator to do next.
type Selection struct {
	Node NodeID
	// Reevaluate asks for the node to be scored again and put back on the
	// frontier instead of being expanded.
	Reevaluate bool
}

// Policy chooses the next node to work on. Next must remove an expanded
// selection from the frontier; the coordinator puts it back if the step is
// rolled back. ok is false when there is nothing left to do.
type Policy[S comparable, A any] interface {
	Next(f *Frontier, r *Registry[S, A]) (sel Selection, ok bool)
}

// BestFirst pops the best frontier entry.
type BestFirst[S comparable, A any] struct{}

func (BestFirst[S, A]) Next(f *Frontier, _ *Registry[S, A]) (Selection, bool) {
	id, _, ok := f.Pop()
	return Selection{Node: id}, ok
}

// Ranker derives a node's frontier key from its annotations.
type Ranker[S comparable, A any] func(n *Node[S, A]) Key

// ScoreRanker keys nodes by f alone.
func ScoreRanker[S comparable, A any](n *Node[S, A]) Key {
	return Key{n.Score()}
}

// Pruner removes nodes that can no longer lead to an improvement. It is
// consulted when a child is inserted and again before a node is expanded.
type Pruner[S comparable, A any] interface {
	Prune(n *Node[S, A]) bool
}

// SolutionObserver is notified of every emitted solution. Pruners and
// policies implement it to track incumbents.
type SolutionObserver[S comparable, A any] interface {
	ObserveSolution(sol Solution[S, A])
}

// ExpansionObserver runs on the coordinator after a node's children have been
// committed. Policies use it for rollouts and backups. It may return goal
// paths it discovered.
type ExpansionObserver[S comparable, A any] interface {
	AfterExpansion(ctx context.Context, r *Registry[S, A], parent NodeID, children []NodeID) ([]Solution[S, A], error)
}

// Config wires the pluggable parts of a search.
type Config[S comparable, A any] struct {
	Generator Generator[S, A]
	Evaluator Evaluator[S, A]
	// Goal overrides the generator's GoalTester.
	Goal    func(S) bool
	Ranker  Ranker[S, A]
	Compare Comparator
	Policy  Policy[S, A]
	Pruners []Pruner[S, A]
}
