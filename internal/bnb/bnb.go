// Package bnb adds branch-and-bound pruning to the search engine: once a
// solution is known, nodes whose admissible score cannot beat it are closed
// without expansion.
package bnb

import (
	"math"
	"sync"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Bound prunes nodes against the best solution score seen so far. Node scores
// must be lower bounds on the cost of any solution below the node.
type Bound[S comparable, A any] struct {
	mu     sync.Mutex
	best   float64
	have   bool
	pruned int
	// Strict prunes only nodes whose score is strictly worse than the
	// incumbent, which keeps equally good solutions reachable.
	Strict bool
}

// NewBound returns a bound with no incumbent.
func NewBound[S comparable, A any]() *Bound[S, A] {
	return &Bound[S, A]{best: math.Inf(1)}
}

// Prune implements search.Pruner.
func (b *Bound[S, A]) Prune(n *search.Node[S, A]) bool {
	f, ok := n.F()
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.have {
		return false
	}
	cut := f >= b.best
	if b.Strict {
		cut = f > b.best
	}
	if cut {
		b.pruned++
	}
	return cut
}

// ObserveSolution implements search.SolutionObserver.
func (b *Bound[S, A]) ObserveSolution(sol search.Solution[S, A]) {
	if !sol.HasScore {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.have || sol.Score < b.best {
		b.best = sol.Score
		b.have = true
	}
}

// Best returns the incumbent score.
func (b *Bound[S, A]) Best() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.best, b.have
}

// Pruned returns how many prune decisions were taken.
func (b *Bound[S, A]) Pruned() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pruned
}

// New builds a branch-and-bound search over gen. Duplicate states are
// dropped. The returned Bound exposes the incumbent.
func New[S comparable, A any](gen search.Generator[S, A], eval search.Evaluator[S, A], opts ...search.Option) (*search.Search[S, A], *Bound[S, A], error) {
	bound := NewBound[S, A]()
	s, err := search.New(search.Config[S, A]{
		Generator: gen,
		Evaluator: eval,
		Pruners:   []search.Pruner[S, A]{bound},
	}, append([]search.Option{search.WithDuplicates(search.DuplicatesIgnore)}, opts...)...)
	if err != nil {
		return nil, nil, err
	}
	return s, bound, nil
}
