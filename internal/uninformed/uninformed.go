// Package uninformed orders the frontier without a heuristic: depth first,
// or in a seeded random order.
package uninformed

import (
	"context"
	"math/rand/v2"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Depth scores a path by its number of edges.
func Depth[S comparable, A any]() search.Evaluator[S, A] {
	return search.EvaluatorFunc[S, A](func(_ context.Context, p search.Path[S, A]) (search.Evaluation[S, A], error) {
		return search.Scored[S, A](float64(p.Len() - 1)), nil
	})
}

// DepthFirstRanker puts the deepest node first. Siblings keep generation
// order through the frontier's discovery tie-break.
func DepthFirstRanker[S comparable, A any](n *search.Node[S, A]) search.Key {
	return search.Key{-float64(n.Depth)}
}

// RandomRanker returns a ranker that gives every node a fixed pseudo-random
// position derived from seed and the node ID.
func RandomRanker[S comparable, A any](seed uint64) search.Ranker[S, A] {
	return func(n *search.Node[S, A]) search.Key {
		r := rand.New(rand.NewPCG(seed, uint64(n.ID)))
		return search.Key{r.Float64()}
	}
}

// DepthFirst builds a depth-first tree search over gen. eval only scores
// solutions; nil scores them by depth.
func DepthFirst[S comparable, A any](gen search.Generator[S, A], eval search.Evaluator[S, A], opts ...search.Option) (*search.Search[S, A], error) {
	if eval == nil {
		eval = Depth[S, A]()
	}
	return search.New(search.Config[S, A]{
		Generator: gen,
		Evaluator: eval,
		Ranker:    DepthFirstRanker[S, A],
	}, append([]search.Option{search.WithDuplicates(search.DuplicatesAllow)}, opts...)...)
}

// Random builds a tree search that expands frontier nodes in a random order
// fixed by seed.
func Random[S comparable, A any](gen search.Generator[S, A], eval search.Evaluator[S, A], seed uint64, opts ...search.Option) (*search.Search[S, A], error) {
	if eval == nil {
		eval = Depth[S, A]()
	}
	return search.New(search.Config[S, A]{
		Generator: gen,
		Evaluator: eval,
		Ranker:    RandomRanker[S, A](seed),
	}, append([]search.Option{search.WithDuplicates(search.DuplicatesAllow), search.WithSeed(seed)}, opts...)...)
}
