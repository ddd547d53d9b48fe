// Package astar configures the search engine as A*: f = g + h, where g is
// accumulated edge by edge along the node's path.
package astar

import (
	"context"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Cost returns the cost of the edge from -> to labelled action.
type Cost[S comparable, A any] func(from, to S, action A) float64

// Heuristic estimates the remaining cost from a state. It must be admissible
// and consistent for the first solution to be optimal.
type Heuristic[S comparable] func(state S) float64

// Zero is the heuristic h = 0, which makes A* a uniform-cost search.
func Zero[S comparable](S) float64 { return 0 }

// Evaluator computes f = g + h and records g and h as annotations.
type Evaluator[S comparable, A any] struct {
	Cost      Cost[S, A]
	Heuristic Heuristic[S]
}

// Evaluate implements search.Evaluator.
func (e Evaluator[S, A]) Evaluate(ctx context.Context, path search.Path[S, A]) (search.Evaluation[S, A], error) {
	g := 0.0
	for i, action := range path.Actions {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return search.Evaluation[S, A]{}, err
			}
		}
		g += e.Cost(path.States[i], path.States[i+1], action)
	}
	h := 0.0
	if e.Heuristic != nil {
		h = e.Heuristic(path.Head())
	}
	return search.Evaluation[S, A]{
		Score: g + h,
		Annotations: search.Annotations{
			search.AnnotationG: g,
			search.AnnotationH: h,
		},
	}, nil
}

// New builds an A* search. Duplicate states are merged, keeping the cheaper
// path; opts may override that.
func New[S comparable, A any](gen search.Generator[S, A], cost Cost[S, A], h Heuristic[S], opts ...search.Option) (*search.Search[S, A], error) {
	cfg := search.Config[S, A]{
		Generator: gen,
		Evaluator: Evaluator[S, A]{Cost: cost, Heuristic: h},
	}
	return search.New(cfg, append([]search.Option{search.WithDuplicates(search.DuplicatesReparent)}, opts...)...)
}
