// Package evaluators holds domain-agnostic node evaluators: a preferred
// evaluator with a timed fallback, a random-completion sampler and small
// helpers.
package evaluators

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Fallback tries Preferred first. When Preferred answers ErrNotYetComputable,
// Backup is asked under Timeout. A Backup that does not answer in time makes
// the evaluation fail with ErrNodeTimeout, which the search turns into a
// permanently deferred node.
type Fallback[S comparable, A any] struct {
	Preferred search.Evaluator[S, A]
	Backup    search.Evaluator[S, A]
	Timeout   time.Duration
}

// Evaluate implements search.Evaluator.
func (f Fallback[S, A]) Evaluate(ctx context.Context, path search.Path[S, A]) (search.Evaluation[S, A], error) {
	ev, err := f.Preferred.Evaluate(ctx, path)
	if err == nil || !errors.Is(err, search.ErrNotYetComputable) || f.Backup == nil {
		return ev, err
	}

	ev, err = search.CallWithTimeout(ctx, f.Timeout, func(ctx context.Context) (search.Evaluation[S, A], error) {
		return f.Backup.Evaluate(ctx, path)
	})
	if err != nil {
		return ev, errors.Wrap(err, "fallback evaluator")
	}
	return ev, nil
}

// Constant scores every node with v.
func Constant[S comparable, A any](v float64) search.Evaluator[S, A] {
	return search.EvaluatorFunc[S, A](func(context.Context, search.Path[S, A]) (search.Evaluation[S, A], error) {
		return search.Scored[S, A](v), nil
	})
}

// Unknown never has a score. It is the preferred half of a fallback when no
// informed evaluator exists for part of the graph.
func Unknown[S comparable, A any]() search.Evaluator[S, A] {
	return search.EvaluatorFunc[S, A](func(context.Context, search.Path[S, A]) (search.Evaluation[S, A], error) {
		return search.Evaluation[S, A]{}, search.ErrNotYetComputable
	})
}
