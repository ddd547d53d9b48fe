package search

import (
	"context"
	"iter"
	"math"

	"github.com/cockroachdb/errors"
)

// NextSolution steps the search until it emits a solution. Once the search
// has terminated and every emitted solution was returned, the first call
// reports ErrNoMoreSolutions (or the error the search failed with) and later
// calls fail with ErrIllegalState.
func (s *Search[S, A]) NextSolution(ctx context.Context) (Solution[S, A], error) {
	var zero Solution[S, A]
	for {
		if sol, ok := s.popPending(); ok {
			return sol, nil
		}

		if s.State() == StateTerminated {
			s.mu.Lock()
			drained := s.drained
			s.drained = true
			err := s.termErr
			s.mu.Unlock()

			if drained {
				return zero, errors.Wrap(ErrIllegalState, "solutions requested after the search was drained")
			}
			if err != nil {
				return zero, err
			}
			return zero, errors.WithStack(ErrNoMoreSolutions)
		}

		if _, err := s.Step(ctx); err != nil && s.State() != StateTerminated {
			return zero, err
		}
	}
}

// NextSolutionThatDominatesOpen returns the next solution whose score is no
// worse than the best score still on the frontier.
func (s *Search[S, A]) NextSolutionThatDominatesOpen(ctx context.Context) (Solution[S, A], error) {
	for {
		sol, err := s.NextSolution(ctx)
		if err != nil {
			return sol, err
		}
		if !sol.HasScore {
			continue
		}
		best, ok := s.bestOpenScore()
		if !ok || sol.Score <= best {
			return sol, nil
		}
	}
}

// bestOpenScore returns the lowest node score on the frontier. The frontier
// is ordered by the ranker's key, which need not lead with the score.
func (s *Search[S, A]) bestOpenScore() (float64, bool) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	best, found := math.Inf(1), false
	s.frontier.Ascend(func(id NodeID, _ Key) bool {
		if f, ok := s.reg.node(id).F(); ok && (!found || f < best) {
			best, found = f, true
		}
		return true
	})
	return best, found
}

// Solutions iterates over solutions until the search ends. A run that ends
// normally stops the iteration; any other failure is yielded once as the
// error.
func (s *Search[S, A]) Solutions(ctx context.Context) iter.Seq2[Solution[S, A], error] {
	return func(yield func(Solution[S, A], error) bool) {
		for {
			sol, err := s.NextSolution(ctx)
			if errors.Is(err, ErrNoMoreSolutions) {
				return
			}
			if err != nil {
				yield(sol, err)
				return
			}
			if !yield(sol, nil) {
				return
			}
		}
	}
}

// Run drives the search until it ends or max solutions were found (max <= 0
// means no limit) and returns the solutions in emission order.
func (s *Search[S, A]) Run(ctx context.Context, max int) ([]Solution[S, A], error) {
	var out []Solution[S, A]
	for sol, err := range s.Solutions(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, sol)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

func (s *Search[S, A]) popPending() (Solution[S, A], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return Solution[S, A]{}, false
	}
	sol := s.pending[0]
	s.pending = s.pending[1:]
	return sol, true
}
