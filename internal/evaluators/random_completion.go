package evaluators

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// AnnotationMean is the mean of the sampled completion scores.
const AnnotationMean = "mean"

// RandomCompletion scores a node by completing its path uniformly at random
// until a terminal state and scoring the completions. The node's score is the
// best (lowest) sample; its uncertainty is the standard error of the samples.
//
// Each evaluation draws from a generator seeded by Seed and the path, so the
// samples for a node do not depend on evaluation order or parallelism.
type RandomCompletion[S comparable, A any] struct {
	Generator search.Generator[S, A]
	// Goal marks terminal goal states. Defaults to the generator's
	// GoalTester; without one only states without successors are terminal.
	Goal func(S) bool
	// Score rates a terminal path. Errors discard the sample.
	Score func(ctx context.Context, path search.Path[S, A]) (float64, error)

	Samples     int
	MaxSamples  int
	MaxAttempts int
	MaxDepth    int
	Seed        uint64

	// ReportSolutions hands completions ending in a goal to the search.
	ReportSolutions bool
	// InheritSingleChild copies the parent's score to an only child instead
	// of sampling it again.
	InheritSingleChild bool
}

// Evaluate implements search.Evaluator. Re-evaluating a node doubles the
// number of samples, up to MaxSamples.
func (r *RandomCompletion[S, A]) Evaluate(ctx context.Context, path search.Path[S, A]) (search.Evaluation[S, A], error) {
	if r.InheritSingleChild && path.Siblings == 1 {
		if f, ok := path.Parent.Float(search.AnnotationF); ok {
			ann := search.Annotations{search.AnnotationSamples: 0}
			if u, ok := path.Parent.Float(search.AnnotationUncertainty); ok {
				ann[search.AnnotationUncertainty] = u
			}
			return search.Evaluation[S, A]{Score: f, Annotations: ann}, nil
		}
	}

	want := r.sampleCount(path)
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 4 * want
	}
	rng := rand.New(rand.NewPCG(r.Seed, pathSeed(path)))

	var (
		scores []float64
		sols   []search.Solution[S, A]
	)
	for i := 0; i < attempts && len(scores) < want; i++ {
		done, goal, err := r.complete(ctx, rng, path)
		if err != nil {
			return search.Evaluation[S, A]{}, err
		}
		score, err := r.Score(ctx, done)
		if err != nil {
			continue
		}
		scores = append(scores, score)
		if goal && r.ReportSolutions {
			sols = append(sols, search.Solution[S, A]{Path: done, Score: score, HasScore: true, Node: search.NoParent})
		}
	}
	if len(scores) == 0 {
		return search.Evaluation[S, A]{}, errors.Wrapf(search.ErrNotYetComputable, "no completion scored after %d attempts", attempts)
	}

	mean, std := stat.MeanStdDev(scores, nil)
	uncertainty := 0.0
	if len(scores) > 1 && !math.IsNaN(std) {
		uncertainty = std / math.Sqrt(float64(len(scores)))
	}
	return search.Evaluation[S, A]{
		Score: floats.Min(scores),
		Annotations: search.Annotations{
			search.AnnotationSamples:     len(scores),
			search.AnnotationUncertainty: uncertainty,
			AnnotationMean:               mean,
		},
		Solutions: sols,
	}, nil
}

func (r *RandomCompletion[S, A]) sampleCount(path search.Path[S, A]) int {
	n := r.Samples
	if n <= 0 {
		n = 3
	}
	if prev, ok := path.Annotations.Int(search.AnnotationSamples); ok && prev > 0 {
		n = 2 * prev
	}
	max := r.MaxSamples
	if max <= 0 {
		max = 64
	}
	if n > max {
		n = max
	}
	return n
}

// complete walks from the head of path to a terminal state.
func (r *RandomCompletion[S, A]) complete(ctx context.Context, rng *rand.Rand, path search.Path[S, A]) (search.Path[S, A], bool, error) {
	maxDepth := r.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 10000
	}
	cur := path
	for depth := 0; depth < maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return cur, false, err
		}
		if r.isGoal(cur.Head()) {
			return cur, true, nil
		}
		succs, err := r.Generator.Successors(ctx, cur.Head())
		if err != nil {
			return cur, false, err
		}
		if len(succs) == 0 {
			return cur, r.Goal == nil && !r.hasGoalTester(), nil
		}
		next := succs[rng.IntN(len(succs))]
		cur = cur.Extend(next.State, next.Action)
	}
	return cur, false, nil
}

func (r *RandomCompletion[S, A]) isGoal(s S) bool {
	if r.Goal != nil {
		return r.Goal(s)
	}
	if gt, ok := r.Generator.(search.GoalTester[S]); ok {
		return gt.IsGoal(s)
	}
	return false
}

func (r *RandomCompletion[S, A]) hasGoalTester() bool {
	_, ok := r.Generator.(search.GoalTester[S])
	return ok
}

func pathSeed[S comparable, A any](path search.Path[S, A]) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path.Key()))
	return h.Sum64()
}
