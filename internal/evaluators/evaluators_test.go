package evaluators_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/lazysearch/internal/astar"
	"github.com/AaronLay10/lazysearch/internal/evaluators"
	"github.com/AaronLay10/lazysearch/internal/problems/explicit"
	"github.com/AaronLay10/lazysearch/internal/problems/queens"
	"github.com/AaronLay10/lazysearch/internal/search"
)

func rootPath[S comparable, A any](root S) search.Path[S, A] {
	return search.Path[S, A]{
		Nodes:       []search.NodeID{0},
		States:      []S{root},
		Annotations: search.Annotations{},
	}
}

func queensSampler(t *testing.T) (*evaluators.RandomCompletion[queens.Board, int], search.Path[queens.Board, int]) {
	t.Helper()
	p, err := queens.New(6)
	require.NoError(t, err)
	rc := &evaluators.RandomCompletion[queens.Board, int]{
		Generator: p,
		Score:     queens.Unplaced,
		Samples:   4,
		Seed:      11,
	}
	return rc, rootPath[queens.Board, int](p.Root())
}

func TestRandomCompletionSamplesAndIsDeterministic(t *testing.T) {
	rc, path := queensSampler(t)

	first, err := rc.Evaluate(context.Background(), path)
	require.NoError(t, err)
	samples, ok := first.Annotations.Int(search.AnnotationSamples)
	require.True(t, ok)
	assert.Equal(t, 4, samples)
	assert.GreaterOrEqual(t, first.Score, 0.0)
	assert.LessOrEqual(t, first.Score, 6.0)
	_, ok = first.Annotations.Float(search.AnnotationUncertainty)
	assert.True(t, ok)

	second, err := rc.Evaluate(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Annotations, second.Annotations)
}

func TestRandomCompletionDoublesSamplesOnReevaluation(t *testing.T) {
	rc, path := queensSampler(t)
	rc.MaxSamples = 20

	path.Annotations[search.AnnotationSamples] = 4
	ev, err := rc.Evaluate(context.Background(), path)
	require.NoError(t, err)
	samples, _ := ev.Annotations.Int(search.AnnotationSamples)
	assert.Equal(t, 8, samples)

	path.Annotations[search.AnnotationSamples] = 16
	ev, err = rc.Evaluate(context.Background(), path)
	require.NoError(t, err)
	samples, _ = ev.Annotations.Int(search.AnnotationSamples)
	assert.Equal(t, 20, samples, "sample count is capped by MaxSamples")
}

func TestRandomCompletionInheritsFromParentOfOnlyChild(t *testing.T) {
	rc, path := queensSampler(t)
	rc.InheritSingleChild = true
	path.Siblings = 1
	path.Parent = search.Annotations{search.AnnotationF: 3.0, search.AnnotationUncertainty: 0.5}

	ev, err := rc.Evaluate(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, ev.Score)
	u, ok := ev.Annotations.Float(search.AnnotationUncertainty)
	require.True(t, ok)
	assert.Equal(t, 0.5, u)

	// With siblings the node is sampled.
	path.Siblings = 2
	ev, err = rc.Evaluate(context.Background(), path)
	require.NoError(t, err)
	samples, _ := ev.Annotations.Int(search.AnnotationSamples)
	assert.Equal(t, 4, samples)
}

func TestRandomCompletionReportsGoalCompletions(t *testing.T) {
	g, err := explicit.Load("../problems/explicit/testdata/diamond.json")
	require.NoError(t, err)
	cost := astar.Evaluator[string, string]{Cost: g.Cost}

	rc := &evaluators.RandomCompletion[string, string]{
		Generator: g,
		Score: func(ctx context.Context, p search.Path[string, string]) (float64, error) {
			ev, err := cost.Evaluate(ctx, p)
			return ev.Score, err
		},
		Samples:         8,
		Seed:            3,
		ReportSolutions: true,
	}

	ev, err := rc.Evaluate(context.Background(), rootPath[string, string](g.Root()))
	require.NoError(t, err)
	assert.Contains(t, []float64{2, 5}, ev.Score)
	require.Len(t, ev.Solutions, 8)
	for _, sol := range ev.Solutions {
		assert.Equal(t, "D", sol.Path.Head())
		assert.True(t, sol.HasScore)
		assert.Equal(t, search.NoParent, sol.Node)
	}
}

func TestRandomCompletionWithoutScoresIsNotYetComputable(t *testing.T) {
	rc, path := queensSampler(t)
	rc.Score = func(context.Context, search.Path[queens.Board, int]) (float64, error) {
		return 0, errors.New("scorer offline")
	}

	_, err := rc.Evaluate(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrNotYetComputable))
}

func TestRandomCompletionHonoursCancellation(t *testing.T) {
	rc, path := queensSampler(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rc.Evaluate(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFallbackUsesPreferredWhenItAnswers(t *testing.T) {
	backupCalled := false
	f := evaluators.Fallback[string, string]{
		Preferred: evaluators.Constant[string, string](1),
		Backup: search.EvaluatorFunc[string, string](func(context.Context, search.Path[string, string]) (search.Evaluation[string, string], error) {
			backupCalled = true
			return search.Scored[string, string](9), nil
		}),
	}

	ev, err := f.Evaluate(context.Background(), rootPath[string, string]("A"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.Score)
	assert.False(t, backupCalled)
}

func TestFallbackAsksBackupWhenPreferredCannotScore(t *testing.T) {
	f := evaluators.Fallback[string, string]{
		Preferred: evaluators.Unknown[string, string](),
		Backup:    evaluators.Constant[string, string](7),
		Timeout:   time.Second,
	}

	ev, err := f.Evaluate(context.Background(), rootPath[string, string]("A"))
	require.NoError(t, err)
	assert.Equal(t, 7.0, ev.Score)
}

func TestFallbackWithoutBackupKeepsNotYetComputable(t *testing.T) {
	f := evaluators.Fallback[string, string]{Preferred: evaluators.Unknown[string, string]()}

	_, err := f.Evaluate(context.Background(), rootPath[string, string]("A"))
	assert.True(t, errors.Is(err, search.ErrNotYetComputable))
}

func TestFallbackBackupTimeout(t *testing.T) {
	f := evaluators.Fallback[string, string]{
		Preferred: evaluators.Unknown[string, string](),
		Backup: search.EvaluatorFunc[string, string](func(ctx context.Context, _ search.Path[string, string]) (search.Evaluation[string, string], error) {
			<-ctx.Done()
			return search.Evaluation[string, string]{}, ctx.Err()
		}),
		Timeout: 20 * time.Millisecond,
	}

	_, err := f.Evaluate(context.Background(), rootPath[string, string]("A"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrNodeTimeout))
}

func TestFallbackPassesOtherErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	f := evaluators.Fallback[string, string]{
		Preferred: search.EvaluatorFunc[string, string](func(context.Context, search.Path[string, string]) (search.Evaluation[string, string], error) {
			return search.Evaluation[string, string]{}, boom
		}),
		Backup: evaluators.Constant[string, string](7),
	}

	_, err := f.Evaluate(context.Background(), rootPath[string, string]("A"))
	assert.True(t, errors.Is(err, boom))
}
