package pareto_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/lazysearch/internal/evaluators"
	"github.com/AaronLay10/lazysearch/internal/pareto"
	"github.com/AaronLay10/lazysearch/internal/problems/queens"
	"github.com/AaronLay10/lazysearch/internal/search"
)

// fixture puts a, b, c and d on a frontier keyed by score.
//
//	a: score 1, uncertainty 0
//	b: score 2, uncertainty 0.5   dominates c and d
//	c: score 3, uncertainty 0.1
//	d: score 4, uncertainty 0
func fixture() (*search.Frontier, *search.Registry[string, string], map[string]search.NodeID) {
	r := search.NewRegistry[string, string]()
	f := search.NewFrontier(nil)
	ids := make(map[string]search.NodeID)

	root := r.Add("root", search.NoParent, "", search.KindOr)
	for _, n := range []struct {
		name  string
		score float64
		unc   float64
	}{{"a", 1, 0}, {"b", 2, 0.5}, {"c", 3, 0.1}, {"d", 4, 0}} {
		id := r.Add(n.name, root, n.name, search.KindOr)
		r.Annotate(id, search.Annotations{
			search.AnnotationF:           n.score,
			search.AnnotationUncertainty: n.unc,
		})
		f.Push(id, search.Key{n.score})
		ids[n.name] = id
	}
	return f, r, ids
}

func TestDominancePicksMostDominantFrontMember(t *testing.T) {
	f, r, ids := fixture()
	sel := pareto.NewSelector[string, string]()
	sel.Threshold = 1

	got, ok := sel.Next(f, r)
	require.True(t, ok)
	assert.Equal(t, ids["b"], got.Node)
	assert.False(t, got.Reevaluate)
	assert.False(t, f.Contains(ids["b"]))
}

func TestUncertainNodesAreResampledFirst(t *testing.T) {
	f, r, ids := fixture()
	sel := pareto.NewSelector[string, string]()
	sel.Threshold = 0.2
	sel.MaxResamples = 1

	got, ok := sel.Next(f, r)
	require.True(t, ok)
	assert.Equal(t, ids["b"], got.Node)
	assert.True(t, got.Reevaluate)
	assert.True(t, f.Contains(ids["b"]), "resampled node stays on the frontier")
	assert.Equal(t, 1, sel.Resamples(ids["b"]))

	got, ok = sel.Next(f, r)
	require.True(t, ok)
	assert.Equal(t, ids["b"], got.Node)
	assert.False(t, got.Reevaluate)
}

func TestCosineFollowsReferenceDirection(t *testing.T) {
	tests := []struct {
		name  string
		alpha float64
		want  string
	}{
		{"score only", 0, "a"},
		{"uncertainty only", 1, "b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, r, ids := fixture()
			sel := pareto.NewSelector[string, string]()
			sel.Mode = pareto.Cosine
			sel.Alpha = tt.alpha
			sel.Threshold = 1

			got, ok := sel.Next(f, r)
			require.True(t, ok)
			assert.Equal(t, ids[tt.want], got.Node)
		})
	}
}

func TestEmptyFrontierEndsSearch(t *testing.T) {
	sel := pareto.NewSelector[string, string]()
	_, ok := sel.Next(search.NewFrontier(nil), search.NewRegistry[string, string]())
	assert.False(t, ok)
}

func TestQueensWithResampling(t *testing.T) {
	p, err := queens.New(6)
	require.NoError(t, err)

	sel := pareto.NewSelector[queens.Board, int]()
	sel.Threshold = 0.01
	eval := &evaluators.RandomCompletion[queens.Board, int]{
		Generator: p,
		Score:     queens.Unplaced,
		Samples:   3,
		Seed:      11,
	}

	s, err := pareto.New[queens.Board, int](p, eval, sel)
	require.NoError(t, err)

	sols, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, sols, 4)
	assert.Positive(t, s.Stats().Reevaluations)
}
