package metasearch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/lazysearch/internal/astar"
	"github.com/AaronLay10/lazysearch/internal/evaluators"
	"github.com/AaronLay10/lazysearch/internal/metasearch"
	"github.com/AaronLay10/lazysearch/internal/problems/explicit"
	"github.com/AaronLay10/lazysearch/internal/problems/queens"
	"github.com/AaronLay10/lazysearch/internal/search"
)

func members(t *testing.T) (*search.Search[string, string], *search.Search[queens.Board, int]) {
	t.Helper()
	g, err := explicit.Load("../problems/explicit/testdata/diamond.json")
	require.NoError(t, err)
	a, err := astar.New[string, string](g, g.Cost, astar.Zero[string])
	require.NoError(t, err)

	p, err := queens.New(4)
	require.NoError(t, err)
	q, err := search.New(search.Config[queens.Board, int]{
		Generator: p,
		Evaluator: evaluators.Constant[queens.Board, int](0),
	})
	require.NoError(t, err)
	return a, q
}

func TestMembersTakeTurns(t *testing.T) {
	a, q := members(t)
	rr := metasearch.New(nil, a, q)

	var order []int
	for i := 0; i < 4; i++ {
		idx, _, err := rr.Step(context.Background())
		require.NoError(t, err)
		order = append(order, idx)
	}
	assert.Equal(t, []int{0, 1, 0, 1}, order)
}

func TestSolutionsFromAllMembers(t *testing.T) {
	a, q := members(t)
	rr := metasearch.New(nil, a, q)

	found := map[int]int{}
	for {
		idx, ev, err := rr.NextSolution(context.Background())
		if err != nil {
			assert.ErrorIs(t, err, search.ErrNoMoreSolutions)
			break
		}
		assert.Equal(t, search.EventSolutionFound, ev.Name())
		found[idx]++
	}
	assert.Equal(t, map[int]int{0: 1, 1: 2}, found)
	assert.True(t, rr.Done())
}

// fork is a root with two goal leaves.
type fork struct{}

func (fork) Root() string { return "r" }

func (fork) Successors(_ context.Context, s string) ([]search.Successor[string, string], error) {
	if s != "r" {
		return nil, nil
	}
	return []search.Successor[string, string]{{State: "g1", Action: "a"}, {State: "g2", Action: "b"}}, nil
}

func (fork) IsGoal(s string) bool { return s != "r" }

func TestSolutionsFromOneStepAreAllReturned(t *testing.T) {
	newFork := func() *search.Search[string, string] {
		s, err := search.New(search.Config[string, string]{
			Generator: fork{},
			Evaluator: evaluators.Constant[string, string](0),
		}, search.WithEagerSolutions())
		require.NoError(t, err)
		return s
	}

	direct, err := newFork().Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, direct, 2)

	rr := metasearch.New(nil, newFork())
	var heads []string
	for {
		_, ev, err := rr.NextSolution(context.Background())
		if err != nil {
			require.ErrorIs(t, err, search.ErrNoMoreSolutions)
			break
		}
		sf, ok := ev.(search.SolutionFoundEvent[string, string])
		require.True(t, ok)
		heads = append(heads, sf.Solution.Path.Head())
	}
	assert.Equal(t, []string{"g1", "g2"}, heads)
}

func TestTerminatedMembersAreSkipped(t *testing.T) {
	a, q := members(t)
	rr := metasearch.New(nil, a, q)
	a.Cancel()

	// The cancelled member terminates on its first step and is skipped
	// from then on.
	idx, _, err := rr.Step(context.Background())
	assert.Equal(t, 0, idx)
	assert.ErrorIs(t, err, search.ErrCancelled)

	for i := 0; i < 3; i++ {
		idx, _, err = rr.Step(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, idx)
	}
}
