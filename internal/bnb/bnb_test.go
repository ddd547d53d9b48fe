package bnb_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/lazysearch/internal/astar"
	"github.com/AaronLay10/lazysearch/internal/bnb"
	"github.com/AaronLay10/lazysearch/internal/problems/explicit"
	"github.com/AaronLay10/lazysearch/internal/search"
)

const graph = `{
	"version": 1,
	"root": "S",
	"goals": ["G", "Z"],
	"edges": [
		{"from": "S", "to": "A", "cost": 1},
		{"from": "S", "to": "B", "cost": 5},
		{"from": "A", "to": "G", "cost": 2},
		{"from": "A", "to": "H", "cost": 4},
		{"from": "H", "to": "Z", "cost": 0},
		{"from": "B", "to": "C", "cost": 1}
	]
}`

func TestIncumbentPrunesWorseNodes(t *testing.T) {
	g, err := explicit.Parse([]byte(graph))
	require.NoError(t, err)

	s, bound, err := bnb.New[string, string](g, astar.Evaluator[string, string]{Cost: g.Cost},
		search.WithEagerSolutions())
	require.NoError(t, err)

	var pruned []string
	s.Subscribe(func(e search.Event) {
		if p, ok := e.(search.NodePrunedEvent); ok {
			n, _ := s.Registry().Get(p.Node)
			pruned = append(pruned, n.State)
		}
	})

	sols, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sols, 1)
	assert.Equal(t, []string{"S", "A", "G"}, sols[0].Path.States)

	best, ok := bound.Best()
	require.True(t, ok)
	assert.Equal(t, 3.0, best)

	// H is cut on insertion, B when it reaches the top of the frontier.
	assert.Equal(t, []string{"H", "B"}, pruned)
	assert.Equal(t, 2, s.Stats().Pruned)
	assert.Equal(t, 2, bound.Pruned())

	_, known := s.Registry().Lookup("C")
	assert.False(t, known, "pruned node must not be expanded")
}

func TestSolutionsNeverWorsen(t *testing.T) {
	g, err := explicit.Parse([]byte(graph))
	require.NoError(t, err)

	s, _, err := bnb.New[string, string](g, astar.Evaluator[string, string]{Cost: g.Cost})
	require.NoError(t, err)

	sols, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, sols)
	for i := 1; i < len(sols); i++ {
		assert.Less(t, sols[i].Score, sols[i-1].Score)
	}
}

func TestBoundWithoutIncumbentKeepsEverything(t *testing.T) {
	b := bnb.NewBound[string, string]()
	n := &search.Node[string, string]{Annotations: search.Annotations{search.AnnotationF: 100.0}}
	assert.False(t, b.Prune(n))

	b.ObserveSolution(search.Solution[string, string]{Score: 10, HasScore: true})
	assert.True(t, b.Prune(n))

	b.Strict = true
	equal := &search.Node[string, string]{Annotations: search.Annotations{search.AnnotationF: 10.0}}
	assert.False(t, b.Prune(equal))
}
