package astar_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/lazysearch/internal/astar"
	"github.com/AaronLay10/lazysearch/internal/problems/explicit"
	"github.com/AaronLay10/lazysearch/internal/search"
)

func TestDiamondCheapestPathFirst(t *testing.T) {
	g, err := explicit.Load("../problems/explicit/testdata/diamond.json")
	require.NoError(t, err)

	s, err := astar.New[string, string](g, g.Cost, astar.Zero[string])
	require.NoError(t, err)

	sol, err := s.NextSolution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "D"}, sol.Path.States)
	assert.Equal(t, 2.0, sol.Score)

	// The route through C reaches D more expensively and is merged away.
	_, err = s.NextSolution(context.Background())
	assert.ErrorIs(t, err, search.ErrNoMoreSolutions)
}

func TestDiamondTreeSearchReportsBothRoutesInCostOrder(t *testing.T) {
	g, err := explicit.Load("../problems/explicit/testdata/diamond.json")
	require.NoError(t, err)

	s, err := astar.New[string, string](g, g.Cost, astar.Zero[string],
		search.WithDuplicates(search.DuplicatesAllow))
	require.NoError(t, err)

	sols, err := s.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, sols, 2)
	assert.Equal(t, 2.0, sols[0].Score)
	assert.Equal(t, []string{"A", "C", "D"}, sols[1].Path.States)
	assert.Equal(t, 5.0, sols[1].Score)
}

func TestCheaperRouteFoundLaterSwitchesParent(t *testing.T) {
	g, err := explicit.Parse([]byte(`{
		"version": 1,
		"root": "A",
		"goals": ["D"],
		"edges": [
			{"from": "A", "to": "B", "cost": 5},
			{"from": "A", "to": "C", "cost": 1},
			{"from": "C", "to": "B", "cost": 1},
			{"from": "B", "to": "D", "cost": 1}
		]
	}`))
	require.NoError(t, err)

	s, err := astar.New[string, string](g, g.Cost, astar.Zero[string])
	require.NoError(t, err)

	var switches []search.ParentSwitchEvent
	s.Subscribe(func(e search.Event) {
		if ps, ok := e.(search.ParentSwitchEvent); ok {
			switches = append(switches, ps)
		}
	})

	sol, err := s.NextSolution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B", "D"}, sol.Path.States)
	assert.Equal(t, 3.0, sol.Score)

	require.Len(t, switches, 1)
	b, ok := s.Registry().Lookup("B")
	require.True(t, ok)
	c, _ := s.Registry().Lookup("C")
	assert.Equal(t, b, switches[0].Node)
	assert.Equal(t, search.NodeID(0), switches[0].OldParent)
	assert.Equal(t, c, switches[0].NewParent)

	node, _ := s.Registry().Get(b)
	assert.Equal(t, 2, node.Depth)
	assert.Equal(t, 1, s.Stats().ParentSwitches)
}

func TestReopenedNodeKeepsItsChildren(t *testing.T) {
	g, err := explicit.Parse([]byte(`{
		"version": 1,
		"root": "A",
		"goals": ["D"],
		"edges": [
			{"from": "A", "to": "X", "cost": 5},
			{"from": "A", "to": "Y", "cost": 1},
			{"from": "Y", "to": "X", "cost": 1},
			{"from": "X", "to": "Z", "cost": 1},
			{"from": "Z", "to": "D", "cost": 1}
		]
	}`))
	require.NoError(t, err)

	// Inconsistent on purpose: X is expanded before its cheaper route via Y
	// is known, then reopened and expanded again.
	h := func(state string) float64 {
		switch state {
		case "Y":
			return 10
		case "Z":
			return 20
		}
		return 0
	}
	s, err := astar.New[string, string](g, g.Cost, h)
	require.NoError(t, err)

	var switches []search.ParentSwitchEvent
	s.Subscribe(func(e search.Event) {
		if ps, ok := e.(search.ParentSwitchEvent); ok {
			switches = append(switches, ps)
		}
	})

	sol, err := s.NextSolution(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "Y", "X", "Z", "D"}, sol.Path.States)
	assert.Equal(t, 4.0, sol.Score)

	x, _ := s.Registry().Lookup("X")
	z, _ := s.Registry().Lookup("Z")
	require.Len(t, switches, 1)
	assert.Equal(t, x, switches[0].Node)
	assert.Equal(t, 1, s.Stats().ParentSwitches)

	node, _ := s.Registry().Get(z)
	assert.Equal(t, x, node.Parent)
	assert.Equal(t, []search.NodeID{z}, s.Registry().Children(x))
}

func TestEvaluatorRecordsCostSplit(t *testing.T) {
	g, err := explicit.Load("../problems/explicit/testdata/diamond.json")
	require.NoError(t, err)

	ev := astar.Evaluator[string, string]{
		Cost:      g.Cost,
		Heuristic: func(string) float64 { return 0.5 },
	}
	p := search.Path[string, string]{
		States:  []string{"A", "C", "D"},
		Actions: []string{"A->C", "C->D"},
	}
	res, err := ev.Evaluate(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 5.5, res.Score)
	assert.Equal(t, 5.0, res.Annotations[search.AnnotationG])
	assert.Equal(t, 0.5, res.Annotations[search.AnnotationH])
}
