// Package explicit provides a finite weighted graph, loaded from JSON, that
// implements the search generator contract. It is used for small fixtures
// and for the AND-OR examples.
package explicit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Graph is the top-level document loaded from JSON.
type Graph struct {
	Version   int                `json:"version"`
	RootState string             `json:"root"`
	Goals     []string           `json:"goals,omitempty"`
	And       []string           `json:"and,omitempty"`
	Edges     []Edge             `json:"edges"`
	Heuristic map[string]float64 `json:"heuristic,omitempty"`
	LeafCosts map[string]float64 `json:"leaf_costs,omitempty"`

	goals map[string]bool
	and   map[string]bool
	out   map[string][]int
}

// Edge is a directed, weighted transition. An empty label is rendered as
// "from->to".
type Edge struct {
	From  string  `json:"from"`
	To    string  `json:"to"`
	Label string  `json:"label,omitempty"`
	Cost  float64 `json:"cost,omitempty"`
}

// Load reads a graph from a JSON file.
func Load(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and indexes a graph document.
func Parse(data []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse graph JSON: %w", err)
	}
	if g.Version != 1 {
		return nil, fmt.Errorf("unsupported graph version: %d", g.Version)
	}
	if g.RootState == "" {
		return nil, fmt.Errorf("graph has no root")
	}
	g.index()
	return &g, nil
}

func (g *Graph) index() {
	g.goals = make(map[string]bool, len(g.Goals))
	for _, s := range g.Goals {
		g.goals[s] = true
	}
	g.and = make(map[string]bool, len(g.And))
	for _, s := range g.And {
		g.and[s] = true
	}
	g.out = make(map[string][]int)
	for i, e := range g.Edges {
		g.out[e.From] = append(g.out[e.From], i)
	}
}

// Root returns the root state.
func (g *Graph) Root() string {
	return g.RootState
}

// Successors returns the outgoing edges of state in declaration order.
func (g *Graph) Successors(ctx context.Context, state string) ([]search.Successor[string, string], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	idx := g.out[state]
	out := make([]search.Successor[string, string], 0, len(idx))
	for _, i := range idx {
		e := g.Edges[i]
		kind := search.KindOr
		if g.and[e.To] {
			kind = search.KindAnd
		}
		out = append(out, search.Successor[string, string]{State: e.To, Action: e.label(), Kind: kind})
	}
	return out, nil
}

// IsGoal reports whether state is a declared goal. Without declared goals,
// every state without outgoing edges is one.
func (g *Graph) IsGoal(state string) bool {
	if len(g.goals) == 0 {
		return len(g.out[state]) == 0
	}
	return g.goals[state]
}

// IsAnd reports whether state was declared as an AND node.
func (g *Graph) IsAnd(state string) bool {
	return g.and[state]
}

// Cost returns the cost of the first edge from -> to carrying label.
func (g *Graph) Cost(from, to, label string) float64 {
	for _, i := range g.out[from] {
		e := g.Edges[i]
		if e.To == to && e.label() == label {
			return e.Cost
		}
	}
	return 0
}

// H returns the heuristic estimate for state, zero when none is declared.
func (g *Graph) H(state string) float64 {
	return g.Heuristic[state]
}

// LeafCost returns the declared cost of a leaf state.
func (g *Graph) LeafCost(state string) (float64, bool) {
	c, ok := g.LeafCosts[state]
	return c, ok
}

func (e Edge) label() string {
	if e.Label != "" {
		return e.Label
	}
	return e.From + "->" + e.To
}
