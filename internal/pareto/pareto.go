// Package pareto implements uncertainty-guided selection. Every frontier
// node carries a score and an uncertainty; the selector picks a node that is
// good on both (by Pareto dominance or by cosine scalarization) and, while
// that node is still too uncertain, asks for it to be sampled again instead
// of committing to its expansion.
package pareto

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Mode chooses how the candidates are compared.
type Mode string

const (
	// Dominance picks the Pareto-optimal node that dominates the most other
	// candidates. Lower score and higher uncertainty are better.
	Dominance Mode = "dominance"
	// Cosine picks the node whose normalized (goodness, uncertainty) vector
	// is closest in angle to the reference direction (1-Alpha, Alpha).
	Cosine Mode = "cosine"
)

// Selector is a search.Policy. It is used only from the coordinator.
type Selector[S comparable, A any] struct {
	Mode Mode
	// Alpha weighs uncertainty against score in Cosine mode.
	Alpha float64
	// Threshold is the uncertainty above which a node is resampled rather
	// than expanded.
	Threshold float64
	// MaxResamples bounds resampling per node.
	MaxResamples int
	// Window is how many of the best frontier entries are compared.
	Window int

	resamples map[search.NodeID]int
}

// NewSelector returns a selector with the defaults: dominance mode, a window
// of 64 entries and at most two resamples per node.
func NewSelector[S comparable, A any]() *Selector[S, A] {
	return &Selector[S, A]{
		Mode:         Dominance,
		Alpha:        0.5,
		MaxResamples: 2,
		Window:       64,
		resamples:    make(map[search.NodeID]int),
	}
}

type candidate struct {
	id          search.NodeID
	score       float64
	uncertainty float64
}

// Next implements search.Policy.
func (p *Selector[S, A]) Next(f *search.Frontier, r *search.Registry[S, A]) (search.Selection, bool) {
	cands := p.window(f, r)
	if len(cands) == 0 {
		return search.Selection{}, false
	}

	var chosen candidate
	if p.Mode == Cosine {
		chosen = p.byCosine(cands)
	} else {
		chosen = byDominance(cands)
	}

	if p.resamples == nil {
		p.resamples = make(map[search.NodeID]int)
	}
	if chosen.uncertainty > p.Threshold && p.resamples[chosen.id] < p.MaxResamples {
		p.resamples[chosen.id]++
		return search.Selection{Node: chosen.id, Reevaluate: true}, true
	}
	f.Remove(chosen.id)
	return search.Selection{Node: chosen.id}, true
}

// Resamples returns how often id was sent back for resampling.
func (p *Selector[S, A]) Resamples(id search.NodeID) int {
	return p.resamples[id]
}

func (p *Selector[S, A]) window(f *search.Frontier, r *search.Registry[S, A]) []candidate {
	limit := p.Window
	if limit <= 0 {
		limit = 64
	}
	out := make([]candidate, 0, min(limit, f.Len()))
	f.Ascend(func(id search.NodeID, _ search.Key) bool {
		n, ok := r.Get(id)
		if ok {
			out = append(out, candidate{
				id:          id,
				score:       n.Score(),
				uncertainty: n.Annotations.FloatOr(search.AnnotationUncertainty, 0),
			})
		}
		return len(out) < limit
	})
	return out
}

func dominates(a, b candidate) bool {
	if a.score > b.score || a.uncertainty < b.uncertainty {
		return false
	}
	return a.score < b.score || a.uncertainty > b.uncertainty
}

// byDominance returns the front member dominating the most candidates. Ties
// go to the earlier frontier entry.
func byDominance(cands []candidate) candidate {
	best, bestCount := -1, -1
	for i, a := range cands {
		dominated := false
		count := 0
		for j, b := range cands {
			if i == j {
				continue
			}
			if dominates(b, a) {
				dominated = true
				break
			}
			if dominates(a, b) {
				count++
			}
		}
		if !dominated && count > bestCount {
			best, bestCount = i, count
		}
	}
	return cands[best]
}

func (p *Selector[S, A]) byCosine(cands []candidate) candidate {
	lo, hi := math.Inf(1), math.Inf(-1)
	maxU := 0.0
	for _, c := range cands {
		if !math.IsInf(c.score, 0) {
			lo, hi = math.Min(lo, c.score), math.Max(hi, c.score)
		}
		maxU = math.Max(maxU, c.uncertainty)
	}

	ref := []float64{1 - p.Alpha, p.Alpha}
	refNorm := floats.Norm(ref, 2)

	best, bestSim := 0, math.Inf(-1)
	for i, c := range cands {
		v := []float64{normalize(hi-c.score, hi-lo), normalize(c.uncertainty, maxU)}
		sim := 0.0
		if n := floats.Norm(v, 2); n > 0 && refNorm > 0 {
			sim = floats.Dot(v, ref) / (n * refNorm)
		}
		if sim > bestSim {
			best, bestSim = i, sim
		}
	}
	return cands[best]
}

func normalize(v, span float64) float64 {
	switch {
	case math.IsInf(v, 0) || math.IsNaN(v):
		return 0
	case span <= 0:
		return 1
	default:
		return v / span
	}
}

// New builds an uncertainty-guided search. Known states are ignored. The
// evaluator should report an uncertainty annotation and refine it on
// re-evaluation, as evaluators.RandomCompletion does.
func New[S comparable, A any](gen search.Generator[S, A], eval search.Evaluator[S, A], sel *Selector[S, A], opts ...search.Option) (*search.Search[S, A], error) {
	return search.New(search.Config[S, A]{
		Generator: gen,
		Evaluator: eval,
		Policy:    sel,
	}, append([]search.Option{search.WithDuplicates(search.DuplicatesIgnore)}, opts...)...)
}
