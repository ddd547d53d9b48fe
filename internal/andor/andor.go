// Package andor searches AND-OR graphs. OR nodes are alternatives, AND nodes
// need every child solved. Since no single best path exists until all
// mandatory children resolve, the graph is first expanded completely (up to
// a node limit) and then solved by a bottom-up pass that keeps the k best
// solution trees per node.
package andor

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/logger"
	"github.com/AaronLay10/lazysearch/internal/search"
)

// Aggregator combines the scores of an AND node's children.
type Aggregator func(scores []float64) float64

// Sum adds child scores.
func Sum(scores []float64) float64 {
	total := 0.0
	for _, s := range scores {
		total += s
	}
	return total
}

// Max takes the worst child score.
func Max(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	return slices.Max(scores)
}

// SolutionTree is a solved subgraph: for every AND node all children, for
// every OR node one child.
type SolutionTree struct {
	Score float64
	Nodes []search.NodeID
}

// TreeFoundEvent reports a solution tree of the root.
type TreeFoundEvent struct {
	Tree SolutionTree
}

func (e TreeFoundEvent) Name() string { return search.EventSolutionFound }
func (e TreeFoundEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"score": e.Tree.Score, "nodes": len(e.Tree.Nodes)}
}

// AndTester is implemented by generators that can tell whether the root is
// an AND node. Children carry their kind in search.Successor.
type AndTester[S comparable] interface {
	IsAnd(state S) bool
}

// Config wires a Filter.
type Config[S comparable, A any] struct {
	Generator search.Generator[S, A]
	// LeafScore scores a solved leaf. Nil scores every leaf 0.
	LeafScore func(state S) (float64, bool)
	// Aggregate combines AND children. Nil means Sum.
	Aggregate Aggregator
	// K is the number of solution trees kept per node. Zero means 1.
	K int
	// MaxNodes bounds the expansion. Zero means 100000.
	MaxNodes int
	// RunID names the run. Empty means a fresh UUID.
	RunID  string
	Logger *zap.Logger
}

// Filter expands an AND-OR graph breadth first and then solves it bottom up.
// Like search.Search it is driven by Step.
type Filter[S comparable, A any] struct {
	cfg   Config[S, A]
	goal  func(S) bool
	log   *zap.Logger
	runID string

	reg        *search.Registry[S, A]
	dispatcher search.Dispatcher
	queue      []search.NodeID

	state     search.State
	reason    search.TerminationReason
	trees     []SolutionTree
	cancelled atomic.Bool
}

// New creates a filter in the created state.
func New[S comparable, A any](cfg Config[S, A]) (*Filter[S, A], error) {
	if cfg.Generator == nil {
		return nil, errors.New("andor: generator is required")
	}
	if cfg.Aggregate == nil {
		cfg.Aggregate = Sum
	}
	if cfg.K <= 0 {
		cfg.K = 1
	}
	if cfg.MaxNodes <= 0 {
		cfg.MaxNodes = 100000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	f := &Filter[S, A]{
		cfg:   cfg,
		log:   cfg.Logger.With(zap.String(logger.FieldRunID, runID), zap.String(logger.FieldStrategy, "andor")),
		runID: runID,
		reg:   search.NewRegistry[S, A](),
		state: search.StateCreated,
	}
	if gt, ok := cfg.Generator.(search.GoalTester[S]); ok {
		f.goal = gt.IsGoal
	}
	return f, nil
}

// RunID returns the run identifier.
func (f *Filter[S, A]) RunID() string { return f.runID }

// Registry returns the expanded graph.
func (f *Filter[S, A]) Registry() *search.Registry[S, A] { return f.reg }

// Subscribe registers an event listener.
func (f *Filter[S, A]) Subscribe(l search.Listener) search.Subscription {
	return f.dispatcher.Subscribe(l)
}

// Unsubscribe removes an event listener.
func (f *Filter[S, A]) Unsubscribe(sub search.Subscription) { f.dispatcher.Unsubscribe(sub) }

// State returns the lifecycle state.
func (f *Filter[S, A]) State() search.State { return f.state }

// Reason returns why the filter terminated.
func (f *Filter[S, A]) Reason() search.TerminationReason { return f.reason }

// Cancel stops the filter at its next step.
func (f *Filter[S, A]) Cancel() { f.cancelled.Store(true) }

// Trees returns the root's solution trees, best first, once the filter has
// terminated.
func (f *Filter[S, A]) Trees() []SolutionTree { return f.trees }

// Step expands one node, or solves the graph once nothing is left to expand.
func (f *Filter[S, A]) Step(ctx context.Context) (search.Event, error) {
	if f.state == search.StateTerminated {
		return nil, errors.Wrap(search.ErrIllegalState, "step called after termination")
	}
	if f.cancelled.Load() || ctx.Err() != nil {
		return f.terminate(search.ReasonCancelled), errors.WithStack(search.ErrCancelled)
	}

	if f.state == search.StateCreated {
		root := f.cfg.Generator.Root()
		kind := search.KindOr
		if at, ok := f.cfg.Generator.(AndTester[S]); ok && at.IsAnd(root) {
			kind = search.KindAnd
		}
		var noAction A
		id := f.reg.Add(root, search.NoParent, noAction, kind)
		f.queue = append(f.queue, id)
		f.state = search.StateActive
		ev := search.InitializedEvent{RunID: f.runID, Root: id}
		f.dispatcher.Publish(ev)
		return ev, nil
	}

	if len(f.queue) > 0 && f.reg.Len() < f.cfg.MaxNodes {
		return f.expand(ctx)
	}
	if len(f.queue) > 0 {
		f.log.Warn("node limit reached, solving partial graph", zap.Int(logger.FieldCount, f.reg.Len()))
	}
	return f.solve(), nil
}

func (f *Filter[S, A]) expand(ctx context.Context) (search.Event, error) {
	id := f.queue[0]
	f.queue = f.queue[1:]
	n, _ := f.reg.Get(id)

	succs, err := f.cfg.Generator.Successors(ctx, n.State)
	if err != nil {
		if ctx.Err() != nil {
			return f.terminate(search.ReasonCancelled), errors.Mark(err, search.ErrCancelled)
		}
		err = errors.Wrapf(err, "generate successors of node %d", id)
		ev := f.terminate(search.ReasonFailed)
		return ev, err
	}

	children := make([]search.NodeID, 0, len(succs))
	for _, sc := range succs {
		child := f.reg.Add(sc.State, id, sc.Action, sc.Kind)
		children = append(children, child)
		f.queue = append(f.queue, child)
	}
	f.reg.SetStatus(id, search.StatusExpanded)

	ev := search.NodeExpansionEvent{Parent: id, Children: children, FrontierSize: len(f.queue)}
	f.dispatcher.Publish(ev)
	return ev, nil
}

// solve runs the bottom-up pass. Children always have larger IDs than their
// parent, so visiting IDs in reverse order sees every child first.
func (f *Filter[S, A]) solve() search.Event {
	best := make(map[search.NodeID][]SolutionTree, f.reg.Len())
	for i := f.reg.Len() - 1; i >= 0; i-- {
		id := search.NodeID(i)
		n, _ := f.reg.Get(id)
		kids := f.reg.Children(id)

		switch {
		case len(kids) == 0:
			if t, ok := f.leaf(n); ok {
				best[id] = []SolutionTree{t}
			}
		case n.Kind == search.KindAnd:
			best[id] = f.combine(id, kids, best)
		default:
			var alts []SolutionTree
			for _, k := range kids {
				for _, t := range best[k] {
					alts = append(alts, SolutionTree{Score: t.Score, Nodes: withNode(t.Nodes, id)})
				}
			}
			best[id] = f.topK(alts)
		}
		if ts := best[id]; len(ts) > 0 {
			f.reg.Annotate(id, search.Annotations{search.AnnotationF: ts[0].Score})
		}
	}

	f.trees = best[0]
	for _, t := range f.trees {
		f.log.Info("solution tree found", zap.Float64(logger.FieldScore, t.Score), zap.Int(logger.FieldLength, len(t.Nodes)))
		f.dispatcher.Publish(TreeFoundEvent{Tree: t})
	}
	return f.terminate(search.ReasonExhausted)
}

func (f *Filter[S, A]) leaf(n search.Node[S, A]) (SolutionTree, bool) {
	if n.Status != search.StatusExpanded {
		return SolutionTree{}, false
	}
	if f.goal != nil && !f.goal(n.State) {
		return SolutionTree{}, false
	}
	score := 0.0
	if f.cfg.LeafScore != nil {
		s, ok := f.cfg.LeafScore(n.State)
		if !ok {
			return SolutionTree{}, false
		}
		score = s
	}
	return SolutionTree{Score: score, Nodes: []search.NodeID{n.ID}}, true
}

// combine forms the cartesian product of the children's trees, pruning to
// the k best after each child.
func (f *Filter[S, A]) combine(id search.NodeID, kids []search.NodeID, best map[search.NodeID][]SolutionTree) []SolutionTree {
	type partial struct {
		scores []float64
		nodes  []search.NodeID
	}
	acc := []partial{{nodes: []search.NodeID{id}}}
	for _, k := range kids {
		options := best[k]
		if len(options) == 0 {
			return nil
		}
		next := make([]partial, 0, len(acc)*len(options))
		for _, p := range acc {
			for _, t := range options {
				next = append(next, partial{
					scores: append(slices.Clone(p.scores), t.Score),
					nodes:  append(slices.Clone(p.nodes), t.Nodes...),
				})
			}
		}
		slices.SortStableFunc(next, func(a, b partial) int {
			return compareScore(f.cfg.Aggregate(a.scores), f.cfg.Aggregate(b.scores))
		})
		if len(next) > f.cfg.K {
			next = next[:f.cfg.K]
		}
		acc = next
	}

	out := make([]SolutionTree, len(acc))
	for i, p := range acc {
		slices.Sort(p.nodes)
		out[i] = SolutionTree{Score: f.cfg.Aggregate(p.scores), Nodes: p.nodes}
	}
	return out
}

func (f *Filter[S, A]) topK(ts []SolutionTree) []SolutionTree {
	slices.SortStableFunc(ts, func(a, b SolutionTree) int { return compareScore(a.Score, b.Score) })
	if len(ts) > f.cfg.K {
		ts = ts[:f.cfg.K]
	}
	return ts
}

func (f *Filter[S, A]) terminate(reason search.TerminationReason) search.Event {
	f.state = search.StateTerminated
	f.reason = reason
	f.log.Info("search terminated", zap.String(logger.FieldReason, string(reason)), zap.Int(logger.FieldSolutions, len(f.trees)))
	ev := search.TerminatedEvent{Reason: reason}
	f.dispatcher.Publish(ev)
	return ev
}

// Run steps the filter to termination and returns the root's solution trees.
func (f *Filter[S, A]) Run(ctx context.Context) ([]SolutionTree, error) {
	for f.state != search.StateTerminated {
		if _, err := f.Step(ctx); err != nil {
			return nil, err
		}
	}
	return f.trees, nil
}

func withNode(nodes []search.NodeID, id search.NodeID) []search.NodeID {
	out := append(slices.Clone(nodes), id)
	slices.Sort(out)
	return out
}

func compareScore(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
