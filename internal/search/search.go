// Package search implements a lazy best-first search engine over implicit
// graphs. A Search owns its node registry and frontier and is advanced one
// transition at a time by Step; evaluation and successor generation can be
// farmed out to a bounded worker pool while all mutation stays on the
// goroutine calling Step.
package search

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/logger"
)

// State is the lifecycle state of a search.
type State string

const (
	StateCreated    State = "created"
	StateActive     State = "active"
	StateTerminated State = "terminated"
)

// TerminationReason says why a search stopped.
type TerminationReason string

const (
	ReasonExhausted TerminationReason = "exhausted"
	ReasonCancelled TerminationReason = "cancelled"
	ReasonTimeout   TerminationReason = "timeout"
	ReasonFailed    TerminationReason = "failed"
)

// Stats counts what a search has done so far.
type Stats struct {
	Expansions     int
	Solutions      int
	Pruned         int
	Deferred       int
	Failed         int
	ParentSwitches int
	Reevaluations  int
}

// Search is a resumable best-first search. Step, NextSolution and the other
// driving methods serialize on an internal lock; Cancel, State, Stats and the
// registry accessors may be called from any goroutine.
type Search[S comparable, A any] struct {
	cfg   Config[S, A]
	opts  Options
	log   *zap.Logger
	runID string
	goal  func(S) bool

	reg        *Registry[S, A]
	frontier   *Frontier
	pool       pool
	dispatcher Dispatcher

	stepMu  sync.Mutex
	emitted map[string]struct{}
	queued  []Solution[S, A]

	mu       sync.Mutex
	state    State
	reason   TerminationReason
	termErr  error
	deadline time.Time
	stats    Stats
	pending  []Solution[S, A]
	drained  bool

	cancelled atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a search in the created state.
func New[S comparable, A any](cfg Config[S, A], opts ...Option) (*Search[S, A], error) {
	if cfg.Generator == nil {
		return nil, errors.New("search: generator is required")
	}
	if cfg.Evaluator == nil {
		return nil, errors.New("search: evaluator is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if cfg.Ranker == nil {
		cfg.Ranker = ScoreRanker[S, A]
	}
	if cfg.Policy == nil {
		cfg.Policy = BestFirst[S, A]{}
	}

	goal := cfg.Goal
	if goal == nil {
		if gt, ok := cfg.Generator.(GoalTester[S]); ok {
			goal = gt.IsGoal
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Search[S, A]{
		cfg:      cfg,
		opts:     o,
		log:      o.Logger.With(zap.String(logger.FieldRunID, o.RunID)),
		runID:    o.RunID,
		goal:     goal,
		reg:      NewRegistry[S, A](),
		frontier: NewFrontier(cfg.Compare),
		pool:     pool{limit: o.Parallelism},
		emitted:  make(map[string]struct{}),
		state:    StateCreated,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// RunID returns the search's run identifier.
func (s *Search[S, A]) RunID() string { return s.runID }

// Options returns the scalar settings the search was built with.
func (s *Search[S, A]) Options() Options { return s.opts }

// Registry returns the node arena. Its exported readers are safe for
// concurrent use.
func (s *Search[S, A]) Registry() *Registry[S, A] { return s.reg }

// Frontier returns the frontier. It must not be used concurrently with Step.
func (s *Search[S, A]) Frontier() *Frontier { return s.frontier }

// Subscribe registers a listener for search events.
func (s *Search[S, A]) Subscribe(l Listener) Subscription { return s.dispatcher.Subscribe(l) }

// Unsubscribe removes a listener.
func (s *Search[S, A]) Unsubscribe(sub Subscription) { s.dispatcher.Unsubscribe(sub) }

// State returns the lifecycle state.
func (s *Search[S, A]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns why the search terminated, or "" while it is running.
func (s *Search[S, A]) Reason() TerminationReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Err returns the error the search failed with, if any.
func (s *Search[S, A]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// Stats returns a snapshot of the counters.
func (s *Search[S, A]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Cancel asks the search to stop. In-flight evaluations are interrupted, the
// current step is rolled back and the next step fails with ErrCancelled.
func (s *Search[S, A]) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.log.Info("search cancel requested")
	}
	s.cancel()
}

// Step performs one transition. In the created state it evaluates the root
// and activates the search; in the active state it checks the deadline and
// expands (or re-evaluates) one node; once terminated it fails with
// ErrIllegalState. When the search terminates, Step returns the
// TerminatedEvent together with the terminal error, if any.
func (s *Search[S, A]) Step(ctx context.Context) (Event, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	switch s.State() {
	case StateCreated:
		return s.initialize(ctx)
	case StateActive:
		return s.advance(ctx, NoParent)
	default:
		return nil, errors.Wrap(ErrIllegalState, "step called after termination")
	}
}

// ExpandNode expands a specific frontier node instead of the policy's
// choice.
func (s *Search[S, A]) ExpandNode(ctx context.Context, id NodeID) (Event, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	if st := s.State(); st != StateActive {
		return nil, errors.Wrapf(ErrIllegalState, "cannot expand node %d in state %s", id, st)
	}
	if !s.frontier.Contains(id) {
		return nil, errors.Wrapf(ErrIllegalState, "node %d is not on the frontier", id)
	}
	return s.advance(ctx, id)
}

func (s *Search[S, A]) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	stepCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return stepCtx, func() {
		stop()
		cancel()
	}
}

func (s *Search[S, A]) interrupted(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

func (s *Search[S, A]) initialize(ctx context.Context) (Event, error) {
	ctx, done := s.stepContext(ctx)
	defer done()

	if s.interrupted(ctx) {
		return s.fail(ReasonCancelled, errors.WithStack(ErrCancelled))
	}

	s.mu.Lock()
	if s.opts.Timeout > 0 {
		s.deadline = time.Now().Add(s.opts.Timeout)
	}
	s.mu.Unlock()

	var noAction A
	root := s.cfg.Generator.Root()
	res := s.evaluate(ctx, Path[S, A]{
		Nodes:       []NodeID{0},
		States:      []S{root},
		Annotations: make(Annotations),
	})
	if s.interrupted(ctx) {
		return s.fail(ReasonCancelled, errors.WithStack(ErrCancelled))
	}

	id := s.reg.Add(root, NoParent, noAction, KindOr)
	s.applyEvaluation(id, res)

	s.mu.Lock()
	s.state = StateActive
	s.mu.Unlock()

	s.log.Info("search initialized",
		zap.Int(logger.FieldParallelism, s.opts.Parallelism),
		zap.Duration(logger.FieldTimeout, s.opts.Timeout),
		zap.String(logger.FieldDuplicates, string(s.opts.Duplicates)))

	ev := InitializedEvent{RunID: s.runID, Root: id}
	s.publish(ev)
	return s.flush(ev)
}

// advance runs one active-state transition. forced selects a frontier node
// directly when it is not NoParent.
func (s *Search[S, A]) advance(ctx context.Context, forced NodeID) (Event, error) {
	ctx, done := s.stepContext(ctx)
	defer done()

	if err := s.checkTermination(ctx); err != nil {
		return TerminatedEvent{Reason: s.Reason(), Err: err}, err
	}

	var sel Selection
	if forced != NoParent {
		s.frontier.Remove(forced)
		sel = Selection{Node: forced}
	} else {
		var ok bool
		sel, ok = s.cfg.Policy.Next(s.frontier, s.reg)
		if !ok {
			return s.terminate(ReasonExhausted, nil), nil
		}
	}

	if sel.Reevaluate {
		return s.reevaluate(ctx, sel.Node)
	}
	return s.expand(ctx, sel.Node)
}

func (s *Search[S, A]) checkTermination(ctx context.Context) error {
	if s.interrupted(ctx) {
		_, err := s.fail(ReasonCancelled, errors.WithStack(ErrCancelled))
		return err
	}

	s.mu.Lock()
	deadline := s.deadline
	s.mu.Unlock()
	if deadline.IsZero() {
		return nil
	}

	now := time.Now()
	if !now.After(deadline) {
		return nil
	}
	terr := &TimeoutError{Deadline: deadline, Observed: now}
	if terr.Late() {
		s.log.Warn("termination check observed late", zap.Duration(logger.FieldDelay, terr.Delay()))
		s.publish(LateTerminationCheckEvent{Delay: terr.Delay()})
	}
	_, err := s.fail(ReasonTimeout, terr)
	return err
}

func (s *Search[S, A]) expand(ctx context.Context, id NodeID) (Event, error) {
	n := s.reg.node(id)
	key := s.cfg.Ranker(n)

	if s.prune(n) {
		return s.flush(s.markPruned(id))
	}

	if n.Goal {
		s.reg.SetStatus(id, StatusExpanded)
		s.report(s.solutionFor(id))
		s.observeExpansion(ctx, id, nil)
		return s.flush(NodeExpansionEvent{Parent: id, FrontierSize: s.frontier.Len()})
	}

	s.reg.SetStatus(id, StatusExpanding)
	succs, err := s.successors(ctx, n.State)
	if s.interrupted(ctx) {
		s.rollback(id, key)
		return s.fail(ReasonCancelled, errors.WithStack(ErrCancelled))
	}
	if err != nil {
		if errors.Is(err, ErrNodeTimeout) {
			return s.flush(s.deferNode(id, "successor generation timed out"))
		}
		s.reg.SetStatus(id, StatusFailed)
		return s.fail(ReasonFailed, errors.Wrapf(err, "generate successors of node %d", id))
	}

	candidates := s.candidates(id, succs)
	results := make([]evalResult[S, A], len(candidates))
	s.pool.run(ctx, len(candidates), func(ctx context.Context, i int) {
		results[i] = s.evaluate(ctx, candidates[i].path)
	})
	if s.interrupted(ctx) {
		s.rollback(id, key)
		return s.fail(ReasonCancelled, errors.WithStack(ErrCancelled))
	}

	// Commit in submission order so ties break the same way at any
	// parallelism.
	children := make([]NodeID, 0, len(candidates))
	for i, c := range candidates {
		if child, ok := s.commitChild(id, c, results[i]); ok {
			children = append(children, child)
		}
	}
	s.reg.SetStatus(id, StatusExpanded)
	s.count(func(st *Stats) { st.Expansions++ })

	if s.goal == nil && len(succs) == 0 {
		s.reg.setGoal(id, true)
		s.report(s.solutionFor(id))
	}

	s.log.Debug("node expanded",
		zap.Int(logger.FieldNodeID, int(id)),
		zap.Int(logger.FieldCount, len(children)),
		zap.Int(logger.FieldFrontier, s.frontier.Len()))

	ev := NodeExpansionEvent{Parent: id, Children: children, FrontierSize: s.frontier.Len()}
	s.publish(ev)
	s.observeExpansion(ctx, id, children)
	return s.flush(ev)
}

func (s *Search[S, A]) successors(ctx context.Context, state S) ([]Successor[S, A], error) {
	succs, err := CallWithTimeout(ctx, s.opts.NodeTimeout, func(ctx context.Context) ([]Successor[S, A], error) {
		return s.cfg.Generator.Successors(ctx, state)
	})
	if err != nil || !s.opts.VerifyGenerator {
		return succs, err
	}

	again, err := CallWithTimeout(ctx, s.opts.NodeTimeout, func(ctx context.Context) ([]Successor[S, A], error) {
		return s.cfg.Generator.Successors(ctx, state)
	})
	if err != nil {
		return nil, err
	}
	if successorKey(succs) != successorKey(again) {
		return nil, errors.Mark(errors.Wrapf(ErrInconsistentGenerator, "state %v", state), ErrIllegalState)
	}
	return succs, nil
}

func successorKey[S comparable, A any](succs []Successor[S, A]) string {
	return fmt.Sprintf("%v", succs)
}

type candidate[S comparable, A any] struct {
	succ Successor[S, A]
	dup  NodeID
	path Path[S, A]
}

func (s *Search[S, A]) candidates(parent NodeID, succs []Successor[S, A]) []candidate[S, A] {
	parentPath := s.reg.path(parent)
	parentAnn := s.reg.node(parent).Annotations.Clone()

	var seen map[S]struct{}
	if s.opts.Duplicates != DuplicatesAllow {
		seen = make(map[S]struct{}, len(succs))
	}

	out := make([]candidate[S, A], 0, len(succs))
	for _, sc := range succs {
		dup := NoParent
		if seen != nil {
			if _, ok := seen[sc.State]; ok {
				continue
			}
			seen[sc.State] = struct{}{}
			if known, ok := s.reg.Lookup(sc.State); ok {
				if s.opts.Duplicates == DuplicatesIgnore || s.reg.IsAncestor(known, parent) {
					continue
				}
				dup = known
			}
		}
		p := parentPath.Extend(sc.State, sc.Action)
		p.Siblings = len(succs)
		p.Parent = parentAnn
		out = append(out, candidate[S, A]{succ: sc, dup: dup, path: p})
	}
	return out
}

type evalResult[S comparable, A any] struct {
	eval    Evaluation[S, A]
	err     error
	elapsed time.Duration
}

func (s *Search[S, A]) evaluate(ctx context.Context, p Path[S, A]) evalResult[S, A] {
	start := time.Now()
	ev, err := CallWithTimeout(ctx, s.opts.NodeTimeout, func(ctx context.Context) (Evaluation[S, A], error) {
		return s.cfg.Evaluator.Evaluate(ctx, p)
	})
	err = normalize(err, "evaluate node")
	if err == nil && math.IsNaN(ev.Score) {
		err = errors.Wrap(ErrEvaluationFailed, "evaluator returned a NaN score")
	}
	return evalResult[S, A]{eval: ev, err: err, elapsed: time.Since(start)}
}

func (s *Search[S, A]) commitChild(parent NodeID, c candidate[S, A], res evalResult[S, A]) (NodeID, bool) {
	if c.dup != NoParent {
		return s.mergeDuplicate(parent, c, res)
	}
	id := s.reg.Add(c.succ.State, parent, c.succ.Action, c.succ.Kind)
	s.applyEvaluation(id, res)
	return id, true
}

// applyEvaluation records an evaluation result on a registered node and puts
// the node where it belongs: frontier, deferred, failed, pruned or reported.
func (s *Search[S, A]) applyEvaluation(id NodeID, res evalResult[S, A]) {
	n := s.reg.node(id)
	if s.goal != nil {
		s.reg.setGoal(id, s.goal(n.State))
	}

	ann := Annotations{AnnotationTime: float64(res.elapsed.Microseconds()) / 1000}
	switch {
	case res.err == nil:
		ann.Merge(res.eval.Annotations)
		ann[AnnotationF] = res.eval.Score
		s.reg.Annotate(id, ann)
		for _, sol := range res.eval.Solutions {
			s.report(sol)
		}
		if s.prune(n) {
			s.markPruned(id)
			return
		}
		if n.Goal && s.opts.EagerSolutions {
			s.reg.SetStatus(id, StatusExpanded)
			s.report(s.solutionFor(id))
			return
		}
		s.reg.SetStatus(id, StatusUnexpanded)
		s.frontier.Push(id, s.cfg.Ranker(n))

	case errors.Is(res.err, ErrNotYetComputable), errors.Is(res.err, ErrNodeTimeout):
		s.reg.Annotate(id, ann)
		cause := "not yet computable"
		if errors.Is(res.err, ErrNodeTimeout) {
			cause = "evaluation timed out"
		}
		s.deferNode(id, cause)

	default:
		ann[AnnotationError] = res.err.Error()
		s.reg.Annotate(id, ann)
		s.reg.SetStatus(id, StatusFailed)
		s.count(func(st *Stats) { st.Failed++ })
		s.log.Warn("node evaluation failed", zap.Int(logger.FieldNodeID, int(id)), zap.Error(res.err))
		s.publish(NodeFailedEvent{Node: id, Err: res.err})
	}
}

// mergeDuplicate keeps the cheaper of a known node's path and the newly
// found one.
func (s *Search[S, A]) mergeDuplicate(parent NodeID, c candidate[S, A], res evalResult[S, A]) (NodeID, bool) {
	known := s.reg.node(c.dup)
	if res.err != nil {
		return NoParent, false
	}
	old, ok := known.F()
	if !ok || res.eval.Score >= old {
		return NoParent, false
	}
	if known.Status != StatusUnexpanded && known.Status != StatusExpanded {
		return NoParent, false
	}

	wasExpanded := known.Status == StatusExpanded
	if known.Parent == parent {
		// Found again under the same parent, only cheaper: no switch.
		s.reg.setAction(c.dup, c.succ.Action)
	} else {
		oldParent, err := s.reg.Reparent(c.dup, parent, c.succ.Action)
		if err != nil {
			s.log.Debug("reparent rejected", zap.Int(logger.FieldNodeID, int(c.dup)), zap.Error(err))
			return NoParent, false
		}
		s.count(func(st *Stats) { st.ParentSwitches++ })

		s.log.Debug("parent switched",
			zap.Int(logger.FieldNodeID, int(c.dup)),
			zap.Int("old_parent", int(oldParent)),
			zap.Int("new_parent", int(parent)))
		s.publish(ParentSwitchEvent{Node: c.dup, OldParent: oldParent, NewParent: parent})
	}

	ann := Annotations{AnnotationTime: float64(res.elapsed.Microseconds()) / 1000}
	ann.Merge(res.eval.Annotations)
	ann[AnnotationF] = res.eval.Score
	s.reg.Annotate(c.dup, ann)

	switch {
	case known.Goal && s.opts.EagerSolutions:
		s.report(s.solutionFor(c.dup))
	default:
		if wasExpanded {
			s.reg.SetStatus(c.dup, StatusUnexpanded)
		}
		s.frontier.Push(c.dup, s.cfg.Ranker(known))
	}
	return c.dup, true
}

func (s *Search[S, A]) reevaluate(ctx context.Context, id NodeID) (Event, error) {
	n := s.reg.node(id)
	oldKey, ok := s.frontier.Key(id)
	if !ok {
		oldKey = s.cfg.Ranker(n)
	}
	s.frontier.Remove(id)

	p := s.reg.path(id)
	if n.Parent != NoParent {
		p.Siblings = len(s.reg.Children(n.Parent))
		p.Parent = s.reg.node(n.Parent).Annotations.Clone()
	}
	res := s.evaluate(ctx, p)
	if s.interrupted(ctx) {
		s.frontier.Push(id, oldKey)
		return s.fail(ReasonCancelled, errors.WithStack(ErrCancelled))
	}

	s.count(func(st *Stats) { st.Reevaluations++ })
	s.applyEvaluation(id, res)

	newKey, _ := s.frontier.Key(id)
	ev := NodeReevaluatedEvent{Node: id, Key: newKey}
	s.publish(ev)
	return s.flush(ev)
}

func (s *Search[S, A]) observeExpansion(ctx context.Context, id NodeID, children []NodeID) {
	obs, ok := s.cfg.Policy.(ExpansionObserver[S, A])
	if !ok {
		return
	}
	sols, err := obs.AfterExpansion(ctx, s.reg, id, children)
	if err != nil {
		// A cancelled rollout is picked up by the next termination check.
		if !s.interrupted(ctx) {
			s.log.Warn("expansion observer failed", zap.Int(logger.FieldNodeID, int(id)), zap.Error(err))
		}
	}
	for _, sol := range sols {
		s.report(sol)
	}
}

func (s *Search[S, A]) prune(n *Node[S, A]) bool {
	for _, p := range s.cfg.Pruners {
		if p.Prune(n) {
			return true
		}
	}
	return false
}

func (s *Search[S, A]) markPruned(id NodeID) Event {
	s.reg.SetStatus(id, StatusPruned)
	s.count(func(st *Stats) { st.Pruned++ })
	ev := NodePrunedEvent{Node: id, Bound: s.reg.node(id).Score()}
	s.publish(ev)
	return ev
}

func (s *Search[S, A]) deferNode(id NodeID, cause string) Event {
	s.reg.SetStatus(id, StatusDeferred)
	s.count(func(st *Stats) { st.Deferred++ })
	s.log.Warn("node deferred", zap.Int(logger.FieldNodeID, int(id)), zap.String("cause", cause))
	ev := NodeDeferredEvent{Node: id, Cause: cause}
	s.publish(ev)
	return ev
}

func (s *Search[S, A]) rollback(id NodeID, key Key) {
	s.reg.SetStatus(id, StatusUnexpanded)
	s.frontier.Push(id, key)
}

func (s *Search[S, A]) solutionFor(id NodeID) Solution[S, A] {
	n := s.reg.node(id)
	f, ok := n.F()
	return Solution[S, A]{Path: s.reg.path(id), Score: f, HasScore: ok, Node: id}
}

// report queues a solution for emission unless the same path was already
// emitted. Observers see it immediately so that pruning within the same step
// uses the new incumbent.
func (s *Search[S, A]) report(sol Solution[S, A]) {
	key := sol.Path.Key()
	if _, dup := s.emitted[key]; dup {
		return
	}
	s.emitted[key] = struct{}{}
	s.queued = append(s.queued, sol)

	for _, p := range s.cfg.Pruners {
		if o, ok := p.(SolutionObserver[S, A]); ok {
			o.ObserveSolution(sol)
		}
	}
	if o, ok := s.cfg.Policy.(SolutionObserver[S, A]); ok {
		o.ObserveSolution(sol)
	}
}

// flush publishes queued solutions. The first one becomes the step's result;
// without any, primary is returned.
func (s *Search[S, A]) flush(primary Event) (Event, error) {
	var first Event
	for _, sol := range s.queued {
		ev := SolutionFoundEvent[S, A]{Solution: sol}
		s.mu.Lock()
		s.stats.Solutions++
		s.pending = append(s.pending, sol)
		s.mu.Unlock()

		s.log.Info("solution found",
			zap.Int(logger.FieldNodeID, int(sol.Node)),
			zap.Float64(logger.FieldScore, sol.Score),
			zap.Int(logger.FieldLength, sol.Path.Len()))
		s.publish(ev)
		if first == nil {
			first = ev
		}
	}
	s.queued = s.queued[:0]
	if first != nil {
		return first, nil
	}
	return primary, nil
}

func (s *Search[S, A]) terminate(reason TerminationReason, err error) Event {
	s.mu.Lock()
	s.state = StateTerminated
	s.reason = reason
	s.termErr = err
	stats := s.stats
	s.mu.Unlock()
	s.cancel()

	fields := []zap.Field{
		zap.String(logger.FieldReason, string(reason)),
		zap.Int(logger.FieldExpansions, stats.Expansions),
		zap.Int(logger.FieldSolutions, stats.Solutions),
	}
	if err != nil {
		s.log.Warn("search terminated", append(fields, zap.Error(err))...)
	} else {
		s.log.Info("search terminated", fields...)
	}

	ev := TerminatedEvent{Reason: reason, Err: err}
	s.publish(ev)
	return ev
}

func (s *Search[S, A]) fail(reason TerminationReason, err error) (Event, error) {
	return s.terminate(reason, err), err
}

func (s *Search[S, A]) publish(e Event) {
	s.dispatcher.Publish(e)
}

func (s *Search[S, A]) count(fn func(*Stats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}
