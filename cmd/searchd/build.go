package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/andor"
	"github.com/AaronLay10/lazysearch/internal/astar"
	"github.com/AaronLay10/lazysearch/internal/bnb"
	"github.com/AaronLay10/lazysearch/internal/config"
	"github.com/AaronLay10/lazysearch/internal/evaluators"
	"github.com/AaronLay10/lazysearch/internal/mcts"
	"github.com/AaronLay10/lazysearch/internal/metasearch"
	"github.com/AaronLay10/lazysearch/internal/pareto"
	"github.com/AaronLay10/lazysearch/internal/problems/explicit"
	"github.com/AaronLay10/lazysearch/internal/problems/queens"
	"github.com/AaronLay10/lazysearch/internal/search"
	"github.com/AaronLay10/lazysearch/internal/uninformed"
)

// run is what the run loop drives: a search, an AND-OR filter or a round
// robin over searches.
type run interface {
	RunID() string
	Step(ctx context.Context) (search.Event, error)
	State() search.State
	Cancel()
	Subscribe(l search.Listener) search.Subscription
}

// problem bundles what the strategies need from a bundled problem.
type problem[S comparable, A any] struct {
	gen search.Generator[S, A]
	// cost and h drive A*.
	cost astar.Cost[S, A]
	h    astar.Heuristic[S]
	// bound is the branch-and-bound evaluator.
	bound search.Evaluator[S, A]
	// score rates terminal paths for the sampling strategies.
	score func(ctx context.Context, path search.Path[S, A]) (float64, error)
	// ranker orders the frontier of the random-completion strategy.
	ranker search.Ranker[S, A]
}

func queensProblem(n int) (problem[queens.Board, int], error) {
	p, err := queens.New(n)
	if err != nil {
		return problem[queens.Board, int]{}, err
	}
	return problem[queens.Board, int]{
		gen:    p,
		cost:   func(_, _ queens.Board, _ int) float64 { return 1 },
		h:      func(b queens.Board) float64 { return float64(b.Remaining()) },
		bound:  search.EvaluatorFunc[queens.Board, int](queens.Heuristic),
		score:  queens.Unplaced,
		ranker: queens.Ranker,
	}, nil
}

func graphProblem(g *explicit.Graph) problem[string, string] {
	eval := astar.Evaluator[string, string]{Cost: g.Cost, Heuristic: g.H}
	pathCost := astar.Evaluator[string, string]{Cost: g.Cost}
	return problem[string, string]{
		gen:   g,
		cost:  g.Cost,
		h:     g.H,
		bound: eval,
		score: func(ctx context.Context, path search.Path[string, string]) (float64, error) {
			ev, err := pathCost.Evaluate(ctx, path)
			return ev.Score, err
		},
	}
}

// searchOptions maps the run section onto search options. A configured
// duplicate policy comes last so that it overrides the strategy default.
func searchOptions(cfg *config.RunConfig, runID string, log *zap.Logger) []search.Option {
	opts := []search.Option{
		search.WithRunID(runID),
		search.WithLogger(log),
		search.WithParallelism(cfg.Parallelism()),
		search.WithSeed(cfg.Run.Seed),
	}
	if cfg.Run.Timeout > 0 {
		opts = append(opts, search.WithTimeout(cfg.Run.Timeout))
	}
	if cfg.Run.NodeTimeout > 0 {
		opts = append(opts, search.WithNodeTimeout(cfg.Run.NodeTimeout))
	}
	if cfg.Run.EagerSolutions {
		opts = append(opts, search.WithEagerSolutions())
	}
	if cfg.Run.VerifyGenerator {
		opts = append(opts, search.WithGeneratorCheck())
	}
	if cfg.Run.Duplicates != "" {
		opts = append(opts, search.WithDuplicates(search.DuplicatePolicy(cfg.Run.Duplicates)))
	}
	return opts
}

func randomCompletion[S comparable, A any](cfg *config.RunConfig, p problem[S, A]) *evaluators.RandomCompletion[S, A] {
	return &evaluators.RandomCompletion[S, A]{
		Generator:          p.gen,
		Score:              p.score,
		Samples:            cfg.Samples(),
		MaxSamples:         cfg.Search.MaxSamples,
		Seed:               cfg.Run.Seed,
		ReportSolutions:    true,
		InheritSingleChild: true,
	}
}

// buildSearch creates a single search of the given strategy.
func buildSearch[S comparable, A any](strategy string, cfg *config.RunConfig, p problem[S, A], opts []search.Option) (*search.Search[S, A], error) {
	switch strategy {
	case config.StrategyAStar:
		return astar.New(p.gen, p.cost, p.h, opts...)

	case config.StrategyBnB:
		s, bound, err := bnb.New(p.gen, p.bound, opts...)
		if err != nil {
			return nil, err
		}
		bound.Strict = cfg.Search.Strict
		return s, nil

	case config.StrategyMCTS:
		s, uct, err := mcts.New(p.gen, mcts.Scorer[S, A](p.score), opts...)
		if err != nil {
			return nil, err
		}
		uct.Exploration = cfg.Search.Exploration
		uct.MaxIterations = cfg.Search.MaxIterations
		return s, nil

	case config.StrategyPareto:
		sel := pareto.NewSelector[S, A]()
		if cfg.Search.ParetoMode != "" {
			sel.Mode = pareto.Mode(cfg.Search.ParetoMode)
		}
		if cfg.Search.Alpha > 0 {
			sel.Alpha = cfg.Search.Alpha
		}
		if cfg.Search.MaxResamples > 0 {
			sel.MaxResamples = cfg.Search.MaxResamples
		}
		sel.Threshold = cfg.Search.Threshold
		return pareto.New(p.gen, randomCompletion(cfg, p), sel, opts...)

	case config.StrategyRandom:
		return search.New(search.Config[S, A]{
			Generator: p.gen,
			Evaluator: randomCompletion(cfg, p),
			Ranker:    p.ranker,
		}, append([]search.Option{search.WithDuplicates(search.DuplicatesAllow)}, opts...)...)

	case config.StrategyDepthFirst:
		return uninformed.DepthFirst(p.gen, astar.Evaluator[S, A]{Cost: p.cost}, opts...)

	case config.StrategyRandomOrder:
		return uninformed.Random(p.gen, astar.Evaluator[S, A]{Cost: p.cost}, cfg.Run.Seed, opts...)
	}
	return nil, fmt.Errorf("strategy %s cannot run as a single search", strategy)
}

// buildRun creates the run described by cfg.
func buildRun(cfg *config.RunConfig, runID string, log *zap.Logger) (run, error) {
	switch cfg.ProblemKind() {
	case config.ProblemQueens:
		p, err := queensProblem(cfg.QueensSize())
		if err != nil {
			return nil, err
		}
		return buildStrategy(cfg, runID, log, p)

	case config.ProblemGraph:
		g, err := explicit.Load(cfg.Problem.Graph)
		if err != nil {
			return nil, err
		}
		if cfg.Strategy() == config.StrategyAndOr {
			aggregate := andor.Sum
			if cfg.Search.Aggregate == "max" {
				aggregate = andor.Max
			}
			f, err := andor.New(andor.Config[string, string]{
				Generator: g,
				LeafScore: g.LeafCost,
				Aggregate: aggregate,
				K:         cfg.K(),
				MaxNodes:  cfg.Search.MaxNodes,
				RunID:     runID,
				Logger:    log,
			})
			if err != nil {
				return nil, err
			}
			return f, nil
		}
		return buildStrategy(cfg, runID, log, graphProblem(g))
	}
	return nil, fmt.Errorf("unknown problem kind: %s", cfg.ProblemKind())
}

func buildStrategy[S comparable, A any](cfg *config.RunConfig, runID string, log *zap.Logger, p problem[S, A]) (run, error) {
	if cfg.Strategy() != config.StrategyRoundRobin {
		s, err := buildSearch(cfg.Strategy(), cfg, p, searchOptions(cfg, runID, log))
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	var members []run
	for i, strategy := range cfg.Members() {
		memberID := fmt.Sprintf("%s/%d", runID, i)
		s, err := buildSearch(strategy, cfg, p, searchOptions(cfg, memberID, log.With(zap.String("member", strategy))))
		if err != nil {
			return nil, err
		}
		members = append(members, s)
	}
	return newRoundRobinRun(runID, members, log), nil
}

// roundRobinRun drives several searches as one run.
type roundRobinRun struct {
	runID   string
	members []run
	rr      *metasearch.RoundRobin
	log     *zap.Logger
}

func newRoundRobinRun(runID string, members []run, log *zap.Logger) *roundRobinRun {
	ms := make([]metasearch.Member, len(members))
	for i, m := range members {
		ms[i] = m
	}
	return &roundRobinRun{runID: runID, members: members, rr: metasearch.New(log, ms...), log: log}
}

func (r *roundRobinRun) RunID() string { return r.runID }

// Step advances one member. A member that fails only ends itself.
func (r *roundRobinRun) Step(ctx context.Context) (search.Event, error) {
	i, ev, err := r.rr.Step(ctx)
	if i < 0 {
		return nil, err
	}
	if err != nil {
		r.log.Warn("member search stopped", zap.Int("member", i), zap.Error(err))
	}
	return ev, nil
}

func (r *roundRobinRun) State() search.State {
	if r.rr.Done() {
		return search.StateTerminated
	}
	return search.StateActive
}

func (r *roundRobinRun) Cancel() { r.rr.Cancel() }

// Subscribe registers l with every member. The returned subscription is the
// first member's.
func (r *roundRobinRun) Subscribe(l search.Listener) search.Subscription {
	var first search.Subscription
	for i, m := range r.members {
		sub := m.Subscribe(l)
		if i == 0 {
			first = sub
		}
	}
	return first
}
