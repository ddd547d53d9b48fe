// Package mcts drives the search engine as UCT Monte-Carlo tree search. The
// tree policy walks from the root by UCB1, the frontier node it reaches is
// expanded by the engine, and a random rollout from one of the new children
// is scored and backed up along the path.
package mcts

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/cockroachdb/errors"

	"github.com/AaronLay10/lazysearch/internal/evaluators"
	"github.com/AaronLay10/lazysearch/internal/search"
)

// DefaultExploration is the UCB1 exploration constant sqrt(2).
var DefaultExploration = math.Sqrt2

// Scorer rates a terminal path; lower is better. The backed-up reward is the
// negated score.
type Scorer[S comparable, A any] func(ctx context.Context, path search.Path[S, A]) (float64, error)

// UCT is a search.Policy and search.ExpansionObserver. It is used only from
// the search's coordinator goroutine.
type UCT[S comparable, A any] struct {
	Generator search.Generator[S, A]
	Score     Scorer[S, A]
	// Goal overrides the generator's GoalTester for rollouts.
	Goal func(S) bool
	// Exploration is the c of UCB1. Zero means DefaultExploration.
	Exploration float64
	// MaxIterations stops the search after that many selections. Zero means
	// no limit.
	MaxIterations int
	// MaxDepth bounds a rollout. Zero means 1000.
	MaxDepth int

	rng        *rand.Rand
	iterations int
	exhausted  map[search.NodeID]bool
}

// NewUCT returns a policy whose rollouts are seeded by seed.
func NewUCT[S comparable, A any](gen search.Generator[S, A], score Scorer[S, A], seed uint64) *UCT[S, A] {
	return &UCT[S, A]{
		Generator: gen,
		Score:     score,
		rng:       rand.New(rand.NewPCG(seed, 0x5eed)),
		exhausted: make(map[search.NodeID]bool),
	}
}

// Next implements search.Policy.
func (u *UCT[S, A]) Next(f *search.Frontier, r *search.Registry[S, A]) (search.Selection, bool) {
	if u.MaxIterations > 0 && u.iterations >= u.MaxIterations {
		return search.Selection{}, false
	}
	if r.Len() == 0 {
		return search.Selection{}, false
	}
	id, ok := u.descend(f, r, 0)
	if !ok {
		return search.Selection{}, false
	}
	u.iterations++
	f.Remove(id)
	return search.Selection{Node: id}, true
}

// descend applies the tree policy below id. Subtrees with nothing left to
// select are marked exhausted and never entered again.
func (u *UCT[S, A]) descend(f *search.Frontier, r *search.Registry[S, A], id search.NodeID) (search.NodeID, bool) {
	if u.exhausted[id] {
		return search.NoParent, false
	}
	if f.Contains(id) {
		return id, true
	}
	n, ok := r.Get(id)
	if !ok || n.Status != search.StatusExpanded {
		u.exhausted[id] = true
		return search.NoParent, false
	}

	kids := r.Children(id)
	parentVisits := n.Annotations.FloatOr(search.AnnotationVisits, 0)
	for {
		best, found := u.pick(r, kids, parentVisits)
		if !found {
			break
		}
		if sel, ok := u.descend(f, r, best); ok {
			return sel, true
		}
	}
	u.exhausted[id] = true
	return search.NoParent, false
}

// pick chooses among the non-exhausted children: the first unvisited one,
// else the one with the highest UCB1 value.
func (u *UCT[S, A]) pick(r *search.Registry[S, A], kids []search.NodeID, parentVisits float64) (search.NodeID, bool) {
	c := u.Exploration
	if c == 0 {
		c = DefaultExploration
	}
	logN := math.Log(math.Max(parentVisits, 1))

	best := search.NoParent
	bestValue := math.Inf(-1)
	for _, k := range kids {
		if u.exhausted[k] {
			continue
		}
		n, _ := r.Get(k)
		visits := n.Annotations.FloatOr(search.AnnotationVisits, 0)
		if visits == 0 {
			return k, true
		}
		mean := n.Annotations.FloatOr(search.AnnotationReward, 0) / visits
		value := mean + c*math.Sqrt(logN/visits)
		if value > bestValue {
			best, bestValue = k, value
		}
	}
	return best, best != search.NoParent
}

// AfterExpansion implements search.ExpansionObserver: one rollout from a
// random new child (or from the node itself when it has none), then backup.
func (u *UCT[S, A]) AfterExpansion(ctx context.Context, r *search.Registry[S, A], parent search.NodeID, children []search.NodeID) ([]search.Solution[S, A], error) {
	start := parent
	if len(children) > 0 {
		start = children[u.rng.IntN(len(children))]
	}
	path, err := r.Path(start)
	if err != nil {
		return nil, err
	}

	done, goal, err := u.rollout(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, "rollout")
	}
	score, err := u.Score(ctx, done)
	if err != nil {
		return nil, errors.Wrap(err, "score rollout")
	}
	u.backup(r, start, -score)

	if !goal {
		return nil, nil
	}
	node := search.NoParent
	if done.Len() == path.Len() {
		node = start
	}
	return []search.Solution[S, A]{{Path: done, Score: score, HasScore: true, Node: node}}, nil
}

func (u *UCT[S, A]) rollout(ctx context.Context, path search.Path[S, A]) (search.Path[S, A], bool, error) {
	maxDepth := u.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1000
	}
	cur := path
	for i := 0; i < maxDepth; i++ {
		if err := ctx.Err(); err != nil {
			return cur, false, err
		}
		if u.isGoal(cur.Head()) {
			return cur, true, nil
		}
		succs, err := u.Generator.Successors(ctx, cur.Head())
		if err != nil {
			return cur, false, err
		}
		if len(succs) == 0 {
			return cur, false, nil
		}
		next := succs[u.rng.IntN(len(succs))]
		cur = cur.Extend(next.State, next.Action)
	}
	return cur, u.isGoal(cur.Head()), nil
}

func (u *UCT[S, A]) backup(r *search.Registry[S, A], from search.NodeID, reward float64) {
	for cur := from; cur != search.NoParent; {
		n, ok := r.Get(cur)
		if !ok {
			return
		}
		r.Annotate(cur, search.Annotations{
			search.AnnotationVisits: n.Annotations.FloatOr(search.AnnotationVisits, 0) + 1,
			search.AnnotationReward: n.Annotations.FloatOr(search.AnnotationReward, 0) + reward,
		})
		cur = n.Parent
	}
}

func (u *UCT[S, A]) isGoal(s S) bool {
	if u.Goal != nil {
		return u.Goal(s)
	}
	if gt, ok := u.Generator.(search.GoalTester[S]); ok {
		return gt.IsGoal(s)
	}
	return false
}

// Iterations returns the number of selections made so far.
func (u *UCT[S, A]) Iterations() int { return u.iterations }

// New builds a UCT search. The search's own evaluator is a constant: all
// guidance comes from rollouts. The rollout seed is taken from the options.
func New[S comparable, A any](gen search.Generator[S, A], score Scorer[S, A], opts ...search.Option) (*search.Search[S, A], *UCT[S, A], error) {
	opts = append([]search.Option{search.WithDuplicates(search.DuplicatesAllow)}, opts...)

	var o search.Options
	for _, opt := range opts {
		opt(&o)
	}
	policy := NewUCT(gen, score, o.Seed)

	s, err := search.New(search.Config[S, A]{
		Generator: gen,
		Evaluator: evaluators.Constant[S, A](0),
		Policy:    policy,
	}, opts...)
	if err != nil {
		return nil, nil, err
	}
	return s, policy, nil
}
