package search

import "context"

// Successor is one generated child of a state.
type Successor[S comparable, A any] struct {
	State  S
	Action A
	Kind   Kind
}

// Generator describes an implicit graph. Successors must return the same
// ordered children every time it is called for the same state, and should
// return ctx.Err() promptly once ctx is done.
type Generator[S comparable, A any] interface {
	Root() S
	Successors(ctx context.Context, state S) ([]Successor[S, A], error)
}

// GoalTester is implemented by generators that can recognise goal states.
// Without one, states without successors are treated as goals.
type GoalTester[S comparable] interface {
	IsGoal(state S) bool
}

// Evaluation is the result of scoring a path.
type Evaluation[S comparable, A any] struct {
	Score       float64
	Annotations Annotations
	// Solutions are goal paths the evaluator discovered on its own, for
	// example while sampling completions.
	Solutions []Solution[S, A]
}

// Scored returns an evaluation carrying only a score.
func Scored[S comparable, A any](score float64) Evaluation[S, A] {
	return Evaluation[S, A]{Score: score}
}

// Evaluator scores the head of a path. It returns ErrNotYetComputable when it
// has no opinion yet; any other error marks the node as failed. Evaluate is
// called concurrently for distinct nodes but never twice at once for the
// same node.
type Evaluator[S comparable, A any] interface {
	Evaluate(ctx context.Context, path Path[S, A]) (Evaluation[S, A], error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc[S comparable, A any] func(ctx context.Context, path Path[S, A]) (Evaluation[S, A], error)

func (f EvaluatorFunc[S, A]) Evaluate(ctx context.Context, path Path[S, A]) (Evaluation[S, A], error) {
	return f(ctx, path)
}
