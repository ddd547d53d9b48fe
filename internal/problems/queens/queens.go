// Package queens is the N-Queens placement problem: one queen per row, top
// to bottom, never on an attacked cell.
package queens

import (
	"context"
	"fmt"
	"strings"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// MaxN is the largest supported board.
const MaxN = 16

// Board is a partial placement. Cols[r] is the column of the queen in row r
// for every r < Placed. Board is comparable so it can key the registry.
type Board struct {
	N      int8
	Placed int8
	Cols   [MaxN]int8
}

// Problem generates boards of a fixed size.
type Problem struct {
	n int
}

// New returns the n-queens problem. n must be within 1..MaxN.
func New(n int) (*Problem, error) {
	if n < 1 || n > MaxN {
		return nil, fmt.Errorf("queens: board size %d out of range 1..%d", n, MaxN)
	}
	return &Problem{n: n}, nil
}

// Size returns the board size.
func (p *Problem) Size() int { return p.n }

// Root returns the empty board.
func (p *Problem) Root() Board {
	return Board{N: int8(p.n)}
}

// Successors places a queen on every safe column of the next row. The action
// is the chosen column.
func (p *Problem) Successors(ctx context.Context, b Board) ([]search.Successor[Board, int], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if int(b.Placed) == p.n {
		return nil, nil
	}
	var out []search.Successor[Board, int]
	for col := 0; col < p.n; col++ {
		if b.Attacks(int(b.Placed), col) {
			continue
		}
		child := b
		child.Cols[b.Placed] = int8(col)
		child.Placed++
		out = append(out, search.Successor[Board, int]{State: child, Action: col})
	}
	return out, nil
}

// IsGoal reports whether all queens are placed without conflicts.
func (p *Problem) IsGoal(b Board) bool {
	return int(b.Placed) == p.n && b.Conflicts() == 0
}

// Attacks reports whether a queen already placed attacks (row, col).
func (b Board) Attacks(row, col int) bool {
	for r := 0; r < int(b.Placed); r++ {
		c := int(b.Cols[r])
		if c == col || row-r == col-c || row-r == c-col {
			return true
		}
	}
	return false
}

// AttackedCells counts the cells in the remaining rows that are attacked by
// the placed queens.
func (b Board) AttackedCells() int {
	n := 0
	for row := int(b.Placed); row < int(b.N); row++ {
		for col := 0; col < int(b.N); col++ {
			if b.Attacks(row, col) {
				n++
			}
		}
	}
	return n
}

// Conflicts counts pairs of placed queens attacking each other.
func (b Board) Conflicts() int {
	n := 0
	for i := 0; i < int(b.Placed); i++ {
		for j := i + 1; j < int(b.Placed); j++ {
			ci, cj := int(b.Cols[i]), int(b.Cols[j])
			if ci == cj || j-i == cj-ci || j-i == ci-cj {
				n++
			}
		}
	}
	return n
}

// Remaining returns the number of queens still to place.
func (b Board) Remaining() int {
	return int(b.N - b.Placed)
}

func (b Board) String() string {
	cols := make([]string, b.Placed)
	for i := range cols {
		cols[i] = fmt.Sprint(b.Cols[i])
	}
	return "[" + strings.Join(cols, " ") + "]"
}

// Heuristic scores a board by its attacked cells.
func Heuristic(ctx context.Context, path search.Path[Board, int]) (search.Evaluation[Board, int], error) {
	return search.Scored[Board, int](float64(path.Head().AttackedCells())), nil
}

// Ranker orders boards deepest first, then by score, which turns the
// best-first search into a guided depth-first descent.
func Ranker(n *search.Node[Board, int]) search.Key {
	return search.Key{float64(n.State.Remaining()), n.Score()}
}

// Unplaced scores a terminal board by the number of queens it failed to place.
func Unplaced(_ context.Context, path search.Path[Board, int]) (float64, error) {
	return float64(path.Head().Remaining()), nil
}
