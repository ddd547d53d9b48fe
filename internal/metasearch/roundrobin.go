// Package metasearch interleaves several steppable searches.
package metasearch

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/search"
)

// Member is anything driven by Step: a *search.Search of any state and
// action type, an andor.Filter or another RoundRobin's adapter.
type Member interface {
	Step(ctx context.Context) (search.Event, error)
	State() search.State
}

type canceller interface {
	Cancel()
}

type subscriber interface {
	Subscribe(l search.Listener) search.Subscription
}

type found struct {
	member int
	event  search.Event
}

// RoundRobin steps its members in turn, skipping terminated ones.
type RoundRobin struct {
	members []Member
	next    int
	log     *zap.Logger

	// Solutions seen on member event streams and not yet returned by
	// NextSolution. A single step may report several.
	found    []found
	listened []bool
}

// New returns a round robin over members in the given order.
func New(log *zap.Logger, members ...Member) *RoundRobin {
	if log == nil {
		log = zap.NewNop()
	}
	r := &RoundRobin{members: members, log: log, listened: make([]bool, len(members))}
	for i, m := range members {
		sub, ok := m.(subscriber)
		if !ok {
			continue
		}
		r.listened[i] = true
		sub.Subscribe(func(e search.Event) {
			if e.Name() == search.EventSolutionFound {
				r.found = append(r.found, found{member: i, event: e})
			}
		})
	}
	return r
}

// Len returns the number of members.
func (r *RoundRobin) Len() int { return len(r.members) }

// Done reports whether every member has terminated.
func (r *RoundRobin) Done() bool {
	for _, m := range r.members {
		if m.State() != search.StateTerminated {
			return false
		}
	}
	return true
}

// Step advances the next live member and returns its index and event. A
// member failing ends only that member; its error is returned alongside.
func (r *RoundRobin) Step(ctx context.Context) (int, search.Event, error) {
	for range r.members {
		i := r.next
		r.next = (r.next + 1) % len(r.members)
		if r.members[i].State() == search.StateTerminated {
			continue
		}
		ev, err := r.members[i].Step(ctx)
		return i, ev, err
	}
	return -1, nil, errors.WithStack(search.ErrNoMoreSolutions)
}

// NextSolution returns the oldest solution not yet returned, stepping
// members until one reports one. It fails with ErrNoMoreSolutions once every
// member has terminated and all their solutions were returned.
func (r *RoundRobin) NextSolution(ctx context.Context) (int, search.Event, error) {
	for {
		if len(r.found) > 0 {
			f := r.found[0]
			r.found = r.found[1:]
			return f.member, f.event, nil
		}
		if err := ctx.Err(); err != nil {
			return -1, nil, errors.Mark(err, search.ErrCancelled)
		}
		i, ev, err := r.Step(ctx)
		if i < 0 {
			return i, nil, err
		}
		if err != nil {
			r.log.Warn("member search stopped", zap.Int("member", i), zap.Error(err))
			continue
		}
		if !r.listened[i] && ev != nil && ev.Name() == search.EventSolutionFound {
			r.found = append(r.found, found{member: i, event: ev})
		}
	}
}

// Cancel cancels every member that supports it.
func (r *RoundRobin) Cancel() {
	for _, m := range r.members {
		if c, ok := m.(canceller); ok {
			c.Cancel()
		}
	}
}
