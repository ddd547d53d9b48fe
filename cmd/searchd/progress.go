package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/AaronLay10/lazysearch/internal/api"
	"github.com/AaronLay10/lazysearch/internal/search"
)

// tracker follows a run through its events. Listeners run on the search
// goroutine while the monitor reads the status, hence the lock.
type tracker struct {
	runID    string
	strategy string
	out      io.Writer

	mu         sync.Mutex
	state      search.State
	reason     search.TerminationReason
	err        error
	expansions int
	solutions  int
	frontier   int
}

func newTracker(runID, strategy string, out io.Writer) *tracker {
	if out == nil {
		out = io.Discard
	}
	return &tracker{runID: runID, strategy: strategy, out: out, state: search.StateCreated}
}

// Observe is a search.Listener. Solutions are printed as they arrive.
func (t *tracker) Observe(e search.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev := e.(type) {
	case search.InitializedEvent:
		if t.state == search.StateCreated {
			t.state = search.StateActive
		}
	case search.NodeExpansionEvent:
		t.expansions++
		t.frontier = ev.FrontierSize
	case search.TerminatedEvent:
		t.reason = ev.Reason
		if ev.Err != nil {
			t.err = ev.Err
		}
	default:
		if e.Name() == search.EventSolutionFound {
			t.solutions++
			fmt.Fprintln(t.out, formatSolution(t.solutions, e.Fields()))
		}
	}
}

// finish marks the run terminated with its final reason.
func (t *tracker) finish(reason search.TerminationReason) {
	t.mu.Lock()
	t.state = search.StateTerminated
	if reason != "" {
		t.reason = reason
	}
	t.mu.Unlock()
}

func (t *tracker) Solutions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.solutions
}

func (t *tracker) Reason() (search.TerminationReason, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason, t.err
}

// Status is served on the monitor's /status endpoint.
func (t *tracker) Status() api.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return api.Status{
		RunID:      t.runID,
		Strategy:   t.strategy,
		State:      string(t.state),
		Reason:     string(t.reason),
		Expansions: t.expansions,
		Solutions:  t.solutions,
		Frontier:   t.frontier,
	}
}

func formatSolution(n int, fields map[string]interface{}) string {
	line := fmt.Sprintf("solution %d", n)
	if score, ok := fields["score"].(float64); ok {
		line += fmt.Sprintf(" score=%g", score)
	}
	if path, ok := fields["path"].(string); ok {
		line += " path=" + path
	} else if nodes, ok := fields["nodes"].(int); ok {
		line += fmt.Sprintf(" nodes=%d", nodes)
	}
	return line
}
