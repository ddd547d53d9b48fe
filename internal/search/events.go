package search

import (
	"math"
	"sync"
	"time"
)

// Event names, shared with the event bus allow-list.
const (
	EventInitialized          = "search.initialized"
	EventNodeExpanded         = "search.node_expanded"
	EventSolutionFound        = "search.solution_found"
	EventParentSwitched       = "search.parent_switched"
	EventTerminated           = "search.terminated"
	EventNodeDeferred         = "search.node_deferred"
	EventNodePruned           = "search.node_pruned"
	EventNodeFailed           = "search.node_failed"
	EventNodeReevaluated      = "search.node_reevaluated"
	EventLateTerminationCheck = "search.late_termination_check"
)

// Event is something the search reports to its subscribers.
type Event interface {
	Name() string
	Fields() map[string]interface{}
}

type InitializedEvent struct {
	RunID string
	Root  NodeID
}

func (e InitializedEvent) Name() string { return EventInitialized }
func (e InitializedEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"run_id": e.RunID, "root": int(e.Root)}
}

type NodeExpansionEvent struct {
	Parent       NodeID
	Children     []NodeID
	FrontierSize int
}

func (e NodeExpansionEvent) Name() string { return EventNodeExpanded }
func (e NodeExpansionEvent) Fields() map[string]interface{} {
	kids := make([]int, len(e.Children))
	for i, c := range e.Children {
		kids[i] = int(c)
	}
	return map[string]interface{}{"node_id": int(e.Parent), "children": kids, "frontier": e.FrontierSize}
}

type SolutionFoundEvent[S comparable, A any] struct {
	Solution Solution[S, A]
}

func (e SolutionFoundEvent[S, A]) Name() string { return EventSolutionFound }
func (e SolutionFoundEvent[S, A]) Fields() map[string]interface{} {
	f := map[string]interface{}{
		"node_id": int(e.Solution.Node),
		"length":  e.Solution.Path.Len(),
		"path":    e.Solution.Path.String(),
	}
	if e.Solution.HasScore {
		f["score"] = e.Solution.Score
	}
	return f
}

type ParentSwitchEvent struct {
	Node      NodeID
	OldParent NodeID
	NewParent NodeID
}

func (e ParentSwitchEvent) Name() string { return EventParentSwitched }
func (e ParentSwitchEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"node_id": int(e.Node), "old_parent": int(e.OldParent), "new_parent": int(e.NewParent)}
}

type TerminatedEvent struct {
	Reason TerminationReason
	Err    error
}

func (e TerminatedEvent) Name() string { return EventTerminated }
func (e TerminatedEvent) Fields() map[string]interface{} {
	f := map[string]interface{}{"reason": string(e.Reason)}
	if e.Err != nil {
		f["error"] = e.Err.Error()
	}
	return f
}

type NodeDeferredEvent struct {
	Node  NodeID
	Cause string
}

func (e NodeDeferredEvent) Name() string { return EventNodeDeferred }
func (e NodeDeferredEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"node_id": int(e.Node), "cause": e.Cause}
}

type NodeFailedEvent struct {
	Node NodeID
	Err  error
}

func (e NodeFailedEvent) Name() string { return EventNodeFailed }
func (e NodeFailedEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"node_id": int(e.Node), "error": e.Err.Error()}
}

type NodePrunedEvent struct {
	Node  NodeID
	Bound float64
}

func (e NodePrunedEvent) Name() string { return EventNodePruned }
func (e NodePrunedEvent) Fields() map[string]interface{} {
	f := map[string]interface{}{"node_id": int(e.Node)}
	if !math.IsInf(e.Bound, 0) {
		f["bound"] = e.Bound
	}
	return f
}

type NodeReevaluatedEvent struct {
	Node NodeID
	Key  Key
}

func (e NodeReevaluatedEvent) Name() string { return EventNodeReevaluated }
func (e NodeReevaluatedEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"node_id": int(e.Node), "key": []float64(e.Key)}
}

type LateTerminationCheckEvent struct {
	Delay time.Duration
}

func (e LateTerminationCheckEvent) Name() string { return EventLateTerminationCheck }
func (e LateTerminationCheckEvent) Fields() map[string]interface{} {
	return map[string]interface{}{"delay_ms": e.Delay.Milliseconds()}
}

// Listener receives events synchronously on the coordinator goroutine.
type Listener func(Event)

// Subscription identifies a registered listener.
type Subscription int

// Dispatcher fans events out to listeners in subscription order.
type Dispatcher struct {
	mu        sync.RWMutex
	next      Subscription
	order     []Subscription
	listeners map[Subscription]Listener
}

// Subscribe registers l and returns a handle for Unsubscribe.
func (d *Dispatcher) Subscribe(l Listener) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listeners == nil {
		d.listeners = make(map[Subscription]Listener)
	}
	d.next++
	d.listeners[d.next] = l
	d.order = append(d.order, d.next)
	return d.next
}

// Unsubscribe removes a listener. Unknown handles are ignored.
func (d *Dispatcher) Unsubscribe(sub Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.listeners[sub]; !ok {
		return
	}
	delete(d.listeners, sub)
	for i, s := range d.order {
		if s == sub {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
}

// Publish delivers e to every listener.
func (d *Dispatcher) Publish(e Event) {
	d.mu.RLock()
	ls := make([]Listener, 0, len(d.order))
	for _, s := range d.order {
		ls = append(ls, d.listeners[s])
	}
	d.mu.RUnlock()

	for _, l := range ls {
		l(e)
	}
}
