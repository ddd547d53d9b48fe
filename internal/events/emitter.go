// Package events is the named event bus of a search run. Every search event
// is validated against an allow-list, kept in a ring buffer for late
// subscribers, fanned out to channel subscribers and sinks, and appended to
// the journal when one is attached.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/logger"
	"github.com/AaronLay10/lazysearch/internal/search"
)

// Journal persists events. *postgres.Client implements it.
type Journal interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error
}

type Event struct {
	Seq       uint64                 `json:"seq"`
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Bus is the event hub of one run.
type Bus struct {
	runID  string
	buffer *RingBuffer
	log    *zap.Logger

	subMu       sync.RWMutex
	subscribers map[Subscriber]struct{}

	// Held across numbering and fan-out so subscribers see events in
	// sequence order.
	emitMu sync.Mutex

	mu          sync.RWMutex
	journal     Journal
	errorLogged bool
	sinks       []func(Event)
}

// NewBus creates a bus for runID that buffers the last size events.
func NewBus(runID string, size int, log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		runID:       runID,
		buffer:      NewRingBuffer(size),
		log:         log,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// RunID returns the run the bus belongs to.
func (b *Bus) RunID() string { return b.runID }

// SetJournal sets the journal for event persistence.
func (b *Bus) SetJournal(j Journal) {
	b.mu.Lock()
	b.journal = j
	b.errorLogged = false
	b.mu.Unlock()
}

// AddSink registers fn to receive every emitted event synchronously.
func (b *Bus) AddSink(fn func(Event)) {
	b.mu.Lock()
	b.sinks = append(b.sinks, fn)
	b.mu.Unlock()
}

func (b *Bus) Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		RunID:     b.runID,
		Fields:    fields,
	}

	e = b.publish(e)

	b.mu.RLock()
	journal := b.journal
	sinks := b.sinks
	b.mu.RUnlock()

	for _, sink := range sinks {
		sink(e)
	}

	if journal != nil {
		if err := journal.Append(ts, level, name, msg, fields, b.runID); err != nil {
			b.journalFailed(err)
		}
	}

	out, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return out, nil
}

// journalFailed reports the first journal error only. The system.error event
// goes straight into the buffer so that a failing journal cannot recurse.
func (b *Bus) journalFailed(err error) {
	b.mu.Lock()
	if b.errorLogged {
		b.mu.Unlock()
		return
	}
	b.errorLogged = true
	b.mu.Unlock()

	b.log.Error("journal append failed", zap.String(logger.FieldRunID, b.runID), zap.Error(err))
	errEvent := Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "journal append failed",
		RunID:     b.runID,
		Fields:    map[string]interface{}{"error": err.Error()},
	}
	b.publish(errEvent)
}

// publish numbers e and hands it to the subscribers.
func (b *Bus) publish(e Event) Event {
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	e = b.buffer.Add(e)
	b.broadcast(e)
	return e
}

// Observe bridges a search event onto the bus. It has the shape of a
// search.Listener.
func (b *Bus) Observe(e search.Event) {
	level, msg := describe(e)
	if _, err := b.Emit(level, e.Name(), msg, e.Fields()); err != nil {
		b.log.Warn("search event rejected", zap.String("event", e.Name()), zap.Error(err))
	}
}

func describe(e search.Event) (level, msg string) {
	switch ev := e.(type) {
	case search.InitializedEvent:
		return "info", "search initialized"
	case search.NodeExpansionEvent:
		return "debug", "node expanded"
	case search.ParentSwitchEvent:
		return "debug", "parent switched"
	case search.NodeReevaluatedEvent:
		return "debug", "node re-evaluated"
	case search.NodePrunedEvent:
		return "debug", "node pruned"
	case search.NodeDeferredEvent:
		return "warn", "node deferred"
	case search.NodeFailedEvent:
		return "warn", "node evaluation failed"
	case search.LateTerminationCheckEvent:
		return "warn", "termination check observed late"
	case search.TerminatedEvent:
		if ev.Err != nil {
			return "error", "search terminated"
		}
		return "info", "search terminated"
	}
	if e.Name() == search.EventSolutionFound {
		return "info", "solution found"
	}
	return "info", ""
}

// Snapshot returns every buffered event, oldest first.
func (b *Bus) Snapshot() []Event {
	return b.buffer.Snapshot()
}

// Clear resets the event buffer.
func (b *Bus) Clear() {
	b.buffer.Clear()
}
