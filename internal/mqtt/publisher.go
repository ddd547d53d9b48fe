package mqtt

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/events"
	"github.com/AaronLay10/lazysearch/internal/logger"
)

// EventPublisher forwards bus events to the run's events topic. Its Publish
// method is meant to be registered with events.Bus.AddSink.
type EventPublisher struct {
	broker Broker
	topic  string
	log    *zap.Logger
	// skip holds event names that are not forwarded.
	skip map[string]struct{}

	mu        sync.Mutex
	published int
	dropped   int
	failed    bool
}

// NewEventPublisher creates a publisher for topics. Events named in skip are
// not forwarded.
func NewEventPublisher(b Broker, topics Topics, log *zap.Logger, skip ...string) *EventPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &EventPublisher{
		broker: b,
		topic:  topics.Events(),
		log:    logger.Component(log, "mqtt"),
		skip:   make(map[string]struct{}, len(skip)),
	}
	for _, name := range skip {
		p.skip[name] = struct{}{}
	}
	return p
}

// Topic returns the topic events are published to.
func (p *EventPublisher) Topic() string { return p.topic }

// Publish sends e to the broker. Events are dropped while the broker is
// disconnected; only the first publish error is logged.
func (p *EventPublisher) Publish(e events.Event) {
	if _, ok := p.skip[e.Name]; ok {
		return
	}
	if !p.broker.IsConnected() {
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		p.log.Warn("failed to encode event", zap.String("event", e.Name), zap.Error(err))
		return
	}

	err = p.broker.Publish(p.topic, payload)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.dropped++
		if !p.failed {
			p.failed = true
			p.log.Warn("publish failed", zap.String(logger.FieldTopic, p.topic), zap.Error(err))
		}
		return
	}
	p.published++
}

// Counts returns how many events were published and dropped.
func (p *EventPublisher) Counts() (published, dropped int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published, p.dropped
}
