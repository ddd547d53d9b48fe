package mqtt

import (
	"encoding/json"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/events"
	"github.com/AaronLay10/lazysearch/internal/logger"
)

// CommandCancel asks the run to stop.
const CommandCancel = "cancel"

// Canceler is what the control topic can stop. Searches, filters and
// round-robin schedulers all implement it.
type Canceler interface {
	Cancel()
}

// Command is the payload accepted on the control topic.
type Command struct {
	Command string `json:"command"`
	By      string `json:"by,omitempty"`
}

// ControlSubscriber applies operator commands from the control topic to a
// run. Subscription is idempotent across reconnects.
type ControlSubscriber struct {
	broker Broker
	topic  string
	target Canceler
	bus    *events.Bus
	log    *zap.Logger

	mu         sync.Mutex
	subscribed bool
	cancelled  bool
}

// NewControlSubscriber creates a subscriber that cancels target. bus may be
// nil; when set, accepted commands are recorded on it as operator events.
func NewControlSubscriber(b Broker, topics Topics, target Canceler, bus *events.Bus, log *zap.Logger) *ControlSubscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &ControlSubscriber{
		broker: b,
		topic:  topics.Control(),
		target: target,
		bus:    bus,
		log:    logger.Component(log, "mqtt"),
	}
}

// Topic returns the control topic.
func (s *ControlSubscriber) Topic() string { return s.topic }

// Start subscribes to the control topic unless already subscribed.
func (s *ControlSubscriber) Start() error {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.broker.Subscribe(s.topic, s.handle); err != nil {
		return err
	}

	s.mu.Lock()
	s.subscribed = true
	s.mu.Unlock()
	s.log.Info("listening for commands", zap.String(logger.FieldTopic, s.topic))
	return nil
}

// Reset forgets the subscription so Start subscribes again after a reconnect.
func (s *ControlSubscriber) Reset() {
	s.mu.Lock()
	s.subscribed = false
	s.mu.Unlock()
}

// Subscribed reports whether the control topic is subscribed.
func (s *ControlSubscriber) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// Cancelled reports whether a cancel command was applied.
func (s *ControlSubscriber) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *ControlSubscriber) handle(_ paho.Client, msg paho.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		// Plain-text commands are accepted too.
		cmd.Command = strings.TrimSpace(string(msg.Payload()))
	}

	switch strings.ToLower(cmd.Command) {
	case CommandCancel:
		s.mu.Lock()
		already := s.cancelled
		s.cancelled = true
		s.mu.Unlock()
		if already {
			return
		}

		s.log.Info("cancel requested", zap.String(logger.FieldTopic, msg.Topic()), zap.String("by", cmd.By))
		if s.bus != nil {
			s.bus.Emit("info", "operator.cancel", "cancel requested", map[string]interface{}{
				"source": "mqtt",
				"topic":  msg.Topic(),
				"by":     cmd.By,
			})
		}
		s.target.Cancel()

	default:
		s.log.Warn("unknown command", zap.String("command", cmd.Command), zap.String(logger.FieldTopic, msg.Topic()))
	}
}
