// Package mqtt mirrors a search run onto an MQTT broker: every bus event is
// published to the run's events topic and operator commands arrive on its
// control topic.
package mqtt

import (
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/logger"
)

const (
	DefaultPrefix  = "lazysearch"
	brokerTimeout  = 10 * time.Second
	publishQoS     = 1
	controlQoS     = 1
	disconnectWait = 1000
)

// Broker is the part of a broker connection the publisher and the control
// subscriber need. *Client implements it.
type Broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler paho.MessageHandler) error
	IsConnected() bool
}

// Topics names the topics of one run.
type Topics struct {
	Prefix string
	RunID  string
}

func (t Topics) base() string {
	prefix := strings.TrimSuffix(t.Prefix, "/")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "/" + t.RunID
}

// Events is where bus events are published.
func (t Topics) Events() string { return t.base() + "/events" }

// Control is where operator commands are read from.
func (t Topics) Control() string { return t.base() + "/control" }

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	url    string
	log    *zap.Logger
	mu     sync.Mutex
}

// BrokerURL returns url, or MQTT_URL from the environment, or the local
// default broker.
func BrokerURL(url string) string {
	if url != "" {
		return url
	}
	if env := os.Getenv("MQTT_URL"); env != "" {
		return env
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(url, clientID string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	url = BrokerURL(url)
	opts := paho.NewClientOptions().
		AddBroker(url).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)

	return &Client{
		client: paho.NewClient(opts),
		url:    url,
		log:    logger.Component(log, "mqtt"),
	}
}

// Connect attempts to connect to the broker without blocking indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(brokerTimeout) {
		return &ConnectTimeoutError{URL: c.url}
	}
	if err := token.Error(); err != nil {
		return err
	}
	c.log.Info("connected", zap.String(logger.FieldAddress, c.url))
	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Publish(topic, publishQoS, false, payload)
	if !token.WaitTimeout(brokerTimeout) {
		return &TimeoutError{Op: "publish", Topic: topic}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, controlQoS, handler)
	if !token.WaitTimeout(brokerTimeout) {
		return &TimeoutError{Op: "subscribe", Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(disconnectWait)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct {
	URL string
}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout: " + e.URL
}

// TimeoutError indicates a publish or subscribe was not acknowledged in time.
type TimeoutError struct {
	Op    string
	Topic string
}

func (e *TimeoutError) Error() string {
	return "mqtt " + e.Op + " timeout: " + e.Topic
}

// Start connects and subscribes the control subscriber, logging failures
// instead of returning them. A run without a broker still completes.
func (c *Client) Start(control *ControlSubscriber) bool {
	if err := c.Connect(); err != nil {
		c.log.Warn("failed to connect", zap.String(logger.FieldAddress, c.url), zap.Error(err))
		return false
	}
	if control == nil {
		return true
	}
	if err := control.Start(); err != nil {
		c.log.Warn("failed to subscribe", zap.String(logger.FieldTopic, control.Topic()), zap.Error(err))
		return false
	}
	return true
}
