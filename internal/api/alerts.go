package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/events"
	"github.com/AaronLay10/lazysearch/internal/logger"
	"github.com/AaronLay10/lazysearch/internal/search"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertRunFailed          = "run_failed"
	AlertRunTimedOut        = "run_timed_out"
	AlertRunCancelled       = "run_cancelled"
	AlertJournalUnavailable = "journal_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	RunID     string                 `json:"run_id"`
	Strategy  string                 `json:"strategy,omitempty"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Alerter posts a webhook when a run ends badly or its journal fails. Alerts
// are best effort: delivery errors are logged and dropped.
type Alerter struct {
	webhookURL string
	runID      string
	strategy   string
	client     *http.Client
	log        *zap.Logger

	mu   sync.Mutex
	sent map[string]bool
	wg   sync.WaitGroup
}

// NewAlerter creates an alerter. With an empty webhookURL alerts are only
// logged.
func NewAlerter(webhookURL, runID, strategy string, log *zap.Logger) *Alerter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Alerter{
		webhookURL: webhookURL,
		runID:      runID,
		strategy:   strategy,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        logger.Component(log, "alerts"),
		sent:       make(map[string]bool),
	}
}

// Observe turns bus events into alerts. Each alert type is sent at most once
// per run. It has the shape of a bus sink.
func (a *Alerter) Observe(e events.Event) {
	switch e.Name {
	case search.EventTerminated:
		reason, _ := e.Fields["reason"].(string)
		switch search.TerminationReason(reason) {
		case search.ReasonFailed:
			a.Send(AlertRunFailed, SeverityCritical, "search failed", e.Fields)
		case search.ReasonTimeout:
			a.Send(AlertRunTimedOut, SeverityWarning, "search timed out", e.Fields)
		case search.ReasonCancelled:
			a.Send(AlertRunCancelled, SeverityInfo, "search cancelled", e.Fields)
		}
	case "system.error":
		a.Send(AlertJournalUnavailable, SeverityWarning, e.Message, e.Fields)
	}
}

// Send delivers an alert in the background unless one of the same type was
// already sent.
func (a *Alerter) Send(event, severity, message string, details map[string]interface{}) {
	a.mu.Lock()
	if a.sent[event] {
		a.mu.Unlock()
		return
	}
	a.sent[event] = true
	a.mu.Unlock()

	if a.webhookURL == "" {
		a.log.Warn("alert", zap.String("event", event), zap.String("severity", severity),
			zap.String("message", message), zap.Any("details", details))
		return
	}

	payload := AlertPayload{
		RunID:     a.runID,
		Strategy:  a.strategy,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.post(payload); err != nil {
			a.log.Warn("alert delivery failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

func (a *Alerter) post(payload AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (a *Alerter) Wait() {
	a.wg.Wait()
}
