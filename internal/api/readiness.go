package api

import (
	"net/http"
	"sync"
)

// Readiness tracks whether the run and its outputs are usable. A dependency
// marked optional is reported but does not make the monitor unready.
type Readiness struct {
	mu               sync.RWMutex
	searchReady      bool
	mqttConnected    bool
	mqttOptional     bool
	journalConnected bool
	journalOptional  bool
}

// NewReadiness returns a tracker where both outputs are optional and
// disconnected and the search has not started.
func NewReadiness() *Readiness {
	return &Readiness{mqttOptional: true, journalOptional: true}
}

// SetSearchReady records whether the search has been initialized.
func (r *Readiness) SetSearchReady(ready bool) {
	r.mu.Lock()
	r.searchReady = ready
	r.mu.Unlock()
}

// SetMQTT records the broker state.
func (r *Readiness) SetMQTT(connected, optional bool) {
	r.mu.Lock()
	r.mqttConnected = connected
	r.mqttOptional = optional
	r.mu.Unlock()
}

// SetJournal records the journal state.
func (r *Readiness) SetJournal(connected, optional bool) {
	r.mu.Lock()
	r.journalConnected = connected
	r.journalOptional = optional
	r.mu.Unlock()
}

type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type ReadinessResponse struct {
	Ready  bool                   `json:"ready"`
	Checks map[string]CheckResult `json:"checks"`
}

// Check evaluates every dependency.
func (r *Readiness) Check() ReadinessResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := ReadinessResponse{Ready: true, Checks: make(map[string]CheckResult, 3)}

	if r.searchReady {
		resp.Checks["search"] = CheckResult{Status: "ok"}
	} else {
		resp.Ready = false
		resp.Checks["search"] = CheckResult{Status: "error", Error: "search not initialized"}
	}

	dependency := func(name string, connected, optional bool) {
		switch {
		case connected:
			resp.Checks[name] = CheckResult{Status: "ok"}
		case optional:
			resp.Checks[name] = CheckResult{Status: "unavailable", Error: name + " not connected (optional)"}
		default:
			resp.Ready = false
			resp.Checks[name] = CheckResult{Status: "error", Error: name + " not connected"}
		}
	}
	dependency("mqtt", r.mqttConnected, r.mqttOptional)
	dependency("journal", r.journalConnected, r.journalOptional)
	return resp
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := s.readiness.Check()
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
