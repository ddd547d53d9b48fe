package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/AaronLay10/lazysearch/internal/events"
	"github.com/AaronLay10/lazysearch/internal/metrics"
	"github.com/AaronLay10/lazysearch/internal/search"
)

func newTestBus() *events.Bus {
	return events.NewBus("run-test", 64, nil)
}

type fakeTarget struct {
	mu sync.Mutex
	n  int
}

func (f *fakeTarget) Cancel() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *fakeTarget) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func serve(s *Server, method, path string, setAuth func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if setAuth != nil {
		setAuth(req)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(Options{Bus: newTestBus()})
	w := serve(s, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.RunID != "run-test" {
		t.Errorf("unexpected health response %+v", resp)
	}
}

func TestReadyEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		configure func(r *Readiness)
		wantCode  int
		check     string
		status    string
	}{
		{"search not initialized", func(r *Readiness) {}, http.StatusServiceUnavailable, "search", "error"},
		{"optional outputs missing", func(r *Readiness) { r.SetSearchReady(true) }, http.StatusOK, "mqtt", "unavailable"},
		{"required journal down", func(r *Readiness) {
			r.SetSearchReady(true)
			r.SetJournal(false, false)
		}, http.StatusServiceUnavailable, "journal", "error"},
		{"all connected", func(r *Readiness) {
			r.SetSearchReady(true)
			r.SetJournal(true, false)
			r.SetMQTT(true, false)
		}, http.StatusOK, "journal", "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Options{Bus: newTestBus()})
			tt.configure(s.Readiness())

			w := serve(s, "GET", "/ready", nil)
			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != (tt.wantCode == http.StatusOK) {
				t.Errorf("ready = %v for status %d", resp.Ready, w.Code)
			}
			if got := resp.Checks[tt.check].Status; got != tt.status {
				t.Errorf("check %s = %q, want %q", tt.check, got, tt.status)
			}
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := NewServer(Options{
		Bus: newTestBus(),
		Status: func() Status {
			return Status{RunID: "run-test", Strategy: "astar", State: "active", Expansions: 12, Solutions: 1, Frontier: 4}
		},
	})
	w := serve(s, "GET", "/status", nil)

	var st Status
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if st.State != "active" || st.Expansions != 12 || st.Frontier != 4 {
		t.Errorf("unexpected status %+v", st)
	}

	plain := NewServer(Options{Bus: newTestBus(), Strategy: "bnb"})
	w = serve(plain, "GET", "/status", nil)
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if st.Strategy != "bnb" || st.RunID != "run-test" {
		t.Errorf("unexpected fallback status %+v", st)
	}
}

func TestEventsEndpoint(t *testing.T) {
	bus := newTestBus()
	for i := 0; i < 4; i++ {
		bus.Observe(search.NodeExpansionEvent{Parent: search.NodeID(i)})
	}
	s := NewServer(Options{Bus: bus})

	w := serve(s, "GET", "/events?limit=2", nil)
	var got []events.Event
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(got) != 2 || got[1].Fields["node_id"] != float64(3) {
		t.Errorf("expected the last two events, got %+v", got)
	}

	if w := serve(s, "GET", "/events?limit=-1", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for negative limit, got %d", w.Code)
	}
}

func TestEventsEndpointFilters(t *testing.T) {
	bus := newTestBus()
	for i := 0; i < 3; i++ {
		bus.Observe(search.NodeExpansionEvent{Parent: search.NodeID(i)})
	}
	bus.Observe(search.TerminatedEvent{Reason: search.ReasonExhausted})
	s := NewServer(Options{Bus: bus})

	decode := func(path string) []events.Event {
		t.Helper()
		w := serve(s, "GET", path, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, w.Code)
		}
		var got []events.Event
		if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return got
	}

	if got := decode("/events?since=2"); len(got) != 2 || got[0].Seq != 3 || got[1].Name != search.EventTerminated {
		t.Errorf("expected events 3 and 4, got %+v", got)
	}
	if got := decode("/events?event=search.terminated"); len(got) != 1 || got[0].Seq != 4 {
		t.Errorf("expected only the termination, got %+v", got)
	}
	if got := decode("/events?event=search.node_expanded&limit=1"); len(got) != 1 || got[0].Seq != 3 {
		t.Errorf("expected the newest expansion, got %+v", got)
	}

	for _, path := range []string{"/events?since=abc", "/events?event=search.node_exploded"} {
		if w := serve(s, "GET", path, nil); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestCancelEndpoint(t *testing.T) {
	bus := newTestBus()
	target := &fakeTarget{}
	s := NewServer(Options{Bus: bus, Target: target, Auth: NewAuth("admin", "secret", "op", "pw")})
	asOperator := func(r *http.Request) { r.SetBasicAuth("op", "pw") }

	if w := serve(s, "POST", "/control/cancel", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}
	if w := serve(s, "GET", "/control/cancel", asOperator); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}
	if target.count() != 0 {
		t.Fatal("rejected requests must not cancel")
	}

	w := serve(s, "POST", "/control/cancel", asOperator)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp ControlResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil || !resp.OK {
		t.Errorf("unexpected response %+v (%v)", resp, err)
	}
	if target.count() != 1 {
		t.Errorf("expected one cancel, got %d", target.count())
	}

	snap := bus.Snapshot()
	if len(snap) != 1 || snap[0].Name != "operator.cancel" || snap[0].Fields["by"] != "op" {
		t.Errorf("expected operator.cancel by op, got %+v", snap)
	}
}

func TestCancelWithoutTarget(t *testing.T) {
	s := NewServer(Options{Bus: newTestBus()})
	if w := serve(s, "POST", "/control/cancel", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collector := metrics.New("run-test", "astar")
	collector.Observe(search.NodeExpansionEvent{FrontierSize: 3})

	s := NewServer(Options{Bus: newTestBus(), Metrics: collector.Registry()})
	w := serve(s, "GET", "/metrics", nil)

	body := w.Body.String()
	if !strings.Contains(body, `lazysearch_search_expansions_total{run_id="run-test",strategy="astar"} 1`) {
		t.Errorf("expansion counter missing from metrics:\n%s", body)
	}

	if w := serve(NewServer(Options{Bus: newTestBus()}), "GET", "/metrics", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a registry, got %d", w.Code)
	}
}

func TestAlertOnFailedTermination(t *testing.T) {
	var mu sync.Mutex
	var received []AlertPayload
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p AlertPayload
		if err := json.Unmarshal(body, &p); err == nil {
			mu.Lock()
			received = append(received, p)
			mu.Unlock()
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	bus := newTestBus()
	alerter := NewAlerter(hook.URL, "run-test", "astar", nil)
	NewServer(Options{Bus: bus, Alerter: alerter})

	bus.Observe(search.TerminatedEvent{Reason: search.ReasonExhausted})
	bus.Observe(search.TerminatedEvent{Reason: search.ReasonFailed, Err: search.ErrEvaluationFailed})
	bus.Observe(search.TerminatedEvent{Reason: search.ReasonFailed, Err: search.ErrEvaluationFailed})
	alerter.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(received))
	}
	if received[0].Event != AlertRunFailed || received[0].Severity != SeverityCritical || received[0].RunID != "run-test" {
		t.Errorf("unexpected alert %+v", received[0])
	}
}

func TestStartAndShutdown(t *testing.T) {
	bus := newTestBus()
	s := NewServer(Options{Address: "127.0.0.1:0", Bus: bus})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}
