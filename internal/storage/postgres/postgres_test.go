package postgres

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

var columns = []string{"event_id", "ts", "level", "event", "msg", "fields", "run_id", "strategy"}

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	client, err := NewWithDB(db, "run-1", "astar")
	if err != nil {
		t.Fatalf("NewWithDB failed: %v", err)
	}
	return client, mock
}

func TestAppendWritesRunAndStrategy(t *testing.T) {
	client, mock := newMockClient(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO search_events").
		WithArgs(ts, "info", "search.solution_found", sqlmock.AnyArg(), sqlmock.AnyArg(), "run-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := client.Append(ts, "info", "search.solution_found", "solution found",
		map[string]interface{}{"score": 2.0}, "")
	if err != nil {
		t.Errorf("Append failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestAppendReportsDatabaseErrors(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec("INSERT INTO search_events").
		WillReturnError(errors.New("connection reset"))

	if err := client.Append(time.Now(), "info", "search.initialized", "", nil, "run-2"); err == nil {
		t.Error("expected error from failing insert")
	}
}

func TestCreateTableFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_events").
		WillReturnError(errors.New("permission denied"))

	if _, err := NewWithDB(db, "run-1", ""); err == nil {
		t.Error("expected error when the table cannot be created")
	}
}

func TestReplayBuildsSummary(t *testing.T) {
	client, mock := newMockClient(t)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	// Newest first, as the query orders them.
	rows := sqlmock.NewRows(columns).
		AddRow(int64(5), start.Add(4*time.Second), "info", "search.terminated", "search terminated", []byte(`{"reason":"exhausted"}`), "run-1", "astar").
		AddRow(int64(4), start.Add(3*time.Second), "info", "search.solution_found", "solution found", []byte(`{"path":"A -> B -> D","length":3,"score":2}`), "run-1", "astar").
		AddRow(int64(3), start.Add(2*time.Second), "debug", "search.node_expanded", nil, []byte(`{"node_id":1}`), "run-1", "astar").
		AddRow(int64(2), start.Add(time.Second), "debug", "search.node_expanded", nil, []byte(`{"node_id":0}`), "run-1", "astar").
		AddRow(int64(1), start, "info", "search.initialized", "search initialized", []byte(`{"root":0}`), "run-1", "astar")

	mock.ExpectQuery("FROM search_events").
		WithArgs("run-1", DefaultReplayLimit).
		WillReturnRows(rows)

	summary, n, err := Replay(client, "run-1", 0)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 rows, got %d", n)
	}
	if summary.Strategy != "astar" {
		t.Errorf("expected strategy astar, got %q", summary.Strategy)
	}
	if !summary.Initialized || !summary.Started.Equal(start) {
		t.Errorf("expected initialized at %v, got %v", start, summary.Started)
	}
	if summary.Expansions != 2 {
		t.Errorf("expected 2 expansions, got %d", summary.Expansions)
	}
	if summary.Reason != "exhausted" || !summary.Terminated() {
		t.Errorf("expected exhausted termination, got %q", summary.Reason)
	}
	best, ok := summary.Best()
	if !ok || best.Score != 2 || best.Length != 3 || best.Path != "A -> B -> D" {
		t.Errorf("unexpected best solution %+v", best)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestReplayNilClientAndEmptyRun(t *testing.T) {
	summary, n, err := Replay(nil, "run-1", 100)
	if err != nil || summary != nil || n != 0 {
		t.Errorf("expected nothing from nil client, got %v %d %v", summary, n, err)
	}

	client, mock := newMockClient(t)
	mock.ExpectQuery("FROM search_events").
		WithArgs("missing", 100).
		WillReturnRows(sqlmock.NewRows(columns))

	summary, n, err = Replay(client, "missing", 100)
	if err != nil || summary != nil || n != 0 {
		t.Errorf("expected nothing for unknown run, got %v %d %v", summary, n, err)
	}
}

func TestSummarizeCountsFailuresAndCancel(t *testing.T) {
	rows := []EventRow{
		{Event: "search.initialized"},
		{Event: "search.node_failed"},
		{Event: "search.node_deferred"},
		{Event: "search.node_pruned"},
		{Event: "search.parent_switched"},
		{Event: "operator.cancel"},
		{Event: "search.terminated", Fields: map[string]interface{}{"reason": "cancelled", "error": "search cancelled"}},
	}
	s := Summarize("run-9", rows)
	if s.Failed != 1 || s.Deferred != 1 || s.Pruned != 1 || s.ParentSwitches != 1 || s.CancelRequests != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
	if s.Reason != "cancelled" || s.Error != "search cancelled" {
		t.Errorf("unexpected termination %q / %q", s.Reason, s.Error)
	}
	if _, ok := s.Best(); ok {
		t.Error("expected no best solution")
	}
}

func TestConnStringPrefersSettings(t *testing.T) {
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPASSWORD", "")

	conn := Settings{User: "searcher", Port: 6543}.connString()
	for _, want := range []string{"host=db.internal", "port=6543", "user=searcher", "sslmode=disable"} {
		if !strings.Contains(conn, want) {
			t.Errorf("expected %q in %q", want, conn)
		}
	}
	if strings.Contains(conn, "password=") {
		t.Errorf("unexpected password in %q", conn)
	}
}
