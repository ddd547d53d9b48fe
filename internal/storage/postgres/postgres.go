// Package postgres journals search events and replays journaled runs.
package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	RunID     string                 `json:"run_id"`
	Strategy  *string                `json:"strategy,omitempty"`
}

// Settings locate the database. Empty fields fall back to the PG* environment
// variables and then to local defaults.
type Settings struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// Client is the event journal of one search run.
type Client struct {
	db       *sql.DB
	runID    string
	strategy string
}

// New connects, creates the journal table if needed and returns a client
// that stamps rows with runID and strategy.
func New(s Settings, runID, strategy string) (*Client, error) {
	db, err := sql.Open("postgres", s.connString())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client, err := NewWithDB(db, runID, strategy)
	if err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

// NewWithDB wraps an open database handle.
func NewWithDB(db *sql.DB, runID, strategy string) (*Client, error) {
	client := &Client{db: db, runID: runID, strategy: strategy}
	if err := client.createTable(); err != nil {
		return nil, fmt.Errorf("failed to create search_events table: %w", err)
	}
	return client, nil
}

func (s Settings) connString() string {
	host := orEnv(s.Host, "PGHOST", "127.0.0.1")
	port := orEnv("", "PGPORT", "5432")
	if s.Port != 0 {
		port = fmt.Sprint(s.Port)
	}
	user := orEnv(s.User, "PGUSER", "lazysearch")
	dbname := orEnv(s.Database, "PGDATABASE", "lazysearch")
	sslmode := orEnv(s.SSLMode, "PGSSLMODE", "disable")
	password := orEnv(s.Password, "PGPASSWORD", "")

	if password != "" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			host, port, user, password, dbname, sslmode)
	}
	return fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		host, port, user, dbname, sslmode)
}

func orEnv(v, key, defaultVal string) string {
	if v != "" {
		return v
	}
	if e := os.Getenv(key); e != "" {
		return e
	}
	return defaultVal
}

func (c *Client) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS search_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			run_id     TEXT NOT NULL,
			strategy   TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_search_events_ts ON search_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_search_events_run_id ON search_events(run_id);
	`
	_, err := c.db.Exec(query)
	return err
}

// RunID returns the run the client writes for.
func (c *Client) RunID() string { return c.runID }

// Append inserts an event. An empty runID means the client's run.
func (c *Client) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	var fieldsJSON []byte
	var err error
	if fields != nil {
		fieldsJSON, err = json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if msg != "" {
		msgPtr = &msg
	}

	var strategyPtr *string
	if c.strategy != "" {
		strategyPtr = &c.strategy
	}

	if runID == "" {
		runID = c.runID
	}

	query := `
		INSERT INTO search_events (ts, level, event, msg, fields, run_id, strategy)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = c.db.Exec(query, ts, level, event, msgPtr, fieldsJSON, runID, strategyPtr)
	return err
}

// Query returns the last N events of the client's run, newest first.
func (c *Client) Query(limit int) ([]EventRow, error) {
	return c.QueryRun(c.runID, limit)
}

// QueryRun returns the last N events of runID, newest first.
func (c *Client) QueryRun(runID string, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, run_id, strategy
		FROM search_events
		WHERE run_id = $1
		ORDER BY ts DESC, event_id DESC
		LIMIT $2
	`
	rows, err := c.db.Query(query, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, strategy sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.RunID, &strategy); err != nil {
			return nil, err
		}

		if msg.Valid {
			e.Message = &msg.String
		}
		if strategy.Valid {
			e.Strategy = &strategy.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
