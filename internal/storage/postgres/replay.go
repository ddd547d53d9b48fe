package postgres

import "time"

// DefaultReplayLimit is the default number of events loaded for a replay.
const DefaultReplayLimit = 10000

// SolutionRecord is a solution as it was journaled.
type SolutionRecord struct {
	Path     string
	Length   int
	Score    float64
	HasScore bool
}

// RunSummary is what a journaled run looked like from the outside.
type RunSummary struct {
	RunID          string
	Strategy       string
	Started        time.Time
	Finished       time.Time
	Initialized    bool
	Expansions     int
	Pruned         int
	Deferred       int
	Failed         int
	ParentSwitches int
	Reevaluations  int
	Solutions      []SolutionRecord
	Reason         string
	Error          string
	CancelRequests int
}

// Terminated reports whether the run's termination was journaled.
func (s *RunSummary) Terminated() bool { return s.Reason != "" }

// Best returns the lowest-scored solution.
func (s *RunSummary) Best() (SolutionRecord, bool) {
	var best SolutionRecord
	found := false
	for _, sol := range s.Solutions {
		if !sol.HasScore {
			continue
		}
		if !found || sol.Score < best.Score {
			best, found = sol, true
		}
	}
	return best, found
}

// Replay loads a run's events and rebuilds its summary. It returns nil when
// nothing was journaled for runID.
func Replay(client *Client, runID string, limit int) (*RunSummary, int, error) {
	if client == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultReplayLimit
	}

	rows, err := client.QueryRun(runID, limit)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	// Reverse to chronological order (QueryRun returns DESC)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return Summarize(runID, rows), len(rows), nil
}

// Summarize folds chronological rows into a summary.
func Summarize(runID string, rows []EventRow) *RunSummary {
	s := &RunSummary{RunID: runID}
	for _, row := range rows {
		if s.Strategy == "" && row.Strategy != nil {
			s.Strategy = *row.Strategy
		}

		switch row.Event {
		case "search.initialized":
			s.Initialized = true
			s.Started = row.Timestamp

		case "search.node_expanded":
			s.Expansions++

		case "search.node_pruned":
			s.Pruned++

		case "search.node_deferred":
			s.Deferred++

		case "search.node_failed":
			s.Failed++

		case "search.parent_switched":
			s.ParentSwitches++

		case "search.node_reevaluated":
			s.Reevaluations++

		case "search.solution_found":
			rec := SolutionRecord{}
			if p, ok := row.Fields["path"].(string); ok {
				rec.Path = p
			}
			// JSON numbers come back as float64.
			if l, ok := row.Fields["length"].(float64); ok {
				rec.Length = int(l)
			}
			if score, ok := row.Fields["score"].(float64); ok {
				rec.Score = score
				rec.HasScore = true
			}
			s.Solutions = append(s.Solutions, rec)

		case "search.terminated":
			s.Finished = row.Timestamp
			if reason, ok := row.Fields["reason"].(string); ok {
				s.Reason = reason
			}
			if e, ok := row.Fields["error"].(string); ok {
				s.Error = e
			}

		case "operator.cancel":
			s.CancelRequests++
		}
	}
	return s
}
