package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/AaronLay10/lazysearch/internal/events"
)

// eventQuery selects buffered events for /events and /ws:
//
//	limit=N       only the N newest matching events
//	since=SEQ     only events numbered above SEQ, to resume a stream
//	event=NAME    only these event names; repeatable or comma separated
type eventQuery struct {
	limit    int
	since    uint64
	hasSince bool
	names    map[string]bool
}

func parseEventQuery(r *http.Request) (eventQuery, error) {
	var q eventQuery
	values := r.URL.Query()

	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return q, fmt.Errorf("invalid limit")
		}
		q.limit = n
	}
	if v := values.Get("since"); v != "" {
		seq, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("invalid since")
		}
		q.since, q.hasSince = seq, true
	}
	for _, v := range values["event"] {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name == "" {
				continue
			}
			if err := events.Validate(name); err != nil {
				return q, err
			}
			if q.names == nil {
				q.names = make(map[string]bool)
			}
			q.names[name] = true
		}
	}
	return q, nil
}

func (q eventQuery) match(e events.Event) bool {
	return q.names == nil || q.names[e.Name]
}

// backlog returns the buffered events the query selects, oldest first. def
// caps the result when the query has no limit; 0 means no cap.
func (q eventQuery) backlog(bus *events.Bus, def int) []events.Event {
	var all []events.Event
	if q.hasSince {
		all = bus.EventsSince(q.since)
	} else {
		all = bus.RecentEvents(0)
	}

	out := all[:0]
	for _, e := range all {
		if q.match(e) {
			out = append(out, e)
		}
	}

	limit := q.limit
	if limit == 0 {
		limit = def
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
