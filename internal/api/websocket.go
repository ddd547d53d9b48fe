package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/events"
)

const (
	// Events replayed to a new stream that did not ask for a limit.
	recentEventsCount = 50

	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// Must be less than pongWait.
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is controlled by basic auth on the upgrade request.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventStream writes bus events to one websocket peer.
type eventStream struct {
	conn    *websocket.Conn
	query   eventQuery
	lastSeq uint64
	log     *zap.Logger
}

func (es *eventStream) write(messageType int, data []byte) error {
	_ = es.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return es.conn.WriteMessage(messageType, data)
}

// send writes e unless it was already sent or the query filters it out.
func (es *eventStream) send(e events.Event) error {
	if e.Seq != 0 && e.Seq <= es.lastSeq {
		return nil
	}
	if e.Seq > es.lastSeq {
		es.lastSeq = e.Seq
	}
	if !es.query.match(e) {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		es.log.Debug("ws event not encodable", zap.String("event", e.Name), zap.Error(err))
		return nil
	}
	return es.write(websocket.TextMessage, data)
}

// readPongs consumes control frames until the peer goes away.
func (es *eventStream) readPongs(done chan<- struct{}) {
	defer close(done)
	_ = es.conn.SetReadDeadline(time.Now().Add(pongWait))
	es.conn.SetPongHandler(func(string) error {
		return es.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := es.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsEventsHandler streams the run's events: first the backlog selected by the
// query (by default the last 50 events, or everything after ?since=), then
// every new event until the peer goes away or the bus closes the stream.
func (s *Server) wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ControlResponse{OK: false, Error: err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Subscribe before reading the backlog so nothing falls in between;
	// duplicates are skipped by sequence number.
	bus := s.opts.Bus
	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	es := &eventStream{conn: conn, query: q, log: s.log}
	for _, e := range q.backlog(bus, recentEventsCount) {
		if err := es.send(e); err != nil {
			s.log.Debug("ws write backlog failed", zap.Error(err))
			return
		}
	}

	done := make(chan struct{})
	go es.readPongs(done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case e, ok := <-sub:
			if !ok {
				_ = es.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := es.send(e); err != nil {
				s.log.Debug("ws write event failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := es.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
