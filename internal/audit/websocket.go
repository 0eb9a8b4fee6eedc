package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prasenjit/proxyboy/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	maxReplay  = 500
)

// WebSocketHandler streams audit records to websocket clients. The query
// string takes the same filters as the audit list (method, path, status,
// field, value); replay=N first sends the N most recent matching records.
type WebSocketHandler struct {
	service  *Service
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(service *Service) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// auditStream is one connected subscriber
type auditStream struct {
	conn   *websocket.Conn
	filter *models.AuditFilter
	log    logrus.FieldLogger
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter, err := ParseFilter(q, 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	replay, err := parseReplay(q.Get("replay"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.service.log.WithError(err).WithField("remote", r.RemoteAddr).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Subscribe before replaying so nothing recorded in between is lost
	subID, records := h.service.Subscribe()
	defer h.service.Unsubscribe(subID)

	s := &auditStream{
		conn:   conn,
		filter: filter,
		log: h.service.log.WithFields(logrus.Fields{
			"remote":       r.RemoteAddr,
			"subscription": subID,
		}),
	}
	s.log.WithField("replay", replay).Debug("audit stream opened")

	if replay > 0 {
		recent := *filter
		recent.Limit = replay
		backlog := h.service.List(&recent)
		// List is newest first; send oldest first
		for i := len(backlog) - 1; i >= 0; i-- {
			if !s.send(backlog[i]) {
				return
			}
		}
	}

	s.run(records)
}

// run forwards matching records until the client or the service goes away
func (s *auditStream) run(records <-chan *models.AuditRecord) {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	closed := make(chan struct{})
	go s.readUntilClosed(closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-records:
			if !ok {
				return
			}
			if Matches(s.filter, rec) && !s.send(rec) {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-closed:
			s.log.Debug("audit stream closed by client")
			return
		}
	}
}

// readUntilClosed discards client messages; it returns once the
// connection fails or the client stops answering pings
func (s *auditStream) readUntilClosed(closed chan<- struct{}) {
	defer close(closed)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// send writes rec as one JSON text message and reports whether the
// connection is still usable
func (s *auditStream) send(rec *models.AuditRecord) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.WithError(err).WithField("record", rec.ID).Error("failed to marshal audit record")
		return true
	}

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.log.WithError(err).Debug("audit stream write failed")
		return false
	}
	return true
}

func parseReplay(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.Errorf("replay must be a non-negative number, got %q", s)
	}
	if n > maxReplay {
		n = maxReplay
	}
	return n, nil
}
