package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JonMunkholm/localfinder/internal/core"
	"github.com/JonMunkholm/localfinder/internal/logging"
)

const (
	streamWriteWait  = 5 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

// StreamMessage is pushed to websocket clients on every catalog snapshot.
type StreamMessage struct {
	Type     string       `json:"type"`
	Category string       `json:"category"`
	Count    int          `json:"count"`
	Records  []RecordView `json:"records,omitempty"`
	Error    string       `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamConn serializes writes to one websocket connection.
type streamConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *streamConn) send(msg StreamMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return c.conn.WriteJSON(msg)
}

func (c *streamConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait))
}

// handleCatalogStream upgrades to a websocket and pushes the category's
// records once on connect and again after every change.
func (s *Server) handleCatalogStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.catalogFor(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	log := logging.FromContext(r.Context()).With("category", c.Category().ID)

	// Watch before reading the current records so no change is missed.
	updates, stop := c.Watch()
	defer stop()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("ws: upgrade error", "error", err)
		return
	}
	sc := &streamConn{conn: conn}
	defer conn.Close()

	log.Info("ws: client connected")
	defer log.Info("ws: client disconnected")

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})

	// The read loop only detects disconnects.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := c.WaitReady(r.Context()); err != nil {
		return
	}
	if err := sc.send(snapshotMessage(c, c.Records())); err != nil {
		return
	}

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case records, ok := <-updates:
			if !ok {
				_ = sc.send(StreamMessage{Type: "closed", Category: c.Category().ID})
				return
			}
			if err := sc.send(snapshotMessage(c, records)); err != nil {
				log.Debug("ws: write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := sc.ping(); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func snapshotMessage(c *core.Catalog, records []core.Record) StreamMessage {
	msg := StreamMessage{Type: "snapshot", Category: c.Category().ID, Count: len(records)}
	if err := c.Err(); err != nil {
		msg.Type = "error"
		msg.Error = core.FormatUserError(err)
		return msg
	}
	msg.Records = make([]RecordView, len(records))
	for i, rec := range records {
		msg.Records[i] = newRecordView(rec)
	}
	return msg
}
