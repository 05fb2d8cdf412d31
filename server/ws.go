package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/notify"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // desktop frontend connects from file:// and localhost origins
	},
}

// WSHandler upgrades connections and registers each as an event sink, so
// every committed filesystem change is pushed to connected frontends.
type WSHandler struct {
	hub     *notify.Hub
	metrics *Metrics
}

func NewWSHandler(hub *notify.Hub, metrics *Metrics) *WSHandler {
	return &WSHandler{hub: hub, metrics: metrics}
}

// HandleConnection handles the upgrade and keeps the connection registered
// until the peer goes away.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger := util.GetLogger("ws")
		logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	name := "ws-" + uuid.New().String()
	sink := &wsSink{conn: conn, events: make(chan notify.Event, 64)}
	h.hub.Register(name, sink)
	h.metrics.WSConnections.Inc()
	defer func() {
		h.hub.Unregister(name)
		h.metrics.WSConnections.Dec()
	}()

	done := make(chan struct{})
	go sink.writeLoop(done)

	// the read loop exists only to notice the peer closing
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
}

// wsSink buffers events into a channel so Publish never blocks on a slow
// peer. A full buffer drops the event; the frontend refetches on reconnect
// anyway. The channel is never closed; the write loop exits on done.
type wsSink struct {
	conn   *websocket.Conn
	events chan notify.Event
}

func (s *wsSink) Publish(e notify.Event) {
	select {
	case s.events <- e:
	default:
	}
}

func (s *wsSink) writeLoop(done <-chan struct{}) {
	for {
		select {
		case e := <-s.events:
			if err := s.conn.WriteJSON(e); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
