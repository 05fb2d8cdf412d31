// Package notify fans filesystem events out to registered sinks.
// Publishing is fire-and-forget; a slow or failing sink never blocks or
// fails the operation that produced the event.
package notify

import (
	"time"

	"github.com/deskfs/deskfs/internal/util"
	"github.com/puzpuzpuz/xsync/v4"
)

// Event levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Event describes a user-visible filesystem occurrence.
type Event struct {
	Kind    string    `json:"kind"` // create, write, delete, move, trash, chmod, chown, identity, login
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`
	Level   string    `json:"level"`
	Time    time.Time `json:"time"`
}

// Sink receives events. Implementations must not block.
type Sink interface {
	Publish(Event)
}

// Hub is a named sink registry.
type Hub struct {
	sinks *xsync.Map[string, Sink]
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{sinks: xsync.NewMap[string, Sink]()}
}

// Register adds or replaces a sink under name.
func (h *Hub) Register(name string, s Sink) {
	h.sinks.Store(name, s)
}

// Unregister removes a sink.
func (h *Hub) Unregister(name string) {
	h.sinks.Delete(name)
}

// Publish delivers the event to every registered sink.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	h.sinks.Range(func(_ string, s Sink) bool {
		s.Publish(e)
		return true
	})
}

// LogSink writes events to the application log.
type LogSink struct{}

func (LogSink) Publish(e Event) {
	logger := util.GetLogger("events")
	evt := logger.Info()
	if e.Level == LevelError {
		evt = logger.Error()
	}
	evt.Str("kind", e.Kind).Str("path", e.Path).Msg(e.Message)
}
