package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestHubFanOut(t *testing.T) {
	hub := NewHub()
	a := &recordingSink{}
	b := &recordingSink{}
	hub.Register("a", a)
	hub.Register("b", b)

	hub.Publish(Event{Kind: "create", Path: "/tmp/x"})

	require.Len(t, a.all(), 1)
	require.Len(t, b.all(), 1)
	got := a.all()[0]
	assert.Equal(t, "create", got.Kind)
	assert.Equal(t, LevelInfo, got.Level, "level defaults to info")
	assert.False(t, got.Time.IsZero(), "time is stamped on publish")
}

func TestHubUnregister(t *testing.T) {
	hub := NewHub()
	s := &recordingSink{}
	hub.Register("s", s)
	hub.Unregister("s")

	hub.Publish(Event{Kind: "delete"})
	assert.Empty(t, s.all())
}

func TestRegisterReplaces(t *testing.T) {
	hub := NewHub()
	old := &recordingSink{}
	replacement := &recordingSink{}
	hub.Register("s", old)
	hub.Register("s", replacement)

	hub.Publish(Event{Kind: "move"})
	assert.Empty(t, old.all())
	assert.Len(t, replacement.all(), 1)
}
