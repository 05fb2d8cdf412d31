// Package session tracks logged-in desktop sessions: who is at the keyboard,
// their working directory, and any temporary identity elevation.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/perm"
)

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrNoSession      = errors.New("unknown session")
	ErrLocked         = errors.New("identity changes are locked")
)

// Session is one logged-in desktop session. The effective user starts as
// the login user and changes under Elevate/Drop.
type Session struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Effective  string    `json:"effectiveUser"`
	WorkingDir string    `json:"workingDir"`
	Created    time.Time `json:"created"`
}

// Manager authenticates against the identity store and tracks sessions.
// locked is consulted before elevation so a compromised install cannot be
// escalated out of read-only mode. mu guards the fields of stored sessions;
// handlers run on separate goroutines and may hit the same session id
// concurrently, so lookups hand out snapshots, never the stored pointer.
type Manager struct {
	ids      *identity.Store
	locked   func() bool
	mu       sync.RWMutex
	sessions *xsync.Map[string, *Session]
}

func NewManager(ids *identity.Store, locked func() bool) *Manager {
	if locked == nil {
		locked = func() bool { return false }
	}
	return &Manager{
		ids:      ids,
		locked:   locked,
		sessions: xsync.NewMap[string, *Session](),
	}
}

// Login authenticates a user and opens a session rooted at their home
// directory. An empty or "x" stored password means passwordless login.
func (m *Manager) Login(username, password string) (*Session, error) {
	u, ok := m.ids.User(username)
	if !ok || !passwordMatches(u, password) {
		// same error either way so probes cannot enumerate usernames
		return nil, ErrBadCredentials
	}

	s := &Session{
		ID:         uuid.New().String(),
		Username:   u.Username,
		Effective:  u.Username,
		WorkingDir: u.HomeDir,
		Created:    time.Now(),
	}
	m.sessions.Store(s.ID, s)
	logger := util.GetLogger("session")
	logger.Info().Str("user", u.Username).Str("session", s.ID).Msg("Session opened")
	cp := *s
	return &cp, nil
}

// Logout closes a session.
func (m *Manager) Logout(id string) error {
	s, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return ErrNoSession
	}
	logger := util.GetLogger("session")
	logger.Info().Str("user", s.Username).Str("session", id).Msg("Session closed")
	return nil
}

// Get returns a snapshot of a session. Mutations go through the manager;
// writing the returned value changes nothing.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Load(id)
	if !ok {
		return nil, ErrNoSession
	}
	m.mu.RLock()
	cp := *s
	m.mu.RUnlock()
	return &cp, nil
}

// SetWorkingDir updates the session's working directory. The caller resolves
// and validates the path first.
func (m *Manager) SetWorkingDir(id, dir string) error {
	s, ok := m.sessions.Load(id)
	if !ok {
		return ErrNoSession
	}
	m.mu.Lock()
	s.WorkingDir = dir
	m.mu.Unlock()
	return nil
}

// Elevate switches the session's effective user, authenticating with the
// target user's password. Root elevates without a password. Refused while
// the install is locked.
func (m *Manager) Elevate(id, target, password string) error {
	if m.locked() {
		return ErrLocked
	}
	s, ok := m.sessions.Load(id)
	if !ok {
		return ErrNoSession
	}

	t, ok := m.ids.User(target)
	if !ok {
		return ErrBadCredentials
	}
	if s.Username != perm.RootUser && !passwordMatches(t, password) {
		return ErrBadCredentials
	}

	m.mu.Lock()
	s.Effective = t.Username
	m.mu.Unlock()
	logger := util.GetLogger("session")
	logger.Info().Str("user", s.Username).Str("effective", target).Msg("Session elevated")
	return nil
}

// Drop returns the session to its login identity.
func (m *Manager) Drop(id string) error {
	s, ok := m.sessions.Load(id)
	if !ok {
		return ErrNoSession
	}
	m.mu.Lock()
	s.Effective = s.Username
	m.mu.Unlock()
	return nil
}

// Active returns snapshots of all open sessions, for the admin surface.
func (m *Manager) Active() []*Session {
	var out []*Session
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.sessions.Range(func(_ string, s *Session) bool {
		cp := *s
		out = append(out, &cp)
		return true
	})
	return out
}

func passwordMatches(u *identity.User, supplied string) bool {
	if u.Password == "" || u.Password == "x" {
		return true
	}
	return u.Password == supplied
}
