// Package identity holds the in-memory user and group records backing the
// sandbox's /etc/passwd and /etc/group files. The structured form is
// canonical; the text form is a generated, ingestible view kept in sync by
// the filesystem layer.
package identity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/deskfs/deskfs/internal/util"
)

// Mutation errors surfaced to callers with their own messages.
var (
	ErrProtected = errors.New("identity is protected")
	ErrExists    = errors.New("identity already exists")
	ErrNotFound  = errors.New("identity not found")
)

// User is a passwd record. Password is plaintext in this simulation;
// empty or "x" means passwordless or externally managed.
type User struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	UID      int    `json:"uid" yaml:"uid"`
	GID      int    `json:"gid" yaml:"gid"`
	FullName string `json:"fullName" yaml:"fullName"`
	HomeDir  string `json:"homeDir" yaml:"homeDir"`
	Shell    string `json:"shell" yaml:"shell"`
}

// Group is a group-file record.
type Group struct {
	Name     string   `json:"groupName" yaml:"name"`
	Password string   `json:"password" yaml:"password"`
	GID      int      `json:"gid" yaml:"gid"`
	Members  []string `json:"members" yaml:"members"`
}

// Store keeps ordered user and group records. Order is preserved so the
// serialized files stay stable across round trips.
type Store struct {
	mu        sync.RWMutex
	users     []*User
	groups    []*Group
	protected map[string]bool
}

// NewStore creates a store. The named users (typically root and the default
// desktop account) can never be deleted.
func NewStore(protected ...string) *Store {
	p := make(map[string]bool, len(protected))
	for _, name := range protected {
		p[name] = true
	}
	return &Store{protected: p}
}

// Users returns a deep copy of the user list in serialization order, safe
// to read or marshal while the store keeps mutating.
func (s *Store) Users() []*User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, len(s.users))
	for i, u := range s.users {
		cp := *u
		out[i] = &cp
	}
	return out
}

// Groups returns a deep copy of the group list in serialization order.
func (s *Store) Groups() []*Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Group, len(s.groups))
	for i, g := range s.groups {
		cp := *g
		cp.Members = append([]string(nil), g.Members...)
		out[i] = &cp
	}
	return out
}

// User looks up a user by name.
func (s *Store) User(username string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userLocked(username)
}

func (s *Store) userLocked(username string) (*User, bool) {
	for _, u := range s.users {
		if u.Username == username {
			return u, true
		}
	}
	return nil, false
}

// Group looks up a group by name.
func (s *Store) Group(name string) (*Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// GroupByGID looks up a group by numeric id.
func (s *Store) GroupByGID(gid int) (*Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.GID == gid {
			return g, true
		}
	}
	return nil, false
}

// MemberOf returns every group name the user belongs to: the primary group
// matching the user's gid plus any group listing the user as member.
func (s *Store) MemberOf(username string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	u, ok := s.userLocked(username)
	for _, g := range s.groups {
		if ok && g.GID == u.GID {
			names = append(names, g.Name)
			continue
		}
		for _, m := range g.Members {
			if m == username {
				names = append(names, g.Name)
				break
			}
		}
	}
	return names
}

// NextUID returns the uid the next created user receives: one above the
// current maximum, with a floor of 1000.
func (s *Store) NextUID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextUIDLocked()
}

func (s *Store) nextUIDLocked() int {
	next := 1000
	for _, u := range s.users {
		if u.UID >= next {
			next = u.UID + 1
		}
	}
	return next
}

// AddUser creates a user with the next free uid, a same-named primary group
// with a matching gid, home under /home and /bin/sh. The caller is
// responsible for materializing the home directory in the tree.
func (s *Store) AddUser(username, fullName, password string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.userLocked(username); ok {
		return nil, fmt.Errorf("%w: user %s", ErrExists, username)
	}

	id := s.nextUIDLocked()
	u := &User{
		Username: username,
		Password: password,
		UID:      id,
		GID:      id,
		FullName: fullName,
		HomeDir:  "/home/" + username,
		Shell:    "/bin/sh",
	}
	s.users = append(s.users, u)
	s.groups = append(s.groups, &Group{Name: username, Password: "x", GID: id, Members: []string{username}})

	logger := util.GetLogger("identity")
	logger.Info().Str("user", username).Int("uid", id).Msg("User created")
	return u, nil
}

// DeleteUser removes a user record. Protected identities are rejected for
// any caller, including root. Files owned by the user remain, orphaned.
func (s *Store) DeleteUser(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.protected[username] {
		return fmt.Errorf("%w: %s", ErrProtected, username)
	}

	for i, u := range s.users {
		if u.Username == username {
			s.users = append(s.users[:i], s.users[i+1:]...)
			s.removeMemberLocked(username)
			logger := util.GetLogger("identity")
			logger.Info().Str("user", username).Msg("User deleted")
			return nil
		}
	}
	return fmt.Errorf("%w: user %s", ErrNotFound, username)
}

func (s *Store) removeMemberLocked(username string) {
	for _, g := range s.groups {
		for i, m := range g.Members {
			if m == username {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				break
			}
		}
	}
}

// AddGroup creates a group with the next free gid at or above 1000.
func (s *Store) AddGroup(name string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.groups {
		if g.Name == name {
			return nil, fmt.Errorf("%w: group %s", ErrExists, name)
		}
	}

	gid := 1000
	for _, g := range s.groups {
		if g.GID >= gid {
			gid = g.GID + 1
		}
	}
	g := &Group{Name: name, Password: "x", GID: gid}
	s.groups = append(s.groups, g)
	return g, nil
}

// DeleteGroup removes a group record. Groups named after protected users
// share their protection.
func (s *Store) DeleteGroup(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.protected[name] {
		return fmt.Errorf("%w: %s", ErrProtected, name)
	}

	for i, g := range s.groups {
		if g.Name == name {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: group %s", ErrNotFound, name)
}

// SetUsers replaces the user list, e.g. after a direct /etc/passwd write.
func (s *Store) SetUsers(users []*User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
}

// SetGroups replaces the group list, e.g. after a direct /etc/group write.
func (s *Store) SetGroups(groups []*Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = groups
}

// PasswdText returns the canonical serialized passwd view.
func (s *Store) PasswdText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FormatPasswd(s.users)
}

// GroupText returns the canonical serialized group view.
func (s *Store) GroupText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return FormatGroup(s.groups)
}

// Protected reports whether the identity may never be deleted.
func (s *Store) Protected(name string) bool {
	return s.protected[name]
}
