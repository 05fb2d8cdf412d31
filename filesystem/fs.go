// Package filesystem implements the in-memory sandbox tree: permission-gated
// CRUD and structural mutation, symbolic path resolution, trash semantics
// and the bidirectional sync between the identity store and the /etc/passwd
// and /etc/group file nodes.
package filesystem

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/notify"
	"github.com/deskfs/deskfs/perm"
	"github.com/puzpuzpuz/xsync/v4"
)

// Identity file locations inside the tree.
const (
	PasswdPath = "/etc/passwd"
	GroupPath  = "/etc/group"
)

// Operation failures. Missing nodes and permission failures share ErrDenied
// on purpose: callers cannot distinguish the two cases.
var (
	ErrDenied    = errors.New("no such node or access denied")
	ErrConflict  = errors.New("target name already in use or move would create a cycle")
	ErrMalformed = errors.New("malformed input")
	ErrReadOnly  = errors.New("filesystem is read-only")
)

// FileSystem owns the node tree. Every mutation copies the nodes along the
// path from root to the mutated node and swaps in a new root, so observers
// see a fresh root identity per change while untouched branches are shared.
type FileSystem struct {
	ids *identity.Store
	hub *notify.Hub

	mu           sync.Mutex // serializes mutations
	root         *Node
	gen          atomic.Uint64
	registry     *xsync.Map[string, *Node] // node id -> current node
	trashOrigins map[string]string         // node id -> parent dir path before trashing
	readOnly     atomic.Bool
	onChange     func()
	now          func() time.Time
}

// New creates a filesystem over root, normalizing loaded nodes and indexing
// them by id.
func New(root *Node, ids *identity.Store) *FileSystem {
	root.normalize()
	fs := &FileSystem{
		ids:          ids,
		registry:     xsync.NewMap[string, *Node](),
		trashOrigins: make(map[string]string),
		now:          time.Now,
	}
	fs.root = root
	root.Walk(func(n *Node) { fs.registry.Store(n.ID, n) })
	return fs
}

// Root returns the current root snapshot.
func (fs *FileSystem) Root() *Node {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.root
}

// Generation increments on every committed mutation.
func (fs *FileSystem) Generation() uint64 {
	return fs.gen.Load()
}

// Identity exposes the backing identity store.
func (fs *FileSystem) Identity() *identity.Store {
	return fs.ids
}

// SetNotifier wires the event hub. May be nil.
func (fs *FileSystem) SetNotifier(hub *notify.Hub) {
	fs.hub = hub
}

// OnChange registers a callback invoked after every committed mutation,
// with no locks held. Used for debounced persistence.
func (fs *FileSystem) OnChange(fn func()) {
	fs.onChange = fn
}

// SetReadOnly degrades or restores the mutation surface. The flag is
// computed elsewhere (integrity gate); the tree only consults it.
func (fs *FileSystem) SetReadOnly(v bool) {
	fs.readOnly.Store(v)
}

// ReadOnly reports the degraded state.
func (fs *FileSystem) ReadOnly() bool {
	return fs.readOnly.Load()
}

// TrashOrigins returns a copy of the trash origin records for snapshots.
func (fs *FileSystem) TrashOrigins() map[string]string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := make(map[string]string, len(fs.trashOrigins))
	for k, v := range fs.trashOrigins {
		out[k] = v
	}
	return out
}

// SetTrashOrigins restores trash origin records from a snapshot.
func (fs *FileSystem) SetTrashOrigins(m map[string]string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for k, v := range m {
		fs.trashOrigins[k] = v
	}
}

// NodeByID returns the current node carrying id, if any.
func (fs *FileSystem) NodeByID(id string) (*Node, bool) {
	return fs.registry.Load(id)
}

// GetNode resolves an absolute path for the acting user, requiring execute
// permission on every intermediate directory. Missing nodes and permission
// failures both return nil.
func (fs *FileSystem) GetNode(path string, as *identity.User) *Node {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return nil
	}
	return chain[len(chain)-1]
}

// ListDirectory returns the ordered children of a directory the acting user
// may read, or nil.
func (fs *FileSystem) ListDirectory(path string, as *identity.User) []*Node {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return nil
	}
	dir := chain[len(chain)-1]
	if !dir.IsDir() || !fs.allowed(dir, as, perm.Read) {
		return nil
	}
	out := make([]*Node, len(dir.Children))
	copy(out, dir.Children)
	return out
}

// ReadFile returns a file's content when the acting user may read it.
func (fs *FileSystem) ReadFile(path string, as *identity.User) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return "", false
	}
	f := chain[len(chain)-1]
	if f.IsDir() || !fs.allowed(f, as, perm.Read) {
		return "", false
	}
	return f.Content, true
}

// allowed evaluates op for the acting user. A nil user is internal and
// bypasses checks.
func (fs *FileSystem) allowed(n *Node, as *identity.User, op perm.Op) bool {
	if as == nil {
		return true
	}
	return perm.Check(n.Perms, n.Owner, n.Group, as.Username, fs.ids.MemberOf(as.Username), op)
}

// walkFrom resolves path from root into the chain of nodes root..target.
// Returns nil uniformly for missing nodes and denied traversal.
func (fs *FileSystem) walkFrom(root *Node, path string, as *identity.User) []*Node {
	chain := []*Node{root}
	cur := root
	for _, seg := range SplitPath(path) {
		if !cur.IsDir() || !fs.allowed(cur, as, perm.Execute) {
			return nil
		}
		next := cur.Child(seg)
		if next == nil {
			return nil
		}
		chain = append(chain, next)
		cur = next
	}
	return chain
}

// rewrite replaces every node along chain with a shallow copy, relinking
// parents to the copied children, and returns the copies. copies[0] is the
// new root. The copies are registered under their (unchanged) ids.
func (fs *FileSystem) rewrite(chain []*Node) []*Node {
	copies := make([]*Node, len(chain))
	for i, n := range chain {
		cp := n.shallowCopy()
		copies[i] = cp
		if i > 0 {
			parent := copies[i-1]
			if idx := parent.childIndex(n.Name); idx >= 0 {
				parent.Children[idx] = cp
			}
		}
		fs.registry.Store(cp.ID, cp)
	}
	return copies
}

// commitLocked swaps in the new root, bumps the generation and fans out the
// event. The persistence callback runs after the event publish.
func (fs *FileSystem) commitLocked(newRoot *Node, ev notify.Event) {
	fs.root = newRoot
	fs.gen.Add(1)
	logger := util.GetLogger("filesystem")
	logger.Debug().Str("kind", ev.Kind).Str("path", ev.Path).Msg("Mutation committed")
	if fs.hub != nil {
		fs.hub.Publish(ev)
	}
	if fs.onChange != nil {
		fs.onChange()
	}
}

// registerSubtree indexes a newly attached subtree.
func (fs *FileSystem) registerSubtree(n *Node) {
	n.Walk(func(node *Node) { fs.registry.Store(node.ID, node) })
}

// purgeSubtree removes a detached subtree from the index and drops any
// trash origin records it carried.
func (fs *FileSystem) purgeSubtree(n *Node) {
	n.Walk(func(node *Node) {
		fs.registry.Delete(node.ID)
		delete(fs.trashOrigins, node.ID)
	})
}

// pathOf reconstructs the absolute path of a resolved chain.
func pathOf(chain []*Node) string {
	if len(chain) <= 1 {
		return "/"
	}
	var b strings.Builder
	for _, n := range chain[1:] {
		b.WriteByte('/')
		b.WriteString(n.Name)
	}
	return b.String()
}

// findChainByID locates a node by id with a depth-first search, returning
// the root..node chain. Used by the by-id move variant, which cannot trust
// a previously resolved path.
func findChainByID(root *Node, id string) []*Node {
	if root.ID == id {
		return []*Node{root}
	}
	for _, c := range root.Children {
		if sub := findChainByID(c, id); sub != nil {
			return append([]*Node{root}, sub...)
		}
	}
	return nil
}

// validName rejects empty names, path separators and the dot entries.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// primaryGroup returns the acting user's primary group name, if resolvable.
func (fs *FileSystem) primaryGroup(as *identity.User) string {
	if as == nil {
		return ""
	}
	if g, ok := fs.ids.GroupByGID(as.GID); ok {
		return g.Name
	}
	return ""
}
