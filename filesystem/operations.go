package filesystem

import (
	"strings"

	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/notify"
	"github.com/deskfs/deskfs/perm"
)

// WriteFile replaces a file's content, updating size and modified time.
// Writing the identity files re-parses them into the identity store.
func (fs *FileSystem) WriteFile(path, content string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}

	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return ErrDenied
	}
	leaf := chain[len(chain)-1]
	if leaf.IsDir() || !fs.allowed(leaf, as, perm.Write) {
		return ErrDenied
	}

	copies := fs.rewrite(chain)
	cp := copies[len(copies)-1]
	cp.Content = content
	cp.Size = len(content)
	cp.Modified = fs.now()

	fs.commitLocked(copies[0], notify.Event{Kind: "write", Path: path})

	if path == PasswdPath || path == GroupPath {
		fs.ingestIdentity(path, content)
	}
	return nil
}

// AppendFile appends to a file's content under the same checks as WriteFile.
func (fs *FileSystem) AppendFile(path, content string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}

	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return ErrDenied
	}
	leaf := chain[len(chain)-1]
	if leaf.IsDir() || !fs.allowed(leaf, as, perm.Write) {
		return ErrDenied
	}

	copies := fs.rewrite(chain)
	cp := copies[len(copies)-1]
	cp.Content += content
	cp.Size = len(cp.Content)
	cp.Modified = fs.now()

	fs.commitLocked(copies[0], notify.Event{Kind: "write", Path: path})

	if path == PasswdPath || path == GroupPath {
		fs.ingestIdentity(path, cp.Content)
	}
	return nil
}

// CreateFile creates a file under dirPath owned by the acting user.
// Fails when a sibling with the name already exists; create never overwrites.
func (fs *FileSystem) CreateFile(dirPath, name, content string, as *identity.User) (*Node, error) {
	return fs.createNode(dirPath, name, as, func() *Node {
		n := NewFile(name, content, actorName(as), fs.primaryGroup(as), fs.now())
		return n
	})
}

// CreateDirectory creates an empty directory under dirPath.
func (fs *FileSystem) CreateDirectory(dirPath, name string, as *identity.User) (*Node, error) {
	return fs.createNode(dirPath, name, as, func() *Node {
		return NewDir(name, actorName(as), fs.primaryGroup(as), fs.now())
	})
}

func (fs *FileSystem) createNode(dirPath, name string, as *identity.User, build func() *Node) (*Node, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return nil, ErrReadOnly
	}
	if !validName(name) {
		return nil, ErrMalformed
	}

	chain := fs.walkFrom(fs.root, dirPath, as)
	if chain == nil {
		return nil, ErrDenied
	}
	dir := chain[len(chain)-1]
	if !dir.IsDir() || !fs.allowed(dir, as, perm.Write) {
		return nil, ErrDenied
	}
	if dir.Child(name) != nil {
		return nil, ErrConflict
	}

	copies := fs.rewrite(chain)
	node := build()
	dirCp := copies[len(copies)-1]
	dirCp.Children = append(dirCp.Children, node)
	dirCp.Modified = fs.now()
	fs.registerSubtree(node)

	fs.commitLocked(copies[0], notify.Event{Kind: "create", Path: JoinPath(dirPath, name)})
	return node, nil
}

// DeleteNode permanently removes a node and its subtree. Requires write on
// the parent; in a sticky directory only root, the node's owner or the
// directory's owner may delete.
func (fs *FileSystem) DeleteNode(path string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	return fs.deleteLocked(path, as)
}

func (fs *FileSystem) deleteLocked(path string, as *identity.User) error {
	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil || len(chain) < 2 {
		return ErrDenied
	}
	leaf := chain[len(chain)-1]
	parent := chain[len(chain)-2]
	if !fs.allowed(parent, as, perm.Write) || !fs.stickyAllows(parent, leaf, as) {
		return ErrDenied
	}

	copies := fs.rewrite(chain[:len(chain)-1])
	parentCp := copies[len(copies)-1]
	idx := parentCp.childIndex(leaf.Name)
	parentCp.Children = append(parentCp.Children[:idx], parentCp.Children[idx+1:]...)
	parentCp.Modified = fs.now()
	fs.purgeSubtree(leaf)

	fs.commitLocked(copies[0], notify.Event{Kind: "delete", Path: path})
	return nil
}

// MoveNode relocates the node at fromPath into the destDir directory.
// Rejected when the destination holds a same-named child, equals the source
// or lies inside the source subtree.
func (fs *FileSystem) MoveNode(fromPath, destDir string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}

	srcChain := fs.walkFrom(fs.root, fromPath, as)
	if srcChain == nil || len(srcChain) < 2 {
		return ErrDenied
	}
	return fs.moveLocked(srcChain, destDir, "", as)
}

// MoveNodeByID relocates a node found by id. The node is located with a
// fresh traversal since it may have moved since the caller resolved a path.
func (fs *FileSystem) MoveNodeByID(id, destDir string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}

	srcChain := findChainByID(fs.root, id)
	if srcChain == nil || len(srcChain) < 2 {
		return ErrDenied
	}
	// by-id lookups still honor traversal permissions for the actor
	if fs.walkFrom(fs.root, pathOf(srcChain), as) == nil {
		return ErrDenied
	}
	return fs.moveLocked(srcChain, destDir, "", as)
}

// moveLocked validates and performs the detach/attach. rename, when set,
// gives the node a new name at the destination (trash collision handling).
func (fs *FileSystem) moveLocked(srcChain []*Node, destDir, rename string, as *identity.User) error {
	src := srcChain[len(srcChain)-1]
	srcParent := srcChain[len(srcChain)-2]
	fromPath := pathOf(srcChain)

	if destDir == fromPath || strings.HasPrefix(destDir+"/", fromPath+"/") {
		return ErrConflict
	}
	if !fs.allowed(srcParent, as, perm.Write) || !fs.stickyAllows(srcParent, src, as) {
		return ErrDenied
	}

	destChain := fs.walkFrom(fs.root, destDir, as)
	if destChain == nil {
		return ErrDenied
	}
	dest := destChain[len(destChain)-1]
	if !dest.IsDir() || !fs.allowed(dest, as, perm.Write) {
		return ErrDenied
	}

	name := src.Name
	if rename != "" {
		name = rename
	}
	if dest.Child(name) != nil {
		return ErrConflict
	}

	// Detach from the copied source parent, then attach under the copied
	// destination resolved against the new root.
	copies := fs.rewrite(srcChain[:len(srcChain)-1])
	parentCp := copies[len(copies)-1]
	idx := parentCp.childIndex(src.Name)
	parentCp.Children = append(parentCp.Children[:idx], parentCp.Children[idx+1:]...)
	parentCp.Modified = fs.now()

	newDestChain := fs.walkFrom(copies[0], destDir, nil)
	destCopies := fs.rewrite(newDestChain)
	destCp := destCopies[len(destCopies)-1]

	moved := src
	if name != src.Name {
		moved = src.shallowCopy()
		moved.Name = name
		fs.registry.Store(moved.ID, moved)
	}
	destCp.Children = append(destCp.Children, moved)
	destCp.Modified = fs.now()

	fs.commitLocked(destCopies[0], notify.Event{Kind: "move", Path: JoinPath(destDir, name), Message: "moved from " + fromPath})
	return nil
}

// CopyNode clones the node at fromPath (fresh ids throughout) into destDir.
func (fs *FileSystem) CopyNode(fromPath, destDir string, as *identity.User) (*Node, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return nil, ErrReadOnly
	}

	srcChain := fs.walkFrom(fs.root, fromPath, as)
	if srcChain == nil || len(srcChain) < 2 {
		return nil, ErrDenied
	}
	src := srcChain[len(srcChain)-1]
	if !fs.allowed(src, as, perm.Read) {
		return nil, ErrDenied
	}

	destChain := fs.walkFrom(fs.root, destDir, as)
	if destChain == nil {
		return nil, ErrDenied
	}
	dest := destChain[len(destChain)-1]
	if !dest.IsDir() || !fs.allowed(dest, as, perm.Write) {
		return nil, ErrDenied
	}
	if dest.Child(src.Name) != nil {
		return nil, ErrConflict
	}

	clone := src.CloneFresh()
	clone.Owner = actorName(as)
	clone.Modified = fs.now()

	copies := fs.rewrite(destChain)
	destCp := copies[len(copies)-1]
	destCp.Children = append(destCp.Children, clone)
	destCp.Modified = fs.now()
	fs.registerSubtree(clone)

	fs.commitLocked(copies[0], notify.Event{Kind: "copy", Path: JoinPath(destDir, clone.Name), Message: "copied from " + fromPath})
	return clone, nil
}

// Chmod sets permission bits from a 3-digit octal mode or a literal
// 10-character symbolic string. Only the owner or root may invoke it; the
// type flag and sticky marker survive octal modes.
func (fs *FileSystem) Chmod(path, mode string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}

	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return ErrDenied
	}
	leaf := chain[len(chain)-1]
	if as != nil && as.Username != perm.RootUser && as.Username != leaf.Owner {
		return ErrDenied
	}

	var perms string
	if p, ok := perm.FromOctal(mode, leaf.Perms); ok {
		perms = p
	} else if perm.Valid(mode) && (mode[0] == 'd') == leaf.IsDir() {
		perms = mode
	} else {
		return ErrMalformed
	}

	copies := fs.rewrite(chain)
	cp := copies[len(copies)-1]
	cp.Perms = perms
	cp.Modified = fs.now()

	fs.commitLocked(copies[0], notify.Event{Kind: "chmod", Path: path, Message: perms})
	return nil
}

// Chown reassigns owner and optionally group. Root only; permission bits
// are untouched.
func (fs *FileSystem) Chown(path, owner, group string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	if as == nil || as.Username != perm.RootUser {
		return ErrDenied
	}

	chain := fs.walkFrom(fs.root, path, as)
	if chain == nil {
		return ErrDenied
	}

	copies := fs.rewrite(chain)
	cp := copies[len(copies)-1]
	cp.Owner = owner
	if group != "" {
		cp.Group = group
	}

	fs.commitLocked(copies[0], notify.Event{Kind: "chown", Path: path, Message: owner})
	return nil
}

// stickyAllows applies the sticky-bit deletion constraint: inside a sticky
// directory only root, the entry's owner or the directory's owner may
// remove an entry.
func (fs *FileSystem) stickyAllows(dir, entry *Node, as *identity.User) bool {
	if !perm.Sticky(dir.Perms) || as == nil {
		return true
	}
	return as.Username == perm.RootUser || as.Username == entry.Owner || as.Username == dir.Owner
}

func actorName(as *identity.User) string {
	if as == nil {
		return perm.RootUser
	}
	return as.Username
}
