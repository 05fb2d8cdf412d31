package filesystem

import (
	"fmt"
	"strings"

	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/notify"
)

// TrashDirName is the per-user trash directory under the home directory.
const TrashDirName = ".Trash"

// TrashPath returns the acting user's trash directory path.
func TrashPath(as *identity.User) string {
	return JoinPath(as.HomeDir, TrashDirName)
}

// MoveToTrash soft-deletes a node into the acting user's trash, renaming on
// collision. A node already inside the trash is deleted permanently instead,
// so trashing can never nest.
func (fs *FileSystem) MoveToTrash(path string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	if as == nil {
		return ErrDenied
	}

	trash := TrashPath(as)
	if path == trash || strings.HasPrefix(path, trash+"/") {
		return fs.deleteLocked(path, as)
	}

	srcChain := fs.walkFrom(fs.root, path, as)
	if srcChain == nil || len(srcChain) < 2 {
		return ErrDenied
	}
	src := srcChain[len(srcChain)-1]
	parentPath, _ := ParentPath(path)

	fs.ensureTrashLocked(as)
	// resolve again: ensureTrashLocked may have swapped the root
	srcChain = fs.walkFrom(fs.root, path, as)
	if srcChain == nil {
		return ErrDenied
	}

	trashDir := fs.walkFrom(fs.root, trash, nil)
	name := uniqueChildName(trashDir[len(trashDir)-1], src.Name)

	if err := fs.moveLocked(srcChain, trash, name, as); err != nil {
		return err
	}
	fs.trashOrigins[src.ID] = parentPath
	return nil
}

// RestoreFromTrash moves a trash entry back to its recorded origin, falling
// back to the home directory when the origin no longer exists.
func (fs *FileSystem) RestoreFromTrash(name string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	if as == nil {
		return ErrDenied
	}

	trash := TrashPath(as)
	chain := fs.walkFrom(fs.root, JoinPath(trash, name), as)
	if chain == nil {
		return ErrDenied
	}
	entry := chain[len(chain)-1]

	dest := fs.trashOrigins[entry.ID]
	if dest == "" {
		dest = as.HomeDir
	}
	if target := fs.walkFrom(fs.root, dest, nil); target == nil || !target[len(target)-1].IsDir() {
		dest = as.HomeDir
	}

	if err := fs.moveLocked(chain, dest, "", as); err != nil {
		return err
	}
	delete(fs.trashOrigins, entry.ID)
	return nil
}

// EmptyTrash drops every entry in the acting user's trash unconditionally.
func (fs *FileSystem) EmptyTrash(as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	if as == nil {
		return ErrDenied
	}

	trash := TrashPath(as)
	chain := fs.walkFrom(fs.root, trash, as)
	if chain == nil {
		return ErrDenied
	}
	dir := chain[len(chain)-1]

	copies := fs.rewrite(chain)
	cp := copies[len(copies)-1]
	for _, c := range dir.Children {
		fs.purgeSubtree(c)
	}
	cp.Children = []*Node{}
	cp.Modified = fs.now()

	fs.commitLocked(copies[0], notify.Event{Kind: "trash", Path: trash, Message: "trash emptied"})
	return nil
}

// ensureTrashLocked creates the user's trash directory if missing. The
// directory is private to its owner.
func (fs *FileSystem) ensureTrashLocked(as *identity.User) {
	trash := TrashPath(as)
	if fs.walkFrom(fs.root, trash, nil) != nil {
		return
	}
	home := fs.walkFrom(fs.root, as.HomeDir, nil)
	if home == nil {
		return
	}
	copies := fs.rewrite(home)
	dir := NewDir(TrashDirName, as.Username, fs.primaryGroup(as), fs.now())
	dir.Perms = "drwx------"
	homeCp := copies[len(copies)-1]
	homeCp.Children = append(homeCp.Children, dir)
	fs.registerSubtree(dir)
	fs.commitLocked(copies[0], notify.Event{Kind: "create", Path: trash})
}

// uniqueChildName appends an incrementing counter before the extension
// until the name is free in dir: "notes.txt" -> "notes (1).txt".
func uniqueChildName(dir *Node, name string) string {
	if dir.Child(name) == nil {
		return name
	}
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i:]
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if dir.Child(candidate) == nil {
			return candidate
		}
	}
}
