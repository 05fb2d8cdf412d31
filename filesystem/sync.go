package filesystem

import (
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/notify"
)

// ingestIdentity re-parses a directly written identity file into the store.
// Parse failures leave the in-memory records untouched; the system falls
// back to last-known state rather than crash. A write whose parsed form
// matches the current records is a no-op, which breaks the sync loop.
func (fs *FileSystem) ingestIdentity(path, content string) {
	logger := util.GetLogger("identity-sync")

	switch path {
	case PasswdPath:
		users, err := identity.ParsePasswd(content)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Ignoring malformed identity file write")
			return
		}
		if identity.FormatPasswd(users) == fs.ids.PasswdText() {
			return
		}
		fs.ids.SetUsers(users)
	case GroupPath:
		groups, err := identity.ParseGroup(content)
		if err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Ignoring malformed identity file write")
			return
		}
		if identity.FormatGroup(groups) == fs.ids.GroupText() {
			return
		}
		fs.ids.SetGroups(groups)
	default:
		return
	}

	logger.Info().Str("path", path).Msg("Identity records reloaded from file write")
	if fs.hub != nil {
		fs.hub.Publish(notify.Event{Kind: "identity", Path: path, Message: "identity records reloaded"})
	}
}

// syncIdentityFilesLocked regenerates /etc/passwd and /etc/group from the
// store. A file whose content already matches is left alone, including its
// modified time, so the write-through can never oscillate with ingest.
func (fs *FileSystem) syncIdentityFilesLocked() {
	fs.syncIdentityFileLocked(PasswdPath, fs.ids.PasswdText())
	fs.syncIdentityFileLocked(GroupPath, fs.ids.GroupText())
}

func (fs *FileSystem) syncIdentityFileLocked(path, text string) {
	chain := fs.walkFrom(fs.root, path, nil)
	if chain == nil {
		// the file node is missing entirely; recreate it under /etc
		_, etcChain := fs.ensureDirLocked(fs.root, "/etc", "root", "root", "drwxr-xr-x")
		if etcChain == nil {
			logger := util.GetLogger("identity-sync")
			logger.Error().Str("path", path).Msg("Cannot recreate identity file, /etc is not a directory")
			return
		}
		file := NewFile(fileName(path), text, "root", "root", fs.now())
		copies := fs.rewrite(etcChain)
		etcCp := copies[len(copies)-1]
		etcCp.Children = append(etcCp.Children, file)
		fs.registerSubtree(file)
		fs.commitLocked(copies[0], notify.Event{Kind: "identity", Path: path})
		return
	}

	if chain[len(chain)-1].Content == text {
		return
	}

	copies := fs.rewrite(chain)
	cp := copies[len(copies)-1]
	cp.Content = text
	cp.Size = len(text)
	cp.Modified = fs.now()
	fs.commitLocked(copies[0], notify.Event{Kind: "identity", Path: path})
}

// SyncIdentityFiles regenerates the identity file nodes from the store.
// Called once at boot after migration, and by tests.
func (fs *FileSystem) SyncIdentityFiles() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.syncIdentityFilesLocked()
}

// ensureDirLocked guarantees that path exists as a directory chain, creating
// any missing segments with the given ownership and permissions. Returns the
// (possibly new) root and the full chain to the directory; the chain is nil
// when a file blocks the path.
func (fs *FileSystem) ensureDirLocked(root *Node, path, owner, group, perms string) (*Node, []*Node) {
	for {
		if chain := fs.walkFrom(root, path, nil); chain != nil {
			if !chain[len(chain)-1].IsDir() {
				logger := util.GetLogger("filesystem")
				logger.Error().Str("path", path).Msg("Cannot create directory, path blocked by a file")
				return root, nil
			}
			return root, chain
		}

		// extend the deepest existing prefix by one segment
		segs := SplitPath(path)
		cur := root
		chain := []*Node{root}
		for _, seg := range segs {
			next := cur.Child(seg)
			if next != nil && !next.IsDir() {
				logger := util.GetLogger("filesystem")
				logger.Error().Str("path", path).Str("segment", seg).Msg("Cannot create directory, path blocked by a file")
				return root, nil
			}
			if next == nil {
				copies := fs.rewrite(chain)
				dir := NewDir(seg, owner, group, fs.now())
				dir.Perms = perms
				cp := copies[len(copies)-1]
				cp.Children = append(cp.Children, dir)
				fs.registerSubtree(dir)
				root = copies[0]
				break
			}
			chain = append(chain, next)
			cur = next
		}
	}
}

func fileName(path string) string {
	_, name := ParentPath(path)
	return name
}
