// Package fuse bridges the in-memory tree onto the FUSE wire protocol so
// the sandbox can be browsed with ordinary host tools. The bridge is
// read-only; mutations go through the HTTP surface, and the kernel sees
// each committed generation on its next lookup.
package fuse

import (
	"sync"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/perm"
)

// idMap allocates stable uint64 ids for node uuids. FUSE addresses nodes
// by number; the tree addresses them by uuid. Ids are never reused within
// a mount.
type idMap struct {
	mu     sync.Mutex
	next   uint64
	byUUID map[string]uint64
	byID   map[uint64]string
}

func newIDMap() *idMap {
	return &idMap{
		next:   fuse.FUSE_ROOT_ID + 1,
		byUUID: make(map[string]uint64),
		byID:   make(map[uint64]string),
	}
}

func (m *idMap) id(uuid string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byUUID[uuid]; ok {
		return id
	}
	id := m.next
	m.next++
	m.byUUID[uuid] = id
	m.byID[id] = uuid
	return id
}

func (m *idMap) uuid(id uint64) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	return u, ok
}

func (m *idMap) forget(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		delete(m.byUUID, u)
		delete(m.byID, id)
	}
}

// Raw implements the low-level FUSE wire protocol over the tree.
type Raw struct {
	fuse.RawFileSystem
	fs     *filesystem.FileSystem
	ids    *idMap
	server *fuse.Server
}

func NewRaw(fs *filesystem.FileSystem) *Raw {
	return &Raw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		ids:           newIDMap(),
	}
}

func (r *Raw) Init(s *fuse.Server) {
	logger := util.GetLogger("fuse")
	logger.Debug().Msg("FUSE initialized")
	r.server = s
}

func (r *Raw) OnUnmount() {
	logger := util.GetLogger("fuse")
	logger.Info().Msg("FUSE unmounted")
}

func (r *Raw) String() string {
	return "deskfs"
}

// node resolves a FUSE node id against the current generation. The root id
// always resolves; everything else must have been handed out by Lookup.
func (r *Raw) node(id uint64) *filesystem.Node {
	if id == fuse.FUSE_ROOT_ID {
		return r.fs.Root()
	}
	uuid, ok := r.ids.uuid(id)
	if !ok {
		return nil
	}
	n, ok := r.fs.NodeByID(uuid)
	if !ok {
		return nil
	}
	return n
}

func (r *Raw) fillAttr(n *filesystem.Node, id uint64, out *fuse.Attr) {
	mode := perm.Mode(n.Perms)
	if n.IsDir() {
		mode |= syscall.S_IFDIR
	} else {
		mode |= syscall.S_IFREG
	}
	out.Ino = id
	out.Mode = mode
	out.Size = uint64(n.Size)
	out.Mtime = uint64(n.Modified.Unix())
	out.Ctime = out.Mtime
	out.Nlink = 1
}

// Access lets everything through; the mount is read-only and permissions
// are enforced by the HTTP surface, not the host kernel.
func (r *Raw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	return fuse.OK
}

func (r *Raw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parent := r.node(header.NodeId)
	if parent == nil || !parent.IsDir() {
		return fuse.ENOENT
	}
	child := parent.Child(name)
	if child == nil {
		return fuse.ENOENT
	}

	id := r.ids.id(child.ID)
	out.NodeId = id
	r.fillAttr(child, id, &out.Attr)
	out.SetAttrTimeout(1)
	out.SetEntryTimeout(1)
	return fuse.OK
}

func (r *Raw) Forget(nodeid, nlookup uint64) {
	if nodeid != fuse.FUSE_ROOT_ID {
		r.ids.forget(nodeid)
	}
}

func (r *Raw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	n := r.node(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}
	r.fillAttr(n, input.NodeId, &out.Attr)
	return fuse.OK
}

func (r *Raw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n := r.node(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}
	if !n.IsDir() {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

func (r *Raw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	n := r.node(input.NodeId)
	if n == nil || !n.IsDir() {
		return fuse.ENOTDIR
	}

	entries := []fuse.DirEntry{
		{Name: ".", Mode: syscall.S_IFDIR, Ino: input.NodeId},
		{Name: "..", Mode: syscall.S_IFDIR, Ino: input.NodeId},
	}
	for _, c := range n.Children {
		mode := uint32(syscall.S_IFREG)
		if c.IsDir() {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: c.Name, Mode: mode, Ino: r.ids.id(c.ID)})
	}

	for i := int(input.Offset); i < len(entries); i++ {
		if !out.AddDirEntry(entries[i]) {
			break
		}
	}
	return fuse.OK
}

func (r *Raw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	n := r.node(input.NodeId)
	if n == nil {
		return fuse.ENOENT
	}
	if n.IsDir() {
		return fuse.Status(syscall.EISDIR)
	}
	if input.Flags&uint32(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return fuse.EROFS
	}
	return fuse.OK
}

func (r *Raw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	n := r.node(input.NodeId)
	if n == nil || n.IsDir() {
		return nil, fuse.ENOENT
	}

	content := []byte(n.Content)
	off := int(input.Offset)
	if off >= len(content) {
		return fuse.ReadResultData(nil), fuse.OK
	}
	end := off + len(buf)
	if end > len(content) {
		end = len(content)
	}
	return fuse.ReadResultData(content[off:end]), fuse.OK
}
