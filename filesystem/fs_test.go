package filesystem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskfs/deskfs/identity"
)

var testTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestFS builds a small multi-user tree:
//
//	/etc/passwd, /etc/group      (generated from the store)
//	/home/alice                  alice's home with Documents/notes.txt
//	/home/alice/Private          drwx------ with secret.txt
//	/home/bob                    bob's home
//	/tmp                         drwxrwxrwt
func newTestFS(t *testing.T) (*FileSystem, map[string]*identity.User) {
	t.Helper()

	ids := identity.NewStore("root")
	users := map[string]*identity.User{
		"root":  {Username: "root", Password: "root", UID: 0, GID: 0, FullName: "root", HomeDir: "/root", Shell: "/bin/sh"},
		"alice": {Username: "alice", Password: "alice", UID: 1000, GID: 1000, FullName: "Alice", HomeDir: "/home/alice", Shell: "/bin/sh"},
		"bob":   {Username: "bob", Password: "bob", UID: 1001, GID: 1001, FullName: "Bob", HomeDir: "/home/bob", Shell: "/bin/sh"},
	}
	ids.SetUsers([]*identity.User{users["root"], users["alice"], users["bob"]})
	ids.SetGroups([]*identity.Group{
		{Name: "root", Password: "x", GID: 0, Members: []string{"root"}},
		{Name: "alice", Password: "x", GID: 1000, Members: []string{"alice"}},
		{Name: "bob", Password: "x", GID: 1001, Members: []string{"bob"}},
		{Name: "staff", Password: "x", GID: 2000, Members: []string{"alice", "bob"}},
	})

	root := NewDir("/", "root", "root", testTime)

	home := NewDir("home", "root", "root", testTime)
	alice := NewDir("alice", "alice", "alice", testTime)
	docs := NewDir("Documents", "alice", "alice", testTime)
	docs.Children = append(docs.Children, NewFile("notes.txt", "meeting at noon", "alice", "alice", testTime))
	private := NewDir("Private", "alice", "alice", testTime)
	private.Perms = "drwx------"
	private.Children = append(private.Children, NewFile("secret.txt", "hunter2", "alice", "alice", testTime))
	alice.Children = append(alice.Children, docs, private)

	bob := NewDir("bob", "bob", "bob", testTime)
	home.Children = append(home.Children, alice, bob)

	tmp := NewDir("tmp", "root", "root", testTime)
	tmp.Perms = "drwxrwxrwt"

	root.Children = append(root.Children, home, tmp)

	fs := New(root, ids)
	fs.SyncIdentityFiles()
	return fs, users
}

func TestReadFile(t *testing.T) {
	fs, users := newTestFS(t)

	content, ok := fs.ReadFile("/home/alice/Documents/notes.txt", users["alice"])
	require.True(t, ok)
	assert.Equal(t, "meeting at noon", content)

	// world-readable, so bob can read it too
	_, ok = fs.ReadFile("/home/alice/Documents/notes.txt", users["bob"])
	assert.True(t, ok)

	// missing and unreadable look identical to the caller
	_, ok = fs.ReadFile("/home/alice/Documents/nope.txt", users["bob"])
	assert.False(t, ok)
	_, ok = fs.ReadFile("/home/alice/Private/secret.txt", users["bob"])
	assert.False(t, ok)

	// root bypasses the private directory
	content, ok = fs.ReadFile("/home/alice/Private/secret.txt", users["root"])
	require.True(t, ok)
	assert.Equal(t, "hunter2", content)
}

func TestListDirectory(t *testing.T) {
	fs, users := newTestFS(t)

	entries := fs.ListDirectory("/home/alice", users["alice"])
	require.NotNil(t, entries)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	assert.ElementsMatch(t, []string{"Documents", "Private"}, names)

	assert.Nil(t, fs.ListDirectory("/home/alice/Private", users["bob"]))
	assert.Nil(t, fs.ListDirectory("/does/not/exist", users["alice"]))
}

func TestWriteFileCopiesPathOnly(t *testing.T) {
	fs, users := newTestFS(t)

	oldRoot := fs.Root()
	oldGen := fs.Generation()
	oldBob := Lookup(oldRoot, "/home/bob")
	oldDocs := Lookup(oldRoot, "/home/alice/Documents")
	oldNotes := Lookup(oldRoot, "/home/alice/Documents/notes.txt")

	require.NoError(t, fs.WriteFile("/home/alice/Documents/notes.txt", "rescheduled", users["alice"]))

	newRoot := fs.Root()
	assert.NotSame(t, oldRoot, newRoot)
	assert.Equal(t, oldGen+1, fs.Generation())

	// untouched branches share the exact same nodes
	assert.Same(t, oldBob, Lookup(newRoot, "/home/bob"))

	// the written chain is fresh copies with stable ids
	newDocs := Lookup(newRoot, "/home/alice/Documents")
	newNotes := Lookup(newRoot, "/home/alice/Documents/notes.txt")
	assert.NotSame(t, oldDocs, newDocs)
	assert.NotSame(t, oldNotes, newNotes)
	assert.Equal(t, oldNotes.ID, newNotes.ID)
	assert.Equal(t, "rescheduled", newNotes.Content)
	assert.Equal(t, len("rescheduled"), newNotes.Size)

	// the old snapshot still reads the old content
	assert.Equal(t, "meeting at noon", oldNotes.Content)
}

func TestAppendFile(t *testing.T) {
	fs, users := newTestFS(t)

	require.NoError(t, fs.AppendFile("/home/alice/Documents/notes.txt", ", bring slides", users["alice"]))

	got, ok := fs.ReadFile("/home/alice/Documents/notes.txt", users["alice"])
	require.True(t, ok)
	assert.Equal(t, "meeting at noon, bring slides", got)

	n := fs.GetNode("/home/alice/Documents/notes.txt", users["alice"])
	require.NotNil(t, n)
	assert.Equal(t, len(got), n.Size)

	assert.ErrorIs(t, fs.AppendFile("/home/alice/Documents/notes.txt", "x", users["bob"]), ErrDenied)
}

func TestWriteFileDenied(t *testing.T) {
	fs, users := newTestFS(t)

	gen := fs.Generation()
	err := fs.WriteFile("/home/alice/Documents/notes.txt", "graffiti", users["bob"])
	assert.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, gen, fs.Generation(), "denied write must not commit")

	// writing a directory is denied, not a crash
	assert.ErrorIs(t, fs.WriteFile("/home/alice/Documents", "x", users["alice"]), ErrDenied)
}

func TestCreateFileAndConflict(t *testing.T) {
	fs, users := newTestFS(t)

	n, err := fs.CreateFile("/home/alice/Documents", "todo.txt", "buy milk", users["alice"])
	require.NoError(t, err)
	assert.Equal(t, "alice", n.Owner)
	assert.Equal(t, "alice", n.Group)

	_, err = fs.CreateFile("/home/alice/Documents", "todo.txt", "again", users["alice"])
	assert.ErrorIs(t, err, ErrConflict)

	// same name as a directory is a conflict too
	_, err = fs.CreateDirectory("/home/alice", "Documents", users["alice"])
	assert.ErrorIs(t, err, ErrConflict)

	// bob cannot create in alice's home
	_, err = fs.CreateFile("/home/alice", "spam.txt", "", users["bob"])
	assert.ErrorIs(t, err, ErrDenied)
}

func TestCreateRejectsBadNames(t *testing.T) {
	fs, users := newTestFS(t)

	for _, name := range []string{"", ".", "..", "a/b"} {
		_, err := fs.CreateFile("/home/alice", name, "", users["alice"])
		assert.ErrorIs(t, err, ErrMalformed, "name %q", name)
	}
}

func TestDeleteNode(t *testing.T) {
	fs, users := newTestFS(t)

	require.NoError(t, fs.DeleteNode("/home/alice/Documents/notes.txt", users["alice"]))
	assert.Nil(t, fs.GetNode("/home/alice/Documents/notes.txt", users["root"]))

	// subtree delete purges the registry
	docs := fs.GetNode("/home/alice/Documents", users["alice"])
	require.NoError(t, fs.DeleteNode("/home/alice/Documents", users["alice"]))
	_, ok := fs.NodeByID(docs.ID)
	assert.False(t, ok)

	// bob cannot delete alice's directories
	assert.ErrorIs(t, fs.DeleteNode("/home/alice/Private", users["bob"]), ErrDenied)
}

func TestStickyDirectory(t *testing.T) {
	fs, users := newTestFS(t)

	_, err := fs.CreateFile("/tmp", "scratch.txt", "alice was here", users["alice"])
	require.NoError(t, err)

	// /tmp is world-writable but sticky: bob cannot remove alice's file
	assert.ErrorIs(t, fs.DeleteNode("/tmp/scratch.txt", users["bob"]), ErrDenied)
	assert.ErrorIs(t, fs.MoveNode("/tmp/scratch.txt", "/home/bob", users["bob"]), ErrDenied)

	// the owner and root can
	require.NoError(t, fs.DeleteNode("/tmp/scratch.txt", users["alice"]))
	_, err = fs.CreateFile("/tmp", "scratch.txt", "", users["alice"])
	require.NoError(t, err)
	require.NoError(t, fs.DeleteNode("/tmp/scratch.txt", users["root"]))
}

func TestMoveNode(t *testing.T) {
	fs, users := newTestFS(t)

	notes := fs.GetNode("/home/alice/Documents/notes.txt", users["alice"])
	require.NoError(t, fs.MoveNode("/home/alice/Documents/notes.txt", "/home/alice", users["alice"]))

	moved := fs.GetNode("/home/alice/notes.txt", users["alice"])
	require.NotNil(t, moved)
	assert.Equal(t, notes.ID, moved.ID, "id survives the move")
	assert.Nil(t, fs.GetNode("/home/alice/Documents/notes.txt", users["alice"]))

	// destination conflict
	_, err := fs.CreateFile("/home/alice/Documents", "notes.txt", "other", users["alice"])
	require.NoError(t, err)
	assert.ErrorIs(t, fs.MoveNode("/home/alice/notes.txt", "/home/alice/Documents", users["alice"]), ErrConflict)
}

func TestMoveIntoOwnSubtree(t *testing.T) {
	fs, users := newTestFS(t)

	_, err := fs.CreateDirectory("/home/alice/Documents", "inner", users["alice"])
	require.NoError(t, err)
	_, err = fs.CreateDirectory("/home/alice/Documents/inner", "deeper", users["alice"])
	require.NoError(t, err)

	assert.ErrorIs(t, fs.MoveNode("/home/alice/Documents", "/home/alice/Documents/inner", users["alice"]), ErrConflict)
	assert.ErrorIs(t, fs.MoveNode("/home/alice/Documents", "/home/alice/Documents/inner/deeper", users["alice"]), ErrConflict)
	assert.ErrorIs(t, fs.MoveNode("/home/alice/Documents", "/home/alice/Documents", users["alice"]), ErrConflict)

	// sibling with a shared name prefix is not a subtree
	_, err = fs.CreateDirectory("/home/alice", "Documents2", users["alice"])
	require.NoError(t, err)
	assert.NoError(t, fs.MoveNode("/home/alice/Documents/inner", "/home/alice/Documents2", users["alice"]))
}

func TestMoveNodeByID(t *testing.T) {
	fs, users := newTestFS(t)

	notes := fs.GetNode("/home/alice/Documents/notes.txt", users["alice"])
	require.NoError(t, fs.MoveNodeByID(notes.ID, "/home/bob", users["root"]))
	assert.NotNil(t, fs.GetNode("/home/bob/notes.txt", users["root"]))

	assert.ErrorIs(t, fs.MoveNodeByID("no-such-id", "/home/bob", users["root"]), ErrDenied)
}

func TestCopyNode(t *testing.T) {
	fs, users := newTestFS(t)

	copied, err := fs.CopyNode("/home/alice/Documents", "/home/bob", users["root"])
	require.NoError(t, err)

	orig := fs.GetNode("/home/alice/Documents", users["root"])
	assert.NotNil(t, orig, "source survives a copy")
	assert.NotEqual(t, orig.ID, copied.ID, "copies get fresh ids")
	assert.Equal(t, "root", copied.Owner, "copies belong to the actor")

	content, ok := fs.ReadFile("/home/bob/Documents/notes.txt", users["root"])
	require.True(t, ok)
	assert.Equal(t, "meeting at noon", content)
}

func TestChmod(t *testing.T) {
	fs, users := newTestFS(t)
	const path = "/home/alice/Documents/notes.txt"

	require.NoError(t, fs.Chmod(path, "600", users["alice"]))
	assert.Equal(t, "-rw-------", fs.GetNode(path, users["alice"]).Perms)
	_, ok := fs.ReadFile(path, users["bob"])
	assert.False(t, ok, "bob lost read access")

	// symbolic form
	require.NoError(t, fs.Chmod(path, "-rw-r--r--", users["alice"]))
	_, ok = fs.ReadFile(path, users["bob"])
	assert.True(t, ok)

	// only owner or root
	assert.ErrorIs(t, fs.Chmod(path, "777", users["bob"]), ErrDenied)

	// malformed modes
	assert.ErrorIs(t, fs.Chmod(path, "abc", users["alice"]), ErrMalformed)
	assert.ErrorIs(t, fs.Chmod(path, "drwxr-xr-x", users["alice"]), ErrMalformed, "type flag must match the node")
}

func TestChmodPreservesSticky(t *testing.T) {
	fs, users := newTestFS(t)

	require.NoError(t, fs.Chmod("/tmp", "755", users["root"]))
	assert.Equal(t, "drwxr-xr-t", fs.GetNode("/tmp", users["root"]).Perms)
}

func TestChown(t *testing.T) {
	fs, users := newTestFS(t)
	const path = "/home/alice/Documents/notes.txt"

	assert.ErrorIs(t, fs.Chown(path, "bob", "", users["alice"]), ErrDenied)

	require.NoError(t, fs.Chown(path, "bob", "", users["root"]))
	n := fs.GetNode(path, users["root"])
	assert.Equal(t, "bob", n.Owner)
	assert.Equal(t, "alice", n.Group, "group untouched when empty")

	require.NoError(t, fs.Chown(path, "bob", "staff", users["root"]))
	assert.Equal(t, "staff", fs.GetNode(path, users["root"]).Group)
}

func TestReadOnlyGate(t *testing.T) {
	fs, users := newTestFS(t)
	fs.SetReadOnly(true)

	assert.ErrorIs(t, fs.WriteFile("/home/alice/Documents/notes.txt", "x", users["alice"]), ErrReadOnly)
	_, err := fs.CreateFile("/home/alice", "x.txt", "", users["alice"])
	assert.ErrorIs(t, err, ErrReadOnly)
	assert.ErrorIs(t, fs.DeleteNode("/home/alice/Documents/notes.txt", users["root"]), ErrReadOnly)
	assert.ErrorIs(t, fs.MoveNode("/home/alice/Documents/notes.txt", "/tmp", users["root"]), ErrReadOnly)

	// reads still work
	_, ok := fs.ReadFile("/home/alice/Documents/notes.txt", users["alice"])
	assert.True(t, ok)
}

func TestOnChangeFiresPerCommit(t *testing.T) {
	fs, users := newTestFS(t)

	changes := 0
	fs.OnChange(func() { changes++ })

	require.NoError(t, fs.WriteFile("/home/alice/Documents/notes.txt", "a", users["alice"]))
	_, err := fs.CreateFile("/home/alice", "b.txt", "", users["alice"])
	require.NoError(t, err)
	assert.Equal(t, 2, changes)

	// a denied operation does not fire
	fs.WriteFile("/home/alice/b.txt", "x", users["bob"]) // nolint:errcheck
	assert.Equal(t, 2, changes)
}
