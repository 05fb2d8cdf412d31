package filesystem

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskfs/deskfs/identity"
)

func TestAddUser(t *testing.T) {
	fs, users := newTestFS(t)

	u, err := fs.AddUser("carol", "Carol", "s3cret", users["root"])
	require.NoError(t, err)
	assert.Equal(t, 1002, u.UID, "one above the current maximum")
	assert.Equal(t, "/home/carol", u.HomeDir)

	// home materialized with the default folders and a private trash
	home := fs.GetNode("/home/carol", users["root"])
	require.NotNil(t, home)
	assert.Equal(t, "carol", home.Owner)
	for _, folder := range WellKnownFolders {
		assert.NotNil(t, fs.GetNode("/home/carol/"+folder, users["root"]), folder)
	}
	trash := fs.GetNode("/home/carol/.Trash", users["root"])
	require.NotNil(t, trash)
	assert.Equal(t, "drwx------", trash.Perms)

	// passwd file regenerated with the new record
	passwd, ok := fs.ReadFile(PasswdPath, users["root"])
	require.True(t, ok)
	assert.Contains(t, passwd, "carol:s3cret:1002:1002:Carol:/home/carol:/bin/sh")

	// same-named primary group appears in /etc/group
	group, ok := fs.ReadFile(GroupPath, users["root"])
	require.True(t, ok)
	assert.Contains(t, group, "carol:x:1002:carol")
}

func TestAddUserRequiresRoot(t *testing.T) {
	fs, users := newTestFS(t)

	_, err := fs.AddUser("carol", "", "", users["alice"])
	assert.ErrorIs(t, err, ErrDenied)

	_, err = fs.AddUser("alice", "", "", users["root"])
	assert.ErrorIs(t, err, identity.ErrExists)
}

func TestDeleteUserKeepsFiles(t *testing.T) {
	fs, users := newTestFS(t)

	require.NoError(t, fs.DeleteUser("bob", users["root"]))

	passwd, _ := fs.ReadFile(PasswdPath, users["root"])
	assert.NotContains(t, passwd, "bob:")

	// bob's home stays behind, orphaned
	home := fs.GetNode("/home/bob", users["root"])
	require.NotNil(t, home)
	assert.Equal(t, "bob", home.Owner)
}

func TestDeleteProtectedUser(t *testing.T) {
	fs, users := newTestFS(t)

	// even root cannot remove a protected identity
	assert.ErrorIs(t, fs.DeleteUser("root", users["root"]), identity.ErrProtected)

	passwd, _ := fs.ReadFile(PasswdPath, users["root"])
	assert.Contains(t, passwd, "root:")
}

func TestGroups(t *testing.T) {
	fs, users := newTestFS(t)

	g, err := fs.AddGroup("devs", users["root"])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, g.GID, 1000)

	text, _ := fs.ReadFile(GroupPath, users["root"])
	assert.Contains(t, text, "devs:")

	require.NoError(t, fs.DeleteGroup("devs", users["root"]))
	text, _ = fs.ReadFile(GroupPath, users["root"])
	assert.NotContains(t, text, "devs:")

	_, err = fs.AddGroup("devs", users["alice"])
	assert.ErrorIs(t, err, ErrDenied)
}

func TestPasswdWriteIngestsUsers(t *testing.T) {
	fs, users := newTestFS(t)

	text, ok := fs.ReadFile(PasswdPath, users["root"])
	require.True(t, ok)
	text += "dave:pw:1100:1100:Dave:/home/dave:/bin/sh\n"

	require.NoError(t, fs.WriteFile(PasswdPath, text, users["root"]))

	u, ok := fs.Identity().User("dave")
	require.True(t, ok, "written record became a live user")
	assert.Equal(t, 1100, u.UID)
}

func TestMalformedPasswdWriteKeepsRecords(t *testing.T) {
	fs, users := newTestFS(t)

	before := len(fs.Identity().Users())
	require.NoError(t, fs.WriteFile(PasswdPath, "not:a:passwd:file\n", users["root"]))

	// the file holds the garbage but the records are untouched
	text, _ := fs.ReadFile(PasswdPath, users["root"])
	assert.Equal(t, "not:a:passwd:file\n", text)
	assert.Len(t, fs.Identity().Users(), before)
}

func TestSyncSkipsEqualContent(t *testing.T) {
	fs, users := newTestFS(t)

	before := fs.GetNode(PasswdPath, users["root"])
	gen := fs.Generation()

	fs.SyncIdentityFiles()

	assert.Equal(t, gen, fs.Generation(), "no commit when content already matches")
	after := fs.GetNode(PasswdPath, users["root"])
	assert.Same(t, before, after)
}

func TestSyncRecreatesMissingFile(t *testing.T) {
	fs, users := newTestFS(t)

	require.NoError(t, fs.DeleteNode(PasswdPath, users["root"]))
	fs.SyncIdentityFiles()

	text, ok := fs.ReadFile(PasswdPath, users["root"])
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(text, "root:"))
}

func TestSyncRefusesFileBlockedEtc(t *testing.T) {
	ids := identity.NewStore("root")
	ids.SetUsers([]*identity.User{
		{Username: "root", Password: "root", UID: 0, GID: 0, HomeDir: "/root", Shell: "/bin/sh"},
	})
	root := NewDir("/", "root", "root", testTime)
	root.Children = append(root.Children, NewFile("etc", "in the way", "root", "root", testTime))
	fs := New(root, ids)

	gen := fs.Generation()
	fs.SyncIdentityFiles()

	// nothing was committed and nothing landed under /
	assert.Equal(t, gen, fs.Generation())
	assert.Nil(t, Lookup(fs.Root(), PasswdPath))
	assert.Nil(t, Lookup(fs.Root(), "/passwd"))
	blocked := Lookup(fs.Root(), "/etc")
	require.NotNil(t, blocked)
	assert.False(t, blocked.IsDir())
	assert.Equal(t, "in the way", blocked.Content)
}
