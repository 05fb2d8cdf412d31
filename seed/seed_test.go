package seed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/perm"
)

func TestLoad(t *testing.T) {
	s, err := Load()
	require.NoError(t, err)

	assert.Greater(t, s.Version, 0)
	require.NotEmpty(t, s.Users)
	assert.Equal(t, "root", s.Users[0].Username)
	assert.Equal(t, 0, s.Users[0].UID)

	// every user has a matching primary group
	for _, u := range s.Users {
		found := false
		for _, g := range s.Groups {
			if g.GID == u.GID {
				found = true
			}
		}
		assert.True(t, found, "user %s has no primary group", u.Username)
	}
}

func TestBuildTree(t *testing.T) {
	s := MustLoad()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	root := s.BuildTree(now)

	// identity files agree with the identity lists
	passwd := filesystem.Lookup(root, filesystem.PasswdPath)
	require.NotNil(t, passwd)
	users, err := identity.ParsePasswd(passwd.Content)
	require.NoError(t, err)
	assert.Equal(t, s.Users, users)

	group := filesystem.Lookup(root, filesystem.GroupPath)
	require.NotNil(t, group)
	groups, err := identity.ParseGroup(group.Content)
	require.NoError(t, err)
	assert.Equal(t, s.Groups, groups)

	// the default home carries the well-known folders and a private trash
	for _, folder := range filesystem.WellKnownFolders {
		n := filesystem.Lookup(root, "/home/user/"+folder)
		require.NotNil(t, n, folder)
		assert.Equal(t, "user", n.Owner)
	}
	trash := filesystem.Lookup(root, "/home/user/.Trash")
	require.NotNil(t, trash)
	assert.Equal(t, "drwx------", trash.Perms)

	// sticky world-writable /tmp, private /root
	assert.Equal(t, "drwxrwxrwt", filesystem.Lookup(root, "/tmp").Perms)
	assert.Equal(t, "drwx------", filesystem.Lookup(root, "/root").Perms)

	// implicit parents belong to root with default permissions
	home := filesystem.Lookup(root, "/home")
	require.NotNil(t, home)
	assert.Equal(t, perm.RootUser, home.Owner)
	assert.Equal(t, perm.DefaultDirPerms, home.Perms)
}

func TestBuildTreeIsFresh(t *testing.T) {
	s := MustLoad()
	now := time.Now()

	a := s.BuildTree(now)
	b := s.BuildTree(now)
	assert.NotEqual(t, a.ID, b.ID, "every build allocates fresh ids")
}
