package perm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	valid := []string{"drwxr-xr-x", "-rw-r--r--", "drwxrwxrwt", "drwxrwxrwT", "----------", "drwx------"}
	for _, s := range valid {
		assert.True(t, Valid(s), s)
	}

	invalid := []string{"", "rwxr-xr-x", "xrwxr-xr-x", "drwxr-xr-xx", "drwtr-xr-x", "drwxr-xr-w", "drwxr-xr-5"}
	for _, s := range invalid {
		assert.False(t, Valid(s), s)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "drwx------", Normalize("drwx------", true))
	assert.Equal(t, DefaultDirPerms, Normalize("garbage", true))
	assert.Equal(t, DefaultFilePerms, Normalize("", false))
}

func TestCheckTriplets(t *testing.T) {
	const perms = "-rwxr-x--x"

	// owner gets the first triplet
	assert.True(t, Check(perms, "alice", "staff", "alice", []string{"alice"}, Write))

	// group members get the second
	assert.True(t, Check(perms, "alice", "staff", "bob", []string{"bob", "staff"}, Read))
	assert.False(t, Check(perms, "alice", "staff", "bob", []string{"bob", "staff"}, Write))

	// everyone else gets the third
	assert.False(t, Check(perms, "alice", "staff", "carol", []string{"carol"}, Read))
	assert.True(t, Check(perms, "alice", "staff", "carol", []string{"carol"}, Execute))
}

func TestCheckRootBypass(t *testing.T) {
	assert.True(t, Check("----------", "alice", "alice", "root", nil, Write))
	assert.True(t, Check("", "alice", "alice", "root", nil, Execute))
}

func TestCheckOwnerBeatsGroup(t *testing.T) {
	// the owner triplet applies even when it grants less than the group's
	const perms = "----rwx---"
	assert.False(t, Check(perms, "alice", "staff", "alice", []string{"staff"}, Read))
}

func TestStickyExecute(t *testing.T) {
	// 't' in the other slot still grants execute to others
	assert.True(t, Check("drwxrwxrwt", "root", "root", "alice", []string{"alice"}, Execute))
	assert.True(t, Sticky("drwxrwxrwt"))
	assert.True(t, Sticky("drwxrwxrwT"))
	assert.False(t, Sticky("drwxrwxrwx"))
}

func TestFromOctal(t *testing.T) {
	got, ok := FromOctal("755", "drwxr-xr-x")
	assert.True(t, ok)
	assert.Equal(t, "drwxr-xr-x", got)

	got, ok = FromOctal("600", "-rw-r--r--")
	assert.True(t, ok)
	assert.Equal(t, "-rw-------", got)

	// sticky marker survives, lowercase with execute and uppercase without
	got, _ = FromOctal("777", "drwxrwxrwt")
	assert.Equal(t, "drwxrwxrwt", got)
	got, _ = FromOctal("770", "drwxrwxrwt")
	assert.Equal(t, "drwxrwx--T", got)

	for _, bad := range []string{"", "75", "7555", "78a", "rwx"} {
		_, ok := FromOctal(bad, "-rw-r--r--")
		assert.False(t, ok, bad)
	}
}

func TestMode(t *testing.T) {
	assert.Equal(t, uint32(0o755), Mode("drwxr-xr-x"))
	assert.Equal(t, uint32(0o644), Mode("-rw-r--r--"))
	assert.Equal(t, uint32(0o1777), Mode("drwxrwxrwt"))
	assert.Equal(t, uint32(0o1776), Mode("drwxrwxrwT"))
}
