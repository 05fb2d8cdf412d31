// Package perm evaluates rwx permission strings against an acting identity.
//
// A permission string is exactly 10 characters: a type flag ('d' or '-')
// followed by three rwx triplets for owner, group and other. The final
// character may be 't'/'T' in place of 'x'/'-' to mark a sticky directory.
package perm

import "strings"

// Op is a permission operation to test for.
type Op int

const (
	Read Op = iota
	Write
	Execute
)

// Default permission strings applied when a node carries a missing or
// malformed string.
const (
	DefaultDirPerms  = "drwxr-xr-x"
	DefaultFilePerms = "-rw-r--r--"
)

// RootUser bypasses all permission checks.
const RootUser = "root"

// Valid reports whether s is a well-formed 10-character permission string.
func Valid(s string) bool {
	if len(s) != 10 {
		return false
	}
	if s[0] != 'd' && s[0] != '-' {
		return false
	}
	for i := 1; i < 10; i++ {
		var want byte
		switch (i - 1) % 3 {
		case 0:
			want = 'r'
		case 1:
			want = 'w'
		case 2:
			want = 'x'
		}
		c := s[i]
		if c == want || c == '-' {
			continue
		}
		// sticky flag occupies the other-execute slot
		if i == 9 && (c == 't' || c == 'T') {
			continue
		}
		return false
	}
	return true
}

// Normalize returns s unchanged when well formed, otherwise the
// conservative default for the node kind.
func Normalize(s string, isDir bool) string {
	if Valid(s) {
		return s
	}
	if isDir {
		return DefaultDirPerms
	}
	return DefaultFilePerms
}

// Check evaluates op for the acting user against a node's permission
// string, owner and group. userGroups must contain every group the user
// belongs to, primary and supplementary. Root always passes.
func Check(perms, owner, group, user string, userGroups []string, op Op) bool {
	if user == RootUser {
		return true
	}
	perms = Normalize(perms, strings.HasPrefix(perms, "d"))

	// Select the triplet: owner, then group, then other.
	offset := 7
	if user == owner {
		offset = 1
	} else if group != "" && contains(userGroups, group) {
		offset = 4
	}
	triplet := perms[offset : offset+3]

	switch op {
	case Read:
		return triplet[0] == 'r'
	case Write:
		return triplet[1] == 'w'
	case Execute:
		// 't' means the execute bit is also set
		return triplet[2] == 'x' || triplet[2] == 't'
	}
	return false
}

// Sticky reports whether the permission string carries the sticky flag.
// Only meaningful for directories; evaluated by the delete path, not Check.
func Sticky(perms string) bool {
	if len(perms) != 10 {
		return false
	}
	c := perms[9]
	return c == 't' || c == 'T'
}

// FromOctal converts a 3-digit octal mode ("755") into the symbolic form,
// preserving the type flag and sticky marker of existing. Returns false
// when mode is not exactly three octal digits.
func FromOctal(mode, existing string) (string, bool) {
	if len(mode) != 3 {
		return "", false
	}
	var b strings.Builder
	typeFlag := byte('-')
	if len(existing) == 10 && existing[0] == 'd' {
		typeFlag = 'd'
	}
	b.WriteByte(typeFlag)

	for i := 0; i < 3; i++ {
		d := mode[i]
		if d < '0' || d > '7' {
			return "", false
		}
		v := d - '0'
		bits := [3]byte{'-', '-', '-'}
		if v&4 != 0 {
			bits[0] = 'r'
		}
		if v&2 != 0 {
			bits[1] = 'w'
		}
		if v&1 != 0 {
			bits[2] = 'x'
		}
		b.WriteString(string(bits[:]))
	}

	out := []byte(b.String())
	if Sticky(existing) {
		if out[9] == 'x' {
			out[9] = 't'
		} else {
			out[9] = 'T'
		}
	}
	return string(out), true
}

// Mode converts a permission string to numeric mode bits, sticky included.
// The type flag is not encoded; callers OR in the file-type bits themselves.
func Mode(perms string) uint32 {
	perms = Normalize(perms, strings.HasPrefix(perms, "d"))
	var mode uint32
	for i := 1; i < 10; i++ {
		c := perms[i]
		if c == 'r' || c == 'w' || c == 'x' || c == 't' {
			mode |= 1 << (9 - i)
		}
	}
	if Sticky(perms) {
		mode |= 0o1000
	}
	return mode
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
