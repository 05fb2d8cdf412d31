package filesystem

import "strings"

// WellKnownFolders are the home-rooted folder names the resolver rewrites
// when they appear at the start of a relative path. They are also the
// default subtree of a fresh home directory.
var WellKnownFolders = []string{"Desktop", "Documents", "Downloads", "Pictures", "Music", "Videos"}

// Resolve normalizes a symbolic path against a working directory and home
// directory, producing an absolute path. It never touches the tree.
//
// Rules, in order: a leading "~" expands to homeDir; a well-known folder
// name at the start of a relative path is rerooted under homeDir; remaining
// relative paths are prefixed with workingDir; "." segments drop and ".."
// segments pop, clamping silently at root.
func Resolve(path, workingDir, homeDir string) string {
	switch {
	case path == "~" || strings.HasPrefix(path, "~/"):
		path = homeDir + strings.TrimPrefix(path, "~")
	case !strings.HasPrefix(path, "/") && isWellKnown(firstSegment(path)):
		path = homeDir + "/" + path
	}
	if !strings.HasPrefix(path, "/") {
		path = workingDir + "/" + path
	}

	var stack []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	return "/" + strings.Join(stack, "/")
}

// SplitPath breaks an absolute path into segments, "/" yielding none.
func SplitPath(path string) []string {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

// ParentPath returns the directory containing path, and the leaf name.
func ParentPath(path string) (string, string) {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return "/", ""
	}
	return "/" + strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1]
}

// JoinPath appends a name to a directory path.
func JoinPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

// Lookup resolves an absolute path against a bare tree without permission
// checks. It returns nil when any segment is missing.
func Lookup(root *Node, path string) *Node {
	cur := root
	for _, seg := range SplitPath(path) {
		if cur == nil || !cur.IsDir() {
			return nil
		}
		cur = cur.Child(seg)
	}
	return cur
}

func isWellKnown(name string) bool {
	for _, f := range WellKnownFolders {
		if f == name {
			return true
		}
	}
	return false
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
