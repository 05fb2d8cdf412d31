package filesystem

import (
	"time"

	"github.com/deskfs/deskfs/perm"
	"github.com/google/uuid"
)

// NodeType discriminates files from directories.
type NodeType string

const (
	FileType NodeType = "file"
	DirType  NodeType = "directory"
)

// Node is a tree node. A node is exactly one of file (Content set, no
// Children) or directory (Children set, no Content). IDs are stable across
// moves; names are unique among siblings.
type Node struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     NodeType  `json:"type"`
	Content  string    `json:"content,omitempty"`
	Children []*Node   `json:"children,omitempty"`
	Perms    string    `json:"permissions"`
	Owner    string    `json:"owner"`
	Group    string    `json:"group,omitempty"`
	Size     int       `json:"size"`
	Modified time.Time `json:"modified"`
}

// NewFile creates a file node owned by owner with default file permissions.
func NewFile(name, content, owner, group string, now time.Time) *Node {
	return &Node{
		ID:       uuid.New().String(),
		Name:     name,
		Type:     FileType,
		Content:  content,
		Perms:    perm.DefaultFilePerms,
		Owner:    owner,
		Group:    group,
		Size:     len(content),
		Modified: now,
	}
}

// NewDir creates an empty directory node with default directory permissions.
func NewDir(name, owner, group string, now time.Time) *Node {
	return &Node{
		ID:       uuid.New().String(),
		Name:     name,
		Type:     DirType,
		Children: []*Node{},
		Perms:    perm.DefaultDirPerms,
		Owner:    owner,
		Group:    group,
		Modified: now,
	}
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Type == DirType
}

// Child returns the named child, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// childIndex returns the slice index of the named child, or -1.
func (n *Node) childIndex(name string) int {
	for i, c := range n.Children {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// shallowCopy copies the node struct and its Children slice header. Child
// pointers are shared; callers replace entries they mutate.
func (n *Node) shallowCopy() *Node {
	cp := *n
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		copy(cp.Children, n.Children)
	}
	return &cp
}

// Clone deep-copies the subtree, preserving ids.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.Clone()
		}
	}
	return &cp
}

// CloneFresh deep-copies the subtree with new ids throughout, for copy
// operations that must not collide with the source ids.
func (n *Node) CloneFresh() *Node {
	cp := *n
	cp.ID = uuid.New().String()
	if n.Children != nil {
		cp.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			cp.Children[i] = c.CloneFresh()
		}
	}
	return &cp
}

// Walk visits the subtree depth-first, node before children.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// normalize repairs invariants on loaded nodes: missing ids, malformed
// permission strings, file/directory exclusivity.
func (n *Node) normalize() {
	n.Walk(func(node *Node) {
		if node.ID == "" {
			node.ID = uuid.New().String()
		}
		node.Perms = perm.Normalize(node.Perms, node.IsDir())
		if node.IsDir() {
			node.Content = ""
			if node.Children == nil {
				node.Children = []*Node{}
			}
		} else {
			node.Children = nil
			node.Size = len(node.Content)
		}
	})
}
