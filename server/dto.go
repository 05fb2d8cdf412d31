package server

import (
	"time"

	"github.com/deskfs/deskfs/filesystem"
)

// NodeView is the wire shape of a node. File content is returned only by
// the read endpoint, never by listings or stat.
type NodeView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	Perms    string    `json:"permissions"`
	Owner    string    `json:"owner"`
	Group    string    `json:"group,omitempty"`
	Size     int       `json:"size"`
	Modified time.Time `json:"modified"`
}

func viewOf(n *filesystem.Node) NodeView {
	return NodeView{
		ID:       n.ID,
		Name:     n.Name,
		Type:     string(n.Type),
		Perms:    n.Perms,
		Owner:    n.Owner,
		Group:    n.Group,
		Size:     n.Size,
		Modified: n.Modified,
	}
}

func viewsOf(nodes []*filesystem.Node) []NodeView {
	out := make([]NodeView, len(nodes))
	for i, n := range nodes {
		out[i] = viewOf(n)
	}
	return out
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

type elevateRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type writeRequest struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

type createRequest struct {
	Dir  string `json:"dir" binding:"required"`
	Name string `json:"name" binding:"required"`
	// content is ignored for directories
	Content string `json:"content"`
}

type moveRequest struct {
	Path string `json:"path"`
	ID   string `json:"id"`
	Dest string `json:"dest" binding:"required"`
}

type chmodRequest struct {
	Path string `json:"path" binding:"required"`
	Mode string `json:"mode" binding:"required"`
}

type chownRequest struct {
	Path  string `json:"path" binding:"required"`
	Owner string `json:"owner" binding:"required"`
	Group string `json:"group"`
}

type addUserRequest struct {
	Username string `json:"username" binding:"required"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type addGroupRequest struct {
	Name string `json:"name" binding:"required"`
}
