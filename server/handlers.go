package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/session"
)

// SessionHeader carries the session id on authenticated requests.
const SessionHeader = "X-Session"

// Handlers contains all HTTP handlers.
type Handlers struct {
	fs       *filesystem.FileSystem
	sessions *session.Manager
	metrics  *Metrics
}

// NewHandlers creates a new handler set.
func NewHandlers(fs *filesystem.FileSystem, sessions *session.Manager, metrics *Metrics) *Handlers {
	return &Handlers{fs: fs, sessions: sessions, metrics: metrics}
}

// Root handles health check.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "online",
		"service":    "deskfs",
		"generation": h.fs.Generation(),
		"readOnly":   h.fs.ReadOnly(),
	})
}

// caller resolves the request's session and effective user. A missing or
// stale session id fails the request with 401.
func (h *Handlers) caller(c *gin.Context) (*session.Session, *identity.User, bool) {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		id = c.Query("session")
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or expired session"})
		return nil, nil, false
	}
	u, ok := h.fs.Identity().User(s.Effective)
	if !ok {
		// effective user deleted out from under the session
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session user no longer exists"})
		return nil, nil, false
	}
	return s, u, true
}

// resolve expands a symbolic path against the session.
func resolve(path string, s *session.Session, u *identity.User) string {
	return filesystem.Resolve(path, s.WorkingDir, u.HomeDir)
}

// fail maps domain errors onto HTTP statuses.
func (h *Handlers) fail(c *gin.Context, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, filesystem.ErrDenied):
		h.metrics.OpsDenied.WithLabelValues(op).Inc()
		status = http.StatusForbidden
	case errors.Is(err, filesystem.ErrReadOnly):
		status = http.StatusLocked
	case errors.Is(err, filesystem.ErrConflict), errors.Is(err, identity.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, filesystem.ErrMalformed):
		status = http.StatusBadRequest
	case errors.Is(err, identity.ErrProtected):
		status = http.StatusForbidden
	case errors.Is(err, identity.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrBadCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, session.ErrLocked):
		status = http.StatusLocked
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// Login opens a session.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.sessions.Login(req.Username, req.Password)
	if err != nil {
		h.fail(c, "login", err)
		return
	}
	h.metrics.SessionsActive.Set(float64(len(h.sessions.Active())))
	c.JSON(http.StatusOK, s)
}

// Logout closes the request's session.
func (h *Handlers) Logout(c *gin.Context) {
	s, _, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.sessions.Logout(s.ID); err != nil {
		h.fail(c, "logout", err)
		return
	}
	h.metrics.SessionsActive.Set(float64(len(h.sessions.Active())))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Elevate switches the session's effective user (su).
func (h *Handlers) Elevate(c *gin.Context) {
	s, _, ok := h.caller(c)
	if !ok {
		return
	}
	var req elevateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.sessions.Elevate(s.ID, req.Username, req.Password); err != nil {
		h.fail(c, "elevate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "effectiveUser": req.Username})
}

// Drop returns the session to its login identity.
func (h *Handlers) Drop(c *gin.Context) {
	s, _, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.sessions.Drop(s.ID); err != nil {
		h.fail(c, "drop", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// List returns a directory's children.
func (h *Handlers) List(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	h.metrics.OpsTotal.WithLabelValues("list").Inc()

	path := resolve(c.DefaultQuery("path", "."), s, u)
	children := h.fs.ListDirectory(path, u)
	if children == nil {
		h.metrics.OpsDenied.WithLabelValues("list").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "directory missing or not accessible"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "entries": viewsOf(children)})
}

// Read returns a file's content.
func (h *Handlers) Read(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	h.metrics.OpsTotal.WithLabelValues("read").Inc()

	path := resolve(c.Query("path"), s, u)
	content, ok := h.fs.ReadFile(path, u)
	if !ok {
		h.metrics.OpsDenied.WithLabelValues("read").Inc()
		c.JSON(http.StatusNotFound, gin.H{"error": "file missing or not accessible"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "content": content})
}

// Stat returns a node's metadata without content.
func (h *Handlers) Stat(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	path := resolve(c.Query("path"), s, u)
	n := h.fs.GetNode(path, u)
	if n == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "node missing or not accessible"})
		return
	}
	c.JSON(http.StatusOK, viewOf(n))
}

// Write replaces a file's content, or appends when the request asks for it.
func (h *Handlers) Write(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("write").Inc()

	path := resolve(req.Path, s, u)
	write := h.fs.WriteFile
	if req.Append {
		write = h.fs.AppendFile
	}
	if err := write(path, req.Content, u); err != nil {
		h.fail(c, "write", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "path": path})
}

// CreateFile creates an empty or pre-filled file.
func (h *Handlers) CreateFile(c *gin.Context) {
	h.create(c, "createFile", func(dir, name, content string, u *identity.User) (*filesystem.Node, error) {
		return h.fs.CreateFile(dir, name, content, u)
	})
}

// CreateDirectory creates a directory.
func (h *Handlers) CreateDirectory(c *gin.Context) {
	h.create(c, "createDir", func(dir, name, _ string, u *identity.User) (*filesystem.Node, error) {
		return h.fs.CreateDirectory(dir, name, u)
	})
}

func (h *Handlers) create(c *gin.Context, op string, fn func(dir, name, content string, u *identity.User) (*filesystem.Node, error)) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues(op).Inc()

	n, err := fn(resolve(req.Dir, s, u), req.Name, req.Content, u)
	if err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(n))
}

// Delete removes a node permanently.
func (h *Handlers) Delete(c *gin.Context) {
	h.pathOp(c, "delete", h.fs.DeleteNode)
}

// Trash moves a node to the caller's trash folder.
func (h *Handlers) Trash(c *gin.Context) {
	h.pathOp(c, "trash", h.fs.MoveToTrash)
}

func (h *Handlers) pathOp(c *gin.Context, op string, fn func(string, *identity.User) error) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues(op).Inc()

	path := resolve(req.Path, s, u)
	if err := fn(path, u); err != nil {
		h.fail(c, op, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "path": path})
}

// EmptyTrash drops everything in the caller's trash.
func (h *Handlers) EmptyTrash(c *gin.Context) {
	_, u, ok := h.caller(c)
	if !ok {
		return
	}
	h.metrics.OpsTotal.WithLabelValues("emptyTrash").Inc()

	if err := h.fs.EmptyTrash(u); err != nil {
		h.fail(c, "emptyTrash", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Restore puts a trashed entry back where it came from.
func (h *Handlers) Restore(c *gin.Context) {
	_, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("restore").Inc()

	if err := h.fs.RestoreFromTrash(req.Name, u); err != nil {
		h.fail(c, "restore", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Move relocates a node, addressed by path or by id.
func (h *Handlers) Move(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Path == "" && req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "either path or id is required"})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("move").Inc()

	dest := resolve(req.Dest, s, u)
	var err error
	if req.ID != "" {
		err = h.fs.MoveNodeByID(req.ID, dest, u)
	} else {
		err = h.fs.MoveNode(resolve(req.Path, s, u), dest, u)
	}
	if err != nil {
		h.fail(c, "move", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Copy duplicates a subtree into a destination directory.
func (h *Handlers) Copy(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("copy").Inc()

	n, err := h.fs.CopyNode(resolve(req.Path, s, u), resolve(req.Dest, s, u), u)
	if err != nil {
		h.fail(c, "copy", err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(n))
}

// Chmod updates a node's permission string.
func (h *Handlers) Chmod(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req chmodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("chmod").Inc()

	if err := h.fs.Chmod(resolve(req.Path, s, u), req.Mode, u); err != nil {
		h.fail(c, "chmod", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Chown reassigns a node's owner and optionally group.
func (h *Handlers) Chown(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req chownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("chown").Inc()

	if err := h.fs.Chown(resolve(req.Path, s, u), req.Owner, req.Group, u); err != nil {
		h.fail(c, "chown", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ChangeDir updates the session's working directory after checking the
// target exists and is a directory the caller can reach.
func (h *Handlers) ChangeDir(c *gin.Context) {
	s, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req pathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	path := resolve(req.Path, s, u)
	n := h.fs.GetNode(path, u)
	if n == nil || !n.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "directory missing or not accessible"})
		return
	}
	if err := h.sessions.SetWorkingDir(s.ID, path); err != nil {
		h.fail(c, "cd", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "workingDir": path})
}

// ListUsers returns users without their passwords.
func (h *Handlers) ListUsers(c *gin.Context) {
	if _, _, ok := h.caller(c); !ok {
		return
	}
	users := h.fs.Identity().Users()
	out := make([]gin.H, len(users))
	for i, u := range users {
		out[i] = gin.H{
			"username": u.Username,
			"uid":      u.UID,
			"gid":      u.GID,
			"fullName": u.FullName,
			"homeDir":  u.HomeDir,
			"shell":    u.Shell,
		}
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// ListGroups returns groups.
func (h *Handlers) ListGroups(c *gin.Context) {
	if _, _, ok := h.caller(c); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": h.fs.Identity().Groups()})
}

// AddUser creates a user, their home tree and their passwd/group records.
func (h *Handlers) AddUser(c *gin.Context) {
	_, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req addUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.metrics.OpsTotal.WithLabelValues("addUser").Inc()

	created, err := h.fs.AddUser(req.Username, req.FullName, req.Password, u)
	if err != nil {
		h.fail(c, "addUser", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"username": created.Username, "uid": created.UID, "homeDir": created.HomeDir})
}

// DeleteUser removes a user record. Their files stay behind.
func (h *Handlers) DeleteUser(c *gin.Context) {
	_, u, ok := h.caller(c)
	if !ok {
		return
	}
	h.metrics.OpsTotal.WithLabelValues("deleteUser").Inc()

	if err := h.fs.DeleteUser(c.Param("name"), u); err != nil {
		h.fail(c, "deleteUser", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AddGroup creates a group.
func (h *Handlers) AddGroup(c *gin.Context) {
	_, u, ok := h.caller(c)
	if !ok {
		return
	}
	var req addGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	g, err := h.fs.AddGroup(req.Name, u)
	if err != nil {
		h.fail(c, "addGroup", err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

// DeleteGroup removes a group.
func (h *Handlers) DeleteGroup(c *gin.Context) {
	_, u, ok := h.caller(c)
	if !ok {
		return
	}
	if err := h.fs.DeleteGroup(c.Param("name"), u); err != nil {
		h.fail(c, "deleteGroup", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
