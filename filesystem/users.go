package filesystem

import (
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/notify"
	"github.com/deskfs/deskfs/perm"
)

// AddUser creates an account, materializes its home directory with the
// default folder set and a private trash, and regenerates the identity
// files. Root only.
func (fs *FileSystem) AddUser(username, fullName, password string, as *identity.User) (*identity.User, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return nil, ErrReadOnly
	}
	if as != nil && as.Username != perm.RootUser {
		return nil, ErrDenied
	}
	if !validName(username) {
		return nil, ErrMalformed
	}

	u, err := fs.ids.AddUser(username, fullName, password)
	if err != nil {
		return nil, err
	}

	fs.materializeHomeLocked(u)
	fs.syncIdentityFilesLocked()

	if fs.hub != nil {
		fs.hub.Publish(notify.Event{Kind: "identity", Path: u.HomeDir, Message: "user " + username + " created"})
	}
	return u, nil
}

// DeleteUser removes an account record. Protected identities (root and the
// default desktop account) are rejected for any actor. The user's files
// remain in the tree, orphaned by owner.
func (fs *FileSystem) DeleteUser(username string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	if as != nil && as.Username != perm.RootUser {
		return ErrDenied
	}

	if err := fs.ids.DeleteUser(username); err != nil {
		return err
	}
	fs.syncIdentityFilesLocked()

	if fs.hub != nil {
		fs.hub.Publish(notify.Event{Kind: "identity", Message: "user " + username + " deleted"})
	}
	return nil
}

// AddGroup creates a group record and regenerates /etc/group. Root only.
func (fs *FileSystem) AddGroup(name string, as *identity.User) (*identity.Group, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return nil, ErrReadOnly
	}
	if as != nil && as.Username != perm.RootUser {
		return nil, ErrDenied
	}
	if !validName(name) {
		return nil, ErrMalformed
	}

	g, err := fs.ids.AddGroup(name)
	if err != nil {
		return nil, err
	}
	fs.syncIdentityFilesLocked()
	return g, nil
}

// DeleteGroup removes a group record and regenerates /etc/group. Root only.
func (fs *FileSystem) DeleteGroup(name string, as *identity.User) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.readOnly.Load() {
		return ErrReadOnly
	}
	if as != nil && as.Username != perm.RootUser {
		return ErrDenied
	}

	if err := fs.ids.DeleteGroup(name); err != nil {
		return err
	}
	fs.syncIdentityFilesLocked()
	return nil
}

// materializeHomeLocked builds /home/<user> with the well-known folders and
// a private trash, all owned by the new user.
func (fs *FileSystem) materializeHomeLocked(u *identity.User) {
	group := u.Username
	_, homeChain := fs.ensureDirLocked(fs.root, u.HomeDir, u.Username, group, perm.DefaultDirPerms)
	if homeChain == nil {
		return
	}

	copies := fs.rewrite(homeChain)
	homeCp := copies[len(copies)-1]
	for _, folder := range WellKnownFolders {
		if homeCp.Child(folder) != nil {
			continue
		}
		dir := NewDir(folder, u.Username, group, fs.now())
		homeCp.Children = append(homeCp.Children, dir)
		fs.registerSubtree(dir)
	}
	if homeCp.Child(TrashDirName) == nil {
		trash := NewDir(TrashDirName, u.Username, group, fs.now())
		trash.Perms = "drwx------"
		homeCp.Children = append(homeCp.Children, trash)
		fs.registerSubtree(trash)
	}

	fs.commitLocked(copies[0], notify.Event{Kind: "create", Path: u.HomeDir})
}
