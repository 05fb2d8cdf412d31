// Package seed carries the embedded default state of the filesystem: the
// schema version, the default identities, and the default tree. A fresh
// install is built entirely from this package; upgrades merge it into
// existing state without overwriting anything the user changed.
package seed

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/perm"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// entry is one node of the default tree, addressed by absolute path.
// Directories are the default; files carry content.
type entry struct {
	Path        string `yaml:"path"`
	Type        string `yaml:"type"`
	Content     string `yaml:"content"`
	Permissions string `yaml:"permissions"`
	Owner       string `yaml:"owner"`
	Group       string `yaml:"group"`
}

// Seed is the parsed default state.
type Seed struct {
	Version int               `yaml:"version"`
	Users   []*identity.User  `yaml:"users"`
	Groups  []*identity.Group `yaml:"groups"`
	Tree    []entry           `yaml:"tree"`
}

// Load parses the embedded defaults. The embedded document is part of the
// build, so a parse failure is a packaging bug, not a runtime condition.
func Load() (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(defaultsYAML, &s); err != nil {
		return nil, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	if s.Version == 0 {
		return nil, fmt.Errorf("embedded defaults carry no schema version")
	}
	return &s, nil
}

// MustLoad is Load for callers that treat a broken embed as fatal.
func MustLoad() *Seed {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

// BuildTree materializes the default tree, including /etc/passwd and
// /etc/group generated from the default identities so the identity files
// and the identity lists always agree.
func (s *Seed) BuildTree(now time.Time) *filesystem.Node {
	root := filesystem.NewDir("/", perm.RootUser, perm.RootUser, now)

	for _, e := range s.Tree {
		s.place(root, e, now)
	}

	s.place(root, entry{Path: filesystem.PasswdPath, Type: "file", Content: identity.FormatPasswd(s.Users)}, now)
	s.place(root, entry{Path: filesystem.GroupPath, Type: "file", Content: identity.FormatGroup(s.Groups)}, now)

	return root
}

// place creates the node for one entry, creating missing parent directories
// owned by root along the way. Existing nodes are left alone, so entry order
// in the document only matters for ownership of shared parents.
func (s *Seed) place(root *filesystem.Node, e entry, now time.Time) {
	owner := e.Owner
	if owner == "" {
		owner = perm.RootUser
	}
	group := e.Group
	if group == "" {
		group = owner
	}

	segs := filesystem.SplitPath(e.Path)
	cur := root
	for i, seg := range segs {
		next := cur.Child(seg)
		if next == nil {
			if i == len(segs)-1 && e.Type == "file" {
				next = filesystem.NewFile(seg, e.Content, owner, group, now)
			} else if i == len(segs)-1 {
				next = filesystem.NewDir(seg, owner, group, now)
			} else {
				next = filesystem.NewDir(seg, perm.RootUser, perm.RootUser, now)
			}
			if i == len(segs)-1 && e.Permissions != "" {
				next.Perms = perm.Normalize(e.Permissions, next.IsDir())
			}
			cur.Children = append(cur.Children, next)
		}
		cur = next
	}
}
