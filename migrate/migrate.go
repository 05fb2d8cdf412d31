// Package migrate reconciles persisted filesystem state with the embedded
// defaults. Migrations are non-destructive: nodes and identities the user
// created or modified are always preserved, and only things present in the
// defaults but missing from the stored state are added.
package migrate

import (
	"time"

	"github.com/deskfs/deskfs/filesystem"
	"github.com/deskfs/deskfs/identity"
	"github.com/deskfs/deskfs/internal/util"
	"github.com/deskfs/deskfs/seed"
)

var logger = util.GetLogger("migrate")

// Result is the reconciled state, ready to construct a filesystem from.
type Result struct {
	Version  int
	Root     *filesystem.Node
	Users    []*identity.User
	Groups   []*identity.Group
	Migrated bool
}

// Run reconciles a stored tree against the defaults. A nil storedRoot is a
// fresh install and yields the defaults verbatim. A stored version older
// than the default version triggers the merge; a stored version at or above
// it leaves the tree untouched. Identities are recovered from the stored
// /etc files in either case, falling back to the defaults when the files
// are missing or malformed.
func Run(storedRoot *filesystem.Node, storedVersion int, def *seed.Seed, now time.Time) *Result {
	if storedRoot == nil {
		logger.Info().Int("version", def.Version).Msg("No stored state, building fresh install from defaults")
		return &Result{
			Version: def.Version,
			Root:    def.BuildTree(now),
			Users:   def.Users,
			Groups:  def.Groups,
		}
	}

	res := &Result{Version: storedVersion, Root: storedRoot}
	res.Users, res.Groups = recoverIdentities(storedRoot, def)

	if storedVersion < def.Version {
		added := MergeTrees(storedRoot, def.BuildTree(now))
		healed := MergeUsers(&res.Users, def.Users)
		MergeGroups(&res.Groups, def.Groups)
		res.Version = def.Version
		res.Migrated = true
		logger.Info().
			Int("from", storedVersion).
			Int("to", def.Version).
			Int("nodesAdded", added).
			Int("usersHealed", healed).
			Msg("Migrated stored state")
	}

	return res
}

// MergeTrees adds every node present in def but absent from stored, deep
// copied. Nodes present in both are recursed into when both are directories
// and otherwise left exactly as stored. Returns the number of subtrees added.
func MergeTrees(stored, def *filesystem.Node) int {
	added := 0
	for _, dc := range def.Children {
		sc := stored.Child(dc.Name)
		switch {
		case sc == nil:
			stored.Children = append(stored.Children, dc.Clone())
			added++
		case sc.IsDir() && dc.IsDir():
			added += MergeTrees(sc, dc)
		}
	}
	return added
}

// MergeUsers appends default users missing from the stored list and heals
// stored default users whose password was lost, restoring the default
// password. Users the operator added are never touched. Returns the number
// of healed passwords.
func MergeUsers(stored *[]*identity.User, def []*identity.User) int {
	healed := 0
	for _, du := range def {
		found := false
		for _, su := range *stored {
			if su.Username != du.Username {
				continue
			}
			found = true
			if su.Password == "" && du.Password != "" {
				su.Password = du.Password
				healed++
				logger.Warn().Str("username", su.Username).Msg("Restored missing password for default user")
			}
		}
		if !found {
			cp := *du
			*stored = append(*stored, &cp)
		}
	}
	return healed
}

// MergeGroups appends default groups missing from the stored list.
func MergeGroups(stored *[]*identity.Group, def []*identity.Group) {
	for _, dg := range def {
		found := false
		for _, sg := range *stored {
			if sg.Name == dg.Name {
				found = true
				break
			}
		}
		if !found {
			cp := *dg
			cp.Members = append([]string(nil), dg.Members...)
			*stored = append(*stored, &cp)
		}
	}
}

// recoverIdentities rebuilds the identity lists from the stored /etc files.
// Either file missing or malformed falls back to the defaults for that list;
// the tree is authoritative only when it parses cleanly.
func recoverIdentities(root *filesystem.Node, def *seed.Seed) ([]*identity.User, []*identity.Group) {
	users := def.Users
	if n := filesystem.Lookup(root, filesystem.PasswdPath); n != nil && !n.IsDir() {
		parsed, err := identity.ParsePasswd(n.Content)
		if err != nil {
			logger.Warn().Err(err).Str("path", filesystem.PasswdPath).Msg("Stored identity file is malformed, using defaults")
		} else {
			users = parsed
		}
	}

	groups := def.Groups
	if n := filesystem.Lookup(root, filesystem.GroupPath); n != nil && !n.IsDir() {
		parsed, err := identity.ParseGroup(n.Content)
		if err != nil {
			logger.Warn().Err(err).Str("path", filesystem.GroupPath).Msg("Stored identity file is malformed, using defaults")
		} else {
			groups = parsed
		}
	}

	return users, groups
}
