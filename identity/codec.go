package identity

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// ParsePasswd parses passwd-format text (username:password:uid:gid:fullName:homeDir:shell,
// one record per line) into user records. Blank lines are skipped. A malformed
// line fails the whole parse; callers fall back to their in-memory state.
func ParsePasswd(text string) ([]*User, error) {
	var users []*User

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) != 7 {
			return nil, fmt.Errorf("malformed passwd line, contains %d parts, expecting 7", len(parts))
		}

		uid, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("failed to parse uid %q", parts[2])
		}
		gid, err := strconv.Atoi(parts[3])
		if err != nil {
			return nil, fmt.Errorf("failed to parse gid %q", parts[3])
		}

		users = append(users, &User{
			Username: parts[0],
			Password: parts[1],
			UID:      uid,
			GID:      gid,
			FullName: parts[4],
			HomeDir:  parts[5],
			Shell:    parts[6],
		})
	}

	return users, nil
}

// FormatPasswd serializes user records back to passwd-format text.
// Round-trips with ParsePasswd byte for byte.
func FormatPasswd(users []*User) string {
	var b strings.Builder
	for _, u := range users {
		fmt.Fprintf(&b, "%s:%s:%d:%d:%s:%s:%s\n", u.Username, u.Password, u.UID, u.GID, u.FullName, u.HomeDir, u.Shell)
	}
	return b.String()
}

// ParseGroup parses group-format text (groupname:password:gid:member1,member2)
// into group records.
func ParseGroup(text string) ([]*Group, error) {
	var groups []*Group

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("malformed group line, contains %d parts, expecting 4", len(parts))
		}

		gid, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("failed to parse gid %q", parts[2])
		}

		var members []string
		if parts[3] != "" {
			members = strings.Split(parts[3], ",")
		}

		groups = append(groups, &Group{
			Name:     parts[0],
			Password: parts[1],
			GID:      gid,
			Members:  members,
		})
	}

	return groups, nil
}

// FormatGroup serializes group records back to group-format text.
func FormatGroup(groups []*Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "%s:%s:%d:%s\n", g.Name, g.Password, g.GID, strings.Join(g.Members, ","))
	}
	return b.String()
}
