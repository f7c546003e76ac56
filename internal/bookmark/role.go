package bookmark

import (
	"regexp"
	"strings"
)

// Role is the semantic category of a top-level folder. Only folders with a
// role take part in synchronization.
type Role string

const (
	// RoleNone marks a top-level folder that is not synchronized.
	RoleNone Role = ""
	// RoleToolbar is the bookmarks bar / toolbar folder.
	RoleToolbar Role = "toolbar"
	// RoleOther is the catch-all "other bookmarks" folder.
	RoleOther Role = "other"
)

// Roles lists the synchronized roles in serialization order.
var Roles = []Role{RoleToolbar, RoleOther}

// String returns the role name, which doubles as its directory name.
func (r Role) String() string {
	return string(r)
}

// knownRootIDs maps vendor-assigned root folder IDs to roles.
var knownRootIDs = map[string]Role{
	// Chromium family
	"1": RoleToolbar,
	"2": RoleOther,
	// Firefox
	"toolbar_____": RoleToolbar,
	"unfiled_____": RoleOther,
}

var (
	toolbarTitle = regexp.MustCompile(`(?i)^(bookmarks? ?(bar|toolbar)|toolbar|favorites bar|lesezeichenleiste|lesezeichen-symbolleiste)$`)
	otherTitle   = regexp.MustCompile(`(?i)^(other bookmarks|other|unsorted bookmarks|unsorted|weitere lesezeichen|andere lesezeichen)$`)
)

// RoleOf derives the role of a top-level folder from its ID, falling back to
// its title when the ID is not in the known table.
func RoleOf(n *Node) Role {
	if n == nil || n.Kind != KindFolder {
		return RoleNone
	}
	if role, ok := knownRootIDs[n.ID]; ok {
		return role
	}
	title := strings.TrimSpace(n.Title)
	switch {
	case toolbarTitle.MatchString(title):
		return RoleToolbar
	case otherTitle.MatchString(title):
		return RoleOther
	default:
		return RoleNone
	}
}

// RoleFolders returns the synchronized top-level folders of root keyed by
// role. When two folders map to the same role the first one wins.
func RoleFolders(root *Node) map[Role]*Node {
	out := make(map[Role]*Node, len(Roles))
	if root == nil {
		return out
	}
	for _, child := range root.Children {
		role := RoleOf(child)
		if role == RoleNone {
			continue
		}
		if _, taken := out[role]; taken {
			continue
		}
		out[role] = child
	}
	return out
}
