// Package permission maps membership roles to allowed actions. The sync
// engine resolves a user's checker; callers enforce it.
package permission

import "github.com/nhle/workera/internal/model"

// Action is something a user may attempt on a workspace or board.
type Action string

const (
	ViewBoard       Action = "view_board"
	EditItems       Action = "edit_items"
	EditStructure   Action = "edit_structure"
	DeleteBoard     Action = "delete_board"
	InviteMembers   Action = "invite_members"
	ManageMembers   Action = "manage_members"
	DeleteWorkspace Action = "delete_workspace"
)

var grants = map[string][]Action{
	model.RoleViewer: {ViewBoard},
	model.RoleEditor: {ViewBoard, EditItems, EditStructure, InviteMembers},
	model.RoleOwner:  {ViewBoard, EditItems, EditStructure, DeleteBoard, InviteMembers, ManageMembers, DeleteWorkspace},
}

// Checker answers permission questions for one role.
type Checker struct {
	Role string
}

// For returns the checker of a membership. A nil membership has no rights.
func For(m *model.Membership) Checker {
	if m == nil {
		return Checker{}
	}
	return Checker{Role: m.Role}
}

// Owner returns the checker of an entity owner.
func Owner() Checker {
	return Checker{Role: model.RoleOwner}
}

// Can reports whether the role allows action.
func (c Checker) Can(action Action) bool {
	for _, a := range grants[c.Role] {
		if a == action {
			return true
		}
	}
	return false
}

// ValidRole reports whether role is a known membership role.
func ValidRole(role string) bool {
	_, ok := grants[role]
	return ok
}
