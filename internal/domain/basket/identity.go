package basket

import "strings"

// Role names a permission grant carried by a requester identity.
type Role string

const (
	// RoleAdmin may suspend, resume, and delist operational baskets.
	RoleAdmin Role = "admin"
	// RoleApprover may approve or reject pending baskets.
	RoleApprover Role = "approver"
	// RoleSystem marks internally generated commands (auto transitions).
	RoleSystem Role = "system"
)

// Identity is the pre-authenticated requester attached to a command.
// Authentication itself happens upstream; the core only consults roles.
type Identity struct {
	ID    string `json:"id"`
	Roles []Role `json:"roles,omitempty"`
}

// HasRole reports whether the identity carries the given role.
func (i Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Is reports whether the identity names the given principal.
func (i Identity) Is(id string) bool {
	return strings.TrimSpace(i.ID) != "" && i.ID == id
}

// SystemIdentity is the principal used for coordinator-initiated commands.
func SystemIdentity() Identity {
	return Identity{ID: "system", Roles: []Role{RoleSystem, RoleAdmin}}
}
