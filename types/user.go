package types

import "strings"

// Role indicates a caller's authorization level as asserted by the
// identity provider.
type Role string

// Known roles.
const (
	RoleUser          Role = "user"
	RoleProblemsetter Role = "problemsetter"
	RoleAdmin         Role = "admin"
)

// ParseRole normalises a role claim. Unknown or empty roles are treated as
// RoleUser.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleProblemsetter:
		return RoleProblemsetter
	default:
		return RoleUser
	}
}
