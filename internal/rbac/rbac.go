// Package rbac decides what a producer token may do.
package rbac

type Role string
type Action string

const (
	RoleReporter Role = "reporter"
	RoleViewer   Role = "viewer"
	RoleAdmin    Role = "admin"
)

const (
	ActionReport Action = "report"
	ActionRead   Action = "read"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleReporter:
		return action == ActionReport
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to RoleReporter, the role tokens
// issued without one carry.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleReporter, RoleViewer, RoleAdmin:
		return Role(role)
	default:
		return RoleReporter
	}
}

// Valid reports whether role names a known role.
func Valid(role string) bool {
	switch Role(role) {
	case RoleReporter, RoleViewer, RoleAdmin:
		return true
	default:
		return false
	}
}
