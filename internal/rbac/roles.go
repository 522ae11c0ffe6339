package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleAdmin may read and mutate everything on the admin surface.
	RoleAdmin = "admin"
	// RoleSupport may read accounts and usage but never mutate.
	RoleSupport = "support"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Known reports whether the role is one this service issues.
func Known(role string) bool {
	return role == RoleAdmin || role == RoleSupport
}
