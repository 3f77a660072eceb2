package model

// RoleAdmin is the role that bypasses ownership scoping.
const RoleAdmin = "admin"

// User is the caller identity as supplied by the upstream auth gateway.
type User struct {
	ID   int64
	Role string
}

// IsAdmin returns true when the user can act on any owner's tasks.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }
