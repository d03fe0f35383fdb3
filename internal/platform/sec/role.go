// Copyright (c) 2026 Townhub. All rights reserved.

package sec

// # User Roles

// Role represents the authorization level granted to an account.
//
// The set is closed: any string outside the four constants below is treated
// as invalid by every comparison in this package, never as a silently-falsy
// unknown role.
type Role string

const (
	// Unrestricted system access; implies every permission and resource
	RoleSuperAdmin Role = "superadmin"

	// Operational staff; holds only its explicitly granted permissions
	RoleAdmin Role = "admin"

	// Can manage the directory listings they own (businesses, events, jobs)
	RoleOwner Role = "owner"

	// Default role for standard registered users
	RoleMember Role = "member"
)

// IsValid reports whether the role belongs to the closed enumeration.
func (r Role) IsValid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleOwner, RoleMember:
		return true
	}
	return false
}

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
//
// This expresses only the coarse route-level hierarchy (e.g. "admin area").
// Fine-grained permission and ownership decisions go through [HasPermission]
// and [CanAccessResource] instead — a role name alone never implies a
// specific permission grant.
func (r Role) AtLeast(target Role) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r Role) level() int {

	// Linear scale (10-40) allows for future intermediate roles
	switch r {
	case RoleSuperAdmin:
		return 40
	case RoleAdmin:
		return 30
	case RoleOwner:
		return 20
	case RoleMember:
		return 10
	default:
		return 0
	}
}
