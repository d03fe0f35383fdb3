// Copyright (c) 2026 Townhub. All rights reserved.

package sec

import "regexp"

// # Authorization Engine
//
// Pure decision functions over an authenticated [Principal]. All persistence
// (loading grants and ownership sets) is the caller's concern; keeping the
// engine side-effect-free makes the authorization matrix trivially testable.

var (
	// permissionPattern is the closed vocabulary shape for permission
	// strings: dot-free lowercase segments joined by colons, e.g.
	// "business:update" or "directory:listing:moderate".
	permissionPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(:[a-z][a-z0-9_]*){0,3}$`)

	// resourceIDPattern matches the UUID primary keys used for every
	// ownable resource in the directory.
	resourceIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// maxPermissionLength bounds permission strings before regex matching.
const maxPermissionLength = 64

// Principal is the authenticated identity view consumed by the engine.
//
// Permissions and OwnedResources may be nil; a nil set denies everything it
// guards, it never errors.
type Principal struct {
	ID             string
	Role           Role
	Permissions    []string
	OwnedResources []string
}

/*
HasPermission reports whether the principal holds the named permission.

Description: Super-administrators hold every permission unconditionally.
Administrators hold ONLY the permissions present in their explicit grant set —
the role name alone never implies a grant. Owners and members hold none.

A malformed permission string (control characters, delimiters, unexpected
length — anything outside the closed vocabulary shape) denies immediately
rather than being compared loosely.

A nil principal is a caller programming error and panics loudly; "no identity"
must never be silently conflated with "identity without the permission".
*/
func HasPermission(principal *Principal, permission string) bool {
	if principal == nil {
		panic("sec: HasPermission called with nil principal")
	}

	if !principal.Role.IsValid() || !validPermission(permission) {
		return false
	}

	if principal.Role == RoleSuperAdmin {
		return true
	}
	if principal.Role != RoleAdmin {
		return false
	}

	for _, granted := range principal.Permissions {
		if granted == permission {
			return true
		}
	}
	return false
}

/*
CanAccessResource reports whether the principal may act on the resource.

Description: Super-administrators and administrators may access every
resource. Owners may access a resource only if its id appears in their
owned-resource set (empty or nil set denies). Members may access none.

Malformed resource identifiers — anything that is not a lowercase UUID —
deny immediately; injection-shaped input never reaches a comparison.

A nil principal panics, same as [HasPermission].
*/
func CanAccessResource(principal *Principal, resourceID string) bool {
	if principal == nil {
		panic("sec: CanAccessResource called with nil principal")
	}

	if !principal.Role.IsValid() || !resourceIDPattern.MatchString(resourceID) {
		return false
	}

	switch principal.Role {
	case RoleSuperAdmin, RoleAdmin:
		return true
	case RoleOwner:
		for _, owned := range principal.OwnedResources {
			if owned == resourceID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// validPermission checks a permission string against the closed vocabulary
// shape. Length is bounded first so pathological input never reaches the
// regex engine.
func validPermission(permission string) bool {
	if permission == "" || len(permission) > maxPermissionLength {
		return false
	}
	return permissionPattern.MatchString(permission)
}
