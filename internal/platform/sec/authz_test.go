// Copyright (c) 2026 Townhub. All rights reserved.

package sec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/townhubhq/townhub/internal/platform/sec"
)

const (
	resourceA = "0190b3a2-7c4d-7e00-8000-000000000001"
	resourceB = "0190b3a2-7c4d-7e00-8000-000000000002"
)

/*
TestAuthorization_Matrix exercises the full role/permission/resource matrix:
superadmin has everything, admin has exactly its grants plus all resources,
owner has no permissions and exactly its owned resources, member has neither.
*/
func TestAuthorization_Matrix(t *testing.T) {
	superadmin := &sec.Principal{ID: "u1", Role: sec.RoleSuperAdmin}
	admin := &sec.Principal{ID: "u2", Role: sec.RoleAdmin, Permissions: []string{"business:moderate"}}
	owner := &sec.Principal{ID: "u3", Role: sec.RoleOwner, OwnedResources: []string{resourceA}}
	member := &sec.Principal{ID: "u4", Role: sec.RoleMember}

	tests := []struct {
		name          string
		principal     *sec.Principal
		permission    string
		hasPermission bool
		resource      string
		canAccess     bool
	}{
		{"superadmin_any_permission", superadmin, "anything:at_all", true, resourceA, true},
		{"superadmin_unowned_resource", superadmin, "business:moderate", true, resourceB, true},
		{"admin_granted_permission", admin, "business:moderate", true, resourceA, true},
		{"admin_ungranted_permission", admin, "business:delete", false, resourceB, true},
		{"owner_owned_resource", owner, "business:moderate", false, resourceA, true},
		{"owner_unowned_resource", owner, "business:moderate", false, resourceB, false},
		{"member_denied_everywhere", member, "business:moderate", false, resourceA, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.hasPermission, sec.HasPermission(tt.principal, tt.permission))
			assert.Equal(t, tt.canAccess, sec.CanAccessResource(tt.principal, tt.resource))
		})
	}
}

/*
TestAuthorization_EmptySetsDeny verifies nil/empty grant and ownership sets
yield denial, never an error.
*/
func TestAuthorization_EmptySetsDeny(t *testing.T) {
	adminNoGrants := &sec.Principal{ID: "u1", Role: sec.RoleAdmin}
	assert.False(t, sec.HasPermission(adminNoGrants, "business:moderate"))

	ownerNothingOwned := &sec.Principal{ID: "u2", Role: sec.RoleOwner, OwnedResources: []string{}}
	assert.False(t, sec.CanAccessResource(ownerNothingOwned, resourceA))
}

/*
TestAuthorization_MalformedInputsDeny ensures injection-shaped or malformed
inputs short-circuit to denial before any comparison, even for superadmins'
permission checks would otherwise succeed — the vocabulary comes first.
*/
func TestAuthorization_MalformedInputsDeny(t *testing.T) {
	superadmin := &sec.Principal{ID: "u1", Role: sec.RoleSuperAdmin}
	owner := &sec.Principal{ID: "u2", Role: sec.RoleOwner, OwnedResources: []string{"not-a-uuid"}}

	badPermissions := []struct {
		name       string
		permission string
	}{
		{"empty", ""},
		{"control_characters", "business:\x00moderate"},
		{"line_break", "business:moderate\n"},
		{"uppercase", "Business:Moderate"},
		{"sql_delimiters", "business;drop table"},
		{"overlong", string(make([]byte, 300))},
	}

	for _, tt := range badPermissions {
		t.Run("permission_"+tt.name, func(t *testing.T) {
			assert.False(t, sec.HasPermission(superadmin, tt.permission))
		})
	}

	badResources := []struct {
		name     string
		resource string
	}{
		{"empty", ""},
		{"not_uuid", "business-42"},
		{"null_byte", resourceA + "\x00"},
		{"uppercase_uuid", "0190B3A2-7C4D-7E00-8000-000000000001"},
	}

	for _, tt := range badResources {
		t.Run("resource_"+tt.name, func(t *testing.T) {
			assert.False(t, sec.CanAccessResource(superadmin, tt.resource))
		})
	}

	// A malformed id stored in the ownership set can never be matched,
	// because the incoming id is validated first.
	assert.False(t, sec.CanAccessResource(owner, "not-a-uuid"))
}

/*
TestAuthorization_UnknownRoleDenies ensures a role outside the closed
enumeration denies instead of being treated loosely.
*/
func TestAuthorization_UnknownRoleDenies(t *testing.T) {
	impostor := &sec.Principal{ID: "u1", Role: sec.Role("root")}
	assert.False(t, sec.HasPermission(impostor, "business:moderate"))
	assert.False(t, sec.CanAccessResource(impostor, resourceA))
}

/*
TestAuthorization_NilPrincipalPanics documents that passing an absent
identity is a programming error, distinct from an identity lacking access.
*/
func TestAuthorization_NilPrincipalPanics(t *testing.T) {
	assert.Panics(t, func() { sec.HasPermission(nil, "business:moderate") })
	assert.Panics(t, func() { sec.CanAccessResource(nil, resourceA) })
}
