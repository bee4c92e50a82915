package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleInheritance(t *testing.T) {
	chain := Roles()
	for i := 0; i < len(chain); i++ {
		for j := i + 1; j < len(chain); j++ {
			lower, higher := chain[i], chain[j]
			for _, p := range PermissionsOf(lower) {
				_, ok := rolePermissions[higher][p]
				assert.True(t, ok, "%s should inherit %s from %s", higher, p, lower)
			}
		}
	}
}

func TestPermissionsForRoles_OrderAndDuplicates(t *testing.T) {
	a := PermissionsForRoles([]Role{RoleUser, RoleOrganizer})
	b := PermissionsForRoles([]Role{RoleOrganizer, RoleUser, RoleOrganizer})

	assert.Equal(t, a, b)
	assert.Equal(t, rolePermissions[RoleOrganizer], a)
}

func TestPermissionsForRoles_UnknownAndEmpty(t *testing.T) {
	assert.Empty(t, PermissionsForRoles(nil))
	assert.Empty(t, PermissionsForRoles([]Role{"root", "staff"}))
}

func TestPermissionsForRoles_DoesNotAliasTable(t *testing.T) {
	perms := PermissionsForRoles([]Role{RoleUser})
	delete(perms, PermEventsRead)

	assert.Contains(t, rolePermissions[RoleUser], PermEventsRead)
}

func TestFailClosed(t *testing.T) {
	empty := &Principal{UserID: "u1"}
	noGroups := NewPrincipal("u2", "", nil, "")

	for _, p := range []*Principal{nil, empty, noGroups} {
		for _, r := range Roles() {
			assert.False(t, HasRole(p, r))
		}
		assert.False(t, HasPermission(p, PermEventsRead))
		assert.False(t, HasAnyPermission(p, PermEventsRead, PermTicketsScan))
		assert.False(t, HasAllPermissions(p, PermEventsRead))
		assert.False(t, Authorize(p, Requirement{AnyOf: []Permission{PermEventsRead}}))
	}
}

func TestPredicates(t *testing.T) {
	organizer := NewPrincipal("u1", "Olga", []string{"Organizer"}, "")

	assert.True(t, HasRole(organizer, RoleOrganizer))
	assert.True(t, HasRole(organizer, RoleAdmin, RoleOrganizer))
	assert.False(t, HasRole(organizer, RoleAdmin))
	assert.False(t, HasRole(organizer))

	assert.True(t, HasPermission(organizer, PermTicketsScan))
	assert.False(t, HasPermission(organizer, PermCheckInOverride))

	assert.True(t, HasAnyPermission(organizer, PermCheckInOverride, PermCheckInPerform))
	assert.False(t, HasAnyPermission(organizer))

	assert.True(t, HasAllPermissions(organizer, PermTicketsScan, PermCheckInPerform))
	assert.False(t, HasAllPermissions(organizer, PermTicketsScan, PermCheckInOverride))
	assert.False(t, HasAllPermissions(organizer))
}

func TestAuthorize(t *testing.T) {
	admin := NewPrincipal("u1", "", []string{"admin"}, "")

	assert.True(t, Authorize(admin, Requirement{AllOf: []Permission{PermCheckInOverride, PermTicketsScan}}))
	assert.True(t, Authorize(admin, Requirement{Roles: []Role{RoleAdmin}, AnyOf: []Permission{PermUsersRead}}))
	assert.False(t, Authorize(admin, Requirement{Roles: []Role{RoleSuperAdmin}}))
	assert.False(t, Authorize(admin, Requirement{}))
}

func TestNewPrincipal_ClaimNarrowsOnly(t *testing.T) {
	p := NewPrincipal("u1", "", []string{"organizer"}, "tickets:scan, checkin:override")

	assert.True(t, HasPermission(p, PermTicketsScan))
	// Claimed but not granted by any group.
	assert.False(t, HasPermission(p, PermCheckInOverride))
	// Granted by group but not claimed.
	assert.False(t, HasPermission(p, PermCheckInPerform))
}

func TestNewPrincipal_AbsentClaimDerivesFromGroups(t *testing.T) {
	p := NewPrincipal("u1", "", []string{" USER ", "unknown"}, "  ")

	assert.Equal(t, PermissionsOf(RoleUser), p.PermissionList())
	assert.True(t, HasRole(p, RoleUser))
}

func TestPrincipalContext(t *testing.T) {
	assert.Nil(t, PrincipalFromContext(context.Background()))

	p := NewPrincipal("u1", "", []string{"user"}, "")
	ctx := ContextWithPrincipal(context.Background(), p)
	require.NotNil(t, PrincipalFromContext(ctx))
	assert.Equal(t, "u1", PrincipalFromContext(ctx).UserID)
}
