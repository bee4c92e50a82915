package auth

import (
	"context"
	"strings"
)

// Principal is who is asking. It belongs to a single request and is never
// cached across requests.
type Principal struct {
	UserID      string
	Name        string
	Groups      []Role
	Permissions map[Permission]struct{}
}

// NewPrincipal derives permissions locally from groups. When the identity
// provider also supplied a permission claim, the claim can only narrow the
// derived set.
func NewPrincipal(userID, name string, groups []string, claimedPermissions string) *Principal {
	roles := make([]Role, 0, len(groups))
	for _, g := range groups {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			roles = append(roles, Role(g))
		}
	}

	perms := PermissionsForRoles(roles)
	if claimed := ParsePermissionClaim(claimedPermissions); claimed != nil {
		for p := range perms {
			if _, ok := claimed[p]; !ok {
				delete(perms, p)
			}
		}
	}

	return &Principal{
		UserID:      userID,
		Name:        name,
		Groups:      roles,
		Permissions: perms,
	}
}

// ParsePermissionClaim splits a comma-separated permission claim. An absent
// claim returns nil so callers can tell it from an empty one.
func ParsePermissionClaim(claim string) map[Permission]struct{} {
	if strings.TrimSpace(claim) == "" {
		return nil
	}
	out := make(map[Permission]struct{})
	for _, p := range strings.Split(claim, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[Permission(p)] = struct{}{}
		}
	}
	return out
}

// PermissionList returns the principal's permissions sorted.
func (p *Principal) PermissionList() []Permission {
	if p == nil {
		return nil
	}
	return sortedKeys(p.Permissions)
}

type ctxKey struct{}

// ContextWithPrincipal attaches the authenticated principal to ctx.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFromContext returns nil when the request is unauthenticated.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}
