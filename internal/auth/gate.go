package auth

// All predicates fail closed: a nil principal, an empty role set or an
// empty permission set is a denial.

// HasRole reports whether the principal belongs to any of roles.
func HasRole(p *Principal, roles ...Role) bool {
	if p == nil || len(p.Groups) == 0 || len(roles) == 0 {
		return false
	}
	for _, want := range roles {
		for _, have := range p.Groups {
			if have == want {
				return true
			}
		}
	}
	return false
}

// HasPermission reports whether the principal holds perm.
func HasPermission(p *Principal, perm Permission) bool {
	if p == nil || len(p.Permissions) == 0 {
		return false
	}
	_, ok := p.Permissions[perm]
	return ok
}

// HasAnyPermission requires at least one of perms.
func HasAnyPermission(p *Principal, perms ...Permission) bool {
	for _, perm := range perms {
		if HasPermission(p, perm) {
			return true
		}
	}
	return false
}

// HasAllPermissions requires every one of perms. An empty list is denied.
func HasAllPermissions(p *Principal, perms ...Permission) bool {
	if len(perms) == 0 {
		return false
	}
	for _, perm := range perms {
		if !HasPermission(p, perm) {
			return false
		}
	}
	return true
}

// Requirement combines the predicates. Every non-empty clause must hold.
type Requirement struct {
	AnyOf []Permission
	AllOf []Permission
	Roles []Role
}

// Authorize evaluates req against p. A requirement with no clauses is denied.
func Authorize(p *Principal, req Requirement) bool {
	if len(req.AnyOf) == 0 && len(req.AllOf) == 0 && len(req.Roles) == 0 {
		return false
	}
	if len(req.AnyOf) > 0 && !HasAnyPermission(p, req.AnyOf...) {
		return false
	}
	if len(req.AllOf) > 0 && !HasAllPermissions(p, req.AllOf...) {
		return false
	}
	if len(req.Roles) > 0 && !HasRole(p, req.Roles...) {
		return false
	}
	return true
}
