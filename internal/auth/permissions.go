package auth

import "sort"

// Role is a coarse group issued by the identity provider.
type Role string

const (
	RoleUser       Role = "user"
	RoleOrganizer  Role = "organizer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Permission is a fine-grained capability derived from roles.
type Permission string

const (
	PermEventsRead        Permission = "events:read"
	PermBookingsCreate    Permission = "bookings:create"
	PermBookingsReadOwn   Permission = "bookings:read:own"
	PermProfileUpdateOwn  Permission = "profile:update:own"
	PermTicketsViewOwn    Permission = "tickets:view:own"
	PermEventsCreate      Permission = "events:create"
	PermEventsUpdateOwn   Permission = "events:update:own"
	PermBookingsReadEvent Permission = "bookings:read:event"
	PermTicketsMint       Permission = "tickets:mint"
	PermTicketsScan       Permission = "tickets:scan"
	PermCheckInPerform    Permission = "checkin:perform"
	PermEventsManage      Permission = "events:manage"
	PermBookingsManage    Permission = "bookings:manage"
	PermUsersRead         Permission = "users:read"
	PermCheckInOverride   Permission = "checkin:override"
	PermUsersManage       Permission = "users:manage"
	PermRolesManage       Permission = "roles:manage"
	PermSystemConfigure   Permission = "system:configure"
)

// rolePermissions is built once at init. Each role is composed from the
// role below it, so the superset relation holds by construction.
var rolePermissions = buildRolePermissions()

func buildRolePermissions() map[Role]map[Permission]struct{} {
	user := []Permission{
		PermEventsRead,
		PermBookingsCreate,
		PermBookingsReadOwn,
		PermProfileUpdateOwn,
		PermTicketsViewOwn,
	}
	organizer := append(clone(user),
		PermEventsCreate,
		PermEventsUpdateOwn,
		PermBookingsReadEvent,
		PermTicketsMint,
		PermTicketsScan,
		PermCheckInPerform,
	)
	admin := append(clone(organizer),
		PermEventsManage,
		PermBookingsManage,
		PermUsersRead,
		PermCheckInOverride,
	)
	superAdmin := append(clone(admin),
		PermUsersManage,
		PermRolesManage,
		PermSystemConfigure,
	)

	return map[Role]map[Permission]struct{}{
		RoleUser:       toSet(user),
		RoleOrganizer:  toSet(organizer),
		RoleAdmin:      toSet(admin),
		RoleSuperAdmin: toSet(superAdmin),
	}
}

// Roles lists the known roles from least to most privileged.
func Roles() []Role {
	return []Role{RoleUser, RoleOrganizer, RoleAdmin, RoleSuperAdmin}
}

// PermissionsOf returns a sorted copy of the static permission list of a role.
func PermissionsOf(r Role) []Permission {
	return sortedKeys(rolePermissions[r])
}

// PermissionsForRoles is the union of the permissions of every known role
// in roles. Unknown roles contribute nothing; order and duplicates do not matter.
func PermissionsForRoles(roles []Role) map[Permission]struct{} {
	out := make(map[Permission]struct{})
	for _, r := range roles {
		for p := range rolePermissions[r] {
			out[p] = struct{}{}
		}
	}
	return out
}

func clone(ps []Permission) []Permission {
	return append([]Permission(nil), ps...)
}

func toSet(ps []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(ps))
	for _, p := range ps {
		set[p] = struct{}{}
	}
	return set
}

func sortedKeys(set map[Permission]struct{}) []Permission {
	out := make([]Permission, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
