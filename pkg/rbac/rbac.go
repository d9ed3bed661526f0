package rbac

// 权限常量
const (
	PermissionViewJourney    = "journey:view"
	PermissionRecordEvent    = "journey:event"
	PermissionResetProgress  = "journey:reset"
	PermissionManageJourneys = "journey:manage"
	PermissionViewOverview   = "overview:view"
	PermissionReplayOutbox   = "outbox:replay"
)

// 角色常量
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var userPermissions = []string{
	PermissionViewJourney,
	PermissionRecordEvent,
	PermissionResetProgress,
}

var rolePermissions = map[string][]string{
	RoleUser: userPermissions,
	RoleAdmin: append(append([]string{}, userPermissions...),
		PermissionManageJourneys,
		PermissionViewOverview,
		PermissionReplayOutbox,
	),
}

// RoleOf maps the stored is_admin flag to a role.
func RoleOf(isAdmin bool) string {
	if isAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// HasPermission reports whether role grants permission. Unknown roles grant nothing.
func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
