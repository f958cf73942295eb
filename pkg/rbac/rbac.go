package rbac

// Permission constants.
const (
	PermissionReadNotifications  = "notifications:read"
	PermissionWriteNotifications = "notifications:write"
	PermissionWritePreferences   = "preferences:write"
	PermissionRunTriggers        = "triggers:run"
	PermissionReadFailedJobs     = "failed_jobs:read"
)

// Role constants.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var rolePermissions = map[string][]string{
	RoleUser: {
		PermissionReadNotifications,
		PermissionWriteNotifications,
		PermissionWritePreferences,
	},
	RoleAdmin: {
		PermissionReadNotifications,
		PermissionWriteNotifications,
		PermissionWritePreferences,
		PermissionRunTriggers,
		PermissionReadFailedJobs,
	},
}

// HasPermission checks whether a role grants a permission.
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission returns an error when the role lacks the permission.
func CheckPermission(role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError reports a denied permission check.
type PermissionDeniedError struct {
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}
