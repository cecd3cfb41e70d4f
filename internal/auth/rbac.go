package auth

import (
	"errors"
)

var (
	ErrUnauthorized = errors.New("unauthorized: insufficient permissions")
	ErrUnknownRole  = errors.New("unknown role")
)

// Role definitions
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Permission definitions
const (
	PermissionDelete      = "stream:delete"
	PermissionViewHistory = "history:read"
	PermissionMonitor     = "monitor:read"
)

// RolePermissions maps roles to their allowed permissions
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermissionDelete,
		PermissionViewHistory,
		PermissionMonitor,
	},
	RoleOperator: {
		PermissionDelete,
		PermissionViewHistory,
		PermissionMonitor,
	},
	RoleViewer: {
		PermissionViewHistory,
		PermissionMonitor,
	},
}

// HasPermission checks if user roles include the required permission
func HasPermission(userRoles []string, requiredPermission string) bool {
	for _, role := range userRoles {
		permissions, exists := RolePermissions[role]
		if !exists {
			continue
		}

		for _, perm := range permissions {
			if perm == requiredPermission {
				return true
			}
		}
	}
	return false
}

// ValidRole reports whether role is one of the defined roles
func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}

// RequirePermission builds a check for a specific permission
func RequirePermission(permission string) func(*Claims) error {
	return func(claims *Claims) error {
		if claims == nil || !HasPermission(claims.Roles, permission) {
			return ErrUnauthorized
		}
		return nil
	}
}
