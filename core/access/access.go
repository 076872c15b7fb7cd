// Package access centralizes role-based authorization: a single declarative
// table mapping operations to the roles allowed to perform them. Handlers and
// services consult the gate once per operation instead of repeating ad-hoc
// role checks.
package access

import (
	"errors"

	"github.com/newedu/guardian/core/user"
)

var ErrPermissionDenied = errors.New("permission denied")

// Operation names a protected capability, grouped by resource.
type Operation string

const (
	// account administration
	OpUserRead  Operation = "user:read"
	OpUserWrite Operation = "user:write"

	// profile management
	OpProfileRead  Operation = "profile:read"
	OpProfileWrite Operation = "profile:write"

	// catalog (apps & websites)
	OpCatalogRead  Operation = "catalog:read"
	OpCatalogWrite Operation = "catalog:write"

	// install tracking
	OpInstallWrite Operation = "install:write"

	// blocking status & rules
	OpBlockingRead Operation = "blocking:read"

	// policies
	OpPolicyRead  Operation = "policy:read"
	OpPolicyWrite Operation = "policy:write"

	// activity logs
	OpLogWrite Operation = "log:write"
	OpLogRead  Operation = "log:read"

	// app-unblock requests
	OpRequestSubmit Operation = "request:submit"
	OpRequestRead   Operation = "request:read"
	OpRequestReview Operation = "request:review"

	// devices
	OpDeviceManage Operation = "device:manage"

	// schools & locations
	OpSchoolRead  Operation = "school:read"
	OpSchoolWrite Operation = "school:write"

	// user preferences
	OpPreferenceRead  Operation = "preference:read"
	OpPreferenceWrite Operation = "preference:write"
)

var anyAuthenticated = []string{user.RoleStudent, user.RoleParent, user.RoleTeacher, user.RoleAdmin}

// permissions is the authorization table. Absence means deny.
var permissions = map[Operation][]string{
	OpUserRead:  {user.RoleAdmin},
	OpUserWrite: {user.RoleAdmin},

	OpProfileRead:  {user.RoleStudent, user.RoleParent, user.RoleAdmin},
	OpProfileWrite: {user.RoleStudent, user.RoleParent},

	OpCatalogRead:  anyAuthenticated,
	OpCatalogWrite: {user.RoleAdmin},

	OpInstallWrite: {user.RoleStudent},

	OpBlockingRead: {user.RoleStudent},

	OpPolicyRead:  anyAuthenticated,
	OpPolicyWrite: {user.RoleAdmin},

	OpLogWrite: {user.RoleStudent},
	OpLogRead:  {user.RoleParent, user.RoleAdmin},

	OpRequestSubmit: {user.RoleStudent},
	OpRequestRead:   {user.RoleStudent, user.RoleParent, user.RoleAdmin},
	OpRequestReview: {user.RoleAdmin},

	OpDeviceManage: {user.RoleStudent, user.RoleParent},

	OpSchoolRead:  anyAuthenticated,
	OpSchoolWrite: {user.RoleAdmin},

	OpPreferenceRead:  anyAuthenticated,
	OpPreferenceWrite: anyAuthenticated,
}

// Can reports whether the given role may perform op. It either fully permits
// or rejects; data-level narrowing (self-only, own children) stays with the
// owning service.
func Can(roleName string, op Operation) error {
	for _, allowed := range permissions[op] {
		if roleName == allowed {
			return nil
		}
	}
	return ErrPermissionDenied
}
