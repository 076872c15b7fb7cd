package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/user"
)

var initOnce sync.Once

// InitValidators wires the package validators exactly once per test binary.
func InitValidators() {
	initOnce.Do(func() {
		core.InitValidators()
		user.InitValidators()
	})
}

// CreateUser inserts a user with the given role directly through the
// repository, bypassing registration side effects.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	phone, uname, pwd, roleName, schoolID string,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}

	ctx := context.Background()
	role, err := repo.EnsureRole(ctx, roleName, schoolID)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}

	usr := user.User{
		PhoneNumber: phone,
		Username:    uname,
		RoleID:      role.ID,
		CreatedAt:   tstamp,
		UpdatedAt:   tstamp,
		Role:        role,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err = repo.CreateUser(ctx, usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr.Role = role
	return usr
}
