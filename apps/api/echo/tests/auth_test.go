package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	. "github.com/newedu/guardian/apps/api/echo"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/user"
	testutil "github.com/newedu/guardian/tests"
)

func Test_auth_staleRoleToken(t *testing.T) {
	ctx := context.Background()
	admin := testutil.CreateUser(t, usrRepo, "+998991000001", "exadmin", testPassword, user.RoleAdmin, "")
	staleToken := getToken(t, admin)

	// demote the account; the token still claims admin
	role, err := usrRepo.EnsureRole(ctx, user.RoleStudent, "sch-auth-1")
	if err != nil {
		t.Fatalf("ensuring role: %v", err)
	}
	admin.RoleID = role.ID
	admin.Role = role
	if _, err := usrRepo.UpdateUser(ctx, admin); err != nil {
		t.Fatalf("updating user: %v", err)
	}

	body := marshalObj(t, policy.NewPolicy{Name: "stale grant", TargetRoleID: role.ID})
	rec := do(newAuthRequest(http.MethodPost, "/v1/policies", staleToken, body))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("POST /policies with stale token = %d, want %d; body: %s",
			rec.Code, http.StatusUnauthorized, rec.Body.String())
	}

	pols, err := polSvc.Query(ctx)
	if err != nil {
		t.Fatalf("querying policies: %v", err)
	}
	for _, pol := range pols {
		if pol.Name == "stale grant" {
			t.Error("policy was created despite the stale token")
		}
	}

	// a fresh token carries the demoted role and stays locked out
	rec = do(newAuthRequest(http.MethodPost, "/v1/policies", getToken(t, admin), body))
	if rec.Code != http.StatusForbidden {
		t.Errorf("POST /policies after demotion = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func Test_auth_zeroTTLToken(t *testing.T) {
	usr := testutil.CreateUser(t, usrRepo, "+998991000002", "shortlived", testPassword, user.RoleStudent, "sch-auth-2")

	claims := GetUserClaims(conf, usr)
	now := time.Now().Unix()
	claims.IssuedAt = now
	claims.ExpiresAt = now
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	rec := do(newAuthRequest(http.MethodGet, "/v1/users/me", token))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("GET /users/me with exp=iat token = %d, want %d; body: %s",
			rec.Code, http.StatusUnauthorized, rec.Body.String())
	}
}
