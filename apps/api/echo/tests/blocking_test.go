package tests

import (
	"context"
	"net/http"
	"testing"

	. "github.com/newedu/guardian/apps/api/echo"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/user"
	testutil "github.com/newedu/guardian/tests"
)

// seeds a student with an installed app and a blacklist policy on the
// student's role. The school ID is unique per test so policies never leak
// across tests.
type blockingFixture struct {
	student user.User
	parent  user.User
	admin   user.User
	app     catalog.App
	pol     policy.Policy
}

func setupBlocking(t *testing.T, schoolID string) blockingFixture {
	t.Helper()
	ctx := context.Background()

	f := blockingFixture{
		student: testutil.CreateUser(t, usrRepo, "+99893"+schoolID[len(schoolID)-7:], "blk"+schoolID[len(schoolID)-7:], testPassword, user.RoleStudent, schoolID),
		parent:  testutil.CreateUser(t, usrRepo, "+99894"+schoolID[len(schoolID)-7:], "blkp"+schoolID[len(schoolID)-7:], testPassword, user.RoleParent, ""),
		admin:   testutil.CreateUser(t, usrRepo, "+99895"+schoolID[len(schoolID)-7:], "blka"+schoolID[len(schoolID)-7:], testPassword, user.RoleAdmin, ""),
	}

	app, err := catSvc.UpsertApp(ctx, catalog.NewApp{
		Name:        "TikTok",
		Package:     "com.zhiliaoapp.musically." + schoolID,
		GeneralType: catalog.GeneralTypeSocial,
	})
	if err != nil {
		t.Fatalf("upserting app: %v", err)
	}
	f.app = app
	if _, err := catSvc.RecordInstall(ctx, f.student.ID, app.ID); err != nil {
		t.Fatalf("recording install: %v", err)
	}

	pol, err := polSvc.Create(ctx, policy.NewPolicy{
		Name:         "blacklist " + schoolID,
		TargetRoleID: f.student.RoleID,
	})
	if err != nil {
		t.Fatalf("creating policy: %v", err)
	}
	f.pol = pol
	if _, err := polSvc.AddAppEntry(ctx, policy.NewEntry{PolicyID: pol.ID, TargetID: app.ID}); err != nil {
		t.Fatalf("adding entry: %v", err)
	}
	return f
}

func Test_blockingApi_check(t *testing.T) {
	f := setupBlocking(t, "sch-1000001")
	body := marshalObj(t, CheckRequest{Kind: "app", TargetID: f.app.ID})

	rec := do(newAuthRequest(http.MethodPost, "/v1/blocking/check", getToken(t, f.student), body))
	if rec.Code != http.StatusOK {
		t.Fatalf("check = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var dec policy.Decision
	decodeObj(t, rec.Body, &dec)
	want := policy.Decision{Blocked: true, Reason: policy.ReasonBlacklisted}
	if dec != want {
		t.Errorf("check decision = %+v, want %+v", dec, want)
	}

	// the endpoint serves device agents, which only students run
	for _, usr := range []user.User{f.parent, f.admin} {
		rec := do(newAuthRequest(http.MethodPost, "/v1/blocking/check", getToken(t, usr), body))
		if rec.Code != http.StatusForbidden {
			t.Errorf("check as %s = %d, want %d", usr.Role.Name, rec.Code, http.StatusForbidden)
		}
	}

	rec = do(newRequest(http.MethodPost, "/v1/blocking/check", body))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("check without token = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func Test_blockingApi_status(t *testing.T) {
	f := setupBlocking(t, "sch-1000002")

	rec := do(newAuthRequest(http.MethodGet, "/v1/blocking/status", getToken(t, f.student)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var st policy.Status
	decodeObj(t, rec.Body, &st)
	if st.SchoolHours {
		t.Error("status reports school hours for a policy without a window")
	}
	dec, ok := st.BlockedApps[f.app.ID]
	if !ok || !dec.Blocked || dec.Reason != policy.ReasonBlacklisted {
		t.Errorf("status blocked apps = %+v", st.BlockedApps)
	}
}

func Test_approvalApi_flow(t *testing.T) {
	f := setupBlocking(t, "sch-1000003")
	studentToken := getToken(t, f.student)
	adminToken := getToken(t, f.admin)

	// only students ask for exceptions
	submitBody := marshalObj(t, approval.NewRequest{AppID: f.app.ID, Reason: "needed for a class project"})
	rec := do(newAuthRequest(http.MethodPost, "/v1/requests", adminToken, submitBody))
	if rec.Code != http.StatusForbidden {
		t.Errorf("submit as admin = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = do(newAuthRequest(http.MethodPost, "/v1/requests", studentToken, submitBody))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit = %d, want %d; body: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	var req approval.Request
	decodeObj(t, rec.Body, &req)
	if req.Status != approval.StatusPending || req.UserID != f.student.ID {
		t.Fatalf("submitted request = %+v", req)
	}

	// reviewing is an admin operation
	reviewBody := marshalObj(t, approval.Review{Basis: "supervised use"})
	rec = do(newAuthRequest(http.MethodPost, "/v1/requests/"+req.ID+"/approve", studentToken, reviewBody))
	if rec.Code != http.StatusForbidden {
		t.Errorf("approve as student = %d, want %d", rec.Code, http.StatusForbidden)
	}

	rec = do(newAuthRequest(http.MethodPost, "/v1/requests/"+req.ID+"/approve", adminToken, reviewBody))
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d, want %d; body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var approved approval.Request
	decodeObj(t, rec.Body, &approved)
	if approved.Status != approval.StatusApproved || approved.ReviewerID.String != f.admin.ID {
		t.Errorf("approved request = %+v", approved)
	}

	// the granted exception lifts the blacklist
	rec = do(newAuthRequest(http.MethodPost, "/v1/blocking/check", studentToken,
		marshalObj(t, CheckRequest{Kind: "app", TargetID: f.app.ID})))
	if rec.Code != http.StatusOK {
		t.Fatalf("check after approve = %d; body: %s", rec.Code, rec.Body.String())
	}
	var dec policy.Decision
	decodeObj(t, rec.Body, &dec)
	want := policy.Decision{Blocked: false, Reason: policy.ReasonException}
	if dec != want {
		t.Errorf("check after approve = %+v, want %+v", dec, want)
	}

	// approving a closed request conflicts
	rec = do(newAuthRequest(http.MethodPost, "/v1/requests/"+req.ID+"/deny", adminToken, reviewBody))
	if rec.Code != http.StatusConflict {
		t.Errorf("deny closed = %d, want %d", rec.Code, http.StatusConflict)
	}

	rec = do(newAuthRequest(http.MethodGet, "/v1/requests/"+req.ID+"/logs", adminToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("logs = %d; body: %s", rec.Code, rec.Body.String())
	}
	var logs []approval.Log
	decodeObj(t, rec.Body, &logs)
	if len(logs) != 1 || logs[0].StatusTo != approval.StatusApproved {
		t.Errorf("logs = %+v", logs)
	}

	rec = do(newAuthRequest(http.MethodGet, "/v1/requests/"+req.ID+"/logs", studentToken))
	if rec.Code != http.StatusForbidden {
		t.Errorf("logs as student = %d, want %d", rec.Code, http.StatusForbidden)
	}
}

func Test_approvalApi_studentSeesOwn(t *testing.T) {
	f := setupBlocking(t, "sch-1000004")
	other := testutil.CreateUser(t, usrRepo, "+998961000004", "blkother", testPassword, user.RoleStudent, "sch-1000004b")

	rec := do(newAuthRequest(http.MethodPost, "/v1/requests", getToken(t, f.student),
		marshalObj(t, approval.NewRequest{AppID: f.app.ID, Reason: "homework research"})))
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit = %d; body: %s", rec.Code, rec.Body.String())
	}
	var req approval.Request
	decodeObj(t, rec.Body, &req)

	rec = do(newAuthRequest(http.MethodGet, "/v1/requests", getToken(t, f.student)))
	if rec.Code != http.StatusOK {
		t.Fatalf("query = %d; body: %s", rec.Code, rec.Body.String())
	}
	var reqs []approval.Request
	decodeObj(t, rec.Body, &reqs)
	if len(reqs) != 1 || reqs[0].ID != req.ID {
		t.Errorf("student query = %+v", reqs)
	}

	// another student's listing is scoped to themselves
	rec = do(newAuthRequest(http.MethodGet, "/v1/requests", getToken(t, other)))
	var otherReqs []approval.Request
	decodeObj(t, rec.Body, &otherReqs)
	if len(otherReqs) != 0 {
		t.Errorf("other student query = %+v", otherReqs)
	}

	rec = do(newAuthRequest(http.MethodGet, "/v1/requests/"+req.ID, getToken(t, other)))
	if rec.Code != http.StatusForbidden {
		t.Errorf("retrieve foreign request = %d, want %d", rec.Code, http.StatusForbidden)
	}
}
