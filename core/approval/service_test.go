package approval_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
	emailsvc "github.com/newedu/guardian/services/email"
	logsvc "github.com/newedu/guardian/services/logger"
	inmemdb "github.com/newedu/guardian/storage/database/inmem"
	testutil "github.com/newedu/guardian/tests"
)

type fixture struct {
	svc    *approval.Service
	pols   *policy.Service
	cat    *catalog.Service
	users  user.Repository
	conf   *core.Config
	usr    user.User
	admin  user.User
	tiktok catalog.App
}

type noUsage struct{}

func (noUsage) UsageMinutes(ctx context.Context, userID, appID string, day time.Time) (int, error) {
	return 0, nil
}

func setup(t *testing.T) *fixture {
	t.Helper()
	testutil.InitValidators()

	conf := core.NewConfig()
	conf.TestMode = true
	conf.AdminEmail = "" // notifications are off in tests

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	schoolSvc := school.NewService(db, inmemdb.NewSchoolRepository(db))
	catSvc := catalog.NewService(db, inmemdb.NewCatalogRepository(db))
	polSvc := policy.NewService(db, inmemdb.NewPolicyRepository(db), noUsage{}, schoolSvc, catSvc, conf)
	logger := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	svc := approval.NewService(db, inmemdb.NewApprovalRepository(db), catSvc, polSvc, emailsvc.NewConsoleServiceMock(conf), logger, conf)

	f := &fixture{
		svc:   svc,
		pols:  polSvc,
		cat:   catSvc,
		users: usrRepo,
		conf:  conf,
		usr:   testutil.CreateUser(t, usrRepo, "+998901112233", "aziz", "", user.RoleStudent, ""),
		admin: testutil.CreateUser(t, usrRepo, "+998907778899", "karim", "", user.RoleAdmin, ""),
	}

	app, err := catSvc.UpsertApp(context.Background(), catalog.NewApp{Name: "TikTok", Package: "com.zhiliaoapp.musically"})
	if err != nil {
		t.Fatalf("setup() failed: %v", err)
	}
	f.tiktok = app
	return f
}

func (f *fixture) submit(t *testing.T) approval.Request {
	t.Helper()
	req, err := f.svc.Submit(context.Background(), f.usr, approval.NewRequest{
		AppID:  f.tiktok.ID,
		Reason: "needed for a class project",
	})
	if err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	return req
}

func TestService_Submit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := f.submit(t)
	if req.Status != approval.StatusPending {
		t.Errorf("Submit() status = %q, want %q", req.Status, approval.StatusPending)
	}
	if req.UserID != f.usr.ID || req.AppID != f.tiktok.ID {
		t.Errorf("Submit() = %+v, want user %s app %s", req, f.usr.ID, f.tiktok.ID)
	}
	if req.ReviewerID.Valid || req.ReviewedAt.Valid {
		t.Errorf("Submit() prefilled review fields: %+v", req)
	}

	// one pending request per (user, app)
	_, err := f.svc.Submit(ctx, f.usr, approval.NewRequest{AppID: f.tiktok.ID, Reason: "please"})
	if errors.Cause(err) != approval.ErrRequestPending {
		t.Errorf("Submit() error = %v, want %v", err, approval.ErrRequestPending)
	}

	// an unknown app cannot be requested
	_, err = f.svc.Submit(ctx, f.usr, approval.NewRequest{AppID: "nope", Reason: "please"})
	if errors.Cause(err) != catalog.ErrAppNotFound {
		t.Errorf("Submit() error = %v, want %v", err, catalog.ErrAppNotFound)
	}
}

func TestService_Approve(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := f.submit(t)
	got, err := f.svc.Approve(ctx, f.admin, req.ID, approval.Review{Basis: "supervised use"})
	if err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	if got.Status != approval.StatusApproved {
		t.Errorf("Approve() status = %q, want %q", got.Status, approval.StatusApproved)
	}
	if got.ReviewerID.String != f.admin.ID || !got.ReviewedAt.Valid {
		t.Errorf("Approve() review fields = %+v", got)
	}
	if got.ReviewBasis.String != "supervised use" {
		t.Errorf("Approve() basis = %q", got.ReviewBasis.String)
	}

	// the decision grants the matching exception
	excs, err := f.pols.Exceptions(ctx, f.usr.ID)
	if err != nil {
		t.Fatalf("Exceptions() failed: %v", err)
	}
	if len(excs) != 1 || excs[0].AppID != f.tiktok.ID || excs[0].GrantedBy != f.admin.ID {
		t.Errorf("Exceptions() = %+v, want one grant for %s by %s", excs, f.tiktok.ID, f.admin.ID)
	}

	// exactly one audit row for the transition
	logs, err := f.svc.Logs(ctx, req.ID)
	if err != nil {
		t.Fatalf("Logs() failed: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("Logs() returned %d rows, want 1", len(logs))
	}
	lg := logs[0]
	if lg.StatusWas != approval.StatusPending || lg.StatusTo != approval.StatusApproved {
		t.Errorf("Logs() transition = %s -> %s", lg.StatusWas, lg.StatusTo)
	}
	if lg.AdminID != f.admin.ID || lg.Basis.String != "supervised use" {
		t.Errorf("Logs() row = %+v", lg)
	}

	// a decided request is immutable
	if _, err = f.svc.Deny(ctx, f.admin, req.ID, approval.Review{}); errors.Cause(err) != approval.ErrRequestClosed {
		t.Errorf("Deny() error = %v, want %v", err, approval.ErrRequestClosed)
	}

	// the decision clears the way for a fresh submission
	if _, err = f.svc.Submit(ctx, f.usr, approval.NewRequest{AppID: f.tiktok.ID, Reason: "again"}); err != nil {
		t.Errorf("Submit() after decision failed: %v", err)
	}
}

func TestService_Approve_expiringException(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := f.submit(t)
	expiry := time.Now().Add(48 * time.Hour).UTC()
	if _, err := f.svc.Approve(ctx, f.admin, req.ID, approval.Review{ExpiresAt: &expiry}); err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}

	excs, err := f.pols.Exceptions(ctx, f.usr.ID)
	if err != nil {
		t.Fatalf("Exceptions() failed: %v", err)
	}
	if len(excs) != 1 || !excs[0].ExpiresAt.Valid || !excs[0].ExpiresAt.Time.Equal(expiry) {
		t.Errorf("Exceptions() = %+v, want expiry %v", excs, expiry)
	}
}

func TestService_Approve_existingException(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// an out-of-band grant must not void the approval
	if _, err := f.pols.GrantException(ctx, f.usr.ID, f.tiktok.ID, f.admin.ID, nil); err != nil {
		t.Fatalf("GrantException() failed: %v", err)
	}

	req := f.submit(t)
	got, err := f.svc.Approve(ctx, f.admin, req.ID, approval.Review{})
	if err != nil {
		t.Fatalf("Approve() failed: %v", err)
	}
	if got.Status != approval.StatusApproved {
		t.Errorf("Approve() status = %q, want %q", got.Status, approval.StatusApproved)
	}
}

func TestService_Deny(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	req := f.submit(t)
	got, err := f.svc.Deny(ctx, f.admin, req.ID, approval.Review{Basis: "exam week"})
	if err != nil {
		t.Fatalf("Deny() failed: %v", err)
	}
	if got.Status != approval.StatusDenied {
		t.Errorf("Deny() status = %q, want %q", got.Status, approval.StatusDenied)
	}

	// denial grants nothing
	excs, err := f.pols.Exceptions(ctx, f.usr.ID)
	if err != nil {
		t.Fatalf("Exceptions() failed: %v", err)
	}
	if len(excs) != 0 {
		t.Errorf("Exceptions() = %+v, want none", excs)
	}

	logs, err := f.svc.Logs(ctx, req.ID)
	if err != nil {
		t.Fatalf("Logs() failed: %v", err)
	}
	if len(logs) != 1 || logs[0].StatusTo != approval.StatusDenied {
		t.Errorf("Logs() = %+v, want one denial row", logs)
	}
}

func TestService_Query(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	duo, err := f.cat.UpsertApp(ctx, catalog.NewApp{Name: "Duolingo", Package: "com.duolingo"})
	if err != nil {
		t.Fatalf("UpsertApp() failed: %v", err)
	}

	first := f.submit(t)
	if _, err = f.svc.Submit(ctx, f.usr, approval.NewRequest{AppID: duo.ID, Reason: "languages"}); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if _, err = f.svc.Deny(ctx, f.admin, first.ID, approval.Review{}); err != nil {
		t.Fatalf("Deny() failed: %v", err)
	}

	tests := []struct {
		name   string
		filter approval.QueryFilter
		want   int
	}{
		{name: "all", filter: approval.QueryFilter{}, want: 2},
		{name: "by user", filter: approval.QueryFilter{UserID: f.usr.ID}, want: 2},
		{name: "by app", filter: approval.QueryFilter{AppID: duo.ID}, want: 1},
		{name: "pending only", filter: approval.QueryFilter{Status: approval.StatusPending}, want: 1},
		{name: "denied only", filter: approval.QueryFilter{Status: approval.StatusDenied}, want: 1},
		{name: "other user", filter: approval.QueryFilter{UserID: f.admin.ID}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reqs, err := f.svc.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() failed: %v", err)
			}
			if len(reqs) != tt.want {
				t.Errorf("Query() returned %d requests, want %d", len(reqs), tt.want)
			}
		})
	}
}

func TestService_Logs_unknownRequest(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Logs(context.Background(), "nope")
	if errors.Cause(err) != approval.ErrNotFound {
		t.Errorf("Logs() error = %v, want %v", err, approval.ErrNotFound)
	}
}
