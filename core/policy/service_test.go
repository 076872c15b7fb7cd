package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
	inmemdb "github.com/newedu/guardian/storage/database/inmem"
	testutil "github.com/newedu/guardian/tests"
)

// usageStub replaces the activity service; keys are "userID/appID".
type usageStub struct {
	minutes map[string]int
}

func (u *usageStub) UsageMinutes(ctx context.Context, userID, appID string, day time.Time) (int, error) {
	return u.minutes[userID+"/"+appID], nil
}

func (u *usageStub) set(userID, appID string, mins int) {
	u.minutes[userID+"/"+appID] = mins
}

type fixture struct {
	svc     *policy.Service
	schools *school.Service
	cat     *catalog.Service
	usage   *usageStub
	users   user.Repository
	conf    *core.Config
}

func setup(t *testing.T) *fixture {
	t.Helper()
	testutil.InitValidators()

	conf := core.NewConfig()
	conf.TestMode = true

	db := inmemdb.NewDB()
	usage := &usageStub{minutes: make(map[string]int)}
	schoolSvc := school.NewService(db, inmemdb.NewSchoolRepository(db))
	catSvc := catalog.NewService(db, inmemdb.NewCatalogRepository(db))
	svc := policy.NewService(db, inmemdb.NewPolicyRepository(db), usage, schoolSvc, catSvc, conf)

	// pin the clock so grants and revocations land at the evaluation instant
	prevNow := policy.NowFunc
	policy.NowFunc = func() time.Time { return mon10 }
	t.Cleanup(func() { policy.NowFunc = prevNow })

	return &fixture{
		svc:     svc,
		schools: schoolSvc,
		cat:     catSvc,
		usage:   usage,
		users:   inmemdb.NewUserRepository(db),
		conf:    conf,
	}
}

func (f *fixture) createSchool(t *testing.T, name string) school.School {
	t.Helper()
	ctx := context.Background()

	reg, err := f.schools.CreateRegion(ctx, "Tashkent")
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	city, err := f.schools.CreateCity(ctx, "Tashkent City", reg.ID)
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	dist, err := f.schools.CreateDistrict(ctx, "Chilanzar", reg.ID)
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	sch, err := f.schools.Create(ctx, school.NewSchool{
		Name:       name,
		RegionID:   reg.ID,
		CityID:     city.ID,
		DistrictID: dist.ID,
	})
	if err != nil {
		t.Fatalf("createSchool() failed: %v", err)
	}
	return sch
}

func (f *fixture) createApp(t *testing.T, name, pkg string) catalog.App {
	t.Helper()
	app, err := f.cat.UpsertApp(context.Background(), catalog.NewApp{Name: name, Package: pkg})
	if err != nil {
		t.Fatalf("createApp() failed: %v", err)
	}
	return app
}

func (f *fixture) createPolicy(t *testing.T, np policy.NewPolicy) policy.Policy {
	t.Helper()
	pol, err := f.svc.Create(context.Background(), np)
	if err != nil {
		t.Fatalf("createPolicy() failed: %v", err)
	}
	return pol
}

func (f *fixture) addAppEntry(t *testing.T, policyID, appID string, duration *int) policy.Entry {
	t.Helper()
	ent, err := f.svc.AddAppEntry(context.Background(), policy.NewEntry{
		PolicyID: policyID,
		TargetID: appID,
		Duration: duration,
	})
	if err != nil {
		t.Fatalf("addAppEntry() failed: %v", err)
	}
	return ent
}

func intPtr(i int) *int { return &i }

// mon10 is a Monday morning, inside a typical school-hours window.
var mon10 = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

func TestService_IsBlocked_blacklist(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	tiktok := f.createApp(t, "TikTok", "com.zhiliaoapp.musically")
	duo := f.createApp(t, "Duolingo", "com.duolingo")

	pol := f.createPolicy(t, policy.NewPolicy{Name: "Default", TargetRoleID: usr.RoleID})
	f.addAppEntry(t, pol.ID, tiktok.ID, nil)

	tests := []struct {
		name    string
		target  policy.Target
		blocked bool
		reason  string
	}{
		{name: "listed app blocked", target: policy.AppTarget(tiktok.ID), blocked: true, reason: policy.ReasonBlacklisted},
		{name: "unlisted app allowed", target: policy.AppTarget(duo.ID), blocked: false, reason: policy.ReasonAllowed},
		{name: "unlisted website allowed", target: policy.WebTarget("some-site"), blocked: false, reason: policy.ReasonAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := f.svc.IsBlocked(ctx, usr, tt.target, mon10)
			if err != nil {
				t.Fatalf("IsBlocked() failed: %v", err)
			}
			if dec.Blocked != tt.blocked || dec.Reason != tt.reason {
				t.Errorf("IsBlocked() = %+v, want blocked=%v reason=%q", dec, tt.blocked, tt.reason)
			}
		})
	}
}

func TestService_IsBlocked_whitelistBudgets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	duo := f.createApp(t, "Duolingo", "com.duolingo")
	khan := f.createApp(t, "Khan Academy", "org.khanacademy.android")
	games := f.createApp(t, "Chess", "com.chess")

	pol := f.createPolicy(t, policy.NewPolicy{
		Name:           "Study mode",
		TargetRoleID:   usr.RoleID,
		IsWhitelistApp: true,
	})
	f.addAppEntry(t, pol.ID, duo.ID, intPtr(60))
	f.addAppEntry(t, pol.ID, khan.ID, nil) // unmetered

	tests := []struct {
		name    string
		appID   string
		used    int
		blocked bool
		reason  string
	}{
		{name: "within budget", appID: duo.ID, used: 30, blocked: false, reason: policy.ReasonWhitelisted},
		{name: "budget exhausted", appID: duo.ID, used: 60, blocked: true, reason: policy.ReasonBudgetSpent},
		{name: "unmetered entry ignores usage", appID: khan.ID, used: 1000, blocked: false, reason: policy.ReasonWhitelisted},
		{name: "unlisted app", appID: games.ID, blocked: true, reason: policy.ReasonNotListed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.usage.set(usr.ID, tt.appID, tt.used)
			dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(tt.appID), mon10)
			if err != nil {
				t.Fatalf("IsBlocked() failed: %v", err)
			}
			if dec.Blocked != tt.blocked || dec.Reason != tt.reason {
				t.Errorf("IsBlocked() = %+v, want blocked=%v reason=%q", dec, tt.blocked, tt.reason)
			}
		})
	}

	// a second, more generous tier raises the effective budget
	f.addAppEntry(t, pol.ID, duo.ID, intPtr(120))
	f.usage.set(usr.ID, duo.ID, 60)
	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(duo.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if dec.Blocked || dec.Reason != policy.ReasonWhitelisted {
		t.Errorf("IsBlocked() with raised tier = %+v, want allowed %q", dec, policy.ReasonWhitelisted)
	}
}

func TestService_IsBlocked_noPolicy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	app := f.createApp(t, "Duolingo", "com.duolingo")

	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if dec.Blocked || dec.Reason != policy.ReasonNoPolicy {
		t.Errorf("IsBlocked() = %+v, want open fallback %q", dec, policy.ReasonNoPolicy)
	}

	f.conf.PolicyFailClosed = true
	dec, err = f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if !dec.Blocked || dec.Reason != policy.ReasonNoPolicy {
		t.Errorf("IsBlocked() fail-closed = %+v, want blocked %q", dec, policy.ReasonNoPolicy)
	}
}

func TestService_IsBlocked_exception(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	admin := testutil.CreateUser(t, f.users, "+998907778899", "admin", "", user.RoleAdmin, "")
	app := f.createApp(t, "TikTok", "com.zhiliaoapp.musically")

	pol := f.createPolicy(t, policy.NewPolicy{Name: "Default", TargetRoleID: usr.RoleID})
	f.addAppEntry(t, pol.ID, app.ID, nil)

	exc, err := f.svc.GrantException(ctx, usr.ID, app.ID, admin.ID, nil)
	if err != nil {
		t.Fatalf("GrantException() failed: %v", err)
	}

	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if dec.Blocked || dec.Reason != policy.ReasonException {
		t.Errorf("IsBlocked() = %+v, want allowed %q", dec, policy.ReasonException)
	}

	// the pair is still active, a second grant conflicts
	if _, err = f.svc.GrantException(ctx, usr.ID, app.ID, admin.ID, nil); errors.Cause(err) != policy.ErrExceptionExists {
		t.Errorf("GrantException() error = %v, want %v", err, policy.ErrExceptionExists)
	}

	excs, err := f.svc.Exceptions(ctx, usr.ID)
	if err != nil {
		t.Fatalf("Exceptions() failed: %v", err)
	}
	if len(excs) != 1 {
		t.Errorf("Exceptions() returned %d grants, want 1", len(excs))
	}

	if err = f.svc.RevokeException(ctx, exc.ID); err != nil {
		t.Fatalf("RevokeException() failed: %v", err)
	}
	dec, err = f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if !dec.Blocked || dec.Reason != policy.ReasonBlacklisted {
		t.Errorf("IsBlocked() after revoke = %+v, want blocked %q", dec, policy.ReasonBlacklisted)
	}
}

func TestService_IsBlocked_expiredException(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	admin := testutil.CreateUser(t, f.users, "+998907778899", "admin", "", user.RoleAdmin, "")
	app := f.createApp(t, "TikTok", "com.zhiliaoapp.musically")

	pol := f.createPolicy(t, policy.NewPolicy{Name: "Default", TargetRoleID: usr.RoleID})
	f.addAppEntry(t, pol.ID, app.ID, nil)

	expiry := mon10.Add(time.Hour)
	if _, err := f.svc.GrantException(ctx, usr.ID, app.ID, admin.ID, &expiry); err != nil {
		t.Fatalf("GrantException() failed: %v", err)
	}

	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if dec.Blocked || dec.Reason != policy.ReasonException {
		t.Errorf("IsBlocked() before expiry = %+v, want allowed %q", dec, policy.ReasonException)
	}

	dec, err = f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), expiry.Add(time.Minute))
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if !dec.Blocked || dec.Reason != policy.ReasonBlacklisted {
		t.Errorf("IsBlocked() after expiry = %+v, want blocked %q", dec, policy.ReasonBlacklisted)
	}
}

func TestService_IsBlocked_schoolHours(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	app := f.createApp(t, "Duolingo", "com.duolingo")

	f.createPolicy(t, policy.NewPolicy{
		Name:         "School hours",
		TargetRoleID: usr.RoleID,
		BlockStart:   "08:00",
		BlockEnd:     "14:00",
	})

	day := func(d int, hour, min int) time.Time {
		return time.Date(2026, time.March, d, hour, min, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		now     time.Time
		blocked bool
	}{
		{name: "monday mid-window", now: day(2, 10, 0), blocked: true},
		{name: "window start is inclusive", now: day(2, 8, 0), blocked: true},
		{name: "before window", now: day(2, 7, 59)},
		{name: "window end is exclusive", now: day(2, 14, 0)},
		{name: "saturday off by default", now: day(7, 10, 0)},
		{name: "sunday off by default", now: day(8, 10, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), tt.now)
			if err != nil {
				t.Fatalf("IsBlocked() failed: %v", err)
			}
			if dec.Blocked != tt.blocked {
				t.Errorf("IsBlocked() = %+v, want blocked=%v", dec, tt.blocked)
			}
			if tt.blocked && dec.Reason != policy.ReasonSchoolHours {
				t.Errorf("IsBlocked() reason = %q, want %q", dec.Reason, policy.ReasonSchoolHours)
			}
		})
	}
}

func TestService_IsBlocked_customSchoolDays(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	app := f.createApp(t, "Duolingo", "com.duolingo")

	f.createPolicy(t, policy.NewPolicy{
		Name:         "Six-day week",
		TargetRoleID: usr.RoleID,
		BlockStart:   "08:00",
		BlockEnd:     "14:00",
		SchoolDays:   "123456",
	})

	sat10 := time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), sat10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if !dec.Blocked || dec.Reason != policy.ReasonSchoolHours {
		t.Errorf("IsBlocked() on saturday = %+v, want blocked %q", dec, policy.ReasonSchoolHours)
	}
}

func TestService_IsBlocked_holidaySuspendsWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch := f.createSchool(t, "School 64")
	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, sch.ID)
	app := f.createApp(t, "Duolingo", "com.duolingo")

	pol := f.createPolicy(t, policy.NewPolicy{
		Name:         "School hours",
		TargetRoleID: usr.RoleID,
		BlockStart:   "08:00",
		BlockEnd:     "14:00",
	})
	if _, err := f.schools.AssignPolicy(ctx, sch.ID, pol.ID); err != nil {
		t.Fatalf("AssignPolicy() failed: %v", err)
	}

	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if !dec.Blocked || dec.Reason != policy.ReasonSchoolHours {
		t.Fatalf("IsBlocked() = %+v, want blocked %q", dec, policy.ReasonSchoolHours)
	}

	if _, err = f.schools.AddHoliday(ctx, school.NewHoliday{
		SchoolID: sch.ID,
		Date:     "2026-03-02",
		Name:     "Spring break",
		Mode:     school.HolidayForceAllow,
	}); err != nil {
		t.Fatalf("AddHoliday() failed: %v", err)
	}

	dec, err = f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if dec.Blocked {
		t.Errorf("IsBlocked() on force-allow holiday = %+v, want allowed", dec)
	}
}

func TestService_IsBlocked_modifiedHolidayKeepsWindow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch := f.createSchool(t, "School 64")
	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, sch.ID)
	app := f.createApp(t, "Duolingo", "com.duolingo")

	f.createPolicy(t, policy.NewPolicy{
		Name:         "School hours",
		TargetRoleID: usr.RoleID,
		BlockStart:   "08:00",
		BlockEnd:     "14:00",
	})
	if _, err := f.schools.AddHoliday(ctx, school.NewHoliday{
		SchoolID: sch.ID,
		Date:     "2026-03-02",
		Name:     "Half day",
		Mode:     school.HolidayModified,
	}); err != nil {
		t.Fatalf("AddHoliday() failed: %v", err)
	}

	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if !dec.Blocked || dec.Reason != policy.ReasonSchoolHours {
		t.Errorf("IsBlocked() on modified holiday = %+v, want blocked %q", dec, policy.ReasonSchoolHours)
	}
}

func TestService_IsBlocked_schoolDefaultPolicyWins(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sch := f.createSchool(t, "School 64")
	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, sch.ID)
	app := f.createApp(t, "TikTok", "com.zhiliaoapp.musically")

	strict := f.createPolicy(t, policy.NewPolicy{Name: "Strict", TargetRoleID: usr.RoleID})
	f.addAppEntry(t, strict.ID, app.ID, nil)
	lax := f.createPolicy(t, policy.NewPolicy{Name: "Lax", TargetRoleID: usr.RoleID})

	if _, err := f.schools.AssignPolicy(ctx, sch.ID, lax.ID); err != nil {
		t.Fatalf("AssignPolicy() failed: %v", err)
	}

	dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	if dec.Blocked || dec.Reason != policy.ReasonAllowed {
		t.Errorf("IsBlocked() = %+v, want the school's policy to allow", dec)
	}
}

func TestService_IsBlocked_deterministic(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	app := f.createApp(t, "TikTok", "com.zhiliaoapp.musically")

	pol := f.createPolicy(t, policy.NewPolicy{Name: "Default", TargetRoleID: usr.RoleID})
	f.addAppEntry(t, pol.ID, app.ID, nil)

	first, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
	if err != nil {
		t.Fatalf("IsBlocked() failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		dec, err := f.svc.IsBlocked(ctx, usr, policy.AppTarget(app.ID), mon10)
		if err != nil {
			t.Fatalf("IsBlocked() failed: %v", err)
		}
		if dec != first {
			t.Fatalf("IsBlocked() = %+v on repeat, first was %+v", dec, first)
		}
	}
}

func TestService_StatusFor(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	usr := testutil.CreateUser(t, f.users, "+998901112233", "aziz", "", user.RoleStudent, "")
	tiktok := f.createApp(t, "TikTok", "com.zhiliaoapp.musically")
	duo := f.createApp(t, "Duolingo", "com.duolingo")
	for _, app := range []catalog.App{tiktok, duo} {
		if _, err := f.cat.RecordInstall(ctx, usr.ID, app.ID); err != nil {
			t.Fatalf("RecordInstall() failed: %v", err)
		}
	}

	pol := f.createPolicy(t, policy.NewPolicy{
		Name:         "Default",
		TargetRoleID: usr.RoleID,
		BlockStart:   "08:00",
		BlockEnd:     "14:00",
	})
	f.addAppEntry(t, pol.ID, tiktok.ID, nil)

	// outside the window only the blacklisted app shows up
	evening := time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC)
	st, err := f.svc.StatusFor(ctx, usr, evening)
	if err != nil {
		t.Fatalf("StatusFor() failed: %v", err)
	}
	if st.SchoolHours {
		t.Errorf("StatusFor() school hours active at %v", evening)
	}
	if len(st.BlockedApps) != 1 || st.BlockedApps[tiktok.ID].Reason != policy.ReasonBlacklisted {
		t.Errorf("StatusFor() blocked apps = %+v, want only %s blacklisted", st.BlockedApps, tiktok.ID)
	}

	// inside the window everything installed is blocked
	st, err = f.svc.StatusFor(ctx, usr, mon10)
	if err != nil {
		t.Fatalf("StatusFor() failed: %v", err)
	}
	if !st.SchoolHours {
		t.Errorf("StatusFor() school hours inactive at %v", mon10)
	}
	if len(st.BlockedApps) != 2 {
		t.Errorf("StatusFor() blocked %d apps, want 2", len(st.BlockedApps))
	}
	if st.BlockedApps[duo.ID].Reason != policy.ReasonSchoolHours {
		t.Errorf("StatusFor() reason for %s = %q, want %q", duo.ID, st.BlockedApps[duo.ID].Reason, policy.ReasonSchoolHours)
	}
}

func TestService_entries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	role, err := f.users.EnsureRole(ctx, user.RoleStudent, "")
	if err != nil {
		t.Fatalf("EnsureRole() failed: %v", err)
	}
	app := f.createApp(t, "Duolingo", "com.duolingo")
	pol := f.createPolicy(t, policy.NewPolicy{Name: "Default", TargetRoleID: role.ID})

	ent := f.addAppEntry(t, pol.ID, app.ID, intPtr(60))

	// same target and duration is a duplicate; a distinct duration is a tier
	_, err = f.svc.AddAppEntry(ctx, policy.NewEntry{PolicyID: pol.ID, TargetID: app.ID, Duration: intPtr(60)})
	if errors.Cause(err) != policy.ErrEntryExists {
		t.Errorf("AddAppEntry() error = %v, want %v", err, policy.ErrEntryExists)
	}
	if _, err = f.svc.AddAppEntry(ctx, policy.NewEntry{PolicyID: pol.ID, TargetID: app.ID, Duration: intPtr(90)}); err != nil {
		t.Errorf("AddAppEntry() tier failed: %v", err)
	}

	// unlimited entries collide with each other the same way metered ones do
	if _, err = f.svc.AddAppEntry(ctx, policy.NewEntry{PolicyID: pol.ID, TargetID: app.ID}); err != nil {
		t.Fatalf("AddAppEntry() unlimited failed: %v", err)
	}
	_, err = f.svc.AddAppEntry(ctx, policy.NewEntry{PolicyID: pol.ID, TargetID: app.ID})
	if errors.Cause(err) != policy.ErrEntryExists {
		t.Errorf("AddAppEntry() unlimited dup error = %v, want %v", err, policy.ErrEntryExists)
	}

	ents, err := f.svc.Entries(ctx, pol.ID, policy.TargetApp)
	if err != nil {
		t.Fatalf("Entries() failed: %v", err)
	}
	if len(ents) != 3 {
		t.Errorf("Entries() returned %d rows, want 3", len(ents))
	}

	if err = f.svc.RemoveEntry(ctx, ent.ID); err != nil {
		t.Fatalf("RemoveEntry() failed: %v", err)
	}
	if ents, _ = f.svc.Entries(ctx, pol.ID, policy.TargetApp); len(ents) != 2 {
		t.Errorf("Entries() after removal returned %d rows, want 2", len(ents))
	}
}
