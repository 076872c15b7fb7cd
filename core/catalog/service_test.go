package catalog_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core/catalog"
	inmemdb "github.com/newedu/guardian/storage/database/inmem"
	testutil "github.com/newedu/guardian/tests"
)

func setup(t *testing.T) *catalog.Service {
	t.Helper()
	testutil.InitValidators()

	db := inmemdb.NewDB()
	return catalog.NewService(db, inmemdb.NewCatalogRepository(db))
}

func TestService_UpsertApp(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	app, err := svc.UpsertApp(ctx, catalog.NewApp{
		Name:        "Duolingo",
		Package:     "com.duolingo",
		GeneralType: "education",
		Priority:    "low",
	})
	if err != nil {
		t.Fatalf("UpsertApp() failed: %v", err)
	}
	if app.ID == "" || app.GeneralType.String != "education" {
		t.Errorf("UpsertApp() = %+v", app)
	}

	// a known package resolves to the existing row
	again, err := svc.UpsertApp(ctx, catalog.NewApp{Name: "Duolingo v2", Package: "com.duolingo"})
	if err != nil {
		t.Fatalf("UpsertApp() failed: %v", err)
	}
	if again.ID != app.ID || again.Name != "Duolingo" {
		t.Errorf("UpsertApp() = %+v, want the original row %s", again, app.ID)
	}

	if _, err = svc.GetAppByPackage(ctx, "COM.DUOLINGO "); err != nil {
		t.Errorf("GetAppByPackage() is not case-insensitive: %v", err)
	}
	if _, err = svc.GetApp(ctx, "nope"); errors.Cause(err) != catalog.ErrAppNotFound {
		t.Errorf("GetApp() error = %v, want %v", err, catalog.ErrAppNotFound)
	}
}

func TestService_UpsertWebsite(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	site, err := svc.UpsertWebsite(ctx, catalog.NewWebsite{Name: "YouTube", Domain: "youtube.com"})
	if err != nil {
		t.Fatalf("UpsertWebsite() failed: %v", err)
	}

	again, err := svc.UpsertWebsite(ctx, catalog.NewWebsite{Name: "YT", Domain: "youtube.com"})
	if err != nil {
		t.Fatalf("UpsertWebsite() failed: %v", err)
	}
	if again.ID != site.ID {
		t.Errorf("UpsertWebsite() = %+v, want the original row %s", again, site.ID)
	}

	if _, err = svc.GetWebsiteByDomain(ctx, "youtube.com"); err != nil {
		t.Errorf("GetWebsiteByDomain() failed: %v", err)
	}
	if _, err = svc.GetWebsite(ctx, "nope"); errors.Cause(err) != catalog.ErrWebsiteNotFound {
		t.Errorf("GetWebsite() error = %v, want %v", err, catalog.ErrWebsiteNotFound)
	}
}

func TestService_RecordInstall(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	userID := "user-1"

	app, err := svc.UpsertApp(ctx, catalog.NewApp{Name: "Duolingo", Package: "com.duolingo"})
	if err != nil {
		t.Fatalf("UpsertApp() failed: %v", err)
	}

	ua, err := svc.RecordInstall(ctx, userID, app.ID)
	if err != nil {
		t.Fatalf("RecordInstall() failed: %v", err)
	}
	if !ua.IsActive {
		t.Errorf("RecordInstall() = %+v, want active", ua)
	}

	got, err := svc.GetApp(ctx, app.ID)
	if err != nil {
		t.Fatalf("GetApp() failed: %v", err)
	}
	if got.InstallCount != 1 {
		t.Errorf("GetApp() install count = %d, want 1", got.InstallCount)
	}

	// reporting the install again is a no-op
	if _, err = svc.RecordInstall(ctx, userID, app.ID); err != nil {
		t.Fatalf("RecordInstall() failed: %v", err)
	}
	if got, _ = svc.GetApp(ctx, app.ID); got.InstallCount != 1 {
		t.Errorf("GetApp() install count = %d after repeat, want 1", got.InstallCount)
	}

	// uninstall deactivates but keeps the join row
	ua, err = svc.Uninstall(ctx, userID, app.ID)
	if err != nil {
		t.Fatalf("Uninstall() failed: %v", err)
	}
	if ua.IsActive {
		t.Errorf("Uninstall() = %+v, want inactive", ua)
	}
	if ok, _ := svc.IsInstalled(ctx, userID, app.ID); ok {
		t.Error("IsInstalled() = true after uninstall")
	}

	// reinstall reactivates the original row without a new count
	again, err := svc.RecordInstall(ctx, userID, app.ID)
	if err != nil {
		t.Fatalf("RecordInstall() failed: %v", err)
	}
	if again.ID != ua.ID || !again.IsActive {
		t.Errorf("RecordInstall() = %+v, want reactivated row %s", again, ua.ID)
	}
	if got, _ = svc.GetApp(ctx, app.ID); got.InstallCount != 1 {
		t.Errorf("GetApp() install count = %d after reinstall, want 1", got.InstallCount)
	}

	// an unknown app cannot be installed
	if _, err = svc.RecordInstall(ctx, userID, "nope"); errors.Cause(err) != catalog.ErrAppNotFound {
		t.Errorf("RecordInstall() error = %v, want %v", err, catalog.ErrAppNotFound)
	}
	// nor uninstalled without a join row
	if _, err = svc.Uninstall(ctx, "someone-else", app.ID); errors.Cause(err) != catalog.ErrNotInstalled {
		t.Errorf("Uninstall() error = %v, want %v", err, catalog.ErrNotInstalled)
	}
}

func TestService_InstalledApps(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	userID := "user-1"

	duo, _ := svc.UpsertApp(ctx, catalog.NewApp{Name: "Duolingo", Package: "com.duolingo"})
	tiktok, _ := svc.UpsertApp(ctx, catalog.NewApp{Name: "TikTok", Package: "com.zhiliaoapp.musically"})

	for _, app := range []catalog.App{duo, tiktok} {
		if _, err := svc.RecordInstall(ctx, userID, app.ID); err != nil {
			t.Fatalf("RecordInstall() failed: %v", err)
		}
	}
	if _, err := svc.Uninstall(ctx, userID, tiktok.ID); err != nil {
		t.Fatalf("Uninstall() failed: %v", err)
	}

	apps, err := svc.InstalledApps(ctx, userID)
	if err != nil {
		t.Fatalf("InstalledApps() failed: %v", err)
	}
	if len(apps) != 1 || apps[0].AppID != duo.ID {
		t.Errorf("InstalledApps() = %+v, want only %s", apps, duo.ID)
	}
}

func TestService_QueryApps(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()

	svc.UpsertApp(ctx, catalog.NewApp{Name: "Duolingo", Package: "com.duolingo", GeneralType: "education", Priority: "low"})
	svc.UpsertApp(ctx, catalog.NewApp{Name: "TikTok", Package: "com.zhiliaoapp.musically", GeneralType: "social", Priority: "high"})
	svc.UpsertApp(ctx, catalog.NewApp{Name: "Chess", Package: "com.chess", GeneralType: "game"})

	tests := []struct {
		name   string
		filter catalog.QueryFilter
		want   int
	}{
		{name: "all", want: 3},
		{name: "by type", filter: catalog.QueryFilter{GeneralType: "education"}, want: 1},
		{name: "by priority", filter: catalog.QueryFilter{Priority: "high"}, want: 1},
		{name: "no match", filter: catalog.QueryFilter{GeneralType: "messaging"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apps, err := svc.QueryApps(ctx, tt.filter)
			if err != nil {
				t.Fatalf("QueryApps() failed: %v", err)
			}
			if len(apps) != tt.want {
				t.Errorf("QueryApps() returned %d apps, want %d", len(apps), tt.want)
			}
		})
	}
}

func TestService_Types(t *testing.T) {
	svc := setup(t)

	types := svc.Types()
	for _, key := range []string{"general_types", "app_types", "priorities"} {
		if len(types[key]) == 0 {
			t.Errorf("Types() missing %q", key)
		}
	}
}
