package catalog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/newedu/guardian/core"
)

var (
	// errors
	ErrAppNotFound     = errors.New("app not found")
	ErrWebsiteNotFound = errors.New("website not found")
	ErrNotInstalled    = errors.New("app not installed for this user")
	ErrPackageExists   = errors.New("an app with this package already exists")
	ErrDomainExists    = errors.New("a website with this domain already exists")
)

type (
	Repository interface {
		CreateApp(ctx context.Context, app App, exec ...core.DBExecutor) (App, error)
		GetAppByID(ctx context.Context, id string, exec ...core.DBExecutor) (App, error)
		GetAppByPackage(ctx context.Context, pkg string, exec ...core.DBExecutor) (App, error)
		QueryApps(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]App, error)
		UpdateApp(ctx context.Context, app App, exec ...core.DBExecutor) (App, error)

		CreateWebsite(ctx context.Context, site Website, exec ...core.DBExecutor) (Website, error)
		GetWebsiteByID(ctx context.Context, id string, exec ...core.DBExecutor) (Website, error)
		GetWebsiteByDomain(ctx context.Context, domain string, exec ...core.DBExecutor) (Website, error)
		QueryWebsites(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Website, error)

		// CreateUserApp relies on a unique (user_id, app_id) constraint to
		// close the concurrent-install race.
		CreateUserApp(ctx context.Context, ua UserApp, exec ...core.DBExecutor) (UserApp, error)
		GetUserApp(ctx context.Context, userID, appID string, exec ...core.DBExecutor) (UserApp, error)
		QueryUserApps(ctx context.Context, userID string, activeOnly bool, exec ...core.DBExecutor) ([]UserApp, error)
		UpdateUserApp(ctx context.Context, ua UserApp, exec ...core.DBExecutor) (UserApp, error)
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

func NewService(db core.DB, repo Repository) *Service {
	return &Service{db: db, repo: repo}
}

// UpsertApp registers an app in the catalog, reusing the existing row when
// the package is already known.
func (svc *Service) UpsertApp(ctx context.Context, na NewApp) (App, error) {
	app, err := svc.repo.GetAppByPackage(ctx, na.Package)
	if err == nil {
		return app, nil
	}
	if errors.Cause(err) != ErrAppNotFound {
		return App{}, errors.Wrap(err, "finding app by package")
	}

	app = App{
		Name:    na.Name,
		Package: na.Package,
		AddedAt: time.Now().UTC(),
	}
	if na.GeneralType != "" {
		app.GeneralType = null.StringFrom(na.GeneralType)
	}
	if na.AppType != "" {
		app.AppType = null.StringFrom(na.AppType)
	}
	if na.Priority != "" {
		app.Priority = null.StringFrom(na.Priority)
	}

	app, err = svc.repo.CreateApp(ctx, app)
	if errors.Cause(err) == ErrPackageExists {
		// lost the race to a concurrent upsert; reuse the winner's row
		return svc.repo.GetAppByPackage(ctx, na.Package)
	}
	return app, err
}

// UpsertWebsite registers a website, reusing the existing row per domain.
func (svc *Service) UpsertWebsite(ctx context.Context, nw NewWebsite) (Website, error) {
	site, err := svc.repo.GetWebsiteByDomain(ctx, nw.Domain)
	if err == nil {
		return site, nil
	}
	if errors.Cause(err) != ErrWebsiteNotFound {
		return Website{}, errors.Wrap(err, "finding website by domain")
	}

	site = Website{
		Domain:  nw.Domain,
		Name:    nw.Name,
		AddedAt: time.Now().UTC(),
	}
	if nw.GeneralType != "" {
		site.GeneralType = null.StringFrom(nw.GeneralType)
	}
	if nw.Priority != "" {
		site.Priority = null.StringFrom(nw.Priority)
	}

	site, err = svc.repo.CreateWebsite(ctx, site)
	if errors.Cause(err) == ErrDomainExists {
		return svc.repo.GetWebsiteByDomain(ctx, nw.Domain)
	}
	return site, err
}

func (svc *Service) GetApp(ctx context.Context, id string) (App, error) {
	return svc.repo.GetAppByID(ctx, id)
}

func (svc *Service) GetAppByPackage(ctx context.Context, pkg string) (App, error) {
	return svc.repo.GetAppByPackage(ctx, core.CleanString(pkg, true /* lower */))
}

func (svc *Service) GetWebsite(ctx context.Context, id string) (Website, error) {
	return svc.repo.GetWebsiteByID(ctx, id)
}

func (svc *Service) GetWebsiteByDomain(ctx context.Context, domain string) (Website, error) {
	return svc.repo.GetWebsiteByDomain(ctx, core.CleanString(domain, true /* lower */))
}

func (svc *Service) QueryApps(ctx context.Context, filter QueryFilter) ([]App, error) {
	return svc.repo.QueryApps(ctx, filter)
}

func (svc *Service) QueryWebsites(ctx context.Context, filter QueryFilter) ([]Website, error) {
	return svc.repo.QueryWebsites(ctx, filter)
}

// RecordInstall marks an app installed for a user. Re-installing reactivates
// the original join row; the app's install counter only moves on the first
// install.
func (svc *Service) RecordInstall(ctx context.Context, userID, appID string) (UserApp, error) {
	app, err := svc.repo.GetAppByID(ctx, appID)
	if err != nil {
		return UserApp{}, err
	}

	ua, err := svc.repo.GetUserApp(ctx, userID, appID)
	if err == nil {
		if ua.IsActive {
			return ua, nil
		}
		ua.IsActive = true
		return svc.repo.UpdateUserApp(ctx, ua)
	}
	if errors.Cause(err) != ErrNotInstalled {
		return UserApp{}, errors.Wrap(err, "finding user app")
	}

	var created UserApp
	err = core.Atomic(ctx, svc.db, func(tx core.DBTransactor) error {
		created, err = svc.repo.CreateUserApp(ctx, UserApp{
			UserID:   userID,
			AppID:    appID,
			IsActive: true,
			AddedAt:  time.Now().UTC(),
		}, tx)
		if err != nil {
			return err
		}
		app.InstallCount++
		_, err = svc.repo.UpdateApp(ctx, app, tx)
		return errors.Wrap(err, "bumping install count")
	})
	if err != nil {
		return UserApp{}, err
	}
	return created, nil
}

// Uninstall deactivates the join row; activity logs referencing it remain
// valid.
func (svc *Service) Uninstall(ctx context.Context, userID, appID string) (UserApp, error) {
	ua, err := svc.repo.GetUserApp(ctx, userID, appID)
	if err != nil {
		return UserApp{}, err
	}
	if !ua.IsActive {
		return ua, nil
	}
	ua.IsActive = false
	return svc.repo.UpdateUserApp(ctx, ua)
}

func (svc *Service) InstalledApps(ctx context.Context, userID string) ([]UserApp, error) {
	return svc.repo.QueryUserApps(ctx, userID, true /* activeOnly */)
}

func (svc *Service) GetUserApp(ctx context.Context, userID, appID string) (UserApp, error) {
	ua, err := svc.repo.GetUserApp(ctx, userID, appID)
	if err != nil {
		return UserApp{}, errors.Wrapf(err, "getting user app %s/%s", userID, appID)
	}
	return ua, nil
}

func (svc *Service) IsInstalled(ctx context.Context, userID, appID string) (bool, error) {
	ua, err := svc.repo.GetUserApp(ctx, userID, appID)
	if err != nil {
		if errors.Cause(err) == ErrNotInstalled {
			return false, nil
		}
		return false, err
	}
	return ua.IsActive, nil
}

// Types lists the catalog enumerations for clients.
func (svc *Service) Types() map[string][]string {
	return map[string][]string{
		"general_types": AllGeneralTypes,
		"app_types":     AllAppTypes,
		"priorities":    AllPriorities,
	}
}
