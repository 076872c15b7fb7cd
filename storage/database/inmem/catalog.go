package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(db *DB) *catalogRepository {
	return &catalogRepository{db: db}
}

func (repo *catalogRepository) CreateApp(ctx context.Context, app catalog.App, exec ...core.DBExecutor) (catalog.App, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, a := range repo.db.apps {
		if a.Package == app.Package {
			return catalog.App{}, catalog.ErrPackageExists
		}
	}
	app.ID = uuid.New().String()
	stored := app
	repo.db.apps[app.ID] = &stored
	return app, nil
}

func (repo *catalogRepository) GetAppByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.App, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if app, ok := repo.db.apps[id]; ok {
		return *app, nil
	}
	return catalog.App{}, catalog.ErrAppNotFound
}

func (repo *catalogRepository) GetAppByPackage(ctx context.Context, pkg string, exec ...core.DBExecutor) (catalog.App, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, app := range repo.db.apps {
		if app.Package == pkg {
			return *app, nil
		}
	}
	return catalog.App{}, catalog.ErrAppNotFound
}

func (repo *catalogRepository) QueryApps(ctx context.Context, filter catalog.QueryFilter, exec ...core.DBExecutor) ([]catalog.App, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var apps []catalog.App
	for _, app := range repo.db.apps {
		if filter.GeneralType != "" && app.GeneralType.String != filter.GeneralType {
			continue
		}
		if filter.AppType != "" && app.AppType.String != filter.AppType {
			continue
		}
		if filter.Priority != "" && app.Priority.String != filter.Priority {
			continue
		}
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps, nil
}

func (repo *catalogRepository) UpdateApp(ctx context.Context, app catalog.App, exec ...core.DBExecutor) (catalog.App, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.apps[app.ID]; !ok {
		return catalog.App{}, catalog.ErrAppNotFound
	}
	stored := app
	repo.db.apps[app.ID] = &stored
	return app, nil
}

func (repo *catalogRepository) CreateWebsite(ctx context.Context, site catalog.Website, exec ...core.DBExecutor) (catalog.Website, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, s := range repo.db.websites {
		if s.Domain == site.Domain {
			return catalog.Website{}, catalog.ErrDomainExists
		}
	}
	site.ID = uuid.New().String()
	stored := site
	repo.db.websites[site.ID] = &stored
	return site, nil
}

func (repo *catalogRepository) GetWebsiteByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Website, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if site, ok := repo.db.websites[id]; ok {
		return *site, nil
	}
	return catalog.Website{}, catalog.ErrWebsiteNotFound
}

func (repo *catalogRepository) GetWebsiteByDomain(ctx context.Context, domain string, exec ...core.DBExecutor) (catalog.Website, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, site := range repo.db.websites {
		if site.Domain == domain {
			return *site, nil
		}
	}
	return catalog.Website{}, catalog.ErrWebsiteNotFound
}

func (repo *catalogRepository) QueryWebsites(ctx context.Context, filter catalog.QueryFilter, exec ...core.DBExecutor) ([]catalog.Website, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var sites []catalog.Website
	for _, site := range repo.db.websites {
		if filter.GeneralType != "" && site.GeneralType.String != filter.GeneralType {
			continue
		}
		if filter.Priority != "" && site.Priority.String != filter.Priority {
			continue
		}
		sites = append(sites, *site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Domain < sites[j].Domain })
	return sites, nil
}

func (repo *catalogRepository) CreateUserApp(ctx context.Context, ua catalog.UserApp, exec ...core.DBExecutor) (catalog.UserApp, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.userApps {
		if existing.UserID == ua.UserID && existing.AppID == ua.AppID {
			return catalog.UserApp{}, errors.New("duplicate user app")
		}
	}
	ua.ID = uuid.New().String()
	stored := ua
	repo.db.userApps[ua.ID] = &stored
	return ua, nil
}

func (repo *catalogRepository) GetUserApp(ctx context.Context, userID, appID string, exec ...core.DBExecutor) (catalog.UserApp, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, ua := range repo.db.userApps {
		if ua.UserID == userID && ua.AppID == appID {
			return *ua, nil
		}
	}
	return catalog.UserApp{}, catalog.ErrNotInstalled
}

func (repo *catalogRepository) QueryUserApps(ctx context.Context, userID string, activeOnly bool, exec ...core.DBExecutor) ([]catalog.UserApp, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var uas []catalog.UserApp
	for _, ua := range repo.db.userApps {
		if ua.UserID != userID {
			continue
		}
		if activeOnly && !ua.IsActive {
			continue
		}
		uas = append(uas, *ua)
	}
	sort.Slice(uas, func(i, j int) bool { return uas[i].AddedAt.Before(uas[j].AddedAt) })
	return uas, nil
}

func (repo *catalogRepository) UpdateUserApp(ctx context.Context, ua catalog.UserApp, exec ...core.DBExecutor) (catalog.UserApp, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.userApps[ua.ID]; !ok {
		return catalog.UserApp{}, catalog.ErrNotInstalled
	}
	stored := ua
	repo.db.userApps[ua.ID] = &stored
	return ua, nil
}
