package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/catalog"
)

type catalogRepository struct {
	exec core.DBExecutor
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) *catalogRepository {
	return &catalogRepository{exec: exec}
}

const appColumns = `id, name, package, icon, general_type, app_type, priority, install_count, added_at`

func (repo catalogRepository) CreateApp(ctx context.Context, app catalog.App, exec ...core.DBExecutor) (catalog.App, error) {
	app.ID = uuid.New().String()

	const q = `INSERT INTO app (id, name, package, icon, general_type, app_type, priority, install_count, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		app.ID, app.Name, app.Package, app.Icon, app.GeneralType, app.AppType,
		app.Priority, app.InstallCount, app.AddedAt)
	if err != nil {
		if isUniqueViolation(err, "app_package_key") {
			return catalog.App{}, catalog.ErrPackageExists
		}
		return catalog.App{}, errors.Wrap(err, "inserting app")
	}
	return app, nil
}

func (repo catalogRepository) GetAppByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.App, error) {
	if _, err := uuid.Parse(id); err != nil {
		return catalog.App{}, catalog.ErrAppNotFound
	}
	var app catalog.App
	const q = `SELECT ` + appColumns + ` FROM app WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &app, q, id); err != nil {
		return catalog.App{}, trapNoRowsErr(err, catalog.ErrAppNotFound, "finding app by ID")
	}
	return app, nil
}

func (repo catalogRepository) GetAppByPackage(ctx context.Context, pkg string, exec ...core.DBExecutor) (catalog.App, error) {
	var app catalog.App
	const q = `SELECT ` + appColumns + ` FROM app WHERE package = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &app, q, pkg); err != nil {
		return catalog.App{}, trapNoRowsErr(err, catalog.ErrAppNotFound, "finding app by package")
	}
	return app, nil
}

func (repo catalogRepository) QueryApps(ctx context.Context, filter catalog.QueryFilter, exec ...core.DBExecutor) ([]catalog.App, error) {
	q := `SELECT ` + appColumns + ` FROM app WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.GeneralType != "" {
		q += ` AND general_type = ` + arg(filter.GeneralType)
	}
	if filter.AppType != "" {
		q += ` AND app_type = ` + arg(filter.AppType)
	}
	if filter.Priority != "" {
		q += ` AND priority = ` + arg(filter.Priority)
	}
	q += ` ORDER BY name`

	var apps []catalog.App
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &apps, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying apps")
	}
	return apps, nil
}

func (repo catalogRepository) UpdateApp(ctx context.Context, app catalog.App, exec ...core.DBExecutor) (catalog.App, error) {
	const q = `UPDATE app SET name = $2, icon = $3, general_type = $4, app_type = $5,
		priority = $6, install_count = $7 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		app.ID, app.Name, app.Icon, app.GeneralType, app.AppType, app.Priority, app.InstallCount)
	if err != nil {
		return catalog.App{}, errors.Wrap(err, "updating app")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.App{}, catalog.ErrAppNotFound
	}
	return app, nil
}

const websiteColumns = `id, domain, name, icon, general_type, priority, visit_count, added_at`

func (repo catalogRepository) CreateWebsite(ctx context.Context, site catalog.Website, exec ...core.DBExecutor) (catalog.Website, error) {
	site.ID = uuid.New().String()

	const q = `INSERT INTO website (id, domain, name, icon, general_type, priority, visit_count, added_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q,
		site.ID, site.Domain, site.Name, site.Icon, site.GeneralType, site.Priority,
		site.VisitCount, site.AddedAt)
	if err != nil {
		if isUniqueViolation(err, "website_domain_key") {
			return catalog.Website{}, catalog.ErrDomainExists
		}
		return catalog.Website{}, errors.Wrap(err, "inserting website")
	}
	return site, nil
}

func (repo catalogRepository) GetWebsiteByID(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Website, error) {
	if _, err := uuid.Parse(id); err != nil {
		return catalog.Website{}, catalog.ErrWebsiteNotFound
	}
	var site catalog.Website
	const q = `SELECT ` + websiteColumns + ` FROM website WHERE id = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &site, q, id); err != nil {
		return catalog.Website{}, trapNoRowsErr(err, catalog.ErrWebsiteNotFound, "finding website by ID")
	}
	return site, nil
}

func (repo catalogRepository) GetWebsiteByDomain(ctx context.Context, domain string, exec ...core.DBExecutor) (catalog.Website, error) {
	var site catalog.Website
	const q = `SELECT ` + websiteColumns + ` FROM website WHERE domain = $1`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &site, q, domain); err != nil {
		return catalog.Website{}, trapNoRowsErr(err, catalog.ErrWebsiteNotFound, "finding website by domain")
	}
	return site, nil
}

func (repo catalogRepository) QueryWebsites(ctx context.Context, filter catalog.QueryFilter, exec ...core.DBExecutor) ([]catalog.Website, error) {
	q := `SELECT ` + websiteColumns + ` FROM website WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + itoa(len(args))
	}

	if filter.GeneralType != "" {
		q += ` AND general_type = ` + arg(filter.GeneralType)
	}
	if filter.Priority != "" {
		q += ` AND priority = ` + arg(filter.Priority)
	}
	q += ` ORDER BY domain`

	var sites []catalog.Website
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &sites, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying websites")
	}
	return sites, nil
}

func (repo catalogRepository) CreateUserApp(ctx context.Context, ua catalog.UserApp, exec ...core.DBExecutor) (catalog.UserApp, error) {
	ua.ID = uuid.New().String()

	const q = `INSERT INTO user_app (id, user_id, app_id, is_active, added_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := getExec(repo.exec, exec).ExecContext(ctx, q, ua.ID, ua.UserID, ua.AppID, ua.IsActive, ua.AddedAt)
	if err != nil {
		return catalog.UserApp{}, errors.Wrap(err, "inserting user app")
	}
	return ua, nil
}

func (repo catalogRepository) GetUserApp(ctx context.Context, userID, appID string, exec ...core.DBExecutor) (catalog.UserApp, error) {
	var ua catalog.UserApp
	const q = `SELECT id, user_id, app_id, is_active, added_at FROM user_app WHERE user_id = $1 AND app_id = $2`
	if err := sqlx.GetContext(ctx, getExec(repo.exec, exec), &ua, q, userID, appID); err != nil {
		return catalog.UserApp{}, trapNoRowsErr(err, catalog.ErrNotInstalled, "finding user app")
	}
	return ua, nil
}

func (repo catalogRepository) QueryUserApps(ctx context.Context, userID string, activeOnly bool, exec ...core.DBExecutor) ([]catalog.UserApp, error) {
	q := `SELECT id, user_id, app_id, is_active, added_at FROM user_app WHERE user_id = $1`
	if activeOnly {
		q += ` AND is_active`
	}
	q += ` ORDER BY added_at`

	var uas []catalog.UserApp
	if err := sqlx.SelectContext(ctx, getExec(repo.exec, exec), &uas, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying user apps")
	}
	return uas, nil
}

func (repo catalogRepository) UpdateUserApp(ctx context.Context, ua catalog.UserApp, exec ...core.DBExecutor) (catalog.UserApp, error) {
	const q = `UPDATE user_app SET is_active = $2 WHERE id = $1`
	res, err := getExec(repo.exec, exec).ExecContext(ctx, q, ua.ID, ua.IsActive)
	if err != nil {
		return catalog.UserApp{}, errors.Wrap(err, "updating user app")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.UserApp{}, catalog.ErrNotInstalled
	}
	return ua, nil
}
