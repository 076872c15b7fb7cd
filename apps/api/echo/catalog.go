package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/user"
)

type catalogApi struct {
	svc    *catalog.Service
	usrSvc *user.Service
}

func registerCatalogAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *catalog.Service, usrSvc *user.Service) {
	api := catalogApi{svc: svc, usrSvc: usrSvc}

	cg := g.Group("/catalog", jwt)
	cg.GET("/types", api.types, roleMiddleware(usrSvc, access.OpCatalogRead))

	cg.GET("/apps", api.queryApps, roleMiddleware(usrSvc, access.OpCatalogRead))
	cg.GET("/apps/:id", api.retrieveApp, roleMiddleware(usrSvc, access.OpCatalogRead))
	cg.POST("/apps", api.upsertApp, roleMiddleware(usrSvc, access.OpCatalogWrite))
	cg.POST("/apps/:id/install", api.install, roleMiddleware(usrSvc, access.OpInstallWrite))
	cg.POST("/apps/:id/uninstall", api.uninstall, roleMiddleware(usrSvc, access.OpInstallWrite))

	cg.GET("/websites", api.queryWebsites, roleMiddleware(usrSvc, access.OpCatalogRead))
	cg.GET("/websites/:id", api.retrieveWebsite, roleMiddleware(usrSvc, access.OpCatalogRead))
	cg.POST("/websites", api.upsertWebsite, roleMiddleware(usrSvc, access.OpCatalogWrite))

	mg := g.Group("/users/me/apps", jwt)
	mg.GET("", api.installedApps, roleMiddleware(usrSvc, access.OpCatalogRead))
}

// Handlers

func (api *catalogApi) types(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Types())
}

func (api *catalogApi) queryApps(ctx echo.Context) error {
	filter := new(catalog.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []catalog.App{})
	}

	apps, err := api.svc.QueryApps(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying apps")
	}
	if apps == nil {
		apps = []catalog.App{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *catalogApi) retrieveApp(ctx echo.Context) error {
	app, err := api.svc.GetApp(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding app by ID")
	}
	return ctx.JSON(http.StatusOK, app)
}

// upsertApp creates the catalog row on first sight of a package and refreshes
// metadata afterwards, so device agents can report installs blindly.
func (api *catalogApi) upsertApp(ctx echo.Context) error {
	var data catalog.NewApp
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApp")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	app, err := api.svc.UpsertApp(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "upserting app")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *catalogApi) install(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ua, err := api.svc.RecordInstall(ctx.Request().Context(), ctxUsr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recording install")
	}
	return ctx.JSON(http.StatusCreated, ua)
}

func (api *catalogApi) uninstall(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ua, err := api.svc.Uninstall(ctx.Request().Context(), ctxUsr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "recording uninstall")
	}
	return ctx.JSON(http.StatusOK, ua)
}

func (api *catalogApi) queryWebsites(ctx echo.Context) error {
	filter := new(catalog.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []catalog.Website{})
	}

	sites, err := api.svc.QueryWebsites(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying websites")
	}
	if sites == nil {
		sites = []catalog.Website{}
	}
	return ctx.JSON(http.StatusOK, sites)
}

func (api *catalogApi) retrieveWebsite(ctx echo.Context) error {
	site, err := api.svc.GetWebsite(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding website by ID")
	}
	return ctx.JSON(http.StatusOK, site)
}

func (api *catalogApi) upsertWebsite(ctx echo.Context) error {
	var data catalog.NewWebsite
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewWebsite")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	site, err := api.svc.UpsertWebsite(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "upserting website")
	}
	return ctx.JSON(http.StatusCreated, site)
}

func (api *catalogApi) installedApps(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	apps, err := api.svc.InstalledApps(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing installed apps")
	}
	if apps == nil {
		apps = []catalog.UserApp{}
	}
	return ctx.JSON(http.StatusOK, apps)
}
