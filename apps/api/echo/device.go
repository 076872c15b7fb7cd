package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/user"
)

type deviceApi struct {
	svc    *device.Service
	usrSvc *user.Service
}

func registerDeviceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *device.Service, usrSvc *user.Service) {
	api := deviceApi{svc: svc, usrSvc: usrSvc}

	dg := g.Group("/devices", jwt)
	dg.GET("/os", api.listOS)
	dg.POST("/os", api.registerOS, roleMiddleware(usrSvc, access.OpCatalogWrite))

	mg := dg.Group("", roleMiddleware(usrSvc, access.OpDeviceManage))
	mg.POST("", api.register)
	mg.GET("", api.mine)
	mg.GET("/:id", api.retrieve)
	mg.POST("/:id/deactivate", api.deactivate)
	mg.GET("/:id/setup", api.setup)
	mg.PATCH("/:id/setup", api.updateSetup)
}

// Handlers

func (api *deviceApi) listOS(ctx echo.Context) error {
	oss, err := api.svc.ListOS(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing operating systems")
	}
	if oss == nil {
		oss = []device.OS{}
	}
	return ctx.JSON(http.StatusOK, oss)
}

func (api *deviceApi) registerOS(ctx echo.Context) error {
	var data device.NewOS
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOS")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	os, err := api.svc.RegisterOS(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering OS")
	}
	return ctx.JSON(http.StatusCreated, os)
}

func (api *deviceApi) register(ctx echo.Context) error {
	var data device.NewDevice
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDevice")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ud, err := api.svc.Register(ctx.Request().Context(), ctxUsr.ID, data)
	if err != nil {
		return errors.Wrap(err, "registering device")
	}
	return ctx.JSON(http.StatusCreated, ud)
}

func (api *deviceApi) mine(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	devices, err := api.svc.MyDevices(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing devices")
	}
	if devices == nil {
		devices = []device.UserDevice{}
	}
	return ctx.JSON(http.StatusOK, devices)
}

func (api *deviceApi) retrieve(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ud, err := api.svc.GetUserDevice(ctx.Request().Context(), ctxUsr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding device by ID")
	}
	return ctx.JSON(http.StatusOK, ud)
}

func (api *deviceApi) deactivate(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	ud, err := api.svc.Deactivate(ctx.Request().Context(), ctxUsr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "deactivating device")
	}
	return ctx.JSON(http.StatusOK, ud)
}

func (api *deviceApi) setup(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	st, err := api.svc.Setup(ctx.Request().Context(), ctxUsr.ID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting device setup")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *deviceApi) updateSetup(ctx echo.Context) error {
	var patch device.SetupPatch
	if err := ctx.Bind(&patch); err != nil {
		return errors.Wrap(err, "binding to SetupPatch")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	st, err := api.svc.UpdateSetup(ctx.Request().Context(), ctxUsr.ID, ctx.Param("id"), patch)
	if err != nil {
		return errors.Wrap(err, "updating device setup")
	}
	return ctx.JSON(http.StatusOK, st)
}
