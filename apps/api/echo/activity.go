package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/activity"
	"github.com/newedu/guardian/core/user"
)

type activityApi struct {
	svc    *activity.Service
	usrSvc *user.Service
}

func registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *activity.Service, usrSvc *user.Service) {
	api := activityApi{svc: svc, usrSvc: usrSvc}

	ag := g.Group("/activity", jwt)
	ag.GET("/actions", api.actions)
	ag.POST("/actions", api.createAction, roleMiddleware(usrSvc, access.OpCatalogWrite))
	ag.POST("/logs", api.record, roleMiddleware(usrSvc, access.OpLogWrite))
	ag.GET("/logs", api.query)
	ag.GET("/summary", api.summary, roleMiddleware(usrSvc, access.OpLogRead))
}

// Handlers

func (api *activityApi) actions(ctx echo.Context) error {
	actions, err := api.svc.Actions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing actions")
	}
	if actions == nil {
		actions = []activity.Action{}
	}
	return ctx.JSON(http.StatusOK, actions)
}

func (api *activityApi) createAction(ctx echo.Context) error {
	var data activity.NewAction
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAction")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	action, err := api.svc.CreateAction(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating action")
	}
	return ctx.JSON(http.StatusCreated, action)
}

func (api *activityApi) record(ctx echo.Context) error {
	var data activity.NewLog
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLog")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	logEntry, err := api.svc.Record(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "recording activity")
	}
	return ctx.JSON(http.StatusCreated, logEntry)
}

func (api *activityApi) query(ctx echo.Context) error {
	filter := new(activity.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.Log{})
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	logs, err := api.svc.Query(ctx.Request().Context(), ctxUsr, *filter)
	if err != nil {
		return errors.Wrap(err, "querying activity logs")
	}
	if logs == nil {
		logs = []activity.Log{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

func (api *activityApi) summary(ctx echo.Context) error {
	userID := ctx.QueryParam("user_id")
	if userID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "user_id is required"})
	}

	from, err := parseDay(ctx.QueryParam("from"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "from", Error: "a valid date (2006-01-02) is required"})
	}
	to, err := parseDay(ctx.QueryParam("to"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "to", Error: "a valid date (2006-01-02) is required"})
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	summary, err := api.svc.SummaryFor(ctx.Request().Context(), ctxUsr, userID, from, to)
	if err != nil {
		return errors.Wrap(err, "building activity summary")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func parseDay(v string) (time.Time, error) {
	return time.Parse("2006-01-02", v)
}
