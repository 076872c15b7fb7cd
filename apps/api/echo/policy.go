package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/user"
)

type policyApi struct {
	svc    *policy.Service
	usrSvc *user.Service
}

func registerPolicyAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *policy.Service, usrSvc *user.Service) {
	api := policyApi{svc: svc, usrSvc: usrSvc}

	pg := g.Group("/policies", jwt)
	pg.GET("", api.query, roleMiddleware(usrSvc, access.OpPolicyRead))
	pg.GET("/:id", api.retrieve, roleMiddleware(usrSvc, access.OpPolicyRead))
	pg.GET("/:id/entries", api.entries, roleMiddleware(usrSvc, access.OpPolicyRead))
	pg.POST("", api.create, roleMiddleware(usrSvc, access.OpPolicyWrite))
	pg.DELETE("/:id", api.destroy, roleMiddleware(usrSvc, access.OpPolicyWrite))
	pg.POST("/:id/apps", api.addAppEntry, roleMiddleware(usrSvc, access.OpPolicyWrite))
	pg.POST("/:id/websites", api.addWebEntry, roleMiddleware(usrSvc, access.OpPolicyWrite))
	pg.DELETE("/entries/:id", api.removeEntry, roleMiddleware(usrSvc, access.OpPolicyWrite))

	eg := g.Group("/exceptions", jwt)
	eg.GET("", api.exceptions, roleMiddleware(usrSvc, access.OpPolicyRead))
	eg.DELETE("/:id", api.revokeException, roleMiddleware(usrSvc, access.OpPolicyWrite))

	// the device agent polls these to enforce blocking locally
	bg := g.Group("/blocking", jwt, roleMiddleware(usrSvc, access.OpBlockingRead))
	bg.GET("/status", api.status)
	bg.POST("/check", api.check)
}

// Handlers

func (api *policyApi) create(ctx echo.Context) error {
	var data policy.NewPolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPolicy")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	pol, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating policy")
	}
	return ctx.JSON(http.StatusCreated, pol)
}

func (api *policyApi) query(ctx echo.Context) error {
	policies, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying policies")
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	return ctx.JSON(http.StatusOK, policies)
}

func (api *policyApi) retrieve(ctx echo.Context) error {
	pol, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding policy by ID")
	}
	return ctx.JSON(http.StatusOK, pol)
}

func (api *policyApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting policy")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *policyApi) addAppEntry(ctx echo.Context) error {
	var data policy.NewEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEntry")
	}
	data.PolicyID = ctx.Param("id")
	if err := data.Validate(); err != nil {
		return err
	}

	entry, err := api.svc.AddAppEntry(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding app entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *policyApi) addWebEntry(ctx echo.Context) error {
	var data policy.NewEntry
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEntry")
	}
	data.PolicyID = ctx.Param("id")
	if err := data.Validate(); err != nil {
		return err
	}

	entry, err := api.svc.AddWebEntry(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding web entry")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *policyApi) removeEntry(ctx echo.Context) error {
	if err := api.svc.RemoveEntry(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "removing entry")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *policyApi) entries(ctx echo.Context) error {
	kind := policy.TargetKind(ctx.QueryParam("kind"))
	if kind != policy.TargetApp && kind != policy.TargetWeb {
		return core.NewValidationError(nil, core.FieldError{Field: "kind", Error: "must be one of: app, web"})
	}

	entries, err := api.svc.Entries(ctx.Request().Context(), ctx.Param("id"), kind)
	if err != nil {
		return errors.Wrap(err, "listing entries")
	}
	if entries == nil {
		entries = []policy.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

func (api *policyApi) exceptions(ctx echo.Context) error {
	userID := ctx.QueryParam("user_id")
	if userID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "user_id is required"})
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsAdmin() && ctxUsr.ID != userID {
		return errHttpForbidden
	}

	excs, err := api.svc.Exceptions(ctx.Request().Context(), userID)
	if err != nil {
		return errors.Wrap(err, "listing exceptions")
	}
	if excs == nil {
		excs = []policy.Exception{}
	}
	return ctx.JSON(http.StatusOK, excs)
}

func (api *policyApi) revokeException(ctx echo.Context) error {
	if err := api.svc.RevokeException(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "revoking exception")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *policyApi) status(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	st, err := api.svc.StatusFor(ctx.Request().Context(), ctxUsr, time.Now())
	if err != nil {
		return errors.Wrap(err, "resolving blocking status")
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *policyApi) check(ctx echo.Context) error {
	var data CheckRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	decision, err := api.svc.IsBlocked(
		ctx.Request().Context(),
		ctxUsr,
		policy.Target{Kind: policy.TargetKind(data.Kind), ID: data.TargetID},
		time.Now(),
	)
	if err != nil {
		return errors.Wrap(err, "resolving block decision")
	}
	return ctx.JSON(http.StatusOK, decision)
}

type CheckRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=app web"`
	TargetID string `json:"target_id" validate:"required"`
}

func (cr *CheckRequest) Validate() error { return core.Validate.Struct(cr) }
