package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/user"
)

type approvalApi struct {
	svc    *approval.Service
	usrSvc *user.Service
}

func registerApprovalAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *approval.Service, usrSvc *user.Service) {
	api := approvalApi{svc: svc, usrSvc: usrSvc}

	rg := g.Group("/requests", jwt)
	rg.POST("", api.submit, roleMiddleware(usrSvc, access.OpRequestSubmit))
	rg.GET("", api.query, roleMiddleware(usrSvc, access.OpRequestRead))
	rg.GET("/:id", api.retrieve, roleMiddleware(usrSvc, access.OpRequestRead))
	rg.POST("/:id/approve", api.approve, roleMiddleware(usrSvc, access.OpRequestReview))
	rg.POST("/:id/deny", api.deny, roleMiddleware(usrSvc, access.OpRequestReview))
	rg.GET("/:id/logs", api.logs, roleMiddleware(usrSvc, access.OpRequestReview))
}

// Handlers

func (api *approvalApi) submit(ctx echo.Context) error {
	var data approval.NewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Submit(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "submitting request")
	}
	return ctx.JSON(http.StatusCreated, req)
}

func (api *approvalApi) query(ctx echo.Context) error {
	filter := new(approval.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []approval.Request{})
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.narrow(ctx, ctxUsr, &filter.UserID); err != nil {
		return err
	}

	reqs, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying requests")
	}
	if reqs == nil {
		reqs = []approval.Request{}
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *approvalApi) retrieve(ctx echo.Context) error {
	req, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding request by ID")
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	owner := req.UserID
	if err := api.narrow(ctx, ctxUsr, &owner); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *approvalApi) approve(ctx echo.Context) error {
	return api.review(ctx, api.svc.Approve)
}

func (api *approvalApi) deny(ctx echo.Context) error {
	return api.review(ctx, api.svc.Deny)
}

func (api *approvalApi) review(
	ctx echo.Context,
	decide func(c context.Context, reviewer user.User, requestID string, rv approval.Review) (approval.Request, error),
) error {
	var data approval.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := decide(ctx.Request().Context(), ctxUsr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "reviewing request")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *approvalApi) logs(ctx echo.Context) error {
	logs, err := api.svc.Logs(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing request logs")
	}
	if logs == nil {
		logs = []approval.Log{}
	}
	return ctx.JSON(http.StatusOK, logs)
}

// narrow restricts non-admin access to the caller's own requests, or to a
// child's for parents. userID is forced to self when empty.
func (api *approvalApi) narrow(ctx echo.Context, ctxUsr user.User, userID *string) error {
	if ctxUsr.IsAdmin() {
		return nil
	}
	if *userID == "" || *userID == ctxUsr.ID {
		*userID = ctxUsr.ID
		return nil
	}
	if ctxUsr.IsParent() {
		ok, err := api.usrSvc.IsParentOf(ctx.Request().Context(), ctxUsr.ID, *userID)
		if err != nil {
			return errors.Wrap(err, "checking parent link")
		}
		if ok {
			return nil
		}
	}
	return errHttpForbidden
}
