package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/user"
)

// roleMiddleware gates a route on the authorization table. The user is
// re-fetched so a token minted before a role change or deactivation stops
// working immediately. Data-level narrowing (self-only, own children) stays
// with the handlers and services.
func roleMiddleware(svc *user.Service, op access.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if err := access.Can(usr.Role.Name, op); err != nil {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
