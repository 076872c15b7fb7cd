package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/activity"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusUnauthorized, "authentication failed")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// notFoundErrs map to 404.
var notFoundErrs = []error{
	user.ErrNotFound,
	user.ErrRoleNotFound,
	school.ErrNotFound,
	school.ErrRegionNotFound,
	school.ErrCityNotFound,
	school.ErrDistrictNotFound,
	catalog.ErrAppNotFound,
	catalog.ErrWebsiteNotFound,
	catalog.ErrNotInstalled,
	policy.ErrNotFound,
	policy.ErrEntryNotFound,
	approval.ErrNotFound,
	device.ErrNotFound,
	device.ErrOSNotFound,
	activity.ErrNotFound,
	activity.ErrActionNotFound,
}

// conflictErrs map to 409.
var conflictErrs = []error{
	user.ErrPhoneExists,
	user.ErrUsernameExists,
	school.ErrNameExists,
	school.ErrHolidayExists,
	catalog.ErrPackageExists,
	catalog.ErrDomainExists,
	policy.ErrEntryExists,
	policy.ErrExceptionExists,
	approval.ErrRequestPending,
	approval.ErrRequestClosed,
	device.ErrOSExists,
	device.ErrDeviceRegistered,
	activity.ErrActionExists,
}

func errIn(err error, errs []error) bool {
	for _, e := range errs {
		if err == e {
			return true
		}
	}
	return false
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			switch {
			case errIn(cause, notFoundErrs):
				code = http.StatusNotFound
				message = cause.Error()
			case errIn(cause, conflictErrs):
				code = http.StatusConflict
				message = cause.Error()
			case cause == access.ErrPermissionDenied:
				code = http.StatusForbidden
				message = cause.Error()
			case cause == user.ErrAuthenticationFailed:
				code = http.StatusUnauthorized
				message = cause.Error()
			case cause == core.ErrOTPNotFound:
				code = http.StatusBadRequest
				message = cause.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				var usr user.User
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr.ID = claims.Subject
					usr.Username = claims.Username
					usr.PhoneNumber = claims.PhoneNumber
				}
				logger.Error(msg, errors.Wrap(err, msg), usr)

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
