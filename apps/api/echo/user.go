package echoapi

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/user"
)

type userApi struct {
	conf *core.Config
	svc  *user.Service
}

func registerUserAPI(g *echo.Group, jwt echo.MiddlewareFunc, conf *core.Config, svc *user.Service) {
	api := userApi{conf: conf, svc: svc}

	ug := g.Group("/users")

	// un-authed endpoints
	// TODO: rate limit `/login` & `/phone-verification`
	ug.POST("/login", api.login)
	ug.POST("/register/student", api.registerStudent)
	ug.POST("/register/parent", api.registerParent)
	ug.POST("/register/teacher", api.registerTeacher)
	ug.POST("/phone-verification", api.startPhoneVerification)
	ug.POST("/phone-verification-confirm", api.confirmPhoneVerification)
	ug.GET("/phone-exists", api.phoneExists)

	// authed endpoints
	ag := ug.Group("", jwt)
	ag.POST("/token-refresh", api.refreshToken)
	ag.GET("", api.query, roleMiddleware(svc, access.OpUserRead))
	ag.DELETE("", api.destroyMultiple, roleMiddleware(svc, access.OpUserWrite))

	mg := ag.Group("/me")
	mg.GET("", api.retrieveSelf)
	mg.GET("/profile", api.retrieveProfile, roleMiddleware(svc, access.OpProfileRead))
	mg.PUT("/profile", api.updateProfile, roleMiddleware(svc, access.OpProfileWrite))
	mg.GET("/children", api.children)
	mg.GET("/preferences", api.preferences, roleMiddleware(svc, access.OpPreferenceRead))
	mg.PATCH("/preferences", api.setPreferences, roleMiddleware(svc, access.OpPreferenceWrite))

	ag.GET("/:id", api.retrieve)
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.PhoneNumber, data.Password, data.Role)
	if err != nil {
		if errors.Cause(err) == user.ErrAuthenticationFailed {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(api.conf, GetUserClaims(api.conf, usr))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: &usr})
}

func (api *userApi) registerStudent(ctx echo.Context) error {
	var data user.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.RegisterStudent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering student")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) registerParent(ctx echo.Context) error {
	var data user.NewParent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewParent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.RegisterParent(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering parent")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) registerTeacher(ctx echo.Context) error {
	var data user.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	usr, err := api.svc.RegisterTeacher(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering teacher")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) startPhoneVerification(ctx echo.Context) error {
	var data PhoneVerificationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PhoneVerificationRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.StartPhoneVerification(ctx.Request().Context(), data.PhoneNumber); err != nil {
		return errors.Wrap(err, "starting phone verification")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "A verification code has been sent to the phone number supplied."})
}

func (api *userApi) confirmPhoneVerification(ctx echo.Context) error {
	var data PhoneVerificationConfirmRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PhoneVerificationConfirmRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	ok, err := api.svc.ConfirmPhoneVerification(ctx.Request().Context(), data.PhoneNumber, data.Code)
	if err != nil {
		return errors.Wrap(err, "confirming phone verification")
	}
	if !ok {
		return core.NewValidationError(nil, core.FieldError{Field: "code", Error: "invalid verification code"})
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Phone number verified."})
}

func (api *userApi) phoneExists(ctx echo.Context) error {
	var data PhoneExistsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PhoneExistsRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	exists, err := api.svc.PhoneExists(ctx.Request().Context(), data.PhoneNumber, data.Role)
	if err != nil {
		return errors.Wrap(err, "checking phone number")
	}
	return ctx.JSON(http.StatusOK, PhoneExistsResponse{Exists: exists})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc, api.conf)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()

	users, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieveSelf(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	id := ctx.Param("id")
	if id != ctxUsr.ID && !ctxUsr.IsAdmin() {
		// a parent may view their own children
		if ctxUsr.IsParent() {
			ok, err := api.svc.IsParentOf(ctx.Request().Context(), ctxUsr.ID, id)
			if err != nil {
				return errors.Wrap(err, "checking parent link")
			}
			if !ok {
				return errHttpNotFound
			}
		} else {
			return errHttpNotFound
		}
	}

	usr, err := api.svc.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "finding user by ID")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) retrieveProfile(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	switch {
	case ctxUsr.IsStudent():
		prof, err := api.svc.StudentProfile(ctx.Request().Context(), ctxUsr.ID)
		if err != nil {
			return errors.Wrap(err, "getting student profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	case ctxUsr.IsParent():
		prof, err := api.svc.ParentProfile(ctx.Request().Context(), ctxUsr.ID)
		if err != nil {
			return errors.Wrap(err, "getting parent profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	}
	return errHttpNotFound
}

func (api *userApi) updateProfile(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	switch {
	case ctxUsr.IsStudent():
		var prof user.StudentProfile
		if err := ctx.Bind(&prof); err != nil {
			return errors.Wrap(err, "binding to StudentProfile")
		}
		prof.UserID = ctxUsr.ID
		prof, err = api.svc.UpdateStudentProfile(ctx.Request().Context(), prof)
		if err != nil {
			return errors.Wrap(err, "updating student profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	case ctxUsr.IsParent():
		var prof user.ParentProfile
		if err := ctx.Bind(&prof); err != nil {
			return errors.Wrap(err, "binding to ParentProfile")
		}
		prof.UserID = ctxUsr.ID
		prof, err = api.svc.UpdateParentProfile(ctx.Request().Context(), prof)
		if err != nil {
			return errors.Wrap(err, "updating parent profile")
		}
		return ctx.JSON(http.StatusOK, prof)
	}
	return errHttpNotFound
}

func (api *userApi) children(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !ctxUsr.IsParent() {
		return errHttpForbidden
	}

	kids, err := api.svc.ChildrenOf(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "listing children")
	}
	if kids == nil {
		kids = []user.User{}
	}
	return ctx.JSON(http.StatusOK, kids)
}

func (api *userApi) preferences(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	prefs, err := api.svc.Preferences(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "getting preferences")
	}
	return ctx.JSON(http.StatusOK, prefs)
}

func (api *userApi) setPreferences(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var patch user.PreferencePatch
	if err := ctx.Bind(&patch); err != nil {
		return errors.Wrap(err, "binding to PreferencePatch")
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	prefs, err := api.svc.SetPreferences(ctx.Request().Context(), ctxUsr.ID, patch)
	if err != nil {
		return errors.Wrap(err, "setting preferences")
	}
	return ctx.JSON(http.StatusOK, prefs)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, ctxUsr.ID); i < len(query.IDs) {
		if match := query.IDs[i]; ctxUsr.ID == match {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	LoginRequest struct {
		PhoneNumber string `json:"phone_number" validate:"required,uzphone"`
		Password    string `json:"password" validate:"required"`
		Role        string `json:"role" validate:"required,oneof=student parent teacher admin"`
	}

	LoginResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	PhoneVerificationRequest struct {
		PhoneNumber string `json:"phone_number" validate:"required,uzphone"`
	}

	PhoneVerificationConfirmRequest struct {
		PhoneNumber string `json:"phone_number" validate:"required,uzphone"`
		Code        string `json:"code" validate:"required,len=6,numeric"`
	}

	PhoneExistsRequest struct {
		PhoneNumber string `query:"phone_number" validate:"required,uzphone"`
		Role        string `query:"role" validate:"required,oneof=student parent teacher admin"`
	}

	PhoneExistsResponse struct {
		Exists bool `json:"exists"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}
)

func (lr *LoginRequest) Validate() error {
	lr.PhoneNumber = core.CleanString(lr.PhoneNumber)
	lr.Role = core.CleanString(lr.Role, true /* lower */)
	return core.Validate.Struct(lr)
}

func (pr *PhoneVerificationRequest) Validate() error {
	pr.PhoneNumber = core.CleanString(pr.PhoneNumber)
	return core.Validate.Struct(pr)
}

func (pc *PhoneVerificationConfirmRequest) Validate() error {
	pc.PhoneNumber = core.CleanString(pc.PhoneNumber)
	pc.Code = core.CleanString(pc.Code)
	return core.Validate.Struct(pc)
}

func (pe *PhoneExistsRequest) Validate() error {
	pe.PhoneNumber = core.CleanString(pe.PhoneNumber)
	pe.Role = core.CleanString(pe.Role, true /* lower */)
	return core.Validate.Struct(pe)
}
