package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/access"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
)

type schoolApi struct {
	svc *school.Service
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *school.Service, usrSvc *user.Service) {
	api := schoolApi{svc: svc}

	// locations are public: the registration form needs them before login
	lg := g.Group("/locations")
	lg.GET("/regions", api.regions)
	lg.GET("/regions/:id/cities", api.cities)
	lg.GET("/regions/:id/districts", api.districts)

	ag := g.Group("/locations", jwt, roleMiddleware(usrSvc, access.OpSchoolWrite))
	ag.POST("/regions", api.createRegion)
	ag.POST("/cities", api.createCity)
	ag.POST("/districts", api.createDistrict)

	sg := g.Group("/schools")
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)

	sa := g.Group("/schools", jwt)
	sa.POST("", api.create, roleMiddleware(usrSvc, access.OpSchoolWrite))
	sa.PUT("/:id/policy", api.assignPolicy, roleMiddleware(usrSvc, access.OpSchoolWrite))
	sa.POST("/:id/holidays", api.addHoliday, roleMiddleware(usrSvc, access.OpSchoolWrite))
	sa.GET("/:id/schedule", api.schedule, roleMiddleware(usrSvc, access.OpSchoolRead))
}

// Handlers

func (api *schoolApi) regions(ctx echo.Context) error {
	regions, err := api.svc.Regions(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing regions")
	}
	if regions == nil {
		regions = []school.Region{}
	}
	return ctx.JSON(http.StatusOK, regions)
}

func (api *schoolApi) cities(ctx echo.Context) error {
	cities, err := api.svc.Cities(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing cities")
	}
	if cities == nil {
		cities = []school.City{}
	}
	return ctx.JSON(http.StatusOK, cities)
}

func (api *schoolApi) districts(ctx echo.Context) error {
	districts, err := api.svc.Districts(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "listing districts")
	}
	if districts == nil {
		districts = []school.District{}
	}
	return ctx.JSON(http.StatusOK, districts)
}

func (api *schoolApi) createRegion(ctx echo.Context) error {
	var data NameRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NameRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	region, err := api.svc.CreateRegion(ctx.Request().Context(), data.Name)
	if err != nil {
		return errors.Wrap(err, "creating region")
	}
	return ctx.JSON(http.StatusCreated, region)
}

func (api *schoolApi) createCity(ctx echo.Context) error {
	var data LocationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LocationRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	city, err := api.svc.CreateCity(ctx.Request().Context(), data.Name, data.RegionID)
	if err != nil {
		return errors.Wrap(err, "creating city")
	}
	return ctx.JSON(http.StatusCreated, city)
}

func (api *schoolApi) createDistrict(ctx echo.Context) error {
	var data LocationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LocationRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	district, err := api.svc.CreateDistrict(ctx.Request().Context(), data.Name, data.RegionID)
	if err != nil {
		return errors.Wrap(err, "creating district")
	}
	return ctx.JSON(http.StatusCreated, district)
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	filter.Clean()

	schools, err := api.svc.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) assignPolicy(ctx echo.Context) error {
	var data AssignPolicyRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignPolicyRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	sch, err := api.svc.AssignPolicy(ctx.Request().Context(), ctx.Param("id"), data.PolicyID)
	if err != nil {
		return errors.Wrap(err, "assigning policy")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) addHoliday(ctx echo.Context) error {
	var data school.NewHoliday
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewHoliday")
	}
	data.SchoolID = ctx.Param("id")
	if err := data.Validate(); err != nil {
		return err
	}

	holiday, err := api.svc.AddHoliday(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "adding holiday")
	}
	return ctx.JSON(http.StatusCreated, holiday)
}

func (api *schoolApi) schedule(ctx echo.Context) error {
	year, err := strconv.Atoi(ctx.QueryParam("year"))
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "year", Error: "a valid year is required"})
	}
	month, err := strconv.Atoi(ctx.QueryParam("month"))
	if err != nil || month < 1 || month > 12 {
		return core.NewValidationError(nil, core.FieldError{Field: "month", Error: "a valid month is required"})
	}

	holidays, err := api.svc.Schedule(ctx.Request().Context(), ctx.Param("id"), year, month)
	if err != nil {
		return errors.Wrap(err, "getting schedule")
	}
	if holidays == nil {
		holidays = []school.Holiday{}
	}
	return ctx.JSON(http.StatusOK, holidays)
}

type (
	NameRequest struct {
		Name string `json:"name" validate:"required"`
	}

	LocationRequest struct {
		Name     string `json:"name" validate:"required"`
		RegionID string `json:"region_id" validate:"required"`
	}

	AssignPolicyRequest struct {
		PolicyID string `json:"policy_id" validate:"required"`
	}
)

func (nr *NameRequest) Validate() error {
	nr.Name = core.CleanString(nr.Name)
	return core.Validate.Struct(nr)
}

func (lr *LocationRequest) Validate() error {
	lr.Name = core.CleanString(lr.Name)
	return core.Validate.Struct(lr)
}

func (ap *AssignPolicyRequest) Validate() error { return core.Validate.Struct(ap) }
