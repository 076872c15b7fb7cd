package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/activity"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
)

type (
	ServerDeps struct {
		Conf   *core.Config
		Logger core.Logger

		UserSvc     *user.Service
		SchoolSvc   *school.Service
		CatalogSvc  *catalog.Service
		PolicySvc   *policy.Service
		ApprovalSvc *approval.Service
		DeviceSvc   *device.Service
		ActivitySvc *activity.Service

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		jwtCfg   middleware.JWTConfig
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		jwtCfg:   jwtConfig(deps.Conf),
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.deps.Conf

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(s.jwtCfg)

	registerUserAPI(v1, jwt, s.deps.Conf, s.deps.UserSvc)
	registerSchoolAPI(v1, jwt, s.deps.SchoolSvc, s.deps.UserSvc)
	registerCatalogAPI(v1, jwt, s.deps.CatalogSvc, s.deps.UserSvc)
	registerPolicyAPI(v1, jwt, s.deps.PolicySvc, s.deps.UserSvc)
	registerApprovalAPI(v1, jwt, s.deps.ApprovalSvc, s.deps.UserSvc)
	registerDeviceAPI(v1, jwt, s.deps.DeviceSvc, s.deps.UserSvc)
	registerActivityAPI(v1, jwt, s.deps.ActivitySvc, s.deps.UserSvc)
}

func (s *server) Start() {
	s.errs <- s.app.Start(s.deps.Conf.Server.Host)
}

// Errors surfaces a fatal listener error.
func (s *server) Errors() <-chan error { return s.errs }

// ShutdownSignal relays SIGINT/SIGTERM; the error handler also pushes a
// SIGTERM here when it catches an integrity error.
func (s *server) ShutdownSignal() <-chan os.Signal {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	return s.shutdown
}

func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Guardian API!")
}
