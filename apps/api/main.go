package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	echoapi "github.com/newedu/guardian/apps/api/echo"
	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/activity"
	"github.com/newedu/guardian/core/approval"
	"github.com/newedu/guardian/core/catalog"
	"github.com/newedu/guardian/core/device"
	"github.com/newedu/guardian/core/policy"
	"github.com/newedu/guardian/core/school"
	"github.com/newedu/guardian/core/user"
	emailsvc "github.com/newedu/guardian/services/email"
	logsvc "github.com/newedu/guardian/services/logger"
	otpsvc "github.com/newedu/guardian/services/otp"
	smssvc "github.com/newedu/guardian/services/sms"
	"github.com/newedu/guardian/storage/database"
	sqlxrepos "github.com/newedu/guardian/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("failed to close database", err)
		}
	}()

	var mailSvc core.EmailService
	var smsSvc core.SMSService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
		smsSvc = smssvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(logger, conf)
		smsSvc = smssvc.NewGatewayService(logger, conf)
	}
	otpStore := otpsvc.NewRedisStore(conf)

	usrSvc := user.NewService(db, sqlxrepos.NewUserRepository(db), smsSvc, otpStore, conf)
	schoolSvc := school.NewService(db, sqlxrepos.NewSchoolRepository(db))
	catSvc := catalog.NewService(db, sqlxrepos.NewCatalogRepository(db))
	deviceSvc := device.NewService(db, sqlxrepos.NewDeviceRepository(db))
	activitySvc := activity.NewService(sqlxrepos.NewActivityRepository(db), deviceSvc, catSvc, usrSvc)
	policySvc := policy.NewService(db, sqlxrepos.NewPolicyRepository(db), activitySvc, schoolSvc, catSvc, conf)
	approvalSvc := approval.NewService(db, sqlxrepos.NewApprovalRepository(db), catSvc, policySvc, mailSvc, logger, conf)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	core.InitValidators()
	user.InitValidators()
	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		SchoolSvc:   schoolSvc,
		CatalogSvc:  catSvc,
		PolicySvc:   policySvc,
		ApprovalSvc: approvalSvc,
		DeviceSvc:   deviceSvc,
		ActivitySvc: activitySvc,
	})

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(conf *core.Config) (*database.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	return database.Open(conf)
}
