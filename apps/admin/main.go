package main

import (
	"log"
	"os"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/user"
	otpsvc "github.com/newedu/guardian/services/otp"
	smssvc "github.com/newedu/guardian/services/sms"
	"github.com/newedu/guardian/storage/database"
	sqlxrepos "github.com/newedu/guardian/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	core.InitValidators()
	user.InitValidators()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(db, usrRepo, smssvc.NewConsoleService(conf), otpsvc.NewInMemStore(), conf)

	// start CLI
	cli := commandLine{
		usrSvc:  usrSvc,
		usrRepo: usrRepo,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
