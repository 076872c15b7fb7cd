package main

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/newedu/guardian/core"
	"github.com/newedu/guardian/core/user"
	otpsvc "github.com/newedu/guardian/services/otp"
	smssvc "github.com/newedu/guardian/services/sms"
	inmemdb "github.com/newedu/guardian/storage/database/inmem"
)

var initOnce sync.Once

func setup(t *testing.T) (*commandLine, user.Repository) {
	t.Helper()

	initOnce.Do(func() {
		core.InitValidators()
		user.InitValidators()
	})

	conf := core.NewConfig()
	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewService(db, usrRepo, smssvc.NewConsoleServiceMock(conf), otpsvc.NewInMemStore(), conf)

	return &commandLine{usrSvc: usrSvc, usrRepo: usrRepo}, usrRepo
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func Test_commandLine_createSuperuser(t *testing.T) {
	cli, usrRepo := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"createsuperuser"}, wantErr: errHelp},
		{name: "phone but no password", args: []string{"createsuperuser", "-phone", "+998901234567"}, wantErr: errHelp},
		{name: "create", args: []string{"createsuperuser", "-phone", "+998901234567"}, pwd: "G0od#Pa55word"},
		{name: "duplicate phone", args: []string{"createsuperuser", "-phone", "+998901234567"}, pwd: "G0od#Pa55word", wantErr: user.ErrPhoneExists},
	}
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				usr, err := usrRepo.GetUserByPhone(context.Background(), "+998901234567", user.RoleAdmin)
				if err != nil {
					t.Fatalf("GetUserByPhone() failed, %v", err)
				}
				if !usr.IsAdmin() {
					t.Error("created user is not an admin")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli, usrRepo := setup(t)

	na := user.NewAdmin{NewUser: user.NewUser{
		PhoneNumber:     "+998907654321",
		Password:        "G0od#Pa55word",
		PasswordConfirm: "G0od#Pa55word",
	}}
	usr, err := cli.usrSvc.RegisterAdmin(context.Background(), na)
	if err != nil {
		t.Fatalf("RegisterAdmin() failed, %v", err)
	}

	tests := []cliTest{
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "phone but no password", args: []string{"resetpassword", "-phone", usr.PhoneNumber}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-phone", "+998900000000"}, pwd: "An0ther#Pa55", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-phone", usr.PhoneNumber}, pwd: "An0ther#Pa55"},
	}
	for _, tt := range tests {
		tt := tt
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := usrRepo.GetUserByID(context.Background(), usr.ID)
				if err != nil {
					t.Fatalf("GetUserByID() failed, %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, usr.PasswordHash) {
					t.Error("failed to update new password")
				}
			} else if errors.Cause(err) != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
