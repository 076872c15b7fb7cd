package main

import (
	"context"

	"github.com/newedu/guardian/core/user"
)

func (cli *commandLine) createSuperuser(phone, uname, pwd string) error {
	na := user.NewAdmin{
		NewUser: user.NewUser{
			PhoneNumber:     phone,
			Username:        uname,
			Password:        pwd,
			PasswordConfirm: pwd,
		},
	}
	if err := na.Validate(); err != nil {
		return err
	}

	_, err := cli.usrSvc.RegisterAdmin(context.Background(), na)
	return err
}
