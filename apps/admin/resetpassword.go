package main

import (
	"context"

	"github.com/newedu/guardian/core"
)

func (cli *commandLine) resetPassword(phone, roleName, pwd string) error {
	ctx := context.Background()
	phone = core.CleanString(phone)
	roleName = core.CleanString(roleName, true /* lower */)

	usr, err := cli.usrRepo.GetUserByPhone(ctx, phone, roleName)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	_, err = cli.usrRepo.UpdateUser(ctx, usr)
	return err
}
