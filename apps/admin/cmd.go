package main

import (
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/newedu/guardian/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	usrSvc  *user.Service
	usrRepo user.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  createsuperuser -phone PHONE [-username USERNAME] - create an administrator account")
	fmt.Println("  resetpassword -phone PHONE [-role ROLE]           - reset a user's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createSuperuserCmd := flag.NewFlagSet("createsuperuser", flag.ExitOnError)
	superuserPhone := createSuperuserCmd.String("phone", "", "The admin's phone number. The password will be prompted next.")
	superuserUname := createSuperuserCmd.String("username", "", "Optional username.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordPhone := resetPasswordCmd.String("phone", "", "The user's phone number. The password will be prompted next.")
	resetPasswordRole := resetPasswordCmd.String("role", user.RoleAdmin, "The user's role (student, parent, teacher, admin).")

	switch args[1] {
	case "createsuperuser":
		if err := createSuperuserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *superuserPhone == "" {
			createSuperuserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createSuperuserCmd.Usage()
			return errHelp
		}
		return cli.createSuperuser(*superuserPhone, *superuserUname, pwd)
	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordPhone == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordPhone, *resetPasswordRole, pwd)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
