package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/kat-co/vala"
	"golang.org/x/term"

	"github.com/trezcool/shule/apps/api/di"
	"github.com/trezcool/shule/core/course"
	"github.com/trezcool/shule/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoIndexes  = errors.New("the configured database engine has no indexes")
	errNoPassword = errors.New("a password is required")
)

type commandLine struct {
	usrRepo user.Repository
	usrSvc  *user.Service
	crsSvc  *course.Service
	indexer di.Indexer // nil for the memory engine
	out     io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  adduser -username USERNAME -email EMAIL [-role Admin|Teacher|Student] [-first NAME] [-last NAME] - create an active user, or reactivate an existing one")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  ensureindexes - create the database indexes")
	fmt.Fprintln(cli.out, "  reconcile - repair the references between users and courses")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserRole := addUserCmd.String("role", string(user.RoleAdmin), "The user's role.")
	addUserFirst := addUserCmd.String("first", "", "The user's first name (defaults to the username).")
	addUserLast := addUserCmd.String("last", "", "The user's last name (defaults to the role).")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	switch args[1] {
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		err := vala.BeginValidation().Validate(
			vala.StringNotEmpty(*addUserUname, "username"),
			vala.StringNotEmpty(*addUserEmail, "email"),
		).Check()
		if err != nil {
			fmt.Fprintln(cli.out, err)
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		return cli.addUser(newUserArgs{
			username:  *addUserUname,
			email:     *addUserEmail,
			role:      user.Role(*addUserRole),
			firstName: *addUserFirst,
			lastName:  *addUserLast,
			password:  pwd,
		})

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if err := vala.BeginValidation().Validate(vala.StringNotEmpty(*resetPasswordUname, "username")).Check(); err != nil {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			if err == errNoPassword {
				resetPasswordCmd.Usage()
				return errHelp
			}
			return err
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "ensureindexes":
		return cli.ensureIndexes()

	case "reconcile":
		return cli.reconcile()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}
