package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

// cliActor is the admin on whose behalf the command line edits users.
var cliActor = user.User{Role: user.RoleAdmin, Status: user.StatusActive}

type newUserArgs struct {
	username  string
	email     string
	role      user.Role
	firstName string
	lastName  string
	password  string
}

// addUser creates an active user, or reactivates an existing one with a new password.
// The role of an existing user is left untouched.
func (cli *commandLine) addUser(args newUserArgs) error {
	ctx := context.Background()
	uname := core.CleanString(args.username, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Username: uname})
	if errors.Cause(err) == user.ErrNotFound {
		usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	}
	switch errors.Cause(err) {
	case nil:
		if usr.Role != args.role {
			fmt.Fprintf(cli.out, "user %q exists with role %s; role left unchanged\n", usr.Username, usr.Role)
		}
		if usr.Status == user.StatusArchived {
			if usr, err = cli.usrSvc.Restore(ctx, usr.ID, user.StatusActive); err != nil {
				return err
			}
		}
		active := user.StatusActive
		usr, err = cli.usrSvc.Update(ctx, cliActor, usr.ID, user.UpdateUser{
			Status:          &active,
			Password:        args.password,
			PasswordConfirm: args.password,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %q updated\n", usr.Username)
		return nil

	case user.ErrNotFound:
		first, last := args.firstName, args.lastName
		if first == "" {
			first = uname
		}
		if last == "" {
			last = string(args.role)
		}
		created, err := cli.usrSvc.Create(ctx, user.NewUser{
			Username:        uname,
			Email:           email,
			FirstName:       first,
			LastName:        last,
			Role:            args.role,
			Status:          user.StatusActive,
			Password:        args.password,
			PasswordConfirm: args.password,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cli.out, "user %q created with user id %s\n", created.Username, created.UserID)
		return nil

	default:
		return err
	}
}
