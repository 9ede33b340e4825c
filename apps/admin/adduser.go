package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var errInvalidRole = errors.New("invalid role")

func validRole(role string) bool {
	for _, r := range user.AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// addUser updates or creates an active user.User
func (cli *commandLine) addUser(uname, email, pwd, role string, isStaff bool) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if !validRole(role) {
		return errInvalidRole
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	exists := err == nil
	if err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}
	if !exists {
		if err = cli.usrRepo.CheckUsernameUniqueness(ctx, uname, email, nil); err != nil {
			return err
		}
		usr = user.User{Username: uname, CreatedAt: time.Now().UTC()}
	}

	usr.Email = email
	usr.Role = role
	usr.IsStaff = isStaff
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		usr, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "user %s (#%d) saved\n", usr.Username, usr.ID)
	return nil
}
