package main

import (
	"context"

	"github.com/trezcool/schoolsys/core/user"
)

// addUser creates the user or, if the username is taken, updates & reactivates it.
func (cli *commandLine) addUser(nu user.NewUser) error {
	nu.Clean()
	if err := cli.validate.Struct(nu); err != nil {
		return err
	}
	_, err := cli.usrSvc.AddUser(context.Background(), nu)
	return err
}
