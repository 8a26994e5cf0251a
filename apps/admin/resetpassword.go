package main

import "context"

func (cli *commandLine) resetPassword(uname, pwd string) error {
	return cli.usrSvc.SetPassword(context.Background(), uname, pwd)
}

func (cli *commandLine) setActive(uname string, active bool) error {
	_, err := cli.usrSvc.SetActive(context.Background(), uname, active)
	return err
}
