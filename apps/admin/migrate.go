package main

import (
	"github.com/pressly/goose/v3"

	appfs "github.com/trezcool/academia/fs"
	"github.com/trezcool/academia/storage/database"
)

var gooseRunFunc = goose.Run // mockable

func (cli *commandLine) migrate(args []string) error {
	if err := database.SetupMigrations(); err != nil {
		return err
	}
	return gooseRunFunc(args[0], cli.db, appfs.MigrationsDir, args[1:]...)
}
