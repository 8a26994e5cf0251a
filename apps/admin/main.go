package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/services/logger"
	"github.com/trezcool/schoolsys/storage/database"
	"github.com/trezcool/schoolsys/storage/database/inmem"
	"github.com/trezcool/schoolsys/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(os.Stderr, "ADMIN", conf)
	logger.Enable(false)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	cli := commandLine{validate: validate}
	if conf.Database.Engine == core.DatabaseEngineMemory {
		db := inmemdb.NewDB()
		cli.usrSvc = user.NewService(inmemdb.NewUserRepository(db), inmemdb.NewTransactor(db))
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		cli.usrSvc = user.NewService(sqlxrepos.NewUserRepository(db), database.NewTransactor(db))
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
			fmt.Printf("\nerror: %s\n", core.FieldErrors(errors.Cause(err), translator))
		}
		os.Exit(1)
	}
}
