package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof" // /debug/pprof on the debug server
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trezcool/schoolsys/apps/api/echo"
	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/policy"
	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/services/email"
	"github.com/trezcool/schoolsys/services/logger"
	"github.com/trezcool/schoolsys/storage/database"
	"github.com/trezcool/schoolsys/storage/database/inmem"
	"github.com/trezcool/schoolsys/storage/database/sqlx"
	"github.com/trezcool/schoolsys/storage/sessions/redisstore"
)

// stores holds the repositories of the configured database engine.
type stores struct {
	users       user.Repository
	courses     course.Repository
	assignments assignment.Repository
	tx          core.Transactor
	close       func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(os.Stdout, "API", conf)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(os.Stdout, "DB", conf)
	dbLogger.Enable(!conf.Debug)

	// set up storage
	st, err := setUpStores(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = st.close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	sessions, closeSessions, err := setUpSessions(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up sessions: %v", err), err)
	}
	defer func() {
		if err = closeSessions(); err != nil {
			logger.Error("Failed to close session store", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(st.users, st.tx)
	crsSvc := course.NewService(st.courses, st.tx)
	asgmtSvc := assignment.NewService(st.assignments, crsSvc, assignment.NewNotifier(usrSvc, mailSvc, logger))

	tokens := auth.NewTokenIssuer(conf)
	authn := auth.NewAuthenticator(usrSvc, tokens, sessions, conf.Server.SessionTTL)

	guard, err := policy.NewRouteGuard()
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading route table: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus metrics, including the authorization decisions.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("authMode").Set(conf.Server.AuthMode)

	http.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server, err := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			Resolver: auth.ActiveOnly(auth.Chain(
				auth.NewSessionResolver(sessions, conf.Server.SessionCookie),
				auth.NewBearerResolver(tokens),
			), usrSvc),
			Authenticator: authn,
			Authorizer:    policy.NewInstrumented(policy.Engine{}, logger),
			Guard:         guard,
			UserSvc:       usrSvc,
			CourseSvc:     crsSvc,
			AssignmentSvc: asgmtSvc,
		},
	)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up server: %v", err), err)
	}

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpStores opens & migrates the Postgres database, or uses the in-memory store when database.engine is "memory".
func setUpStores(conf *core.Config) (*stores, error) {
	if conf.Database.Engine == core.DatabaseEngineMemory {
		db := inmemdb.NewDB()
		return &stores{
			users:       inmemdb.NewUserRepository(db),
			courses:     inmemdb.NewCourseRepository(db),
			assignments: inmemdb.NewAssignmentRepository(db),
			tx:          inmemdb.NewTransactor(db),
			close:       func() error { return nil },
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &stores{
		users:       sqlxrepos.NewUserRepository(db),
		courses:     sqlxrepos.NewCourseRepository(db),
		assignments: sqlxrepos.NewAssignmentRepository(db),
		tx:          database.NewTransactor(db),
		close:       db.Close,
	}, nil
}

func setUpSessions(conf *core.Config) (auth.SessionStore, func() error, error) {
	if conf.Sessions.Backend != core.SessionBackendRedis {
		return auth.NewMemorySessionStore(), func() error { return nil }, nil
	}
	rdb, err := redisstore.Open(context.Background(), conf)
	if err != nil {
		return nil, nil, err
	}
	return redisstore.New(rdb), rdb.Close, nil
}
