package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/assignment"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/course"
	"github.com/trezcool/schoolsys/core/policy"
	"github.com/trezcool/schoolsys/core/user"
)

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		Resolver      auth.IdentityResolver
		Authenticator *auth.Authenticator
		Authorizer    policy.Authorizer
		Guard         *policy.RouteGuard

		UserSvc       *user.Service
		CourseSvc     *course.Service
		AssignmentSvc *assignment.Service

		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) (Server, error) {
	s := &server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.setup(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *server) setup() error {
	conf := s.deps.Conf

	rdr, err := newRenderer(conf.AppName)
	if err != nil {
		return err
	}

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Renderer = rdr
	s.app.JSONSerializer = jsonSerializer{}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	// identity & route table are checked before routing
	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Pre(identityMiddleware(s.deps.Resolver))
	s.app.Pre(guardMiddleware(s.deps.Guard))

	s.app.Use(middleware.RequestID())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	h := &handler{
		conf:        conf,
		logger:      s.deps.Logger,
		validate:    s.deps.Validate,
		translator:  s.deps.Translator,
		authn:       s.deps.Authenticator,
		authz:       s.deps.Authorizer,
		users:       s.deps.UserSvc,
		courses:     s.deps.CourseSvc,
		assignments: s.deps.AssignmentSvc,
	}
	throttle := loginRateLimit(conf.Server.LoginRateLimit)

	s.app.GET("/health", health)

	registerAuthAPI(s.app.Group("/api"), h, throttle)
	registerAssignmentAPI(s.app.Group("/api/assignments"), h)
	s.app.GET("/api/submissions", h.apiListOwnSubmissions)
	registerPages(s.app, h, throttle)
	return nil
}

func (s *server) Start() {
	s.deps.Logger.Info("API listening on " + s.deps.Conf.Server.Address)
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error {
	return s.errors
}

func (s *server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
