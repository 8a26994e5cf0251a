package echoapi

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/policy"
)

const contextIdentityKey = "identity"

func contextIdentity(ctx echo.Context) *auth.Identity {
	id, _ := ctx.Get(contextIdentityKey).(*auth.Identity)
	return id
}

// identityMiddleware resolves the request Identity from its session cookie or bearer token.
// An invalid or expired credential leaves the request anonymous.
func identityMiddleware(resolver auth.IdentityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := resolver.Resolve(ctx.Request())
			if err != nil {
				if errors.Cause(err) != core.ErrUnauthorized {
					return errors.Wrap(err, "resolving identity")
				}
				id = nil
			}
			if id != nil {
				ctx.Set(contextIdentityKey, id)
			}
			return next(ctx)
		}
	}
}

// guardMiddleware rejects requests the route table does not grant to the identity's role.
func guardMiddleware(guard *policy.RouteGuard) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			if err := guard.Check(contextIdentity(ctx), req.Method, req.URL.Path); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// loginRateLimit limits credential submissions per IP & minute; limit <= 0 disables it.
func loginRateLimit(limit int) echo.MiddlewareFunc {
	if limit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return echo.WrapMiddleware(httprate.Limit(
		limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
		}),
	))
}
