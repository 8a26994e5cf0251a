package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
)

const actionFailed = "action failed"

// statusOf maps an error cause to its HTTP status & public message.
// A nil map means the error is not a validation error.
func statusOf(err error, translator ut.Translator) (code int, message string, fields map[string][]string) {
	switch origErr := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if origErr.Internal != nil {
			if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
				origErr = herr
			}
		}
		if m, ok := origErr.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(origErr.Code)
		}
		return origErr.Code, message, nil
	case validator.ValidationErrors, *core.ValidationError, *core.ConstraintViolation:
		return http.StatusBadRequest, "", core.FieldErrors(origErr, translator)
	}

	switch cause := errors.Cause(err); cause {
	case core.ErrUnauthorized, core.ErrInvalidCredentials:
		return http.StatusUnauthorized, cause.Error(), nil
	case core.ErrForbidden, core.ErrAccountDeactivated:
		return http.StatusForbidden, cause.Error(), nil
	case core.ErrNotFound:
		return http.StatusNotFound, cause.Error(), nil
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), nil
}

// isAPIRequest reports whether the request targets the JSON surface.
func isAPIRequest(ctx echo.Context) bool {
	p := ctx.Request().URL.Path
	return p == "/health" || p == "/api" || strings.HasPrefix(p, "/api/")
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, msg, fields := statusOf(err, translator)

		if code == http.StatusInternalServerError {
			args := []interface{}{errors.Wrap(err, msg)}
			if id := contextIdentity(ctx); id != nil {
				args = append(args, *id)
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				msg = err.Error()
			}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead { // Issue #608
			err = ctx.NoContent(code)
		} else if isAPIRequest(ctx) {
			if fields != nil {
				err = ctx.JSON(code, fields)
			} else {
				err = ctx.JSON(code, echo.Map{"error": msg})
			}
		} else {
			err = renderError(ctx, code, msg, fields)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}

// renderError sends anonymous page visitors to the login page & renders an error page otherwise.
func renderError(ctx echo.Context, code int, msg string, fields map[string][]string) error {
	if code == http.StatusUnauthorized && contextIdentity(ctx) == nil {
		next := url.Values{"next": {ctx.Request().URL.Path}}
		return ctx.Redirect(http.StatusFound, "/login?"+next.Encode())
	}
	p := newPage(ctx, echo.Map{"Code": code, "Message": msg})
	if fields != nil {
		p.Errors = fields
	}
	return ctx.Render(code, "error", p)
}
