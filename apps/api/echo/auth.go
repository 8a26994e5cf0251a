package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/auth"
	"github.com/trezcool/schoolsys/core/policy"
	"github.com/trezcool/schoolsys/core/user"
)

type (
	LoginRequest struct {
		Username string `json:"username" form:"username" validate:"required"`
		Password string `json:"password" form:"password" validate:"required"`
	}

	LoginResponse struct {
		UserID    string    `json:"user_id"`
		Role      user.Role `json:"role"`
		Access    string    `json:"access,omitempty"`
		Refresh   string    `json:"refresh,omitempty"`
		SessionID string    `json:"sessionid,omitempty"`
	}

	RegisterResponse struct {
		Status    string `json:"status"`
		Access    string `json:"access,omitempty"`
		Refresh   string `json:"refresh,omitempty"`
		SessionID string `json:"sessionid,omitempty"`
	}

	RefreshRequest struct {
		Refresh string `json:"refresh" validate:"required"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func registerAuthAPI(g *echo.Group, h *handler, throttle echo.MiddlewareFunc) {
	g.POST("/login", h.apiLogin, throttle)
	g.POST("/register", h.apiRegister, throttle)
	g.POST("/token-refresh", h.apiRefreshToken, throttle)
	g.POST("/logout", h.apiLogout)
}

// credentials issued at login or registration, depending on the auth mode
type credentials struct {
	tokens  auth.TokenPair
	session *auth.Session
}

func (h *handler) issueCredentials(ctx context.Context, usr user.User, mode string) (credentials, error) {
	id := auth.IdentityOf(usr)
	if mode == core.AuthModeSession {
		sess, err := h.authn.StartSession(ctx, id)
		if err != nil {
			return credentials{}, errors.Wrap(err, "starting session")
		}
		return credentials{session: sess}, nil
	}
	tokens, err := h.authn.IssueTokens(id)
	if err != nil {
		return credentials{}, errors.Wrap(err, "issuing tokens")
	}
	return credentials{tokens: tokens}, nil
}

func (h *handler) setSessionCookie(ctx echo.Context, sess *auth.Session) {
	ctx.SetCookie(&http.Cookie{
		Name:     h.conf.Server.SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   !(h.conf.Debug || h.conf.TestMode),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *handler) clearSessionCookie(ctx echo.Context) {
	ctx.SetCookie(&http.Cookie{
		Name:     h.conf.Server.SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// endSession deletes the session of the request cookie, if any.
func (h *handler) endSession(ctx echo.Context) error {
	c, err := ctx.Cookie(h.conf.Server.SessionCookie)
	if err != nil {
		return nil
	}
	h.clearSessionCookie(ctx)
	return h.authn.EndSession(ctx.Request().Context(), c.Value)
}

// login authenticates the LoginRequest bound from the request.
func (h *handler) login(ctx echo.Context) (user.User, error) {
	if _, err := h.authorize(ctx, policy.Login, nil); err != nil {
		return user.User{}, err
	}
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return user.User{}, errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(h.validate); err != nil {
		return user.User{}, err
	}
	return h.authn.Authenticate(ctx.Request().Context(), data.Username, data.Password)
}

// register validates the NewUser bound from the request & creates the user,
// issuing its credentials in the same transaction.
func (h *handler) register(ctx echo.Context, mode string) (user.User, credentials, error) {
	if _, err := h.authorize(ctx, policy.Register, nil); err != nil {
		return user.User{}, credentials{}, err
	}
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return user.User{}, credentials{}, errors.Wrap(err, "binding to NewUser")
	}
	c := ctx.Request().Context()
	if err := data.Validate(c, h.validate, h.users); err != nil {
		return user.User{}, credentials{}, err
	}

	var creds credentials
	usr, err := h.users.Register(c, data, func(c context.Context, usr user.User) error {
		var err error
		creds, err = h.issueCredentials(c, usr, mode)
		return err
	})
	if err != nil {
		if creds.session != nil {
			_ = h.authn.EndSession(c, creds.session.ID)
		}
		return user.User{}, credentials{}, err
	}
	return usr, creds, nil
}

// Handlers

func (h *handler) apiLogin(ctx echo.Context) error {
	usr, err := h.login(ctx)
	if err != nil {
		return err
	}
	creds, err := h.issueCredentials(ctx.Request().Context(), usr, h.conf.Server.AuthMode)
	if err != nil {
		return err
	}

	resp := LoginResponse{UserID: usr.ID, Role: usr.Role}
	if creds.session != nil {
		h.setSessionCookie(ctx, creds.session)
		resp.SessionID = creds.session.ID
	} else {
		resp.Access = creds.tokens.Access
		resp.Refresh = creds.tokens.Refresh
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (h *handler) apiRegister(ctx echo.Context) error {
	_, creds, err := h.register(ctx, h.conf.Server.AuthMode)
	if err != nil {
		return err
	}

	resp := RegisterResponse{Status: "registered"}
	if creds.session != nil {
		h.setSessionCookie(ctx, creds.session)
		resp.SessionID = creds.session.ID
	} else {
		resp.Access = creds.tokens.Access
		resp.Refresh = creds.tokens.Refresh
	}
	return ctx.JSON(http.StatusCreated, resp)
}

func (h *handler) apiRefreshToken(ctx echo.Context) error {
	if _, err := h.authorize(ctx, policy.RefreshToken, nil); err != nil {
		return err
	}
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := h.validate.Struct(data); err != nil {
		return err
	}
	tokens, err := h.authn.Refresh(ctx.Request().Context(), data.Refresh)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tokens)
}

// apiLogout ends the cookie session, if any. Bearer tokens are stateless & expire on their own.
func (h *handler) apiLogout(ctx echo.Context) error {
	if _, err := h.authorize(ctx, policy.Logout, nil); err != nil {
		return err
	}
	if err := h.endSession(ctx); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "logged out"})
}
