package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/user"
)

// Authenticator verifies credentials & issues sessions or bearer tokens.
type Authenticator struct {
	users      *user.Service
	tokens     *TokenIssuer
	sessions   SessionStore
	sessionTTL time.Duration
}

func NewAuthenticator(users *user.Service, tokens *TokenIssuer, sessions SessionStore, sessionTTL time.Duration) *Authenticator {
	return &Authenticator{
		users:      users,
		tokens:     tokens,
		sessions:   sessions,
		sessionTTL: sessionTTL,
	}
}

// Authenticate checks the credentials and records the login.
// It fails with core.ErrInvalidCredentials or core.ErrAccountDeactivated.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (user.User, error) {
	usr, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return user.User{}, core.ErrInvalidCredentials
		}
		return user.User{}, errors.Wrap(err, "finding user by username")
	}
	if err = usr.CheckPassword(password); err != nil {
		return user.User{}, core.ErrInvalidCredentials
	}
	if !usr.IsActive {
		return user.User{}, core.ErrAccountDeactivated
	}
	usr, err = a.users.SetLastLogin(ctx, usr)
	if err != nil {
		return user.User{}, errors.Wrap(err, "setting lastLogin")
	}
	return usr, nil
}

func (a *Authenticator) IssueTokens(id Identity) (TokenPair, error) {
	return a.tokens.Issue(id)
}

func (a *Authenticator) StartSession(ctx context.Context, id Identity) (*Session, error) {
	s, err := NewSession(id, a.sessionTTL)
	if err != nil {
		return nil, err
	}
	if err = a.sessions.Create(ctx, s); err != nil {
		return nil, errors.Wrap(err, "storing session")
	}
	return s, nil
}

// EndSession invalidates the session immediately.
func (a *Authenticator) EndSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return errors.Wrap(a.sessions.Delete(ctx, sessionID), "deleting session")
}

// Refresh exchanges a valid refresh token for a new token pair.
// The user must still exist & be active; the previous refresh token stays valid until it expires.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := a.tokens.Parse(refreshToken, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	usr, err := a.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return TokenPair{}, errors.Wrap(core.ErrUnauthorized, "unknown user")
		}
		return TokenPair{}, errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return TokenPair{}, core.ErrAccountDeactivated
	}
	return a.tokens.Issue(IdentityOf(usr))
}
