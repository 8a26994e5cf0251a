package auth

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/user"
)

// Identity is the resolved user attached to an authenticated request.
type Identity struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Role     user.Role `json:"role"`
}

func IdentityOf(usr user.User) Identity {
	return Identity{UserID: usr.ID, Username: usr.Username, Role: usr.Role}
}

func (id *Identity) Is(userID string) bool {
	return id != nil && id.UserID == userID
}

func (id *Identity) HasRole(roles ...user.Role) bool {
	if id == nil {
		return false
	}
	for _, role := range roles {
		if id.Role == role {
			return true
		}
	}
	return false
}

// IdentityResolver resolves the Identity carried by a request.
// It returns (nil, nil) when the request carries no credential it understands
// and an error wrapping core.ErrUnauthorized when the credential is invalid.
type IdentityResolver interface {
	Resolve(r *http.Request) (*Identity, error)
}

type chainResolver []IdentityResolver

// Chain returns an IdentityResolver trying each resolver in turn until one yields an Identity.
// An invalid credential does not stop the chain: its error is returned only if no resolver yields an Identity.
func Chain(resolvers ...IdentityResolver) IdentityResolver {
	return chainResolver(resolvers)
}

func (c chainResolver) Resolve(r *http.Request) (*Identity, error) {
	var unauthorized error
	for _, res := range c {
		id, err := res.Resolve(r)
		if err != nil {
			if errors.Cause(err) != core.ErrUnauthorized {
				return nil, err
			}
			if unauthorized == nil {
				unauthorized = err
			}
			continue
		}
		if id != nil {
			return id, nil
		}
	}
	return nil, unauthorized
}

type activeResolver struct {
	next  IdentityResolver
	users *user.Service
}

// ActiveOnly wraps next so that identities of deleted or deactivated users are rejected.
// The returned Identity is rebuilt from the stored user.
func ActiveOnly(next IdentityResolver, users *user.Service) IdentityResolver {
	return &activeResolver{next: next, users: users}
}

func (ar *activeResolver) Resolve(r *http.Request) (*Identity, error) {
	id, err := ar.next.Resolve(r)
	if err != nil || id == nil {
		return id, err
	}
	usr, err := ar.users.GetByID(r.Context(), id.UserID)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return nil, errors.Wrap(core.ErrUnauthorized, "unknown user")
		}
		return nil, errors.Wrap(err, "finding user")
	}
	if !usr.IsActive {
		return nil, errors.Wrap(core.ErrUnauthorized, core.ErrAccountDeactivated.Error())
	}
	fresh := IdentityOf(usr)
	return &fresh, nil
}
