package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolsys/core"
)

var (
	// errors
	ErrNotFound       = errors.WithMessage(core.ErrNotFound, "user")
	ErrUsernameExists = errors.New("a user with that username already exists")
	ErrUniqueIDExists = errors.New("a user with that unique id already exists")
)

type (
	Repository interface {
		// CheckUniqueness returns ErrUsernameExists or ErrUniqueIDExists when taken by a user not in excludedIDs.
		CheckUniqueness(ctx context.Context, username, uniqueID string, excludedIDs ...string) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByUsername(ctx context.Context, username string) (User, error)
		ListUsers(ctx context.Context, filter Filter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
	}

	Service struct {
		repo Repository
		tx   core.Transactor
	}
)

func NewService(repo Repository, tx core.Transactor) *Service {
	return &Service{repo: repo, tx: tx}
}

func (svc *Service) CheckUniqueness(ctx context.Context, uname, uniqueID string, exclIDs ...string) error {
	if err := svc.repo.CheckUniqueness(ctx, uname, uniqueID, exclIDs...); err != nil {
		return uniquenessError(err)
	}
	return nil
}

// uniquenessError turns ErrUsernameExists & ErrUniqueIDExists into a core.ValidationError.
func uniquenessError(err error) error {
	var field string
	switch err {
	case ErrUsernameExists:
		field = "username"
	case ErrUniqueIDExists:
		field = "unique_id"
	default:
		return errors.Wrap(err, "checking uniqueness")
	}
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

func newUser(nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Username:  nu.Username,
		Email:     nu.Email,
		Role:      nu.Role,
		UniqueID:  nu.UniqueID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if usr.Role == "" {
		usr.Role = DefaultRole
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return usr, nil
}

// Register creates the user and runs `then` in the same transaction:
// if `then` fails (eg: issuing credentials), the user is not persisted.
func (svc *Service) Register(ctx context.Context, nu NewUser, then func(ctx context.Context, usr User) error) (User, error) {
	usr, err := newUser(nu)
	if err != nil {
		return User{}, err
	}

	err = svc.tx.RunInTx(ctx, func(ctx context.Context) error {
		created, err := svc.repo.CreateUser(ctx, usr)
		if err != nil {
			if err == ErrUsernameExists || err == ErrUniqueIDExists {
				return uniquenessError(err)
			}
			return errors.Wrap(err, "creating user")
		}
		usr = created
		if then != nil {
			return then(ctx, usr)
		}
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// AddUser creates the user or, if the username is taken, updates its email, password & activates it.
// Updating an existing user with another role fails with a core.ConstraintViolation.
func (svc *Service) AddUser(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	usr, err := svc.repo.GetUserByUsername(ctx, nu.Username)
	if err != nil {
		if errors.Cause(err) != core.ErrNotFound {
			return User{}, errors.Wrap(err, "finding user by username")
		}
		return svc.Register(ctx, nu, nil)
	}

	if err = CheckRoleUnchanged(usr, User{Role: nu.Role}); err != nil {
		return User{}, err
	}
	usr.Email = nu.Email
	usr.IsActive = true
	if nu.UniqueID != "" {
		usr.UniqueID = nu.UniqueID
	}
	if err = usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.update(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsername(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) List(ctx context.Context, filter Filter) ([]User, error) {
	return svc.repo.ListUsers(ctx, filter)
}

// UsernamesByID maps the given user IDs to their usernames.
func (svc *Service) UsernamesByID(ctx context.Context, ids ...string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	users, err := svc.repo.ListUsers(ctx, Filter{IDs: core.UniqueStrings(ids)})
	if err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	for _, usr := range users {
		names[usr.ID] = usr.Username
	}
	return names, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.update(ctx, usr)
}

func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) error {
	usr, err := svc.GetByUsername(ctx, uname)
	if err != nil {
		return errors.Wrap(err, "finding user by username")
	}
	if err = CheckPassword(pwd, usr.Username, usr.Email, usr.UniqueID); err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	_, err = svc.update(ctx, usr)
	return err
}

func (svc *Service) SetActive(ctx context.Context, uname string, active bool) (User, error) {
	usr, err := svc.GetByUsername(ctx, uname)
	if err != nil {
		return User{}, errors.Wrap(err, "finding user by username")
	}
	usr.IsActive = active
	return svc.update(ctx, usr)
}

func (svc *Service) update(ctx context.Context, usr User) (User, error) {
	usr.UpdatedAt = time.Now().UTC()
	usr, err := svc.repo.UpdateUser(ctx, usr)
	return usr, errors.Wrap(err, "updating user")
}
