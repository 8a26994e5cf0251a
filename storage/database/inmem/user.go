package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/schoolsys/core"
	"github.com/trezcool/schoolsys/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, uniqueID string, excludedIDs ...string) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkUniqueness(username, uniqueID, excludedIDs...)
}

func (repo *userRepository) checkUniqueness(username, uniqueID string, excludedIDs ...string) error {
	for _, usr := range repo.db.users {
		if core.ContainsString(excludedIDs, usr.ID) {
			continue
		}
		if usr.Username == username {
			return user.ErrUsernameExists
		}
		if usr.UniqueID == uniqueID {
			return user.ErrUniqueIDExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkUniqueness(usr.Username, usr.UniqueID); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = usr
	record(ctx, func() { delete(repo.db.users, usr.ID) })
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(_ context.Context, username string) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, usr := range repo.db.users {
		if usr.Username == username {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) ListUsers(_ context.Context, filter user.Filter) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.db.users {
		if filter.Match(usr) {
			users = append(users, usr)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	if err := user.CheckRoleUnchanged(orig, usr); err != nil {
		return user.User{}, err
	}
	if err := repo.checkUniqueness(usr.Username, usr.UniqueID, usr.ID); err != nil {
		return user.User{}, err
	}
	repo.db.users[usr.ID] = usr
	record(ctx, func() { repo.db.users[orig.ID] = orig })
	return usr, nil
}

// roles maps the given user IDs to their roles. The DB lock must be held.
func (db *DB) roles(ids ...string) map[string]user.Role {
	roles := make(map[string]user.Role, len(ids))
	for _, id := range ids {
		if usr, ok := db.users[id]; ok {
			roles[id] = usr.Role
		}
	}
	return roles
}
