package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolsys/core/user"
	"github.com/trezcool/schoolsys/storage/database"
)

const userColumns = `id, username, email, role, unique_id, password_hash, is_active, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUniqueness(ctx context.Context, username, uniqueID string, excludedIDs ...string) error {
	q, args, err := sqlx.In(
		`SELECT username, unique_id FROM "user" WHERE (username = ? OR unique_id = ?) AND id NOT IN (?) LIMIT 1`,
		username, uniqueID, append([]string{"00000000-0000-0000-0000-000000000000"}, excludedIDs...),
	)
	if err != nil {
		return errors.Wrap(err, "building query")
	}

	var found struct {
		Username string `db:"username"`
		UniqueID string `db:"unique_id"`
	}
	conn := database.Conn(ctx, repo.db)
	if err = conn.GetContext(ctx, &found, conn.Rebind(q), args...); err != nil {
		if isNoRows(err) {
			return nil
		}
		return err
	}
	if found.Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrUniqueIDExists
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	_, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, repo.db),
		`INSERT INTO "user" (`+userColumns+`)
		VALUES (:id, :username, :email, :role, :unique_id, :password_hash, :is_active, :created_at, :updated_at, :last_login)`,
		usr,
	)
	if err != nil {
		return user.User{}, userWriteError(err)
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !isUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.get(ctx, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return repo.get(ctx, `SELECT `+userColumns+` FROM "user" WHERE username = $1`, username)
}

func (repo *userRepository) get(ctx context.Context, q string, args ...interface{}) (user.User, error) {
	var usr user.User
	if err := database.Conn(ctx, repo.db).GetContext(ctx, &usr, q, args...); err != nil {
		if isNoRows(err) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return usr, nil
}

func (repo *userRepository) ListUsers(ctx context.Context, filter user.Filter) ([]user.User, error) {
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return []user.User{}, nil
	}

	q := `SELECT ` + userColumns + ` FROM "user" WHERE true`
	args := make([]interface{}, 0, 2)
	if filter.IDs != nil {
		q += ` AND id::text IN (?)`
		args = append(args, filter.IDs)
	}
	if filter.Role != "" {
		q += ` AND role = ?`
		args = append(args, filter.Role)
	}
	q += ` ORDER BY username`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	conn := database.Conn(ctx, repo.db)
	users := make([]user.User, 0)
	if err = conn.SelectContext(ctx, &users, conn.Rebind(q), args...); err != nil {
		return nil, err
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	stored, err := repo.GetUserByID(ctx, usr.ID)
	if err != nil {
		return user.User{}, err
	}
	if err = user.CheckRoleUnchanged(stored, usr); err != nil {
		return user.User{}, err
	}
	res, err := sqlx.NamedExecContext(ctx, database.Conn(ctx, repo.db),
		`UPDATE "user" SET
			username = :username, email = :email, unique_id = :unique_id,
			password_hash = :password_hash, is_active = :is_active, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id AND role = :role`,
		usr,
	)
	if err != nil {
		return user.User{}, userWriteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

func userWriteError(err error) error {
	if constraint, ok := pqConstraint(err, pqUniqueViolation); ok {
		switch constraint {
		case "user_username_key":
			return user.ErrUsernameExists
		case "user_unique_id_key":
			return user.ErrUniqueIDExists
		}
	}
	return err
}
