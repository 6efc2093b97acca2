package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/juniordw/rotasi-lms-sub000/core"
	"github.com/juniordw/rotasi-lms-sub000/core/user"
)

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{base{exec: exec}}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	ex := repo.getExec(exec)
	usr.Email = core.CleanString(usr.Email, true)
	if usr.CreatedAt.IsZero() {
		usr.CreatedAt = core.Now()
	}

	q := ex.Rebind(`INSERT INTO users (name, email, role, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := ex.QueryRowxContext(ctx, q, usr.Name, usr.Email, usr.Role, usr.CreatedAt).Scan(&usr.ID); err != nil {
		if isUniqueViolation(err) {
			return user.User{}, core.NewConflictError("email already taken")
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, id int64, exec ...core.DBExecutor) (user.User, error) {
	ex := repo.getExec(exec)
	var usr user.User
	err := sqlxGet(ctx, ex, &usr, `SELECT id, name, email, role, created_at FROM users WHERE id = ?`, id)
	if err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "getting user")
	}
	return usr, nil
}
