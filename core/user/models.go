package user

import (
	"context"
	"strings"
	"time"

	"github.com/juniordw/rotasi-lms-sub000/core"
)

// Roles
const (
	RoleAdmin      = "admin:"
	RoleInstructor = "instructor:"
	RoleStudent    = "student:"
)

var (
	AllRoles = []string{RoleAdmin, RoleInstructor, RoleStudent}

	// errors
	ErrNotFound = core.NewNotFoundError("user not found")
)

// User is a read model of the accounts managed by the auth layer.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (u User) IsAdmin() bool      { return strings.HasPrefix(u.Role, RoleAdmin) }
func (u User) IsInstructor() bool { return strings.HasPrefix(u.Role, RoleInstructor) }
func (u User) IsStudent() bool    { return strings.HasPrefix(u.Role, RoleStudent) }

type Repository interface {
	CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	GetUser(ctx context.Context, id int64, exec ...core.DBExecutor) (User, error)
}
