// AngelaMos | 2026
// entity.go

package user

import (
	"time"

	"github.com/carterperez-dev/templates/user-svc/internal/policy"
)

type User struct {
	ID              string      `db:"id"`
	Email           string      `db:"email"`
	Username        string      `db:"username"`
	PasswordHash    string      `db:"password_hash"`
	FirstName       *string     `db:"first_name"`
	LastName        *string     `db:"last_name"`
	Avatar          *string     `db:"avatar"`
	Role            policy.Role `db:"role"`
	IsActive        bool        `db:"is_active"`
	IsEmailVerified bool        `db:"is_email_verified"`
	LastLoginAt     *time.Time  `db:"last_login_at"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
	DeletedAt       *time.Time  `db:"deleted_at"`
}

func (u *User) IsDeleted() bool {
	return u.DeletedAt != nil
}
