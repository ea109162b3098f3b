// AngelaMos | 2026
// role.go

package policy

import (
	"fmt"
)

// Role is the single authority attribute of an account. The set is closed:
// values outside the three constants are rejected by ParseRole.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

func (r Role) rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	}
	return 0
}

// AtLeast reports whether r sits at or above floor in the hierarchy.
func (r Role) AtLeast(floor Role) bool {
	return r.Valid() && r.rank() >= floor.rank()
}

// CanOperate decides whether an actor may act on an account holding target.
// Admin privilege is not transitive: an admin may only act on plain users,
// never on another admin. Self-service paths must not go through here.
func CanOperate(actor, target Role) bool {
	switch actor {
	case RoleSuperAdmin:
		return target.Valid()
	case RoleAdmin:
		return target == RoleUser
	case RoleUser:
		return false
	}
	return false
}
