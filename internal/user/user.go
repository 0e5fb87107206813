package user

import "github.com/google/uuid"

type Role string

const (
	RoleUser     Role = "user"
	RoleTreasury Role = "treasury"
	RoleAdmin    Role = "admin"
)

// CanDisburse reports whether the role carries the treasury capability.
func (r Role) CanDisburse() bool {
	return r == RoleTreasury || r == RoleAdmin
}

// SeesAll reports whether the role may list requests it is not party to.
func (r Role) SeesAll() bool {
	return r == RoleTreasury || r == RoleAdmin
}

type User struct {
	ID       uuid.UUID
	FullName string
	Email    string
	Role     Role
}
