package models

import "time"

// Platform roles stored in user_roles.
const (
	RoleAdmin      = "admin"
	RoleModerateur = "moderateur"
	RoleAgent      = "agent"
	RoleSuperAdmin = "superadmin"
)

// PlatformRoles lists every assignable platform role.
var PlatformRoles = []string{RoleAdmin, RoleModerateur, RoleAgent, RoleSuperAdmin}

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FullName     string    `db:"full_name" json:"full_name"`
	Phone        string    `db:"phone" json:"phone"`
	Roles        []string  `db:"-" json:"roles"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// HasRole reports whether the user holds any of roles.
func HasRole(userRoles []string, roles ...string) bool {
	for _, have := range userRoles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
