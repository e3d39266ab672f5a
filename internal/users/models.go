package users

import (
	"time"

	"github.com/google/uuid"
)

// Role represents user role in the system
type Role string

const (
	RoleUser       Role = "USER"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

// Roles lists every known role
var Roles = []Role{RoleUser, RoleTechnician, RoleAdmin}

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleTechnician, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may be assigned to reports
func (r Role) IsStaff() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// User represents a user in the system
type User struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Email     string     `db:"email" json:"email"`
	Name      string     `db:"name" json:"name"`
	Password  string     `db:"password_hash" json:"-"` // bcrypt hash
	Role      Role       `db:"role" json:"role"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
	LastLogin *time.Time `db:"last_login" json:"lastLogin,omitempty"` // NULL until first login
}

// Listed is a user row of the management list
type Listed struct {
	User
	OpenTickets    int  `json:"openTicketsCount"`
	HasOpenTickets bool `json:"hasOpenTickets"`
}

// Technician is a staff member with current workload
type Technician struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	Workload int       `json:"workload"`
}

// ListFilter narrows the management list
type ListFilter struct {
	Search string
	Role   Role // empty means any role
}
