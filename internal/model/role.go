package model

// Role is the coarse authorization role carried in every identity.
type Role string

const (
	// RoleStudent takes tests and reads only their own submissions.
	RoleStudent Role = "STUDENT"
	// RoleAdmin authors tests and reads aggregate results.
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}
