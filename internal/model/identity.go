package model

// Identity is the authenticated caller attached to every request.
// Ownership decisions use only this value, never client-supplied ids.
type Identity struct {
	UserID int    `json:"user_id"`
	Role   Role   `json:"role"`
	Email  string `json:"email"`
}

// IsAuthority reports whether the identity may author tests and read aggregates.
func (i Identity) IsAuthority() bool {
	return i.Role == RoleAdmin
}
