package domain

import "time"

// Roles assignable to accounts. Fixed at account creation.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account record. Credentials live with the auth service and
// never pass through this API.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// UserRef is a user resolved to display fields for API responses.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Identity is the verified caller identity supplied by the auth collaborator.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

// Registration is a user-side membership row: one event the user is
// registered for.
type Registration struct {
	EventID      string    `json:"eventId"`
	RegisteredAt time.Time `json:"registeredAt"`
}
