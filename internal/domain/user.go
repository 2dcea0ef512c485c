package domain

// User is the authenticated principal attached to a ClientSession, or nil
// when auth is disabled or the session never authenticated.
type User struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}

// IsAdmin reports whether u is an authenticated admin principal.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}
