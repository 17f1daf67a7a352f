package domain

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
	RoleGuest  UserRole = "guest"
)

// ValidRole returns true for known roles
func ValidRole(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleMember, RoleGuest:
		return true
	}
	return false
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         UserRole
	CreatedAt    time.Time
}

// CanViewCalendar returns true if the user may read the association calendar
func (u *User) CanViewCalendar() bool {
	return u.Role == RoleAdmin || u.Role == RoleMember
}

// CanManageCalendar returns true if the user may change calendar settings
func (u *User) CanManageCalendar() bool {
	return u.Role == RoleAdmin
}

// Session binds a browser cookie to a user; the event cache is scoped by it
type Session struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	LastSeen  time.Time
}
