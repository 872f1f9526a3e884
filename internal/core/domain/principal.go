package domain

import "strings"

// Role is the privilege tier a request is admitted under.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// ParseRole maps a configuration value onto a Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAnonymous:
		return RoleAnonymous, true
	case RoleUser:
		return RoleUser, true
	case RoleAdmin:
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Principal identifies who is making a request. The concrete types are
// Anonymous, Member and Admin; nothing outside this package can add variants.
type Principal interface {
	Role() Role
	Identifier() string
	principal()
}

// Anonymous is a caller without a validated identity, keyed by network address.
type Anonymous struct {
	Addr string
}

func (Anonymous) Role() Role { return RoleAnonymous }

func (a Anonymous) Identifier() string { return "ip:" + a.Addr }

func (Anonymous) principal() {}

// Member is an authenticated, non-admin user.
type Member struct {
	UserID string
}

func (Member) Role() Role { return RoleUser }

func (m Member) Identifier() string { return "user:" + m.UserID }

func (Member) principal() {}

// Admin is an authenticated user carrying the admin flag.
type Admin struct {
	UserID string
}

func (Admin) Role() Role { return RoleAdmin }

func (a Admin) Identifier() string { return "user:" + a.UserID }

func (Admin) principal() {}

// PrincipalFor builds the authenticated variant for user.
func PrincipalFor(user User) Principal {
	if user.IsAdmin {
		return Admin{UserID: user.ID}
	}
	return Member{UserID: user.ID}
}
