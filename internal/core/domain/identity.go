package domain

import "time"

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	UserName     string
	UserCode     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserPublicView is the user shape returned to API callers. It never carries the password hash.
type UserPublicView struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	UserCode  string    `json:"userCode"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PublicView strips secrets from u.
func (u User) PublicView() UserPublicView {
	return UserPublicView{
		ID:        u.ID,
		UserName:  u.UserName,
		UserCode:  u.UserCode,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// ProfileUpdate is a partial update. Nil fields are left untouched.
type ProfileUpdate struct {
	UserName    *string
	UserCode    *string
	IsAdmin     *bool
	NewPassword *string
}

// StripPrivileged drops the identity and role fields a non-admin may not change.
func (p ProfileUpdate) StripPrivileged() ProfileUpdate {
	p.UserName = nil
	p.UserCode = nil
	p.IsAdmin = nil
	return p
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.UserName == nil && p.UserCode == nil && p.IsAdmin == nil && p.NewPassword == nil
}
