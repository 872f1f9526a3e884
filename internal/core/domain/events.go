package domain

import "time"

// Event types published on the bus.
const (
	EventUserRegistered     = "user.registered"
	EventUserLoggedIn       = "user.logged_in"
	EventTokenRefreshed     = "token.refreshed"
	EventUserLoggedOut      = "user.logged_out"
	EventUserProfileUpdated = "user.profile_updated"
)

// UserRegisteredEvent is emitted after a successful registration.
type UserRegisteredEvent struct {
	UserID       string    `json:"user_id"`
	UserName     string    `json:"user_name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserLoggedInEvent is emitted after a successful login.
type UserLoggedInEvent struct {
	UserID     string    `json:"user_id"`
	LoggedInAt time.Time `json:"logged_in_at"`
}

// TokenRefreshedEvent is emitted after a refresh token was rotated.
type TokenRefreshedEvent struct {
	UserID      string    `json:"user_id"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// UserLoggedOutEvent is emitted after logout tore down every session of the user.
type UserLoggedOutEvent struct {
	UserID         string    `json:"user_id"`
	RevokedTokens  int64     `json:"revoked_tokens"`
	LoggedOutAt    time.Time `json:"logged_out_at"`
	AccessTokenExp time.Time `json:"access_token_exp"`
}

// UserProfileUpdatedEvent is emitted after a profile change.
type UserProfileUpdatedEvent struct {
	UserID          string    `json:"user_id"`
	UpdatedBy       string    `json:"updated_by"`
	ChangedFields   []string  `json:"changed_fields"`
	PasswordChanged bool      `json:"password_changed"`
	UpdatedAt       time.Time `json:"updated_at"`
}
