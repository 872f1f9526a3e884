package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: c.GetString("trace_id"),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// RegisterRequest defines the account registration payload.
type RegisterRequest struct {
	UserName        string `json:"userName" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	UserCode        string `json:"userCode" binding:"required"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	UserName string `json:"userName" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest represents the payload to refresh an access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ValidateTokenRequest carries a token to introspect.
type ValidateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// UpdateProfileRequest is a partial profile update. Identity and role fields are admin only.
type UpdateProfileRequest struct {
	UserName    *string `json:"userName,omitempty"`
	UserCode    *string `json:"userCode,omitempty"`
	IsAdmin     *bool   `json:"isAdmin,omitempty"`
	NewPassword *string `json:"newPassword,omitempty"`
}

func (r UpdateProfileRequest) toDomain() domain.ProfileUpdate {
	return domain.ProfileUpdate{
		UserName:    r.UserName,
		UserCode:    r.UserCode,
		IsAdmin:     r.IsAdmin,
		NewPassword: r.NewPassword,
	}
}

// SweepResponse reports an on-demand quota cleanup.
type SweepResponse struct {
	Message string `json:"message"`
	Removed int    `json:"removed"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
