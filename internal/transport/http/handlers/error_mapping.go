package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message echoes the error text.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// domainErrorCases is ordered most specific first.
var domainErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
	{Err: usecase.ErrInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
	{Err: usecase.ErrTokenRevoked, Status: http.StatusUnauthorized, Message: "token has been revoked"},
	{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid token"},
	{Err: usecase.ErrUserExists, Status: http.StatusConflict, Message: "user already exists"},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "user not found"},
	{Err: usecase.ErrProfileForbidden, Status: http.StatusForbidden, Message: "you can only update your own profile"},
	{Err: domain.ErrInvalidInput, Status: http.StatusBadRequest},
	{Err: domain.ErrUnauthorized, Status: http.StatusUnauthorized, Message: "unauthorized"},
	{Err: domain.ErrForbidden, Status: http.StatusForbidden, Message: "forbidden"},
	{Err: domain.ErrNotFound, Status: http.StatusNotFound, Message: "not found"},
	{Err: domain.ErrConflict, Status: http.StatusConflict, Message: "conflict"},
	{Err: domain.ErrRateLimited, Status: http.StatusTooManyRequests, Message: "too many requests"},
	{Err: domain.ErrUnavailable, Status: http.StatusServiceUnavailable, Message: "service temporarily unavailable"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil || !errors.Is(err, cs.Err) {
			continue
		}
		if cs.Status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		msg := cs.Message
		if msg == "" {
			msg = err.Error()
		}
		c.JSON(cs.Status, NewErrorResponse(c, msg))
		return
	}

	_ = c.Error(err)
	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

// respondWithDomainError applies the shared taxonomy mapping.
func respondWithDomainError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, domainErrorCases, http.StatusInternalServerError, "internal server error")
}
