package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/usecase"
)

func TestRespondWithDomainError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"invalid input echoes text", fmt.Errorf("%w: userCode is required", domain.ErrInvalidInput), http.StatusBadRequest, "invalid input: userCode is required"},
		{"credentials", usecase.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
		{"conflict", usecase.ErrUserExists, http.StatusConflict, "user already exists"},
		{"forbidden", usecase.ErrProfileForbidden, http.StatusForbidden, "you can only update your own profile"},
		{"not found", usecase.ErrUserNotFound, http.StatusNotFound, "user not found"},
		{"unavailable", domain.Unavailable(context.DeadlineExceeded), http.StatusServiceUnavailable, "service temporarily unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondWithDomainError(c, tc.err)

			if w.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, w.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, body.Error)
			}
		})
	}
}
