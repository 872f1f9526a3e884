package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/transport/http/middleware"
)

// ProfileService reads and updates user profiles.
type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (domain.UserPublicView, error)
	UpdateProfile(ctx context.Context, targetID string, update domain.ProfileUpdate, actor domain.User) (domain.UserPublicView, error)
}

// ProfileHandler serves the profile endpoints for the authenticated user.
type ProfileHandler struct {
	profiles ProfileService
}

// NewProfileHandler constructs a ProfileHandler.
func NewProfileHandler(profiles ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

// Get godoc
// @Summary Current user profile
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.UserPublicView
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/auth/profile [get]
func (h *ProfileHandler) Get(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	view, err := h.profiles.GetProfile(c.Request.Context(), user.ID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

// Update godoc
// @Summary Update a profile
// @Description Users may change their own password. Admins may also rename, recode and promote any user.
// @Tags Profile
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param request body UpdateProfileRequest true "Fields to change"
// @Success 200 {object} domain.UserPublicView
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 429 {object} middleware.RateLimitResponse
// @Router /api/auth/profile/{id} [put]
func (h *ProfileHandler) Update(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	view, err := h.profiles.UpdateProfile(c.Request.Context(), c.Param("id"), req.toDomain(), *user)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
