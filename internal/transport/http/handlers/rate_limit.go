package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

const sweepMessage = "Expired rate limit entries removed"

// QuotaAdmin exposes quota table maintenance.
type QuotaAdmin interface {
	Stats(now time.Time) domain.QuotaStats
	Sweep(now time.Time) int
}

// RateLimitHandler lets administrators inspect and sweep the quota table.
type RateLimitHandler struct {
	quotas QuotaAdmin
	now    func() time.Time
}

// NewRateLimitHandler constructs a RateLimitHandler.
func NewRateLimitHandler(quotas QuotaAdmin) *RateLimitHandler {
	return &RateLimitHandler{
		quotas: quotas,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Stats godoc
// @Summary Quota table statistics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} domain.QuotaStats
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/auth/rate-limit/stats [get]
func (h *RateLimitHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.quotas.Stats(h.now()))
}

// Sweep godoc
// @Summary Remove expired quota windows
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SweepResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/auth/rate-limit [delete]
func (h *RateLimitHandler) Sweep(c *gin.Context) {
	removed := h.quotas.Sweep(h.now())
	c.JSON(http.StatusOK, SweepResponse{Message: sweepMessage, Removed: removed})
}
