package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/usecase"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
	headerRateLimitWindow    = "X-RateLimit-Window"
	headerRetryAfter         = "Retry-After"

	rateLimitMessage = "Too many requests from this address. Please try again later."
)

// Admitter decides whether a request may reach its handler.
type Admitter interface {
	Admit(ctx context.Context, origin usecase.RequestOrigin, endpoint string, now time.Time) (domain.Decision, error)
}

// RateLimitResponse is the 429 payload.
type RateLimitResponse struct {
	Message    string `json:"message"`
	Error      string `json:"error"`
	StatusCode int    `json:"statusCode"`
	RetryAfter int    `json:"retryAfter"`
	Limit      uint   `json:"limit"`
	Window     int    `json:"window"`
	Role       string `json:"role"`
}

// RateLimiter adapts the admission gate to gin.
type RateLimiter struct {
	admission Admitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(admission Admitter, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RateLimiter{
		admission: admission,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// EndpointKey names a route as METHOD:routePath, e.g. PUT:/api/auth/profile/:id.
func EndpointKey(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return c.Request.Method + ":" + path
}

// Handler returns a Gin middleware charging each request against its tier.
// Mount it after RequireAuth on authenticated routes so the caller is known.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.admission == nil {
			c.Next()
			return
		}

		origin := usecase.RequestOrigin{
			ForwardedFor: c.GetHeader("X-Forwarded-For"),
			PeerAddr:     c.Request.RemoteAddr,
		}
		if user, ok := CurrentUser(c); ok {
			origin.Identity = user
		}

		now := rl.now()
		decision, err := rl.admission.Admit(c.Request.Context(), origin, EndpointKey(c), now)
		if decision.Gated {
			applyHeaders(c, decision)
		}

		if err != nil {
			var limited *domain.RateLimitedError
			if errors.As(err, &limited) {
				c.Header(headerRetryAfter, strconv.Itoa(limited.RetryAfter))
				c.AbortWithStatusJSON(http.StatusTooManyRequests, RateLimitResponse{
					Message:    rateLimitMessage,
					Error:      http.StatusText(http.StatusTooManyRequests),
					StatusCode: http.StatusTooManyRequests,
					RetryAfter: limited.RetryAfter,
					Limit:      limited.Limit,
					Window:     int(limited.Window / time.Second),
					Role:       string(limited.Role),
				})
				return
			}

			rl.logger.Warn("admission check failed", zap.String("endpoint", EndpointKey(c)), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, newErrorResponse(c, "service unavailable"))
			return
		}

		c.Next()
	}
}

func applyHeaders(c *gin.Context, decision domain.Decision) {
	resetUnix := int64(math.Ceil(float64(decision.ResetAt.UnixMilli()) / 1000))

	headers := c.Writer.Header()
	headers.Set(headerRateLimitLimit, strconv.FormatUint(uint64(decision.Limit), 10))
	headers.Set(headerRateLimitRemaining, strconv.FormatUint(uint64(decision.Remaining), 10))
	headers.Set(headerRateLimitReset, strconv.FormatInt(resetUnix, 10))
	headers.Set(headerRateLimitWindow, strconv.Itoa(int(decision.Window/time.Second)))
}
