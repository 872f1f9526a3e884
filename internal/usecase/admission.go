package usecase

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
	"github.com/nnh2x/hemidi-authen/internal/core/port"
	"github.com/nnh2x/hemidi-authen/internal/infra/config"
	"github.com/nnh2x/hemidi-authen/internal/infra/logger"
	"github.com/nnh2x/hemidi-authen/internal/infra/telemetry"
)

const unknownAddr = "unknown"

// RequestOrigin is what the transport knows about a caller before admission.
// Identity is set only when an upstream guard already validated a bearer token.
type RequestOrigin struct {
	Identity     *domain.User
	ForwardedFor string
	PeerAddr     string
}

// ResolvePrincipal derives who is calling. Authenticated callers are keyed by user id,
// everybody else by the first X-Forwarded-For hop, then the peer address.
func ResolvePrincipal(origin RequestOrigin) domain.Principal {
	if origin.Identity != nil && origin.Identity.ID != "" {
		return domain.PrincipalFor(*origin.Identity)
	}
	return domain.Anonymous{Addr: clientAddr(origin)}
}

func clientAddr(origin RequestOrigin) string {
	if fwd := strings.TrimSpace(origin.ForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	peer := strings.TrimSpace(origin.PeerAddr)
	if peer == "" {
		return unknownAddr
	}
	if host, _, err := net.SplitHostPort(peer); err == nil && host != "" {
		return host
	}
	return peer
}

// BuildPolicyTable turns configured tiers into the immutable lookup table.
func BuildPolicyTable(settings []config.PolicySettings) (domain.PolicyTable, error) {
	policies := make(map[string]domain.EndpointPolicy)
	for i, entry := range settings {
		endpoint := strings.TrimSpace(entry.Endpoint)
		if endpoint == "" {
			return domain.PolicyTable{}, fmt.Errorf("rate limit policy %d: endpoint is required", i)
		}
		role, ok := domain.ParseRole(entry.Role)
		if !ok {
			return domain.PolicyTable{}, fmt.Errorf("rate limit policy %s: unknown role %q", endpoint, entry.Role)
		}
		if entry.Window <= 0 {
			return domain.PolicyTable{}, fmt.Errorf("rate limit policy %s/%s: window must be positive", endpoint, role)
		}

		policy, exists := policies[endpoint]
		if !exists {
			policy = make(domain.EndpointPolicy)
			policies[endpoint] = policy
		}
		if _, dup := policy[role]; dup {
			return domain.PolicyTable{}, fmt.Errorf("rate limit policy %s/%s: declared twice", endpoint, role)
		}
		policy[role] = domain.Tier{Limit: entry.Limit, Window: entry.Window}
	}
	return domain.NewPolicyTable(policies), nil
}

// AdmissionService decides whether a request may proceed before any business logic runs.
type AdmissionService struct {
	store    port.QuotaStore
	policies domain.PolicyTable
	metrics  *telemetry.Metrics
	logger   *zap.Logger

	denyLog    *rate.Limiter
	suppressed atomic.Int64
}

// NewAdmissionService wires the gate to its quota store and policy table.
func NewAdmissionService(store port.QuotaStore, policies domain.PolicyTable, metrics *telemetry.Metrics, log *zap.Logger) *AdmissionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdmissionService{
		store:    store,
		policies: policies,
		metrics:  metrics,
		logger:   log,
		denyLog:  rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// Admit charges one request against the caller's window for endpoint. Roles without
// a tier pass ungated. A denial returns the decision together with a *domain.RateLimitedError.
func (s *AdmissionService) Admit(ctx context.Context, origin RequestOrigin, endpoint string, now time.Time) (domain.Decision, error) {
	principal := ResolvePrincipal(origin)
	decision := domain.Decision{
		Allowed:    true,
		Role:       principal.Role(),
		Identifier: principal.Identifier(),
	}

	tier, ok := s.policies.Tier(endpoint, decision.Role)
	if !ok {
		return decision, nil
	}
	if err := ctx.Err(); err != nil {
		return decision, domain.Unavailable(err)
	}

	result := s.store.CheckAndIncrement(domain.QuotaKey{
		Identifier: decision.Identifier,
		Endpoint:   endpoint,
		Role:       decision.Role,
	}, tier.Limit, tier.Window, now)

	decision.Gated = true
	decision.Allowed = result.Allowed
	decision.Limit = tier.Limit
	decision.Remaining = result.Remaining
	decision.ResetAt = result.ResetAt
	decision.Window = tier.Window

	s.metrics.ObserveAdmission(endpoint, decision.Role, result.Allowed)
	if result.Allowed {
		return decision, nil
	}

	limited := domain.NewRateLimitedError(tier, decision.Role, result.ResetAt, now)
	s.logDenial(ctx, endpoint, decision, limited.RetryAfter)
	return decision, limited
}

func (s *AdmissionService) logDenial(ctx context.Context, endpoint string, decision domain.Decision, retryAfter int) {
	if !s.denyLog.Allow() {
		s.suppressed.Add(1)
		return
	}
	logger.WithContext(ctx, s.logger).Warn("rate limit exceeded",
		zap.String("endpoint", endpoint),
		zap.String("role", string(decision.Role)),
		zap.String("identifier", logger.MaskIdentifier(decision.Identifier)),
		zap.Uint("limit", decision.Limit),
		zap.Int("retry_after", retryAfter),
		zap.Int64("suppressed", s.suppressed.Swap(0)),
	)
}

// Stats reports the quota table size and refreshes the quota gauges.
func (s *AdmissionService) Stats(now time.Time) domain.QuotaStats {
	stats := s.store.Stats(now)
	s.metrics.SetQuotaKeys(stats)
	return stats
}

// Sweep drops expired windows on demand and returns how many were removed.
func (s *AdmissionService) Sweep(now time.Time) int {
	removed := s.store.Sweep(now)
	s.logger.Info("quota store swept on demand", zap.Int("removed", removed))
	s.metrics.SetQuotaKeys(s.store.Stats(now))
	return removed
}
