package domain

import (
	"fmt"
	"time"
)

// QuotaKey addresses one fixed-window counter.
type QuotaKey struct {
	Identifier string
	Endpoint   string
	Role       Role
}

// String renders the key as identifier:endpoint:role.
func (k QuotaKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Identifier, k.Endpoint, k.Role)
}

// QuotaResult is the outcome of a single check-and-increment.
type QuotaResult struct {
	Allowed   bool
	Remaining uint
	ResetAt   time.Time
}

// QuotaStats summarises the quota table.
type QuotaStats struct {
	TotalKeys  int `json:"totalKeys"`
	ActiveKeys int `json:"activeKeys"`
}

// Tier bounds how many requests a role may make per window. Limit 0 denies everything.
type Tier struct {
	Limit  uint
	Window time.Duration
}

// EndpointPolicy maps roles to tiers for one endpoint. Roles without a tier are not gated.
type EndpointPolicy map[Role]Tier

// PolicyTable holds every endpoint policy. It is built once at startup and only read afterwards.
type PolicyTable struct {
	endpoints map[string]EndpointPolicy
}

// NewPolicyTable copies policies into an immutable table.
func NewPolicyTable(policies map[string]EndpointPolicy) PolicyTable {
	endpoints := make(map[string]EndpointPolicy, len(policies))
	for endpoint, policy := range policies {
		cp := make(EndpointPolicy, len(policy))
		for role, tier := range policy {
			cp[role] = tier
		}
		endpoints[endpoint] = cp
	}
	return PolicyTable{endpoints: endpoints}
}

// Tier returns the tier configured for role on endpoint.
func (t PolicyTable) Tier(endpoint string, role Role) (Tier, bool) {
	policy, ok := t.endpoints[endpoint]
	if !ok {
		return Tier{}, false
	}
	tier, ok := policy[role]
	return tier, ok
}

// Endpoints lists the gated endpoints.
func (t PolicyTable) Endpoints() []string {
	out := make([]string, 0, len(t.endpoints))
	for endpoint := range t.endpoints {
		out = append(out, endpoint)
	}
	return out
}

// Decision is what the admission gate discloses to the caller.
type Decision struct {
	Gated      bool
	Allowed    bool
	Limit      uint
	Remaining  uint
	ResetAt    time.Time
	Window     time.Duration
	Role       Role
	Identifier string
}
