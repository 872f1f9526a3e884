package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

const namespace = "hemidi"

// Outcome label values shared by every counter.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the domain collectors of the service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	admissions *prometheus.CounterVec
	quotaKeys  *prometheus.GaugeVec
	tokenOps   *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg, reusing collectors that are
// already registered under the same name.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	admissions, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_decisions_total",
		Help:      "Admission gate decisions partitioned by endpoint, role, and outcome.",
	}, []string{"endpoint", "role", "outcome"}))
	if err != nil {
		return nil, err
	}

	quotaKeys, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "quota_keys",
		Help:      "Number of fixed-window counters held in memory, by state.",
	}, []string{"state"}))
	if err != nil {
		return nil, err
	}

	tokenOps, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_operations_total",
		Help:      "Credential operations partitioned by operation and outcome.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}

	return &Metrics{admissions: admissions, quotaKeys: quotaKeys, tokenOps: tokenOps}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return collector, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}

// ObserveAdmission counts one gated request.
func (m *Metrics) ObserveAdmission(endpoint string, role domain.Role, allowed bool) {
	if m == nil {
		return
	}
	outcome := OutcomeAllowed
	if !allowed {
		outcome = OutcomeDenied
	}
	m.admissions.WithLabelValues(endpoint, string(role), outcome).Inc()
}

// SetQuotaKeys publishes the latest quota store snapshot.
func (m *Metrics) SetQuotaKeys(stats domain.QuotaStats) {
	if m == nil {
		return
	}
	m.quotaKeys.WithLabelValues("total").Set(float64(stats.TotalKeys))
	m.quotaKeys.WithLabelValues("active").Set(float64(stats.ActiveKeys))
}

// ObserveTokenOperation counts a register, login, refresh, logout or validate call.
func (m *Metrics) ObserveTokenOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.tokenOps.WithLabelValues(operation, outcome).Inc()
}
