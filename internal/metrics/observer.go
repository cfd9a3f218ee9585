package metrics

import (
	"errors"
	"fmt"
	"time"

	"premium-referral-go/internal/models"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver exports webhook, referral and sweep metrics to Prometheus.
type PrometheusObserver struct {
	eventDuration *promclient.HistogramVec
	events        *promclient.CounterVec
	violations    *promclient.CounterVec
	earnings      *promclient.CounterVec
	sweeps        *promclient.CounterVec
}

// NewPrometheusObserver registers the collectors on reg (the default registerer when nil).
func NewPrometheusObserver(namespace string, reg promclient.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "premium"
	}
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}

	observer := &PrometheusObserver{}
	var err error
	if observer.eventDuration, err = register(reg, promclient.NewHistogramVec(promclient.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_event_duration_seconds",
		Help:      "Latency of gateway event handling.",
		Buckets:   promclient.DefBuckets,
	}, []string{"kind"})); err != nil {
		return nil, fmt.Errorf("register webhook histogram: %w", err)
	}
	if observer.events, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Gateway events handled, by kind and outcome.",
	}, []string{"kind", "outcome"})); err != nil {
		return nil, fmt.Errorf("register webhook counter: %w", err)
	}
	if observer.violations, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "security_violations_total",
		Help:      "One-time purchases rejected by server-side validation.",
	}, []string{"type"})); err != nil {
		return nil, fmt.Errorf("register violation counter: %w", err)
	}
	if observer.earnings, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "referral_earnings_total",
		Help:      "Referral earnings recorded, by earning type.",
	}, []string{"type"})); err != nil {
		return nil, fmt.Errorf("register earnings counter: %w", err)
	}
	if observer.sweeps, err = register(reg, promclient.NewCounterVec(promclient.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_accounts_total",
		Help:      "Accounts changed by the reconciliation job, by action.",
	}, []string{"action"})); err != nil {
		return nil, fmt.Errorf("register sweep counter: %w", err)
	}
	return observer, nil
}

// register adds c to reg, reusing an identical collector registered earlier.
func register[C promclient.Collector](reg promclient.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are promclient.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (o *PrometheusObserver) RecordEvent(kind, outcome string, duration time.Duration) {
	if o == nil {
		return
	}
	o.eventDuration.WithLabelValues(kind).Observe(duration.Seconds())
	o.events.WithLabelValues(kind, outcome).Inc()
}

func (o *PrometheusObserver) RecordViolation(violationType string) {
	if o == nil {
		return
	}
	o.violations.WithLabelValues(violationType).Inc()
}

func (o *PrometheusObserver) RecordEarning(earningType models.EarningType) {
	if o == nil {
		return
	}
	o.earnings.WithLabelValues(string(earningType)).Inc()
}

func (o *PrometheusObserver) RecordSweep(result models.SweepResult) {
	if o == nil {
		return
	}
	o.sweeps.WithLabelValues("expired").Add(float64(result.Expired))
	o.sweeps.WithLabelValues("legacy_expired").Add(float64(result.LegacyExpired))
	o.sweeps.WithLabelValues("monthly_grant").Add(float64(result.MonthlyGrants))
}
