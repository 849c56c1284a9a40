// Package metrics defines the prometheus collectors exported by the broker.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "identity_broker"

// Enrichment lookup outcomes.
const (
	OutcomeFound       = "found"
	OutcomeEmpty       = "empty"
	OutcomeUnavailable = "unavailable"
)

// Collectors groups the broker's prometheus collectors. A nil *Collectors
// is valid and records nothing.
type Collectors struct {
	logins               *prometheus.CounterVec
	auditPublishFailures prometheus.Counter
	enrichments          *prometheus.CounterVec
	provisioned          prometheus.Counter
}

// NewCollectors constructs the collectors without registering them.
func NewCollectors() *Collectors {
	return &Collectors{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Identity exchange attempts by result.",
		}, []string{"result"}),
		auditPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_publish_failures_total",
			Help:      "Login audit events that could not be published.",
		}),
		enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_requests_total",
			Help:      "Directory lookups by service and outcome.",
		}, []string{"service", "outcome"}),
		provisioned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "users_provisioned_total",
			Help:      "Logins that resolved to a user created during the same request.",
		}),
	}
}

// Register registers the collectors on reg (or the default registerer if nil).
// Collectors that are already registered are ignored.
func (c *Collectors) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, collector := range []prometheus.Collector{c.logins, c.auditPublishFailures, c.enrichments, c.provisioned} {
		if err := reg.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

// ObserveLogin counts an identity exchange attempt.
func (c *Collectors) ObserveLogin(result string) {
	if c == nil {
		return
	}
	c.logins.WithLabelValues(result).Inc()
}

// ObserveAuditPublishFailure counts a dropped audit event.
func (c *Collectors) ObserveAuditPublishFailure() {
	if c == nil {
		return
	}
	c.auditPublishFailures.Inc()
}

// ObserveEnrichment counts a directory lookup.
func (c *Collectors) ObserveEnrichment(service, outcome string) {
	if c == nil {
		return
	}
	c.enrichments.WithLabelValues(service, outcome).Inc()
}

// ObserveProvisioned counts a user created on first login.
func (c *Collectors) ObserveProvisioned() {
	if c == nil {
		return
	}
	c.provisioned.Inc()
}
