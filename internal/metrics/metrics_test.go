package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorsCountObservations(t *testing.T) {
	collectors := NewCollectors()
	registry := prometheus.NewRegistry()
	require.NoError(t, collectors.Register(registry))
	require.NoError(t, collectors.Register(registry), "registering twice must be tolerated")

	collectors.ObserveLogin("authorized")
	collectors.ObserveLogin("authorized")
	collectors.ObserveLogin("invalid_token")
	collectors.ObserveAuditPublishFailure()
	collectors.ObserveEnrichment("profiles", OutcomeFound)

	require.Equal(t, 2.0, testutil.ToFloat64(collectors.logins.WithLabelValues("authorized")))
	require.Equal(t, 1.0, testutil.ToFloat64(collectors.logins.WithLabelValues("invalid_token")))
	require.Equal(t, 1.0, testutil.ToFloat64(collectors.auditPublishFailures))
	require.Equal(t, 1.0, testutil.ToFloat64(collectors.enrichments.WithLabelValues("profiles", OutcomeFound)))
}

func TestNilCollectorsAreNoOps(t *testing.T) {
	var collectors *Collectors
	require.NotPanics(t, func() {
		collectors.ObserveLogin("authorized")
		collectors.ObserveAuditPublishFailure()
		collectors.ObserveEnrichment("people", OutcomeEmpty)
		collectors.ObserveProvisioned()
	})
}
