package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHubRequest("access", "ok", time.Millisecond)
	m.ObserveGateDecision("strong_biometric", true, "")
	m.ObserveDispatch("access", "handled")
	m.AddDroppedCredentials(2)
	m.ObserveWindow("expired")
	assert.Nil(t, m.Registry())
}

func TestCountersIncrement(t *testing.T) {
	m := New()
	m.ObserveHubRequest("delete", "network_failure", 20*time.Millisecond)
	m.ObserveDispatch("bogus", "ignored")
	m.ObserveDispatch("bogus", "ignored")
	m.AddDroppedCredentials(3)
	m.AddDroppedCredentials(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HubRequests.WithLabelValues("delete", "network_failure")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RouterDispatch.WithLabelValues("bogus", "ignored")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DroppedCredentials))
}
