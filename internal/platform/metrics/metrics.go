package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors of the vault client core. A nil *Metrics is a
// valid no-op so components can run without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	HubRequests        *prometheus.CounterVec
	HubLatency         *prometheus.HistogramVec
	GateDecisions      *prometheus.CounterVec
	RouterDispatch     *prometheus.CounterVec
	DroppedCredentials prometheus.Counter
	Windows            *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		HubRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_hub_requests_total",
			Help: "Hub exchanges by operation and outcome",
		}, []string{"operation", "outcome"}),
		HubLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_hub_request_duration_seconds",
			Help:    "Hub exchange latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_biometric_decisions_total",
			Help: "Biometric gate decisions by factor and reason",
		}, []string{"factor", "granted", "reason"}),
		RouterDispatch: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_router_dispatch_total",
			Help: "Inbound payload dispatch results",
		}, []string{"route", "status"}),
		DroppedCredentials: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_access_dropped_credentials_total",
			Help: "Credential entries dropped because their envelope did not verify",
		}),
		Windows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_notification_windows_total",
			Help: "Notification authorization windows by terminal outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHubRequest(operation, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.HubRequests.WithLabelValues(operation, outcome).Inc()
	m.HubLatency.WithLabelValues(operation).Observe(took.Seconds())
}

func (m *Metrics) ObserveGateDecision(factor string, granted bool, reason string) {
	if m == nil {
		return
	}
	g := "false"
	if granted {
		g = "true"
	}
	m.GateDecisions.WithLabelValues(factor, g, reason).Inc()
}

func (m *Metrics) ObserveDispatch(route, status string) {
	if m == nil {
		return
	}
	m.RouterDispatch.WithLabelValues(route, status).Inc()
}

func (m *Metrics) AddDroppedCredentials(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedCredentials.Add(float64(n))
}

func (m *Metrics) ObserveWindow(outcome string) {
	if m == nil {
		return
	}
	m.Windows.WithLabelValues(outcome).Inc()
}
