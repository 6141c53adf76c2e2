package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMonitor records session lifecycle and error events as
// Prometheus metrics, in the same promauto-registered-vectors style as
// this codebase's other Metrics types.
type PrometheusMonitor struct {
	SessionsCreated prometheus.Counter
	SessionsExpired prometheus.Counter
	ReceiveWarnings *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
}

// NewPrometheusMonitor registers its metrics against reg. Pass
// prometheus.DefaultRegisterer to register globally.
func NewPrometheusMonitor(reg prometheus.Registerer) *PrometheusMonitor {
	factory := promauto.With(reg)
	return &PrometheusMonitor{
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshrpc_sessions_created_total",
			Help: "Total number of RPC sessions created.",
		}),
		SessionsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "meshrpc_sessions_expired_total",
			Help: "Total number of RPC sessions that expired or closed.",
		}),
		ReceiveWarnings: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meshrpc_receive_warnings_total",
			Help: "Total number of recoverable per-message protocol warnings.",
		}, []string{"tenant_id"}),
		HandlerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meshrpc_handler_errors_total",
			Help: "Total number of route handlers that returned or panicked with an error.",
		}, []string{"tenant_id", "method"}),
	}
}

func (m *PrometheusMonitor) OnSessionCreated(Profile) { m.SessionsCreated.Inc() }
func (m *PrometheusMonitor) OnSessionExpired(Profile) { m.SessionsExpired.Inc() }

func (m *PrometheusMonitor) OnReceiveWarning(p Profile, _ string) {
	m.ReceiveWarnings.WithLabelValues(p.TenantID).Inc()
}

func (m *PrometheusMonitor) OnHandlerError(p Profile, method string, _ error) {
	m.HandlerErrors.WithLabelValues(p.TenantID, method).Inc()
}
