package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xaenox/shieldbot/internal/models"
)

// Metrics groups the collectors exported by the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry     *prometheus.Registry
	urlScans     *prometheus.CounterVec
	verdicts     *prometheus.CounterVec
	aiRequests   *prometheus.CounterVec
	reports      prometheus.Counter
	blockedSends prometheus.Counter
	openViews    *prometheus.GaugeVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		urlScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldbot",
			Name:      "url_scans_total",
			Help:      "URL scans by assigned risk tier.",
		}, []string{"risk_level"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldbot",
			Name:      "sms_verdicts_total",
			Help:      "Committed SMS verdicts by risk level.",
		}, []string{"risk_level"}),
		aiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shieldbot",
			Name:      "ai_requests_total",
			Help:      "Completion requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbot",
			Name:      "sender_reports_total",
			Help:      "Spam reports filed against senders.",
		}),
		blockedSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "shieldbot",
			Name:      "blocked_sends_total",
			Help:      "Submissions rejected because the sender is blocked.",
		}),
		openViews: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "shieldbot",
			Name:      "live_views_open",
			Help:      "Live views currently subscribed, by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(m.urlScans, m.verdicts, m.aiRequests, m.reports, m.blockedSends, m.openViews)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveScan(risk models.URLRisk) {
	if m != nil {
		m.urlScans.WithLabelValues(string(risk)).Inc()
	}
}

func (m *Metrics) ObserveVerdict(level models.RiskLevel) {
	if m != nil {
		m.verdicts.WithLabelValues(string(level)).Inc()
	}
}

func (m *Metrics) ObserveAIRequest(op, outcome string) {
	if m != nil {
		m.aiRequests.WithLabelValues(op, outcome).Inc()
	}
}

func (m *Metrics) ObserveReport() {
	if m != nil {
		m.reports.Inc()
	}
}

func (m *Metrics) ObserveBlockedSend() {
	if m != nil {
		m.blockedSends.Inc()
	}
}

func (m *Metrics) ViewOpened(kind string) {
	if m != nil {
		m.openViews.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ViewClosed(kind string) {
	if m != nil {
		m.openViews.WithLabelValues(kind).Dec()
	}
}
