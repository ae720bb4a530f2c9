// Package metrics exposes engine counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/MrSnakeDoc/pricewatch/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe outcomes.
const (
	ProbeOK            = "ok"
	ProbeUpstreamError = "upstream_error"
	ProbeNotFound      = "not_found"
	ProbeBadPrice      = "bad_price"
	ProbeSoldOut       = "sold_out"
	ProbePanic         = "panic"
	ProbeSkipped       = "skipped"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	probes         *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	snapshotWrites *prometheus.CounterVec
	tasks          *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "probes_total",
			Help:      "Probe runs by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "notifications_total",
			Help:      "Notification attempts by kind and result.",
		}, []string{"kind", "result"}),
		snapshotWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pricewatch",
			Name:      "snapshot_writes_total",
			Help:      "Snapshot writes by result.",
		}, []string{"result"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pricewatch",
			Name:      "tasks",
			Help:      "Tasks in the registry by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.probes,
		m.notifications,
		m.snapshotWrites,
		m.tasks,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ProbeFinished(outcome string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotificationSent(kind string, err error) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) SnapshotWritten(err error) {
	if m == nil {
		return
	}
	m.snapshotWrites.WithLabelValues(result(err)).Inc()
}

// SetTaskCounts replaces the per-status gauge. Statuses missing from
// counts are reported as zero.
func (m *Metrics) SetTaskCounts(counts map[domain.Status]int) {
	if m == nil {
		return
	}
	for _, s := range []domain.Status{
		domain.StatusActive,
		domain.StatusSoldOutToday,
		domain.StatusStopped,
		domain.StatusCompleted,
		domain.StatusExpired,
	} {
		m.tasks.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
