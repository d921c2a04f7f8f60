package moderation

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

// Metrics receives moderation outcomes.
type Metrics interface {
	// Applied counts a successful operation of the given kind.
	Applied(kind model.ActionKind)
	// Denied counts an operation rejected by the permission engine.
	Denied(kind model.ActionKind, reason string)
	// Expired counts bans reverted because their time ran out.
	Expired(scope model.BanScope)
	// Conflict counts a lost compare-and-swap that forced a retry.
	Conflict(kind model.ActionKind)
}

// PromMetrics exports moderation counters to Prometheus.
type PromMetrics struct {
	applied   *prometheus.CounterVec
	denied    *prometheus.CounterVec
	expired   *prometheus.CounterVec
	conflicts *prometheus.CounterVec
}

// NewPromMetrics creates the counters and registers them with reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	m := &PromMetrics{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalmod",
			Name:      "actions_total",
			Help:      "Moderation operations applied, by kind.",
		}, []string{"kind"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalmod",
			Name:      "denials_total",
			Help:      "Moderation operations rejected by the permission engine.",
		}, []string{"kind", "reason"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalmod",
			Name:      "bans_expired_total",
			Help:      "Bans reverted to active after their expiry.",
		}, []string{"scope"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portalmod",
			Name:      "version_conflicts_total",
			Help:      "Concurrent updates that lost the version check and were retried.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.applied, m.denied, m.expired, m.conflicts)
	return m
}

func (m *PromMetrics) Applied(kind model.ActionKind) {
	m.applied.WithLabelValues(string(kind)).Inc()
}

func (m *PromMetrics) Denied(kind model.ActionKind, reason string) {
	m.denied.WithLabelValues(string(kind), reason).Inc()
}

func (m *PromMetrics) Expired(scope model.BanScope) {
	m.expired.WithLabelValues(scope.String()).Inc()
}

func (m *PromMetrics) Conflict(kind model.ActionKind) {
	m.conflicts.WithLabelValues(string(kind)).Inc()
}

// NoOpMetrics discards everything.
type NoOpMetrics struct{}

func (NoOpMetrics) Applied(model.ActionKind)        {}
func (NoOpMetrics) Denied(model.ActionKind, string) {}
func (NoOpMetrics) Expired(model.BanScope)          {}
func (NoOpMetrics) Conflict(model.ActionKind)       {}

var (
	_ Metrics = (*PromMetrics)(nil)
	_ Metrics = NoOpMetrics{}
)
