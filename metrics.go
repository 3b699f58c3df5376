package lms

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type coreMetrics struct {
	transitions      *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	permissionChecks *prometheus.CounterVec
	permissionSyncs  prometheus.Counter
	events           *prometheus.CounterVec
	sweeps           prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *coreMetrics {
	return &coreMetrics{
		transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "enrollment_transitions_total",
			Help:      "Enrollment state transitions by target status.",
		}, []string{"status"}),
		escalations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "compliance_escalations_total",
			Help:      "Compliance escalations by resulting level.",
		}, []string{"level"}),
		permissionChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "permission_checks_total",
			Help:      "Permission checks by verdict.",
		}, []string{"verdict"}),
		permissionSyncs: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "permission_syncs_total",
			Help:      "Materialized permission set recomputations.",
		}),
		events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "events_published_total",
			Help:      "Domain events published by topic.",
		}, []string{"topic"}),
		sweeps: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "lms",
			Name:      "compliance_sweeps_total",
			Help:      "Completed compliance check-all passes.",
		}),
	}
})

func metrics() *coreMetrics {
	return metricsSingleton()
}
