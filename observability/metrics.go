package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	eventmachine "github.com/tarfin-labs/event-machine"
)

// MetricsObserver exports counters for trace records, guard outcomes,
// rejected events and machine errors (no archive counters) via
// github.com/prometheus/client_golang, the metrics client both
// r3e-network-service_layer and quadgatefoundation-fluxor depend on
// directly.
type MetricsObserver struct {
	eventmachine.BaseObserver

	transitions   *prometheus.CounterVec
	guardResults  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	machineErrors *prometheus.CounterVec
}

// NewMetricsObserver registers its collectors against reg and returns an
// Observer ready to Register on a TransitionEngine.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	m := &MetricsObserver{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmachine",
			Name:      "transitions_total",
			Help:      "Count of internal trace records emitted by the transition engine.",
		}, []string{"machine_id"}),
		guardResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmachine",
			Name:      "guard_evaluations_total",
			Help:      "Count of guard evaluations by outcome.",
		}, []string{"passed"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmachine",
			Name:      "events_rejected_total",
			Help:      "Count of events rejected for lacking a matching transition.",
		}, []string{"event_type"}),
		machineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "eventmachine",
			Name:      "errors_total",
			Help:      "Count of errors surfaced by a machine instance.",
		}, []string{}),
	}

	reg.MustRegister(m.transitions, m.guardResults, m.rejections, m.machineErrors)
	return m
}

func (m *MetricsObserver) OnTransition(rec eventmachine.EventRecord) {
	m.transitions.WithLabelValues(rec.MachineID).Inc()
}

func (m *MetricsObserver) OnGuardEvaluation(_ eventmachine.EventRecord, passed bool) {
	label := "false"
	if passed {
		label = "true"
	}
	m.guardResults.WithLabelValues(label).Inc()
}

func (m *MetricsObserver) OnEventRejected(_ string, eventType string, _ error) {
	m.rejections.WithLabelValues(eventType).Inc()
}

func (m *MetricsObserver) OnError(string, error) {
	m.machineErrors.WithLabelValues().Inc()
}
