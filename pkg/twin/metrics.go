package twin

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "twin_agent"

// Event sources of the loop.
const (
	sourceHeartbeat       = "heartbeat"
	sourceConnectionState = "connection_state"
	sourceDesired         = "desired"
	sourceMethod          = "method"
	sourceReported        = "reported"
)

var (
	eventsHandled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_total",
		Help:      "Events handled by the twin loop by source.",
	}, []string{"source"})

	patchesReported = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reported_patches_total",
		Help:      "Reported property patches forwarded to the hub client.",
	})

	queueBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reported_queue_full_total",
		Help:      "Times a producer had to wait for room in the reported property queue.",
	})

	methodInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "method_invocations_total",
		Help:      "Direct method invocations by method and outcome.",
	}, []string{"method", "result"})

	authenticated = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "authenticated",
		Help:      "Whether the hub connection is currently authenticated.",
	})
)

func init() {
	prometheus.MustRegister(eventsHandled, patchesReported, queueBackpressure, methodInvocations, authenticated)
}
