package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	commonmodel "github.com/prometheus/common/model"
)

// Metrics is the set of node-wide counters a NodeController updates as it
// runs (SPEC_FULL.md §2). Kept as an interface so
// tests can swap in a no-op implementation without touching a real
// registry.
type Metrics interface {
	ConnectionOpened(node string)
	ConnectionFailed(node string)
	FrameSent(kind string)
	FrameReceived(kind string)
	MonitorNotificationDelivered()
	ProcessDied(reason string)
}

type promMetrics struct {
	connectionsOpened *prometheus.CounterVec
	connectionsFailed *prometheus.CounterVec
	framesSent        *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	monitorNotifies   prometheus.Counter
	processDeaths     *prometheus.CounterVec
}

// NewMetrics registers the node's prometheus collectors on reg. Remote-node
// label values are validated with prometheus/common/model, the same helper
// go-mcast pulls in for its own label handling.
func NewMetrics(reg prometheus.Registerer) Metrics {
	m := &promMetrics{
		connectionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_connections_opened_total",
			Help: "Outbound connections successfully opened by the Node Controller.",
		}, []string{"remote"}),
		connectionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_connections_failed_total",
			Help: "Connections the transport reported as permanently failed.",
		}, []string{"remote"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_frames_sent_total",
			Help: "Frames written to the transport, by kind (data/control).",
		}, []string{"kind"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_frames_received_total",
			Help: "Frames read from the transport, by kind (data/control).",
		}, []string{"kind"}),
		monitorNotifies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "swarm_monitor_notifications_total",
			Help: "MonitorNotification values delivered to a monitoring process.",
		}),
		processDeaths: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "swarm_process_deaths_total",
			Help: "Local process terminations, by death reason kind.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connectionsOpened, m.connectionsFailed, m.framesSent, m.framesReceived, m.monitorNotifies, m.processDeaths)
	return m
}

func (m *promMetrics) ConnectionOpened(node string) { m.connectionsOpened.WithLabelValues(sanitize(node)).Inc() }
func (m *promMetrics) ConnectionFailed(node string) { m.connectionsFailed.WithLabelValues(sanitize(node)).Inc() }
func (m *promMetrics) FrameSent(kind string)        { m.framesSent.WithLabelValues(kind).Inc() }
func (m *promMetrics) FrameReceived(kind string)    { m.framesReceived.WithLabelValues(kind).Inc() }
func (m *promMetrics) MonitorNotificationDelivered() { m.monitorNotifies.Inc() }
func (m *promMetrics) ProcessDied(reason string)    { m.processDeaths.WithLabelValues(reason).Inc() }

// sanitize keeps a node address usable as a prometheus label value even
// when it contains characters model.LabelValue would otherwise reject.
func sanitize(v string) string {
	lv := commonmodel.LabelValue(v)
	if lv.IsValid() {
		return v
	}
	return "invalid"
}

// NoopMetrics satisfies Metrics without touching a registry, for tests and
// examples that don't need observability wired up.
type NoopMetrics struct{}

func (NoopMetrics) ConnectionOpened(string)          {}
func (NoopMetrics) ConnectionFailed(string)          {}
func (NoopMetrics) FrameSent(string)                 {}
func (NoopMetrics) FrameReceived(string)              {}
func (NoopMetrics) MonitorNotificationDelivered()    {}
func (NoopMetrics) ProcessDied(string)               {}
