// Package metrics exports Prometheus metrics of a client node.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/lwm2m-node/lwm2m-go/pkg/client"
	"github.com/lwm2m-node/lwm2m-go/pkg/interaction"
	"github.com/lwm2m-node/lwm2m-go/pkg/wire"
)

// Metrics holds the node collectors.
type Metrics struct {
	factory promauto.Factory

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	reconnects      prometheus.Counter
	errors          prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		factory: f,

		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lwm2m_requests_total",
			Help: "Count of all server requests",
		}, []string{"operation", "code"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "lwm2m_request_duration_seconds",
			Help: "Duration of all server requests",
		}, []string{"operation"}),

		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lwm2m_notifications_total",
			Help: "The total number of observe notifications",
		}, []string{"forced"}),

		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lwm2m_registration_events_total",
			Help: "The total number of registration lifecycle events",
		}, []string{"event"}),

		reconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "lwm2m_reconnect_attempts_total",
			Help: "The total number of reconnect attempts",
		}),

		errors: f.NewCounter(prometheus.CounterOpts{
			Name: "lwm2m_errors_total",
			Help: "The total number of background errors",
		}),
	}
}

// ObserveRequest records a served request. It has the signature of
// client.Config.OnRequest.
func (m *Metrics) ObserveRequest(op interaction.Operation, code wire.Code, elapsed time.Duration) {
	m.requests.WithLabelValues(op.String(), code.Dotted()).Inc()
	m.requestDuration.WithLabelValues(op.String()).Observe(elapsed.Seconds())
}

// HandleEvent records a node event. It has the signature of
// client.EventHandler.
func (m *Metrics) HandleEvent(e client.Event) {
	switch e.Type {
	case client.EventNotified:
		forced := "false"
		if e.Forced {
			forced = "true"
		}
		m.notifications.WithLabelValues(forced).Inc()
	case client.EventRegistered, client.EventUpdated, client.EventDeregistered,
		client.EventLogin, client.EventLogout, client.EventOffline, client.EventBootstrap:
		m.registrations.WithLabelValues(e.Type.String()).Inc()
	case client.EventReconnecting:
		m.reconnects.Inc()
	case client.EventError:
		m.errors.Inc()
	}
}

// Attach subscribes to node events and adds gauges reading the node
// state. Call it once per Metrics.
func (m *Metrics) Attach(node *client.Node) {
	node.OnEvent(m.HandleEvent)

	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lwm2m_active_observers",
		Help: "The number of observed paths",
	}, func() float64 {
		return float64(len(node.Engine().Observed()))
	})

	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lwm2m_observe_streams",
		Help: "The number of open observe streams",
	}, func() float64 {
		return float64(node.Dispatcher().Streams())
	})

	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "lwm2m_registered",
		Help: "1 while the node is registered",
	}, func() float64 {
		switch node.State() {
		case client.StateRegistered, client.StateUpdating:
			return 1
		}
		return 0
	})
}
