package agora

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Connection results recorded by Metrics.
const (
	ConnectionAdmitted = "admitted"
	ConnectionDenied   = "denied"
	ConnectionNotFound = "not_found"
	ConnectionError    = "error"
)

// Metrics holds the Prometheus collectors updated by a Server and its
// Handlers. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectionsTotal *prometheus.CounterVec
	handlersActive   prometheus.Gauge
	socketsActive    prometheus.Gauge
	messagesReceived prometheus.Counter
	messagesDropped  prometheus.Counter
	messagesSent     prometheus.Counter
	broadcastsTotal  prometheus.Counter
	pipeFailures     *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with registerer. A nil
// registerer leaves them unregistered, which is useful in tests.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agora",
			Name:      "connections_total",
			Help:      "Connections handled by the server, by admission result",
		}, []string{"result"}),
		handlersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agora",
			Name:      "handlers_active",
			Help:      "Handlers currently registered by path",
		}),
		socketsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agora",
			Name:      "sockets_active",
			Help:      "Sockets currently attached to a handler pool",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agora",
			Name:      "messages_received_total",
			Help:      "Inbound messages read from pooled sockets",
		}),
		messagesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agora",
			Name:      "messages_dropped_total",
			Help:      "Inbound messages dropped by a failing inbound pipe",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agora",
			Name:      "messages_sent_total",
			Help:      "Outbound messages written to sockets",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agora",
			Name:      "broadcasts_total",
			Help:      "Broadcasts delivered to a handler pool",
		}),
		pipeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agora",
			Name:      "pipe_failures_total",
			Help:      "Pipe chain failures, by direction",
		}, []string{"direction"}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, collector := range m.collectors() {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectionsTotal,
		m.handlersActive,
		m.socketsActive,
		m.messagesReceived,
		m.messagesDropped,
		m.messagesSent,
		m.broadcastsTotal,
		m.pipeFailures,
	}
}

func (m *Metrics) recordConnection(result string) {
	if m == nil {
		return
	}
	m.connectionsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) handlerAdded() {
	if m == nil {
		return
	}
	m.handlersActive.Inc()
}

func (m *Metrics) handlerRemoved() {
	if m == nil {
		return
	}
	m.handlersActive.Dec()
}

func (m *Metrics) socketAttached() {
	if m == nil {
		return
	}
	m.socketsActive.Inc()
}

func (m *Metrics) socketDetached() {
	if m == nil {
		return
	}
	m.socketsActive.Dec()
}

func (m *Metrics) messageReceived() {
	if m == nil {
		return
	}
	m.messagesReceived.Inc()
}

func (m *Metrics) messageDropped() {
	if m == nil {
		return
	}
	m.messagesDropped.Inc()
}

func (m *Metrics) messageSent(count int) {
	if m == nil {
		return
	}
	m.messagesSent.Add(float64(count))
}

func (m *Metrics) broadcast() {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
}

func (m *Metrics) pipeFailed(direction PipeDirection) {
	if m == nil {
		return
	}
	m.pipeFailures.WithLabelValues(string(direction)).Inc()
}
