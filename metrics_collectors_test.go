package agora

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectors(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)

	m.recordConnection(ConnectionAdmitted)
	m.recordConnection(ConnectionAdmitted)
	m.recordConnection(ConnectionDenied)
	m.handlerAdded()
	m.socketAttached()
	m.socketAttached()
	m.socketDetached()
	m.messageReceived()
	m.messageDropped()
	m.messageSent(3)
	m.broadcast()
	m.pipeFailed(OutboundPipe)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.connectionsTotal.WithLabelValues(ConnectionAdmitted)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsTotal.WithLabelValues(ConnectionDenied)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.handlersActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.socketsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesReceived))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.messagesDropped))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.messagesSent))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.broadcastsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.pipeFailures.WithLabelValues("outbound")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.pipeFailures.WithLabelValues("inbound")))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.recordConnection(ConnectionError)
		m.handlerAdded()
		m.handlerRemoved()
		m.socketAttached()
		m.socketDetached()
		m.messageReceived()
		m.messageDropped()
		m.messageSent(1)
		m.broadcast()
		m.pipeFailed(InboundPipe)
	})
}
