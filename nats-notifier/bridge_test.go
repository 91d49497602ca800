package natsnotifier

import (
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/RobertWHurst/agora"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus delivers published messages synchronously to every subscriber of
// the subject, like a single NATS server shared by several processes.
type fakeBus struct {
	mu        sync.Mutex
	handlers  map[string][]nats.MsgHandler
	published []string
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: map[string][]nats.MsgHandler{}}
}

func (b *fakeBus) conn() Conn {
	return &fakeConn{bus: b}
}

type fakeConn struct {
	bus          *fakeBus
	subscribeErr error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.bus.mu.Lock()
	c.bus.published = append(c.bus.published, subject)
	handlers := append([]nats.MsgHandler(nil), c.bus.handlers[subject]...)
	c.bus.mu.Unlock()

	for _, handler := range handlers {
		handler(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (c *fakeConn) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	c.bus.handlers[subject] = append(c.bus.handlers[subject], handler)
	return nil, nil
}

type roomEvent struct {
	Room   string `json:"room"`
	Member string `json:"member"`
}

func TestBridgeRelaysBetweenProcesses(t *testing.T) {
	bus := newFakeBus()

	localNotifier := agora.NewNotifier[roomEvent]()
	remoteNotifier := agora.NewNotifier[roomEvent]()
	local := New(bus.conn(), localNotifier, Config{})
	remote := New(bus.conn(), remoteNotifier, Config{})

	require.NoError(t, local.Bind("joined"))
	require.NoError(t, remote.Bind("joined"))

	var localEvents, remoteEvents []roomEvent
	localNotifier.Subscribe("joined", func(event roomEvent) { localEvents = append(localEvents, event) })
	remoteNotifier.Subscribe("joined", func(event roomEvent) { remoteEvents = append(remoteEvents, event) })

	event := roomEvent{Room: "lobby", Member: "alice"}
	require.NoError(t, local.Publish("joined", event))

	assert.Equal(t, []roomEvent{event}, localEvents, "local subscribers are notified exactly once")
	assert.Equal(t, []roomEvent{event}, remoteEvents)
	assert.Equal(t, []string{"agora.notify.joined"}, bus.published)
	assert.NotEqual(t, local.ID(), remote.ID())
}

func TestBridgeNamespace(t *testing.T) {
	bridge := New(newFakeBus().conn(), agora.NewNotifier[string](), Config{Namespace: "chat.events."})
	assert.Equal(t, "chat.events.joined", bridge.Subject("joined"))

	bridge = New(newFakeBus().conn(), agora.NewNotifier[string](), Config{})
	assert.Equal(t, DefaultNamespace+".joined", bridge.Subject("joined"))
}

func TestBridgeBindIsIdempotent(t *testing.T) {
	bus := newFakeBus()
	bridge := New(bus.conn(), agora.NewNotifier[string](), Config{})

	require.NoError(t, bridge.Bind("a"))
	require.NoError(t, bridge.Bind("a"))
	require.NoError(t, bridge.Bind("b"))

	topics := bridge.Topics()
	sort.Strings(topics)
	assert.Equal(t, []string{"a", "b"}, topics)
	assert.Len(t, bus.handlers["agora.notify.a"], 1)
}

func TestBridgeBindError(t *testing.T) {
	errUnavailable := errors.New("nats unavailable")
	bridge := New(&fakeConn{bus: newFakeBus(), subscribeErr: errUnavailable}, agora.NewNotifier[string](), Config{})

	assert.ErrorIs(t, bridge.Bind("a"), errUnavailable)
	assert.Empty(t, bridge.Topics())
}

func TestBridgeUnbindStopsDelivery(t *testing.T) {
	bus := newFakeBus()
	remoteNotifier := agora.NewNotifier[string]()
	local := New(bus.conn(), agora.NewNotifier[string](), Config{})
	remote := New(bus.conn(), remoteNotifier, Config{})
	require.NoError(t, remote.Bind("left"))
	require.NoError(t, remote.Bind("joined"))

	var received []string
	remoteNotifier.Subscribe("left", func(member string) { received = append(received, member) })

	require.NoError(t, remote.Unbind("left"))
	require.NoError(t, remote.Unbind("never-bound"))
	require.NoError(t, local.Publish("left", "bob"))

	assert.Empty(t, received)
	assert.Equal(t, []string{"joined"}, remote.Topics())

	remote.Close()
	assert.Empty(t, remote.Topics())
}

func TestBridgeReportsUndecodableMessages(t *testing.T) {
	bus := newFakeBus()
	var reported []string
	bridge := New(bus.conn(), agora.NewNotifier[roomEvent](), Config{
		OnError: func(topic string, err error) {
			reported = append(reported, topic)
		},
	})
	require.NoError(t, bridge.Bind("joined"))

	conn := bus.conn()
	require.NoError(t, conn.Publish("agora.notify.joined", []byte("not json")))

	payload, err := json.Marshal(&NotifyMessage{Origin: "other", Topic: "joined", Data: json.RawMessage(`"wrong shape"`)})
	require.NoError(t, err)
	require.NoError(t, conn.Publish("agora.notify.joined", payload))

	assert.Equal(t, []string{"joined", "joined"}, reported)
}
