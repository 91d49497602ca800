package natsnotifier

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/RobertWHurst/agora"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// DefaultNamespace prefixes every subject published by a Bridge.
const DefaultNamespace = "agora.notify"

// Conn is the part of *nats.Conn used by a Bridge.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
}

var _ Conn = (*nats.Conn)(nil)

// Config configures a Bridge.
type Config struct {
	// Namespace prefixes subjects. Defaults to DefaultNamespace.
	Namespace string

	// OnError receives payloads that could not be decoded. Optional.
	OnError func(topic string, err error)
}

// Bridge relays a Notifier across processes. Publish notifies local
// subscribers and sends the data over NATS; every bound topic delivers data
// published by other bridges to the local Notifier.
type Bridge[T any] struct {
	id        string
	conn      Conn
	notifier  *agora.Notifier[T]
	namespace string
	onError   func(topic string, err error)

	mu            sync.Mutex
	subscriptions map[string]*nats.Subscription
}

// NotifyMessage is the payload published for each notification.
type NotifyMessage struct {
	Origin string          `json:"origin"`
	Topic  string          `json:"topic"`
	Data   json.RawMessage `json:"data"`
}

// New creates a Bridge between conn and notifier.
func New[T any](conn Conn, notifier *agora.Notifier[T], config Config) *Bridge[T] {
	namespace := strings.TrimSuffix(config.Namespace, ".")
	if namespace == "" {
		namespace = DefaultNamespace
	}
	onError := config.OnError
	if onError == nil {
		onError = func(string, error) {}
	}
	return &Bridge[T]{
		id:            uuid.NewString(),
		conn:          conn,
		notifier:      notifier,
		namespace:     namespace,
		onError:       onError,
		subscriptions: map[string]*nats.Subscription{},
	}
}

// ID returns the origin id stamped on messages published by this bridge.
func (b *Bridge[T]) ID() string {
	return b.id
}

// Subject returns the NATS subject used for topic.
func (b *Bridge[T]) Subject(topic string) string {
	return b.namespace + "." + topic
}

// Publish notifies local subscribers of topic and publishes data to NATS for
// other bridges.
func (b *Bridge[T]) Publish(topic string, data T) error {
	b.notifier.Notify(topic, data)

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	messageBytes, err := json.Marshal(&NotifyMessage{
		Origin: b.id,
		Topic:  topic,
		Data:   dataBytes,
	})
	if err != nil {
		return err
	}
	return b.conn.Publish(b.Subject(topic), messageBytes)
}

// Bind subscribes to topic on NATS. Binding a topic twice is a no-op.
func (b *Bridge[T]) Bind(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscriptions[topic]; ok {
		return nil
	}

	sub, err := b.conn.Subscribe(b.Subject(topic), func(msg *nats.Msg) {
		b.handleMessage(topic, msg)
	})
	if err != nil {
		return err
	}
	b.subscriptions[topic] = sub

	return nil
}

// Unbind stops relaying topic from NATS.
func (b *Bridge[T]) Unbind(topic string) error {
	b.mu.Lock()
	sub, ok := b.subscriptions[topic]
	delete(b.subscriptions, topic)
	b.mu.Unlock()

	if !ok || sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

// Close unbinds every topic.
func (b *Bridge[T]) Close() {
	b.mu.Lock()
	subscriptions := b.subscriptions
	b.subscriptions = map[string]*nats.Subscription{}
	b.mu.Unlock()

	for _, sub := range subscriptions {
		if sub != nil {
			_ = sub.Unsubscribe()
		}
	}
}

// Topics returns the bound topics.
func (b *Bridge[T]) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, 0, len(b.subscriptions))
	for topic := range b.subscriptions {
		topics = append(topics, topic)
	}
	return topics
}

func (b *Bridge[T]) isBound(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subscriptions[topic]
	return ok
}

func (b *Bridge[T]) handleMessage(topic string, msg *nats.Msg) {
	// Messages already in flight when a topic is unbound are dropped.
	if !b.isBound(topic) {
		return
	}

	notifyMessage := &NotifyMessage{}
	if err := json.Unmarshal(msg.Data, notifyMessage); err != nil {
		b.onError(topic, err)
		return
	}
	if notifyMessage.Origin == b.id {
		return
	}

	var data T
	if err := json.Unmarshal(notifyMessage.Data, &data); err != nil {
		b.onError(topic, err)
		return
	}
	b.notifier.Notify(topic, data)
}
