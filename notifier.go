package agora

import (
	"sort"
	"sync"
)

// NotifierCallback receives data published on a topic.
type NotifierCallback[T any] func(data T)

// Notifier is a topic keyed publish/subscribe utility. It is independent of
// sockets and Handlers; a typical use is letting Handlers of different paths
// exchange events. Notifier is safe for concurrent use. The zero value is
// ready to use.
type Notifier[T any] struct {
	mu            sync.Mutex
	subscriptions map[string][]*Subscription
	callbacks     map[*Subscription]NotifierCallback[T]
}

// Subscription is returned by Subscribe and removes the subscriber when
// unsubscribed.
type Subscription struct {
	topic       string
	unsubscribe func(s *Subscription)
	once        sync.Once
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string {
	return s.topic
}

// Unsubscribe removes the subscriber. Calling it more than once, or after the
// topic was cleared, is a no-op.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.unsubscribe(s)
	})
}

// NewNotifier creates an empty Notifier.
func NewNotifier[T any]() *Notifier[T] {
	return &Notifier[T]{}
}

// Subscribe registers callback for topic. Callbacks run in subscription order.
func (n *Notifier[T]) Subscribe(topic string, callback NotifierCallback[T]) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.init()

	subscription := &Subscription{
		topic:       topic,
		unsubscribe: n.remove,
	}
	n.subscriptions[topic] = append(n.subscriptions[topic], subscription)
	n.callbacks[subscription] = callback

	return subscription
}

// Notify calls every subscriber of topic synchronously with data. The
// subscriber list is captured before the first call, so subscribers added or
// removed by a callback do not affect the current notification.
func (n *Notifier[T]) Notify(topic string, data T) {
	n.mu.Lock()
	subscriptions := n.subscriptions[topic]
	callbacks := make([]NotifierCallback[T], 0, len(subscriptions))
	for _, subscription := range subscriptions {
		callbacks = append(callbacks, n.callbacks[subscription])
	}
	n.mu.Unlock()

	for _, callback := range callbacks {
		callback(data)
	}
}

// ClearTopic removes every subscriber of topic.
func (n *Notifier[T]) ClearTopic(topic string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, subscription := range n.subscriptions[topic] {
		delete(n.callbacks, subscription)
	}
	delete(n.subscriptions, topic)
}

// ClearAll removes every subscriber of every topic.
func (n *Notifier[T]) ClearAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscriptions = map[string][]*Subscription{}
	n.callbacks = map[*Subscription]NotifierCallback[T]{}
}

// Topics returns the topics that currently have subscribers, sorted.
func (n *Notifier[T]) Topics() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	topics := make([]string, 0, len(n.subscriptions))
	for topic := range n.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Count returns the number of subscribers of topic.
func (n *Notifier[T]) Count(topic string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscriptions[topic])
}

func (n *Notifier[T]) init() {
	if n.subscriptions == nil {
		n.subscriptions = map[string][]*Subscription{}
	}
	if n.callbacks == nil {
		n.callbacks = map[*Subscription]NotifierCallback[T]{}
	}
}

func (n *Notifier[T]) remove(subscription *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.callbacks[subscription]; !ok {
		return
	}
	delete(n.callbacks, subscription)

	subscriptions := n.subscriptions[subscription.topic]
	remaining := make([]*Subscription, 0, len(subscriptions))
	for _, s := range subscriptions {
		if s != subscription {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		delete(n.subscriptions, subscription.topic)
		return
	}
	n.subscriptions[subscription.topic] = remaining
}
