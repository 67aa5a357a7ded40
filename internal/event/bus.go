// Package event provides the host application's in-process event bus.
//
// Plugins reach the bus through the capability API; every subscription they
// make is tracked by the plugin runtime so it can be released on unload.
package event

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/dshills/musicbox/internal/logging"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidTopic is returned when a topic is empty.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrNilHandler is returned when a nil handler is provided.
	ErrNilHandler = errors.New("handler cannot be nil")
)

// PanicError wraps a panic raised by a handler.
type PanicError struct {
	SubscriptionID string
	Topic          string
	Value          any
	Stack          string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic for subscription %s on topic %s: %v", e.SubscriptionID, e.Topic, e.Value)
}

// Handler receives event payloads.
type Handler func(data any)

type subscription struct {
	id      string
	topic   string
	handler Handler
}

// Stats reports bus activity.
type Stats struct {
	Subscriptions int
	Published     uint64
	Delivered     uint64
	Panics        uint64
}

// Bus is a synchronous topic bus. Handlers run on the publisher's goroutine,
// outside the bus lock, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
	byID   map[string]*subscription

	logger *logging.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) {
		b.logger = logging.OrNull(l).WithComponent("event")
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		topics: make(map[string][]*subscription),
		byID:   make(map[string]*subscription),
		logger: logging.NullLogger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topic and returns the subscription id.
func (b *Bus) Subscribe(topic string, handler Handler) (string, error) {
	if topic == "" {
		return "", ErrInvalidTopic
	}
	if handler == nil {
		return "", ErrNilHandler
	}

	sub := &subscription{id: uuid.NewString(), topic: topic, handler: handler}

	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], sub)
	b.byID[sub.id] = sub
	b.mu.Unlock()

	return sub.id, nil
}

// Unsubscribe removes a subscription. It returns false if id is unknown.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)

	subs := b.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			// Copy so an in-flight Emit keeps its snapshot intact.
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			subs = next
			break
		}
	}
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	} else {
		b.topics[sub.topic] = subs
	}
	return true
}

// Emit delivers data to every handler subscribed to topic.
// Handler panics are recovered and logged; they never reach the publisher.
func (b *Bus) Emit(topic string, data any) {
	b.published.Add(1)

	b.mu.RLock()
	subs := b.topics[topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := b.deliver(sub, data); err != nil {
			b.logger.Error("%v", err)
		}
	}
}

func (b *Bus) deliver(sub *subscription, data any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			err = &PanicError{
				SubscriptionID: sub.id,
				Topic:          sub.topic,
				Value:          r,
				Stack:          string(debug.Stack()),
			}
		}
	}()
	sub.handler(data)
	b.delivered.Add(1)
	return nil
}

// HasSubscribers reports whether topic has at least one handler.
func (b *Bus) HasSubscribers(topic string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic]) > 0
}

// Topics returns the topics with active subscriptions, sorted.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.topics))
	for t := range b.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Stats returns a snapshot of bus counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.byID)
	b.mu.RUnlock()

	return Stats{
		Subscriptions: n,
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Panics:        b.panics.Load(),
	}
}
