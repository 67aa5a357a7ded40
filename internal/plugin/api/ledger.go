package api

import (
	"sort"
	"strings"
	"sync"

	"github.com/dshills/musicbox/internal/event"
	"github.com/dshills/musicbox/internal/logging"
)

// EventSource is the real event emitter a subscription is attached to.
// *event.Bus satisfies it.
type EventSource interface {
	Subscribe(topic string, handler event.Handler) (string, error)
	Unsubscribe(id string) bool
	Emit(topic string, data any)
}

// Subscription is a disposable handle for one ledger entry.
type Subscription struct {
	pluginID string
	event    string
	callback Callback

	source   EventSource
	sourceID string
	ledger   *Ledger

	once sync.Once
}

// PluginID returns the owning plugin id.
func (s *Subscription) PluginID() string { return s.pluginID }

// Event returns the subscribed event name.
func (s *Subscription) Event() string { return s.event }

// Dispose unsubscribes from the source and removes the ledger entry.
// It is safe to call more than once.
func (s *Subscription) Dispose() {
	if s == nil {
		return
	}
	s.ledger.remove(s)
	s.release()
}

func (s *Subscription) release() {
	s.once.Do(func() {
		s.source.Unsubscribe(s.sourceID)
	})
}

// ListenerStats summarizes a plugin's ledger entries.
type ListenerStats struct {
	TotalEvents int            `json:"totalEvents"`
	Events      map[string]int `json:"events"`
}

// Ledger records every subscription per plugin and event name.
type Ledger struct {
	mu      sync.Mutex
	entries map[string]map[string][]*Subscription
	logger  *logging.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(logger *logging.Logger) *Ledger {
	return &Ledger{
		entries: make(map[string]map[string][]*Subscription),
		logger:  logging.OrNull(logger),
	}
}

// Add subscribes cb to eventName on source and records the entry.
func (l *Ledger) Add(pluginID string, source EventSource, eventName string, cb Callback) (*Subscription, error) {
	if source == nil {
		return nil, ErrNoEventSource
	}
	if cb == nil {
		return nil, argError("subscribe", "callback is required")
	}
	if eventName == "" {
		return nil, argError("subscribe", "event name is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byEvent := l.entries[pluginID]
	for _, existing := range byEvent[eventName] {
		if sameCallback(existing.callback, cb) {
			l.logger.Warn("plugin %s: listener for %s already registered", pluginID, eventName)
			return nil, ErrDuplicateListener
		}
	}

	log := l.logger
	sourceID, err := source.Subscribe(eventName, func(data any) {
		if err := cb.InvokeAsync(data); err != nil {
			log.Warn("plugin %s: deliver %s: %v", pluginID, eventName, err)
		}
	})
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		pluginID: pluginID,
		event:    eventName,
		callback: cb,
		source:   source,
		sourceID: sourceID,
		ledger:   l,
	}
	if byEvent == nil {
		byEvent = make(map[string][]*Subscription)
		l.entries[pluginID] = byEvent
	}
	byEvent[eventName] = append(byEvent[eventName], sub)
	return sub, nil
}

// Remove disposes the entry matching cb. It reports whether one was found.
func (l *Ledger) Remove(pluginID, eventName string, cb Callback) bool {
	l.mu.Lock()
	var found *Subscription
	for _, sub := range l.entries[pluginID][eventName] {
		if sameCallback(sub.callback, cb) {
			found = sub
			break
		}
	}
	if found != nil {
		l.removeLocked(found)
	}
	l.mu.Unlock()

	if found == nil {
		return false
	}
	found.release()
	return true
}

// RemoveAll disposes every entry for pluginID and deletes its key.
// It returns the number of subscriptions released.
func (l *Ledger) RemoveAll(pluginID string) int {
	return l.removeWhere(pluginID, func(string) bool { return true })
}

// RemovePrefix disposes the entries whose event name starts with prefix.
func (l *Ledger) RemovePrefix(pluginID, prefix string) int {
	return l.removeWhere(pluginID, func(ev string) bool { return strings.HasPrefix(ev, prefix) })
}

func (l *Ledger) removeWhere(pluginID string, match func(string) bool) int {
	l.mu.Lock()
	byEvent := l.entries[pluginID]
	var released []*Subscription
	for ev, subs := range byEvent {
		if match(ev) {
			released = append(released, subs...)
			delete(byEvent, ev)
		}
	}
	if len(byEvent) == 0 {
		delete(l.entries, pluginID)
	}
	l.mu.Unlock()

	for _, sub := range released {
		sub.release()
	}
	if len(released) > 0 {
		l.logger.Debug("plugin %s: released %d listeners", pluginID, len(released))
	}
	return len(released)
}

func (l *Ledger) remove(sub *Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(sub)
}

func (l *Ledger) removeLocked(sub *Subscription) {
	byEvent := l.entries[sub.pluginID]
	subs := byEvent[sub.event]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(byEvent, sub.event)
	} else {
		byEvent[sub.event] = subs
	}
	if len(byEvent) == 0 {
		delete(l.entries, sub.pluginID)
	}
}

// Stats returns per-event listener counts for pluginID.
func (l *Ledger) Stats(pluginID string) ListenerStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := ListenerStats{Events: make(map[string]int)}
	for ev, subs := range l.entries[pluginID] {
		stats.Events[ev] = len(subs)
		stats.TotalEvents += len(subs)
	}
	return stats
}

// Has reports whether pluginID has a ledger key.
func (l *Ledger) Has(pluginID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[pluginID]
	return ok
}

// Plugins returns the ids that currently hold ledger entries.
func (l *Ledger) Plugins() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
