package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/dshills/musicbox/internal/event"
)

// mockEventSource implements EventSource for testing.
type mockEventSource struct {
	mu     sync.Mutex
	subs   map[string]mockSub
	nextID int
	failOn string
}

type mockSub struct {
	topic   string
	handler event.Handler
}

func newMockEventSource() *mockEventSource {
	return &mockEventSource{subs: make(map[string]mockSub)}
}

func (m *mockEventSource) Subscribe(topic string, handler event.Handler) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if topic == m.failOn {
		return "", fmt.Errorf("subscribe %s refused", topic)
	}
	m.nextID++
	id := fmt.Sprintf("sub-%d", m.nextID)
	m.subs[id] = mockSub{topic: topic, handler: handler}
	return id, nil
}

func (m *mockEventSource) Unsubscribe(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[id]
	delete(m.subs, id)
	return ok
}

func (m *mockEventSource) Emit(topic string, data any) {
	m.mu.Lock()
	var handlers []event.Handler
	for _, s := range m.subs {
		if s.topic == topic {
			handlers = append(handlers, s.handler)
		}
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

func (m *mockEventSource) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// recorder is a Go callback that records the arguments it receives.
type recorder struct {
	mu    sync.Mutex
	calls [][]any
	cb    Callback
}

func newRecorder() *recorder {
	r := &recorder{}
	r.cb = NewCallback(func(_ context.Context, args ...any) (any, error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, args)
		return len(args), nil
	})
	return r
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}

type mockPlayer struct {
	mu       sync.Mutex
	playing  bool
	volume   float64
	position float64
	track    *Track
	playlist []Track
	calls    []string
}

func (p *mockPlayer) record(op string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, op)
}

func (p *mockPlayer) Play(context.Context) error {
	p.record("play")
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()
	return nil
}

func (p *mockPlayer) Pause(context.Context) error {
	p.record("pause")
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	return nil
}

func (p *mockPlayer) Stop(context.Context) error     { p.record("stop"); return nil }
func (p *mockPlayer) Next(context.Context) error     { p.record("next"); return nil }
func (p *mockPlayer) Previous(context.Context) error { p.record("previous"); return nil }

func (p *mockPlayer) SetVolume(_ context.Context, v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	return nil
}

func (p *mockPlayer) Volume(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume, nil
}

func (p *mockPlayer) CurrentTrack(context.Context) (*Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.track, nil
}

func (p *mockPlayer) Playlist(context.Context) ([]Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playlist, nil
}

func (p *mockPlayer) SetPlaylist(_ context.Context, tracks []Track, _ int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playlist = tracks
	return nil
}

func (p *mockPlayer) Seek(_ context.Context, pos float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
	return nil
}

func (p *mockPlayer) Position(context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, nil
}

func (p *mockPlayer) Duration(context.Context) (float64, error) { return 180, nil }

func (p *mockPlayer) IsPlaying(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing, nil
}

// mockItems implements Navigation and ContextMenu.
type mockItems struct {
	mu     sync.Mutex
	items  map[string]string
	nextID int
	view   string
}

func newMockItems() *mockItems {
	return &mockItems{items: make(map[string]string), view: "library"}
}

func (m *mockItems) AddItem(_ context.Context, pluginID string, _ map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprintf("item-%d", m.nextID)
	m.items[id] = pluginID
	return id, nil
}

func (m *mockItems) RemoveItem(_ context.Context, _ string, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, itemID)
	return nil
}

func (m *mockItems) CurrentView(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view, nil
}

func (m *mockItems) NavigateTo(_ context.Context, view string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view = view
	return nil
}

func (m *mockItems) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *mockNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
	return nil
}
