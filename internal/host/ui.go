package host

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin/api"
)

// ErrItemNotFound is returned when removing an unknown or foreign item.
var ErrItemNotFound = errors.New("item not found")

// Item is a plugin contribution to a host surface.
type Item struct {
	ID       string
	PluginID string
	Config   map[string]any
}

// items is a uuid-keyed set of plugin contributions.
type items struct {
	mu    sync.Mutex
	byID  map[string]Item
	order []string
}

func newItems() *items {
	return &items{byID: make(map[string]Item)}
}

func (s *items) add(pluginID string, config map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.byID[id] = Item{ID: id, PluginID: pluginID, Config: maps.Clone(config)}
	s.order = append(s.order, id)
	return id
}

func (s *items) remove(pluginID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.byID[id]
	if !ok || it.PluginID != pluginID {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	delete(s.byID, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *items) list() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Settings holds application settings and plugin settings sections.
type Settings struct {
	mu       sync.RWMutex
	values   map[string]any
	sections *items
}

// NewSettings creates settings seeded with defaults.
func NewSettings(defaults map[string]any) *Settings {
	values := maps.Clone(defaults)
	if values == nil {
		values = make(map[string]any)
	}
	return &Settings{values: values, sections: newItems()}
}

// Get returns the value for key.
func (s *Settings) Get(_ context.Context, key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (s *Settings) Set(_ context.Context, key string, value any) error {
	if key == "" {
		return errors.New("settings key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Keys returns the setting keys, sorted.
func (s *Settings) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AddSection adds a plugin settings section.
func (s *Settings) AddSection(_ context.Context, pluginID string, config map[string]any) (string, error) {
	return s.sections.add(pluginID, config), nil
}

// RemoveSection removes a section the plugin added.
func (s *Settings) RemoveSection(_ context.Context, pluginID, sectionID string) error {
	return s.sections.remove(pluginID, sectionID)
}

// Sections returns the plugin sections in insertion order.
func (s *Settings) Sections() []Item { return s.sections.list() }

// Navigation tracks sidebar items and the current view.
type Navigation struct {
	items *items

	mu   sync.Mutex
	view string
}

// NewNavigation creates navigation showing view.
func NewNavigation(view string) *Navigation {
	return &Navigation{items: newItems(), view: view}
}

// AddItem adds a sidebar item.
func (n *Navigation) AddItem(_ context.Context, pluginID string, config map[string]any) (string, error) {
	return n.items.add(pluginID, config), nil
}

// RemoveItem removes a sidebar item the plugin added.
func (n *Navigation) RemoveItem(_ context.Context, pluginID, itemID string) error {
	return n.items.remove(pluginID, itemID)
}

// Items returns the sidebar items.
func (n *Navigation) Items() []Item { return n.items.list() }

// CurrentView returns the view being shown.
func (n *Navigation) CurrentView(context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.view, nil
}

// NavigateTo switches the current view.
func (n *Navigation) NavigateTo(_ context.Context, view string) error {
	if view == "" {
		return errors.New("view is required")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.view = view
	return nil
}

// ContextMenu holds plugin context-menu items.
type ContextMenu struct {
	items *items
}

// NewContextMenu creates an empty context menu.
func NewContextMenu() *ContextMenu {
	return &ContextMenu{items: newItems()}
}

// AddItem adds a menu item.
func (m *ContextMenu) AddItem(_ context.Context, pluginID string, config map[string]any) (string, error) {
	return m.items.add(pluginID, config), nil
}

// RemoveItem removes a menu item the plugin added.
func (m *ContextMenu) RemoveItem(_ context.Context, pluginID, itemID string) error {
	return m.items.remove(pluginID, itemID)
}

// Items returns the menu items.
func (m *ContextMenu) Items() []Item { return m.items.list() }

// Notifier writes notifications to the log and keeps the most recent ones.
type Notifier struct {
	logger *logging.Logger
	limit  int

	mu     sync.Mutex
	recent []api.Notification
}

// NewNotifier keeps up to limit notifications.
func NewNotifier(logger *logging.Logger, limit int) *Notifier {
	if limit <= 0 {
		limit = 100
	}
	return &Notifier{logger: logging.OrNull(logger).WithComponent("notify"), limit: limit}
}

// Notify logs n at a level matching its type.
func (n *Notifier) Notify(_ context.Context, note api.Notification) error {
	logger := n.logger
	if note.PluginID != "" {
		logger = logger.WithPlugin(note.PluginID)
	}
	switch note.Type {
	case "error":
		logger.Error("%s", note.Message)
	case "warning":
		logger.Warn("%s", note.Message)
	default:
		logger.Info("%s", note.Message)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.recent = append(n.recent, note)
	if len(n.recent) > n.limit {
		n.recent = n.recent[len(n.recent)-n.limit:]
	}
	return nil
}

// Recent returns the retained notifications, oldest first.
func (n *Notifier) Recent() []api.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]api.Notification, len(n.recent))
	copy(out, n.recent)
	return out
}

// Dialogs answers dialogs without a user: the result is the config's
// "default" value, or nil.
type Dialogs struct {
	logger *logging.Logger
}

// NewDialogs creates the headless dialog responder.
func NewDialogs(logger *logging.Logger) *Dialogs {
	return &Dialogs{logger: logging.OrNull(logger).WithComponent("dialogs")}
}

// ShowDialog logs the dialog and returns its default answer.
func (d *Dialogs) ShowDialog(_ context.Context, pluginID string, config map[string]any) (any, error) {
	title, _ := config["title"].(string)
	d.logger.WithPlugin(pluginID).Info("dialog %q answered with default", title)
	return config["default"], nil
}
