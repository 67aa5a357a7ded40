package host

import (
	"github.com/dshills/musicbox/internal/event"
	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin/api"
	"github.com/dshills/musicbox/internal/storage"
)

// DefaultView is the view navigation starts on.
const DefaultView = "library"

// Headless bundles in-memory collaborators sharing one event bus.
type Headless struct {
	Bus         *event.Bus
	Player      *Player
	Library     *Library
	Settings    *Settings
	Navigation  *Navigation
	ContextMenu *ContextMenu
	Notifier    *Notifier
	Dialogs     *Dialogs
}

// NewHeadless creates the collaborators. A nil bus gets a new one.
func NewHeadless(bus *event.Bus, logger *logging.Logger) *Headless {
	logger = logging.OrNull(logger).WithComponent("host")
	if bus == nil {
		bus = event.NewBus(event.WithLogger(logger))
	}
	return &Headless{
		Bus:         bus,
		Player:      NewPlayer(bus),
		Library:     NewLibrary(bus),
		Settings:    NewSettings(map[string]any{"theme": "dark", "language": "en"}),
		Navigation:  NewNavigation(DefaultView),
		ContextMenu: NewContextMenu(),
		Notifier:    NewNotifier(logger, 0),
		Dialogs:     NewDialogs(logger),
	}
}

// Host returns the api.Host view of h with kv as plugin storage.
func (h *Headless) Host(kv storage.KV) api.Host {
	return api.Host{
		Events:      h.Bus,
		Player:      h.Player,
		Library:     h.Library,
		Settings:    h.Settings,
		Navigation:  h.Navigation,
		ContextMenu: h.ContextMenu,
		Notifier:    h.Notifier,
		Dialogs:     h.Dialogs,
		Storage:     kv,
	}
}
