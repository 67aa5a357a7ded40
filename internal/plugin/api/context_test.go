package api

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/dshills/musicbox/internal/storage/memory"
)

func TestMessagingPrivateChannel(t *testing.T) {
	src := newMockEventSource()
	r := NewRegistry(WithHost(Host{Events: src}))
	c := r.CreateContext("p1", nil)
	rec := newRecorder()

	if _, err := c.Messaging().On("ready", rec.cb); err != nil {
		t.Fatal(err)
	}
	c.Messaging().Emit("ready", "x")
	if rec.count() != 1 {
		t.Fatalf("deliveries = %d, want 1", rec.count())
	}

	stats := r.PluginEventListenerStats("p1")
	if stats.Events["plugin:p1:ready"] != 1 {
		t.Errorf("Stats = %+v, want plugin:p1:ready", stats)
	}

	if _, err := c.Messaging().On("ready", rec.cb); !errors.Is(err, ErrDuplicateListener) {
		t.Errorf("duplicate On error = %v", err)
	}
	if !c.Messaging().Off("ready", rec.cb) {
		t.Error("Off should remove the listener")
	}
	if r.HasListeners("p1") {
		t.Error("ledger key should be gone after Off")
	}
}

func TestMessagingBroadcastAndOnPlugin(t *testing.T) {
	r := NewRegistry()
	a := r.CreateContext("a", nil)
	b := r.CreateContext("b", nil)

	bcast := newRecorder()
	fromA := newRecorder()
	if _, err := b.Messaging().OnBroadcast("hello", bcast.cb); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Messaging().OnPlugin("a", "status", fromA.cb); err != nil {
		t.Fatal(err)
	}

	a.Messaging().Broadcast("hello", 1)
	a.Messaging().Emit("status", "up")

	if bcast.count() != 1 || fromA.count() != 1 {
		t.Errorf("broadcast=%d fromA=%d, want 1/1", bcast.count(), fromA.count())
	}

	stats := r.PluginEventListenerStats("b")
	if stats.Events["plugin:broadcast:hello"] != 1 || stats.Events["plugin:a:status"] != 1 {
		t.Errorf("Stats = %+v", stats)
	}

	if n := r.RemoveAllPluginEventListeners("b"); n != 2 {
		t.Errorf("RemoveAll = %d, want 2", n)
	}
	a.Messaging().Broadcast("hello", 2)
	if bcast.count() != 1 {
		t.Error("listener should not fire after RemoveAll")
	}

	if _, err := b.Messaging().OnPlugin("", "x", fromA.cb); err == nil {
		t.Error("OnPlugin without id should fail")
	}
}

func TestMessagingModule(t *testing.T) {
	r := NewRegistry()
	c := r.CreateContext("p1", nil)
	mod := c.Messaging().Module()
	rec := newRecorder()

	call(t, mod, "on", "tick", rec.cb)
	call(t, mod, "emit", "tick", 5)
	if got := rec.last(); len(got) != 1 || got[0] != 5 {
		t.Errorf("args = %v", got)
	}
	if got := call(t, mod, "off", "tick", rec.cb); got != true {
		t.Errorf("off = %v", got)
	}

	call(t, mod, "onPlugin", "p2", "tick", rec.cb)
	if !r.HasListeners("p1") {
		t.Error("onPlugin should record a ledger entry for the listener")
	}

	if _, err := mod.Call(context.Background(), "on", "tick"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("on without callback error = %v", err)
	}
}

func TestUtils(t *testing.T) {
	notes := &mockNotifier{}
	r := NewRegistry(WithHost(Host{Notifier: notes}))
	u := r.CreateContext("p1", nil).Utils()

	html, err := u.CreateElement("div", map[string]any{"className": "box"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, `data-plugin-id="p1"`) || !strings.Contains(html, `class="box"`) {
		t.Errorf("html = %s", html)
	}

	u.AddCSS(".a{}")
	u.AddCSS(".b{}")
	if css, _ := r.Styles().Get("p1"); css != ".b{}" {
		t.Errorf("css = %q, want replacement", css)
	}
	if !u.RemoveCSS() || u.RemoveCSS() {
		t.Error("RemoveCSS should succeed once")
	}

	if err := u.ShowNotification(context.Background(), "hi", "success", 100); err != nil {
		t.Fatal(err)
	}
	if len(notes.sent) != 1 || notes.sent[0].PluginID != "p1" || notes.sent[0].Type != "success" {
		t.Errorf("notifications = %+v", notes.sent)
	}
}

func TestPlayerNamespace(t *testing.T) {
	p := &mockPlayer{track: &Track{ID: "t1", Title: "Song"}}
	src := newMockEventSource()
	r, err := DefaultRegistry(WithHost(Host{Player: p, Events: src}))
	if err != nil {
		t.Fatal(err)
	}
	mod := r.CreateContext("p1", nil).Namespace(NamespacePlayer)

	call(t, mod, "play")
	if got := call(t, mod, "isPlaying"); got != true {
		t.Errorf("isPlaying = %v", got)
	}
	call(t, mod, "setVolume", 0.5)
	if got := call(t, mod, "getVolume"); got != 0.5 {
		t.Errorf("getVolume = %v", got)
	}
	if _, err := mod.Functions()["setVolume"](context.Background(), []any{2.0}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("setVolume(2) error = %v", err)
	}
	if got, ok := call(t, mod, "getCurrentTrack").(Track); !ok || got.ID != "t1" {
		t.Errorf("getCurrentTrack = %v", got)
	}
	call(t, mod, "setPlaylist", []any{map[string]any{"id": "a", "title": "A"}}, int64(0))
	if len(p.playlist) != 1 || p.playlist[0].Title != "A" {
		t.Errorf("playlist = %+v", p.playlist)
	}
	call(t, mod, "seek", int64(42))
	if got := call(t, mod, "getPosition"); got != 42.0 {
		t.Errorf("getPosition = %v", got)
	}
}

func TestPlayerListeners(t *testing.T) {
	src := newMockEventSource()
	r, _ := DefaultRegistry(WithHost(Host{Events: src}))
	c := r.CreateContext("p1", nil)
	player := c.Namespace(NamespacePlayer)
	rec := newRecorder()

	call(t, player, "onTrackChanged", rec.cb)
	call(t, player, "onVolumeChanged", rec.cb)
	call(t, c.Namespace(NamespaceLibrary), "onLibraryUpdated", rec.cb)

	src.Emit(TopicTrackChanged, "t")
	if rec.count() != 1 {
		t.Errorf("deliveries = %d", rec.count())
	}

	if got := call(t, player, "offVolumeChanged", rec.cb); got != true {
		t.Errorf("offVolumeChanged = %v", got)
	}
	if got := call(t, player, "removeAllListeners"); got != 1 {
		t.Errorf("removeAllListeners = %v, want 1", got)
	}
	stats := r.PluginEventListenerStats("p1")
	if stats.TotalEvents != 1 || stats.Events[TopicLibraryUpdated] != 1 {
		t.Errorf("library listener should survive, stats = %+v", stats)
	}
}

func TestNamespacesWithoutHost(t *testing.T) {
	r, _ := DefaultRegistry()
	c := r.CreateContext("p1", nil)

	if _, err := c.Namespace(NamespaceLibrary).Functions()["getTracks"](context.Background(), nil); !errors.Is(err, ErrHostUnavailable) {
		t.Errorf("getTracks error = %v", err)
	}
	if _, err := c.Namespace(NamespaceStorage).Functions()["get"](context.Background(), []any{"k"}); !errors.Is(err, ErrHostUnavailable) {
		t.Errorf("storage.get error = %v", err)
	}
	// Commands against a missing host are no-ops.
	call(t, c.Namespace(NamespacePlayer), "play")
	call(t, c.Namespace(NamespaceNavigation), "navigateTo", "settings")
	if got := call(t, c.Namespace(NamespaceSettings), "get", "theme", "dark"); got != "dark" {
		t.Errorf("settings.get default = %v", got)
	}
}

func TestStorageNamespaceScoping(t *testing.T) {
	r, _ := DefaultRegistry(WithHost(Host{Storage: memory.New()}))
	s1 := r.CreateContext("p1", nil).Namespace(NamespaceStorage)
	s2 := r.CreateContext("p2", nil).Namespace(NamespaceStorage)

	call(t, s1, "set", "volume", 0.7)
	call(t, s1, "set", "cfg", map[string]any{"a": true})
	call(t, s2, "set", "volume", 0.1)

	if got := call(t, s1, "get", "volume"); got != 0.7 {
		t.Errorf("p1 volume = %v", got)
	}
	if got := call(t, s2, "get", "volume"); got != 0.1 {
		t.Errorf("p2 volume = %v", got)
	}
	if got := call(t, s1, "get", "missing", "dflt"); got != "dflt" {
		t.Errorf("missing = %v", got)
	}
	keys, _ := call(t, s1, "keys").([]string)
	if !slices.Equal(keys, []string{"cfg", "volume"}) {
		t.Errorf("keys = %v", keys)
	}

	call(t, s1, "remove", "cfg")
	if got := call(t, s1, "clear"); got != 1 {
		t.Errorf("clear = %v, want 1", got)
	}
	if got := call(t, s2, "get", "volume"); got != 0.1 {
		t.Error("clear must not touch other plugins")
	}
}

func TestEventsAndRequestsNamespaces(t *testing.T) {
	r, _ := DefaultRegistry()
	c1 := r.CreateContext("p1", nil)
	c2 := r.CreateContext("p2", nil)
	rec := newRecorder()

	call(t, c1.Namespace(NamespaceEvents), "on", "themeChanged", rec.cb)
	call(t, c2.Namespace(NamespaceEvents), "emit", "themeChanged", "dark")
	if rec.count() != 1 {
		t.Errorf("app event deliveries = %d", rec.count())
	}
	if r.PluginEventListenerStats("p1").Events["app:themeChanged"] != 1 {
		t.Error("app listener should be recorded under app:themeChanged")
	}

	call(t, c1.Namespace(NamespaceRequests), "register", "sum", NewCallback(func(_ context.Context, args ...any) (any, error) {
		return len(args), nil
	}))
	if got := call(t, c2.Namespace(NamespaceRequests), "call", "p1", "sum", 1, 2, 3); got != 3 {
		t.Errorf("call = %v", got)
	}
	if _, err := c2.Namespace(NamespaceRequests).Functions()["call"](context.Background(), []any{"p1", "nope"}); !errors.Is(err, ErrNoRequestHandler) {
		t.Errorf("call missing error = %v", err)
	}
}

func TestSystemNamespace(t *testing.T) {
	mod := newSystemModule()
	if mod.Values()["platform"] == "" || mod.Values()["arch"] == "" {
		t.Error("platform and arch should be set")
	}
	if got := call(t, mod, "pathExt", "song.flac"); got != ".flac" {
		t.Errorf("pathExt = %v", got)
	}
	if got := call(t, mod, "pathJoin", "a", "b"); got != "a/b" && got != `a\b` {
		t.Errorf("pathJoin = %v", got)
	}
	if _, err := mod.Call(context.Background(), "pathJoin", "a", 1); err == nil {
		t.Error("pathJoin with a number should fail")
	}
}
