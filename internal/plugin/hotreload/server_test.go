package hotreload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/musicbox/internal/plugin"
	"github.com/dshills/musicbox/internal/plugin/api"
	plua "github.com/dshills/musicbox/internal/plugin/lua"
	"github.com/dshills/musicbox/internal/plugin/source"
	"github.com/dshills/musicbox/internal/storage/memory"
)

const versionPlugin = `
local P = {}
P.__index = P
function P.new(ctx) return setmetatable({ ctx = ctx }, P) end
function P:activate()
	self.ctx.utils.registerCommand("version", function() return "%s" end)
end
return P
`

func pluginCode(version string) string {
	return strings.Replace(versionPlugin, "%s", version, 1)
}

type reloadCounter struct {
	mu       sync.Mutex
	reloaded int
	failed   int
	signal   chan struct{}
}

func newReloadCounter() *reloadCounter {
	return &reloadCounter{signal: make(chan struct{}, 16)}
}

func (c *reloadCounter) handle(e plugin.Event) {
	c.mu.Lock()
	switch e.Type {
	case plugin.EventPluginReloaded:
		c.reloaded++
	case plugin.EventReloadError:
		c.failed++
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.signal <- struct{}{}
}

func (c *reloadCounter) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloaded, c.failed
}

type testEnv struct {
	manager  *plugin.Manager
	resolver *source.Resolver
	reloads  *reloadCounter
	dir      string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.New()
	registry, err := api.DefaultRegistry(api.WithHost(api.Host{Storage: store}))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	resolver := source.NewResolver(dir, time.Second)
	loader := plua.NewScriptLoader(resolver, nil, plua.WithExecutionTimeout(2*time.Second))
	t.Cleanup(loader.Close)

	m := plugin.NewManager(loader, registry, store)
	rc := newReloadCounter()
	m.Subscribe(rc.handle)
	return &testEnv{manager: m, resolver: resolver, reloads: rc, dir: dir}
}

// installFile writes code to <dir>/<id>.lua and installs it.
func (e *testEnv) installFile(t *testing.T, id, code string) string {
	t.Helper()
	path := filepath.Join(e.dir, id+".lua")
	writeFile(t, path, code)
	d := &plugin.Descriptor{ID: id, Name: id, Version: "1.0.0", Main: path}
	if err := e.manager.Install(context.Background(), d); err != nil {
		t.Fatalf("install %s: %v", id, err)
	}
	return path
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runVersion(t *testing.T, m *plugin.Manager, id string) any {
	t.Helper()
	got, err := m.ExecuteCommand(context.Background(), id+".version")
	if err != nil {
		t.Fatalf("execute %s.version: %v", id, err)
	}
	return got
}

func TestCheckNowReloadsOnContentChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := env.installFile(t, "ver", pluginCode("one"))

	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0))
	if err := s.Watch("ver", path); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, pluginCode("two"))
	if got := s.CheckNow(ctx); len(got) != 1 || got[0] != "ver" {
		t.Fatalf("CheckNow = %v, want [ver]", got)
	}
	if got := runVersion(t, env.manager, "ver"); got != "two" {
		t.Errorf("version after reload = %v, want two", got)
	}
	if r, f := env.reloads.counts(); r != 1 || f != 0 {
		t.Errorf("reloaded=%d failed=%d, want 1 and 0", r, f)
	}

	info := s.Watched()
	if len(info) != 1 || info[0].Reloads != 1 || info[0].LastError != nil {
		t.Errorf("Watched() = %+v", info)
	}
	if st := s.Status(); st.Reloads != 1 || st.Watching != 1 || st.Running {
		t.Errorf("Status() = %+v", st)
	}
}

func TestCheckNowIgnoresTouchWithoutChange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	code := pluginCode("same")
	path := env.installFile(t, "same", code)

	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0))
	if err := s.Watch("same", path); err != nil {
		t.Fatal(err)
	}

	later := time.Now().Add(time.Minute)
	writeFile(t, path, code)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	if got := s.CheckNow(ctx); len(got) != 0 {
		t.Fatalf("CheckNow = %v, want no reloads", got)
	}
	if r, _ := env.reloads.counts(); r != 0 {
		t.Errorf("reloaded = %d, want 0", r)
	}
}

func TestReloadFailureLeavesPluginFailed(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := env.installFile(t, "brk", pluginCode("one"))

	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0))
	if err := s.Watch("brk", path); err != nil {
		t.Fatal(err)
	}

	writeFile(t, path, "return 42")
	s.CheckNow(ctx)

	if r, f := env.reloads.counts(); r != 0 || f != 1 {
		t.Errorf("reloaded=%d failed=%d, want 0 and 1", r, f)
	}
	st, _ := env.manager.State("brk")
	if !st.Enabled() || !st.IsFailed() {
		t.Errorf("state = %s, want enabled(failed)", st)
	}
	if info := s.Watched(); len(info) != 1 || info[0].LastError == nil {
		t.Errorf("Watched() = %+v, want a recorded error", info)
	}
	if s.Status().Failures != 1 {
		t.Errorf("failures = %d, want 1", s.Status().Failures)
	}

	// Fixing the file recovers without a restart.
	writeFile(t, path, pluginCode("fixed"))
	s.CheckNow(ctx)
	if got := runVersion(t, env.manager, "brk"); got != "fixed" {
		t.Errorf("version = %v, want fixed", got)
	}
}

func TestStartDetectsChanges(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := env.installFile(t, "live", pluginCode("one"))

	s := NewServer(env.manager,
		WithResolver(env.resolver),
		WithDebounce(20*time.Millisecond),
		WithPollInterval(100*time.Millisecond),
	)
	if err := s.Watch("live", path); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	writeFile(t, path, pluginCode("two"))

	deadline := time.After(5 * time.Second)
	for reloaded := 0; reloaded == 0; {
		select {
		case <-env.reloads.signal:
			// A poll tick can catch the file mid-write; wait for a success.
			reloaded, _ = env.reloads.counts()
		case <-deadline:
			t.Fatal("change was not reloaded")
		}
	}
	if got := runVersion(t, env.manager, "live"); got != "two" {
		t.Errorf("version = %v, want two", got)
	}
	if !s.Status().Running {
		t.Error("server should be running")
	}

	s.Stop()
	if s.Status().Running {
		t.Error("server should be stopped")
	}
	s.Stop()
}

func TestWatchInstalledSkipsNonLocal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.installFile(t, "local", pluginCode("one"))
	inline := &plugin.Descriptor{ID: "inline", Name: "inline", Version: "1.0.0", Main: source.InlineRef(pluginCode("x"))}
	if err := env.manager.Install(ctx, inline); err != nil {
		t.Fatal(err)
	}

	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0))
	n, err := s.WatchInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("watched %d plugins, want 1", n)
	}
	if w := s.Watched(); len(w) != 1 || w[0].PluginID != "local" {
		t.Errorf("Watched() = %+v", w)
	}
}

func TestWatchMissingFile(t *testing.T) {
	env := newTestEnv(t)
	s := NewServer(env.manager)
	if err := s.Watch("ghost", filepath.Join(env.dir, "ghost.lua")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if len(s.Watched()) != 0 {
		t.Error("missing file should not be watched")
	}
}

func TestUninstallUnwatches(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	path := env.installFile(t, "gone", pluginCode("one"))

	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0))
	if err := s.Watch("gone", path); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := env.manager.Uninstall(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if len(s.Watched()) != 0 {
		t.Errorf("Watched() = %+v after uninstall", s.Watched())
	}
}

func TestAutoWatchOnInstall(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0), WithAutoWatch(true))
	if err := s.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	env.installFile(t, "auto", pluginCode("one"))
	if w := s.Watched(); len(w) != 1 || w[0].PluginID != "auto" {
		t.Errorf("Watched() = %+v", w)
	}
}

func TestCreateDevPlugin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	devDir := t.TempDir()
	s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0), WithDevDir(devDir))

	d, err := s.CreateDevPlugin(ctx, "hello", "command")
	if err != nil {
		t.Fatal(err)
	}
	if d.Main != filepath.Join(devDir, "hello", "main.lua") {
		t.Errorf("Main = %q", d.Main)
	}
	for _, name := range []string{"plugin.json", "main.lua"} {
		if _, err := os.Stat(filepath.Join(devDir, "hello", name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	got, err := env.manager.ExecuteCommand(ctx, "hello.hello", "dev")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Hello, dev" {
		t.Errorf("command = %v", got)
	}
	if w := s.Watched(); len(w) != 1 || w[0].PluginID != "hello" {
		t.Errorf("Watched() = %+v", w)
	}

	if _, err := s.CreateDevPlugin(ctx, "hello", "basic"); err == nil {
		t.Error("expected an error for an existing dev plugin")
	}
	if _, err := s.CreateDevPlugin(ctx, "other", "nope"); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("unknown template = %v, want ErrUnknownTemplate", err)
	}
}

func TestDevTemplatesLoad(t *testing.T) {
	ctx := context.Background()
	for _, name := range Templates() {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			s := NewServer(env.manager, WithResolver(env.resolver), WithPollInterval(0), WithDevDir(t.TempDir()))
			if _, err := s.CreateDevPlugin(ctx, "tpl-"+name, name); err != nil {
				t.Fatal(err)
			}
			st, _ := env.manager.State("tpl-" + name)
			if !st.IsActive() {
				t.Errorf("state = %s, want enabled(active)", st)
			}
		})
	}
}
