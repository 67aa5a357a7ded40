package api

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/dshills/musicbox/internal/storage"
	"github.com/dshills/musicbox/internal/storage/memory"
)

func call(t *testing.T, mod Module, name string, args ...any) any {
	t.Helper()
	if mod == nil {
		t.Fatalf("module is nil calling %s", name)
	}
	fn, ok := mod.Functions()[name]
	if !ok {
		t.Fatalf("%s.%s not found", mod.Name(), name)
	}
	v, err := fn(context.Background(), args)
	if err != nil {
		t.Fatalf("%s.%s error = %v", mod.Name(), name, err)
	}
	return v
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("a", NewModule("a", nil)); err != nil {
		t.Fatalf("Register error = %v", err)
	}
	if err := r.RegisterFactory("b", func(string) (Module, error) { return NewModule("b", nil), nil }); err != nil {
		t.Fatalf("RegisterFactory error = %v", err)
	}

	tests := []struct {
		name string
		err  error
	}{
		{"static dup", r.Register("a", NewModule("a", nil))},
		{"factory dup", r.RegisterFactory("a", func(string) (Module, error) { return nil, nil })},
		{"static over factory", r.Register("b", NewModule("b", nil))},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrNamespaceExists) {
			t.Errorf("%s: error = %v, want ErrNamespaceExists", tt.name, tt.err)
		}
	}

	if got := r.Namespaces(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Namespaces = %v", got)
	}
	if !r.IsFactory("b") || r.IsFactory("a") {
		t.Error("IsFactory mismatch")
	}

	if !r.Remove("a") || r.Remove("a") {
		t.Error("Remove should succeed once")
	}
	if got := r.Namespaces(); !slices.Equal(got, []string{"b"}) {
		t.Errorf("Namespaces after Remove = %v", got)
	}
}

func TestRegistryExtend(t *testing.T) {
	r := NewRegistry()
	_ = r.Register("util", NewModule("util", nil))
	_ = r.RegisterFactory("per", func(string) (Module, error) { return NewModule("per", nil), nil })

	err := r.Extend("util", map[string]Function{
		"hello": func(context.Context, []any) (any, error) { return "hi", nil },
	})
	if err != nil {
		t.Fatalf("Extend error = %v", err)
	}
	c := r.CreateContext("p1", nil)
	if got := call(t, c.Namespace("util"), "hello"); got != "hi" {
		t.Errorf("hello = %v", got)
	}

	if err := r.Extend("per", nil); !errors.Is(err, ErrNotExtendable) {
		t.Errorf("Extend factory error = %v", err)
	}
	if err := r.Extend("nope", nil); !errors.Is(err, ErrNamespaceNotFound) {
		t.Errorf("Extend unknown error = %v", err)
	}
}

func TestCreateContextFactoryFailure(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterFactory("broken", func(string) (Module, error) { return nil, errors.New("boom") })
	_ = r.RegisterFactory("panicky", func(string) (Module, error) { panic("bad") })
	_ = r.RegisterFactory("empty", func(string) (Module, error) { return nil, nil })
	_ = r.Register("ok", NewModule("ok", nil))

	c := r.CreateContext("p1", nil)
	for _, ns := range []string{"broken", "panicky", "empty"} {
		if c.Namespace(ns) != nil {
			t.Errorf("namespace %s should be nil", ns)
		}
	}
	if c.Namespace("ok") == nil {
		t.Error("static namespace should survive factory failures")
	}
	if got := c.Namespaces(); len(got) != 4 {
		t.Errorf("Namespaces = %v, want all four names", got)
	}
}

func TestCreateContextIsolation(t *testing.T) {
	built := map[string]int{}
	r := NewRegistry()
	_ = r.RegisterFactory("counter", func(id string) (Module, error) {
		built[id]++
		n := 0
		return NewModule("counter", map[string]Function{
			"inc": func(context.Context, []any) (any, error) { n++; return n, nil },
		}), nil
	})
	shared := NewModule("shared", nil)
	_ = r.Register("shared", shared)

	c1 := r.CreateContext("p1", nil)
	c2 := r.CreateContext("p2", nil)

	if c1.Namespace("counter") == c2.Namespace("counter") {
		t.Error("factory namespaces must differ per plugin")
	}
	if c1.Namespace("shared") != c2.Namespace("shared") {
		t.Error("static namespaces are shared")
	}

	call(t, c1.Namespace("counter"), "inc")
	call(t, c1.Namespace("counter"), "inc")
	if got := call(t, c2.Namespace("counter"), "inc"); got != 1 {
		t.Errorf("p2 counter = %v, want 1", got)
	}
	if built["p1"] != 1 || built["p2"] != 1 {
		t.Errorf("factory calls = %v", built)
	}
}

func TestCreateContextEnforcePermissions(t *testing.T) {
	r, err := DefaultRegistry(WithEnforcePermissions(true))
	if err != nil {
		t.Fatal(err)
	}
	c := r.CreateContext("p1", []string{NamespaceSystem})

	if got := call(t, c.Namespace(NamespaceSystem), "pathBase", "/a/b.lua"); got != "b.lua" {
		t.Errorf("pathBase = %v", got)
	}

	fn := c.Namespace(NamespacePlayer).Functions()["play"]
	if fn == nil {
		t.Fatal("denied module should keep function names")
	}
	_, err = fn(context.Background(), nil)
	var perr *PermissionError
	if !errors.As(err, &perr) || !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("error = %v, want PermissionError", err)
	}
	if perr.Namespace != NamespacePlayer || perr.PluginID != "p1" {
		t.Errorf("PermissionError = %+v", perr)
	}
}

func TestCreateContextPermissionsOffByDefault(t *testing.T) {
	r, err := DefaultRegistry()
	if err != nil {
		t.Fatal(err)
	}
	c := r.CreateContext("p1", nil)
	if got := call(t, c.Namespace(NamespacePlayer), "isPlaying"); got != false {
		t.Errorf("isPlaying = %v", got)
	}
}

func TestRegistryReleasePlugin(t *testing.T) {
	nav := newMockItems()
	menu := newMockItems()
	r, err := DefaultRegistry(WithHost(Host{Navigation: nav, ContextMenu: menu}))
	if err != nil {
		t.Fatal(err)
	}
	c := r.CreateContext("p1", nil)
	other := r.CreateContext("p2", nil)

	if _, err := c.Utils().RegisterCommand("go", newRecorder().cb); err != nil {
		t.Fatal(err)
	}
	call(t, c.Namespace(NamespaceRequests), "register", "ping", newRecorder().cb)
	call(t, c.Namespace(NamespaceNavigation), "addItem", map[string]any{"label": "x"})
	call(t, c.Namespace(NamespaceContextMenu), "addItem", map[string]any{"label": "y"})
	call(t, other.Namespace(NamespaceNavigation), "addItem", map[string]any{"label": "z"})

	if nav.count() != 2 || menu.count() != 1 {
		t.Fatalf("items nav=%d menu=%d", nav.count(), menu.count())
	}

	r.ReleasePlugin(context.Background(), "p1")

	if r.Commands().Has("p1.go") {
		t.Error("command should be released")
	}
	if len(r.Requests().Names("p1")) != 0 {
		t.Error("request handlers should be released")
	}
	if nav.count() != 1 || menu.count() != 0 {
		t.Errorf("after release nav=%d menu=%d, want 1/0", nav.count(), menu.count())
	}
	if r.injections.count("p1") != 0 || r.injections.count("p2") != 1 {
		t.Error("injection tracking mismatch")
	}
}

func TestRegistryForgetPlugin(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	r, err := DefaultRegistry(WithHost(Host{Storage: kv}))
	if err != nil {
		t.Fatal(err)
	}
	c := r.CreateContext("p1", nil)
	c.Utils().AddCSS("body{}")
	call(t, c.Namespace(NamespaceStorage), "set", "k", "v")
	_ = kv.Set(ctx, storage.PluginKey("p10", "k"), []byte(`"other"`))

	if err := r.ForgetPlugin(ctx, "p1"); err != nil {
		t.Fatalf("ForgetPlugin error = %v", err)
	}
	if _, ok := r.Styles().Get("p1"); ok {
		t.Error("CSS should be removed")
	}
	if _, err := kv.Get(ctx, storage.PluginKey("p1", "k")); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("plugin key should be gone, err = %v", err)
	}
	if _, err := kv.Get(ctx, storage.PluginKey("p10", "k")); err != nil {
		t.Errorf("other plugin's key should survive, err = %v", err)
	}
}

func TestRegistryExecuteCommand(t *testing.T) {
	r := NewRegistry()
	rec := newRecorder()
	c := r.CreateContext("p1", nil)
	id, err := c.Utils().RegisterCommand("greet", rec.cb)
	if err != nil {
		t.Fatal(err)
	}
	if id != "p1.greet" {
		t.Errorf("id = %q", id)
	}

	got, err := r.ExecuteCommand(context.Background(), "p1.greet", "a", "b")
	if err != nil || got != 2 {
		t.Errorf("ExecuteCommand = %v, %v", got, err)
	}

	_, err = r.ExecuteCommand(context.Background(), "p1.missing")
	var nf *CommandNotFoundError
	if !errors.As(err, &nf) || nf.CommandID != "p1.missing" {
		t.Errorf("error = %v, want CommandNotFoundError", err)
	}

	if !c.Utils().UnregisterCommand("greet") || c.Utils().UnregisterCommand("greet") {
		t.Error("UnregisterCommand should succeed once")
	}
}
