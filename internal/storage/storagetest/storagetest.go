// Package storagetest holds behavior tests shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/musicbox/internal/storage"
)

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("configs", func(t *testing.T) { testConfigs(t, open(t)) })
	t.Run("states", func(t *testing.T) { testStates(t, open(t)) })
	t.Run("kv", func(t *testing.T) { testKV(t, open(t)) })
	t.Run("plugin prefix isolation", func(t *testing.T) { testPrefix(t, open(t)) })
}

func testConfigs(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if err := s.PutConfig(ctx, "b", []byte(`{"id":"b"}`)); err != nil {
		t.Fatalf("PutConfig(b) error = %v", err)
	}
	if err := s.PutConfig(ctx, "a", []byte(`{"id":"a"}`)); err != nil {
		t.Fatalf("PutConfig(a) error = %v", err)
	}
	if err := s.PutConfig(ctx, "a", []byte(`{"id":"a","v":2}`)); err != nil {
		t.Fatalf("PutConfig(a) replace error = %v", err)
	}

	recs, err := s.ListConfigs(ctx)
	if err != nil {
		t.Fatalf("ListConfigs() error = %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "b" {
		t.Fatalf("ListConfigs() = %+v, want [a b]", recs)
	}
	if string(recs[0].Descriptor) != `{"id":"a","v":2}` {
		t.Errorf("descriptor a = %s", recs[0].Descriptor)
	}

	if err := s.DeleteConfig(ctx, "a"); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	recs, _ = s.ListConfigs(ctx)
	if len(recs) != 1 {
		t.Errorf("ListConfigs() after delete = %d records, want 1", len(recs))
	}
}

func testStates(t *testing.T, s storage.Store) {
	ctx := context.Background()

	s.PutState(ctx, "a", true)
	s.PutState(ctx, "b", false)
	s.PutState(ctx, "a", false)

	states, err := s.ListStates(ctx)
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(states) != 2 || states["a"] || states["b"] {
		t.Errorf("ListStates() = %v", states)
	}

	if err := s.DeleteState(ctx, "a"); err != nil {
		t.Fatalf("DeleteState() error = %v", err)
	}
	states, _ = s.ListStates(ctx)
	if _, ok := states["a"]; ok {
		t.Error("state a still present after delete")
	}
}

func testKV(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set(ctx, "k", []byte(`"v1"`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "k", []byte(`"v2"`)); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	v, err := s.Get(ctx, "k")
	if err != nil || string(v) != `"v2"` {
		t.Errorf("Get(k) = %s, %v", v, err)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func testPrefix(t *testing.T, s storage.Store) {
	ctx := context.Background()

	s.Set(ctx, storage.PluginKey("lyrics", "theme"), []byte(`"dark"`))
	s.Set(ctx, storage.PluginKey("lyrics", "size"), []byte(`12`))
	s.Set(ctx, storage.PluginKey("lyrics-pro", "theme"), []byte(`"light"`))

	keys, err := s.Keys(ctx, storage.PluginPrefix("lyrics"))
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 || keys[0] != "plugin-lyrics-size" || keys[1] != "plugin-lyrics-theme" {
		t.Errorf("Keys() = %v", keys)
	}

	n, err := s.DeletePrefix(ctx, storage.PluginPrefix("lyrics"))
	if err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeletePrefix() = %d, want 2", n)
	}
	if _, err := s.Get(ctx, storage.PluginKey("lyrics-pro", "theme")); err != nil {
		t.Errorf("other plugin's key removed: %v", err)
	}
}
