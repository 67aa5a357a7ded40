package lua

import (
	"context"
	"reflect"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/plugin/api"
)

func evalOne(t *testing.T, st *State, code string) lua.LValue {
	t.Helper()
	rets, err := st.Eval(context.Background(), "test", code)
	if err != nil {
		t.Fatalf("eval %q: %v", code, err)
	}
	if len(rets) == 0 {
		return lua.LNil
	}
	return rets[0]
}

func TestBridgeToGoValue(t *testing.T) {
	st := NewState()
	defer st.Close()
	b := NewBridge(st.L, nil)

	tests := []struct {
		name string
		code string
		want any
	}{
		{"nil", "return nil", nil},
		{"bool", "return true", true},
		{"integer", "return 42", int64(42)},
		{"float", "return 0.5", 0.5},
		{"string", `return "abc"`, "abc"},
		{"array", `return {"a", "b"}`, []any{"a", "b"}},
		{"map", `return {title = "Song", plays = 3}`, map[string]any{"title": "Song", "plays": int64(3)}},
		{"empty table", "return {}", map[string]any{}},
		{"sparse", `return {[1] = "a", [3] = "c"}`, map[string]any{"1": "a", "3": "c"}},
		{"nested", `return {tags = {"x"}}`, map[string]any{"tags": []any{"x"}}},
		{"function without callbacks", "return function() end", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.ToGoValue(evalOne(t, st, tt.code))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBridgeToGoValueCycle(t *testing.T) {
	st := NewState()
	defer st.Close()
	b := NewBridge(st.L, nil)

	got := b.ToGoValue(evalOne(t, st, "local t = {} t.self = t return t"))
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("got %T", got)
	}
	if m["self"] != nil {
		t.Errorf("cycle not cut: %#v", m["self"])
	}
}

func TestBridgeToLuaValue(t *testing.T) {
	st := NewState()
	defer st.Close()
	b := NewBridge(st.L, nil)

	track := &api.Track{ID: "t1", Title: "Blue", Duration: 185.5}
	tbl, ok := b.ToLuaValue(track).(*lua.LTable)
	if !ok {
		t.Fatal("track did not convert to a table")
	}
	if got := tbl.RawGetString("title"); got != lua.LString("Blue") {
		t.Errorf("title = %v", got)
	}
	if got := tbl.RawGetString("duration"); got != lua.LNumber(185.5) {
		t.Errorf("duration = %v", got)
	}

	var nilTrack *api.Track
	if got := b.ToLuaValue(nilTrack); got != lua.LNil {
		t.Errorf("nil pointer = %v, want nil", got)
	}

	list, ok := b.ToLuaValue([]api.Track{{ID: "a"}, {ID: "b"}}).(*lua.LTable)
	if !ok || list.Len() != 2 {
		t.Fatalf("slice conversion = %v", list)
	}

	m, ok := b.ToLuaValue(map[string]any{"n": 1, "s": []string{"x"}}).(*lua.LTable)
	if !ok {
		t.Fatal("map did not convert")
	}
	if m.RawGetString("n") != lua.LNumber(1) {
		t.Errorf("n = %v", m.RawGetString("n"))
	}
}

func TestBridgeCallbacks(t *testing.T) {
	st, exec := startExecutor(t, 0)
	set := newCallbackSet(st, exec, nil)

	var first, second any
	err := exec.Execute(context.Background(), func(ctx context.Context, _ *lua.LState) error {
		rets, err := st.Eval(ctx, "fn", "local f = function(a, b) return a + b end return f, f")
		if err != nil {
			return err
		}
		first = set.bridge.ToGoValue(rets[0])
		second = set.bridge.ToGoValue(rets[1])
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	cb, ok := first.(api.Callback)
	if !ok {
		t.Fatalf("function converted to %T", first)
	}
	if first != second {
		t.Error("same function produced different callbacks")
	}
	if set.size() != 1 {
		t.Errorf("size = %d, want 1", set.size())
	}

	got, err := cb.Invoke(context.Background(), 2, 3)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != int64(5) {
		t.Errorf("Invoke = %v, want 5", got)
	}

	// Converting the callback back yields the original function.
	err = exec.Execute(context.Background(), func(context.Context, *lua.LState) error {
		if lv := set.bridge.ToLuaValue(cb); lv != cb.(*luaCallback).fn {
			t.Errorf("round trip produced %v", lv)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestBridgeGoCallbackInLua(t *testing.T) {
	st, exec := startExecutor(t, 0)
	set := newCallbackSet(st, exec, nil)

	double := api.NewCallback(func(_ context.Context, args ...any) (any, error) {
		return args[0].(int64) * 2, nil
	})

	var got lua.LValue
	err := exec.Execute(context.Background(), func(ctx context.Context, L *lua.LState) error {
		L.SetGlobal("double", set.bridge.ToLuaValue(double))
		rets, err := st.Eval(ctx, "use", "return double(21)")
		if err != nil {
			return err
		}
		got = rets[0]
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != lua.LNumber(42) {
		t.Errorf("got %v, want 42", got)
	}
}
