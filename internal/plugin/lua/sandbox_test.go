package lua

import (
	"bytes"
	"context"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/musicbox/internal/logging"
)

func TestSandboxRemovesUnsafeGlobals(t *testing.T) {
	st := NewState()
	defer st.Close()

	for _, name := range []string{"io", "os", "debug", "dofile", "loadfile", "load", "loadstring"} {
		rets, err := st.Eval(context.Background(), "check", "return "+name+" == nil")
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if rets[0] != lua.LTrue {
			t.Errorf("%s is still reachable", name)
		}
	}
}

func TestSandboxKeepsSafeLibraries(t *testing.T) {
	st := NewState()
	defer st.Close()

	rets, err := st.Eval(context.Background(), "libs", `
		return string.upper("a"), table.concat({"x", "y"}, ","), math.max(1, 4)
	`)
	if err != nil {
		t.Fatal(err)
	}
	if rets[0].String() != "A" || rets[1].String() != "x,y" || rets[2] != lua.LNumber(4) {
		t.Errorf("unexpected results %v", rets)
	}
}

func TestSandboxRequire(t *testing.T) {
	st := NewState()
	defer st.Close()
	st.L.PreloadModule("greet", func(L *lua.LState) int {
		mod := L.NewTable()
		mod.RawSetString("hello", lua.LString("hi"))
		L.Push(mod)
		return 1
	})

	tests := []struct {
		name    string
		code    string
		wantErr string
	}{
		{"builtin", `return require("string").len("abc")`, ""},
		{"preloaded", `return require("greet").hello`, ""},
		{"os", `return require("os")`, "not available"},
		{"file module", `return require("plugins.evil")`, "not available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := st.Eval(context.Background(), tt.name, tt.code)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestSandboxPrintLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})
	st := NewState(WithLogger(logger))
	defer st.Close()

	if _, err := st.Eval(context.Background(), "print", `print("now playing", 3)`); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "now playing\t3") {
		t.Errorf("print output not logged: %q", buf.String())
	}
}

func TestStateCallStackSize(t *testing.T) {
	st := NewState(WithCallStackSize(32))
	defer st.Close()

	_, err := st.Eval(context.Background(), "recurse", `
		local function f(n) return f(n + 1) + 1 end
		return f(1)
	`)
	if err == nil {
		t.Fatal("unbounded recursion succeeded")
	}
}

func TestStateClosed(t *testing.T) {
	st := NewState()
	st.Close()
	st.Close()

	if _, err := st.Eval(context.Background(), "x", "return 1"); err != ErrStateClosed {
		t.Errorf("err = %v, want ErrStateClosed", err)
	}
}
