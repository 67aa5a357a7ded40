package lua

import (
	"context"
	"errors"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func startExecutor(t *testing.T, timeout time.Duration) (*State, *Executor) {
	t.Helper()
	st := NewState()
	exec := NewExecutor(st.L, 8, timeout)
	exec.OnStop(st.Close)
	go exec.Run(context.Background())
	t.Cleanup(func() {
		exec.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = exec.Wait(ctx)
	})
	return st, exec
}

func TestExecutorExecute(t *testing.T) {
	st, exec := startExecutor(t, time.Second)

	var got lua.LValue
	err := exec.Execute(context.Background(), func(ctx context.Context, L *lua.LState) error {
		rets, err := st.Eval(ctx, "sum", "return 1 + 2")
		if err != nil {
			return err
		}
		got = rets[0]
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got != lua.LNumber(3) {
		t.Errorf("got %v, want 3", got)
	}
}

func TestExecutorReentrant(t *testing.T) {
	_, exec := startExecutor(t, time.Second)

	inner := false
	err := exec.Execute(context.Background(), func(ctx context.Context, _ *lua.LState) error {
		return exec.Execute(ctx, func(context.Context, *lua.LState) error {
			inner = true
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !inner {
		t.Error("nested call did not run")
	}
}

func TestExecutorTimeout(t *testing.T) {
	st, exec := startExecutor(t, 50*time.Millisecond)

	err := exec.Execute(context.Background(), func(ctx context.Context, _ *lua.LState) error {
		_, err := st.Eval(ctx, "spin", "while true do end")
		return err
	})
	if !errors.Is(err, ErrExecutionTimeout) {
		t.Fatalf("err = %v, want ErrExecutionTimeout", err)
	}
}

func TestExecutorCallerCancel(t *testing.T) {
	_, exec := startExecutor(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := exec.Execute(ctx, func(context.Context, *lua.LState) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExecutorClosed(t *testing.T) {
	st, exec := startExecutor(t, time.Second)

	exec.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := exec.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if !exec.IsClosed() {
		t.Error("IsClosed = false")
	}
	if !st.IsClosed() {
		t.Error("state not closed by OnStop hook")
	}
	err := exec.Execute(context.Background(), func(context.Context, *lua.LState) error { return nil })
	if !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("Execute err = %v", err)
	}
	if err := exec.ExecuteAsync(func(context.Context, *lua.LState) error { return nil }); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("ExecuteAsync err = %v", err)
	}
}

func TestExecutorQueueFull(t *testing.T) {
	st := NewState()
	defer st.Close()
	exec := NewExecutor(st.L, 1, time.Second)
	defer exec.Close()

	noop := func(context.Context, *lua.LState) error { return nil }
	if err := exec.ExecuteAsync(noop); err != nil {
		t.Fatalf("first ExecuteAsync: %v", err)
	}
	if err := exec.ExecuteAsync(noop); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second ExecuteAsync err = %v, want ErrQueueFull", err)
	}
}

func TestExecutorAsyncOrder(t *testing.T) {
	_, exec := startExecutor(t, time.Second)

	var order []int
	for i := range 5 {
		if err := exec.ExecuteAsync(func(context.Context, *lua.LState) error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	// A synchronous call runs after everything queued before it.
	if err := exec.Execute(context.Background(), func(context.Context, *lua.LState) error { return nil }); err != nil {
		t.Fatal(err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v", order)
		}
	}
	if len(order) != 5 {
		t.Errorf("ran %d calls, want 5", len(order))
	}
}
