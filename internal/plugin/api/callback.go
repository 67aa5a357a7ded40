package api

import (
	"context"
	"fmt"
	"reflect"
)

// Callback is a function supplied by a plugin (or by host code) that the
// runtime can call back later.
type Callback interface {
	// Invoke calls the function and waits for its first return value.
	Invoke(ctx context.Context, args ...any) (any, error)

	// InvokeAsync schedules the call without waiting. Event delivery uses it
	// so a publisher never blocks on a plugin's runtime.
	InvokeAsync(args ...any) error
}

type funcCallback struct {
	fn func(ctx context.Context, args ...any) (any, error)
}

// NewCallback wraps a Go function as a Callback. Each call returns a distinct
// pointer, so two wrappers of the same function are different listeners.
func NewCallback(fn func(ctx context.Context, args ...any) (any, error)) Callback {
	return &funcCallback{fn: fn}
}

func (c *funcCallback) Invoke(ctx context.Context, args ...any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return c.fn(ctx, args...)
}

// InvokeAsync runs Go callbacks synchronously.
func (c *funcCallback) InvokeAsync(args ...any) error {
	_, err := c.Invoke(context.Background(), args...)
	return err
}

// sameCallback compares callbacks without panicking on incomparable types.
func sameCallback(a, b Callback) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
