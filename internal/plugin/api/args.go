package api

import (
	"encoding/json"
	"fmt"
)

// Argument helpers for capability functions. Script runtimes deliver
// numbers as int64 or float64 and tables as map[string]any or []any.

func argAt(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func argString(fn string, args []any, i int) (string, error) {
	switch v := argAt(args, i).(type) {
	case string:
		return v, nil
	case nil:
		return "", argError(fn, "argument %d: string expected", i+1)
	default:
		return "", argError(fn, "argument %d: string expected, got %T", i+1, v)
	}
}

func optString(args []any, i int, def string) string {
	if s, ok := argAt(args, i).(string); ok {
		return s
	}
	return def
}

func argNumber(fn string, args []any, i int) (float64, error) {
	switch v := argAt(args, i).(type) {
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case float64:
		return v, nil
	default:
		return 0, argError(fn, "argument %d: number expected, got %T", i+1, v)
	}
}

func optInt(args []any, i int, def int) int {
	switch v := argAt(args, i).(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func argCallback(fn string, args []any, i int) (Callback, error) {
	cb, ok := argAt(args, i).(Callback)
	if !ok || cb == nil {
		return nil, argError(fn, "argument %d: function expected", i+1)
	}
	return cb, nil
}

func optMap(args []any, i int) map[string]any {
	switch v := argAt(args, i).(type) {
	case map[string]any:
		return v
	case []any:
		// Empty script tables decode as arrays.
		if len(v) == 0 {
			return map[string]any{}
		}
	}
	return nil
}

func optSlice(args []any, i int) []any {
	if v, ok := argAt(args, i).([]any); ok {
		return v
	}
	return nil
}

// decodeInto converts a loosely typed script value into a typed Go value
// by way of JSON.
func decodeInto(fn string, v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return argError(fn, "%v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return argError(fn, "%v", err)
	}
	return nil
}

func hostUnavailable(namespace string) error {
	return fmt.Errorf("%s: %w", namespace, ErrHostUnavailable)
}
