package api

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// newSystemModule builds the static system namespace. It holds only pure
// functions and constants, so one instance is shared by every plugin.
func newSystemModule() *FuncModule {
	mod := NewModule(NamespaceSystem, map[string]Function{
		"hostname": func(context.Context, []any) (any, error) {
			return os.Hostname()
		},
		"homeDir": func(context.Context, []any) (any, error) {
			return os.UserHomeDir()
		},
		"tempDir": func(context.Context, []any) (any, error) {
			return os.TempDir(), nil
		},
		"pathJoin": func(_ context.Context, args []any) (any, error) {
			parts := make([]string, 0, len(args))
			for i := range args {
				s, err := argString("system.pathJoin", args, i)
				if err != nil {
					return nil, err
				}
				parts = append(parts, s)
			}
			return filepath.Join(parts...), nil
		},
		"pathBase": func(_ context.Context, args []any) (any, error) {
			p, err := argString("system.pathBase", args, 0)
			if err != nil {
				return nil, err
			}
			return filepath.Base(p), nil
		},
		"pathExt": func(_ context.Context, args []any) (any, error) {
			p, err := argString("system.pathExt", args, 0)
			if err != nil {
				return nil, err
			}
			return filepath.Ext(p), nil
		},
		"pathDir": func(_ context.Context, args []any) (any, error) {
			p, err := argString("system.pathDir", args, 0)
			if err != nil {
				return nil, err
			}
			return filepath.Dir(p), nil
		},
		"now": func(context.Context, []any) (any, error) {
			return time.Now().UnixMilli(), nil
		},
	})
	mod.SetValue("platform", runtime.GOOS).SetValue("arch", runtime.GOARCH)
	return mod
}
