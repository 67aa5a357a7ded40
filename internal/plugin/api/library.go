package api

import "context"

// Library event topics published by the host.
const (
	TopicLibraryUpdated = "library:updated"
	TopicScanProgress   = "library:scanProgress"
)

var libraryEvents = map[string]string{
	"LibraryUpdated": TopicLibraryUpdated,
	"ScanProgress":   TopicScanProgress,
}

func (r *Registry) libraryFactory(pluginID string) (Module, error) {
	lib := r.host.Library
	query := func(fn func(context.Context, []any) (any, error)) Function {
		return func(ctx context.Context, args []any) (any, error) {
			if lib == nil {
				return nil, hostUnavailable(NamespaceLibrary)
			}
			return fn(ctx, args)
		}
	}

	funcs := map[string]Function{
		"getTracks": query(func(ctx context.Context, args []any) (any, error) {
			return lib.Tracks(ctx, optMap(args, 0))
		}),
		"getAlbums": query(func(ctx context.Context, _ []any) (any, error) {
			return lib.Albums(ctx)
		}),
		"getArtists": query(func(ctx context.Context, _ []any) (any, error) {
			return lib.Artists(ctx)
		}),
		"search": query(func(ctx context.Context, args []any) (any, error) {
			q, err := argString("library.search", args, 0)
			if err != nil {
				return nil, err
			}
			return lib.Search(ctx, q)
		}),
		"scanDirectory": query(func(ctx context.Context, args []any) (any, error) {
			path, err := argString("library.scanDirectory", args, 0)
			if err != nil {
				return nil, err
			}
			return nil, lib.ScanDirectory(ctx, path)
		}),
		"getTrackMetadata": query(func(ctx context.Context, args []any) (any, error) {
			path, err := argString("library.getTrackMetadata", args, 0)
			if err != nil {
				return nil, err
			}
			return lib.TrackMetadata(ctx, path)
		}),
	}
	r.addEventFuncs(funcs, pluginID, NamespaceLibrary, libraryEvents)
	return NewModule(NamespaceLibrary, funcs), nil
}
