package host

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/musicbox/internal/plugin/api"
)

// AudioExtensions are the file extensions ScanDirectory picks up.
var AudioExtensions = []string{".mp3", ".flac", ".ogg", ".opus", ".wav", ".m4a", ".aac"}

// ScanProgress is the payload of library:scanProgress.
type ScanProgress struct {
	Path    string `json:"path"`
	Scanned int    `json:"scanned"`
	Added   int    `json:"added"`
	Done    bool   `json:"done"`
}

// Library is an in-memory media library filled by ScanDirectory or Add.
type Library struct {
	events Publisher

	mu     sync.RWMutex
	tracks []api.Track
	paths  map[string]struct{}
}

// NewLibrary creates an empty library. events may be nil.
func NewLibrary(events Publisher) *Library {
	return &Library{events: events, paths: make(map[string]struct{})}
}

func (l *Library) emit(topic string, data any) {
	if l.events != nil {
		l.events.Emit(topic, data)
	}
}

// Add inserts tracks, assigning ids to those without one. Tracks whose path
// is already present are skipped. It returns how many were added.
func (l *Library) Add(tracks ...api.Track) int {
	l.mu.Lock()
	added := 0
	for _, t := range tracks {
		if t.Path != "" {
			if _, dup := l.paths[t.Path]; dup {
				continue
			}
			l.paths[t.Path] = struct{}{}
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		l.tracks = append(l.tracks, t)
		added++
	}
	total := len(l.tracks)
	l.mu.Unlock()

	if added > 0 {
		l.emit(api.TopicLibraryUpdated, map[string]any{"added": added, "total": total})
	}
	return added
}

// Tracks returns tracks filtered by the optional "artist", "album" and
// "limit" options. Artist and album match case-insensitively.
func (l *Library) Tracks(_ context.Context, options map[string]any) ([]api.Track, error) {
	artist, _ := options["artist"].(string)
	album, _ := options["album"].(string)
	limit := 0
	switch v := options["limit"].(type) {
	case int:
		limit = v
	case float64:
		limit = int(v)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]api.Track, 0, len(l.tracks))
	for _, t := range l.tracks {
		if artist != "" && !strings.EqualFold(t.Artist, artist) {
			continue
		}
		if album != "" && !strings.EqualFold(t.Album, album) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Albums returns the distinct album names, sorted.
func (l *Library) Albums(context.Context) ([]string, error) {
	return l.distinct(func(t api.Track) string { return t.Album }), nil
}

// Artists returns the distinct artist names, sorted.
func (l *Library) Artists(context.Context) ([]string, error) {
	return l.distinct(func(t api.Track) string { return t.Artist }), nil
}

func (l *Library) distinct(field func(api.Track) string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, t := range l.tracks {
		v := field(t)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Search matches query against title, artist and album, case-insensitively.
func (l *Library) Search(_ context.Context, query string) ([]api.Track, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []api.Track
	for _, t := range l.tracks {
		if strings.Contains(strings.ToLower(t.Title), q) ||
			strings.Contains(strings.ToLower(t.Artist), q) ||
			strings.Contains(strings.ToLower(t.Album), q) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ScanDirectory walks root and adds every audio file found. Titles come
// from file names; files laid out as Artist/Album/Track get those fields
// from their parent directories.
func (l *Library) ScanDirectory(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("scan %s: not a directory", root)
	}

	progress := ScanProgress{Path: root}
	var found []api.Track
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isAudio(path) {
			return nil
		}
		progress.Scanned++
		found = append(found, trackFromPath(root, path))
		if progress.Scanned%50 == 0 {
			l.emit(api.TopicScanProgress, progress)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}

	progress.Added = l.Add(found...)
	progress.Done = true
	l.emit(api.TopicScanProgress, progress)
	return nil
}

func isAudio(path string) bool {
	return slices.Contains(AudioExtensions, strings.ToLower(filepath.Ext(path)))
}

func trackFromPath(root, path string) api.Track {
	t := api.Track{
		Path:  path,
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return t
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) >= 3 {
		t.Artist = parts[len(parts)-3]
		t.Album = parts[len(parts)-2]
	} else if len(parts) == 2 {
		t.Album = parts[0]
	}
	return t
}

// TrackMetadata returns file facts plus any library fields for path.
func (l *Library) TrackMetadata(_ context.Context, path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"path":     path,
		"size":     info.Size(),
		"modified": info.ModTime().Unix(),
		"format":   strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tracks {
		if t.Path == path {
			meta["id"] = t.ID
			meta["title"] = t.Title
			meta["artist"] = t.Artist
			meta["album"] = t.Album
			meta["duration"] = t.Duration
			break
		}
	}
	return meta, nil
}
