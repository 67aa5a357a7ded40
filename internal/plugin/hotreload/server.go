package hotreload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin"
	"github.com/dshills/musicbox/internal/plugin/source"
)

// Defaults for the reload server.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultDebounce     = 100 * time.Millisecond
)

var (
	// ErrNotWatchable is returned for plugins whose main is not a local file.
	ErrNotWatchable = errors.New("plugin main is not a local file")

	// ErrAlreadyRunning is returned by Start on a running server.
	ErrAlreadyRunning = errors.New("reload server already running")
)

// Manager is the part of the plugin manager the server drives.
type Manager interface {
	Install(ctx context.Context, d *plugin.Descriptor) error
	Reload(ctx context.Context, id string) error
	GetAllPlugins() []plugin.PluginInfo
	Subscribe(handler plugin.EventHandler) func()
}

// WatchInfo describes one watched plugin file.
type WatchInfo struct {
	PluginID   string
	Path       string
	Hash       string
	LastCheck  time.Time
	LastReload time.Time
	Reloads    int
	LastError  error
}

// Status summarizes the server.
type Status struct {
	Running      bool
	Notify       bool // fsnotify events are active
	Watching     int
	PollInterval time.Duration
	DevDir       string
	Reloads      int
	Failures     int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logging.OrNull(l).WithComponent("hotreload")
	}
}

// WithResolver sets the resolver used to map main references to files.
func WithResolver(r *source.Resolver) Option {
	return func(s *Server) { s.resolver = r }
}

// WithPollInterval sets the rehash interval. Zero disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Server) { s.poll = d }
}

// WithDebounce sets how long file events settle before a check.
func WithDebounce(d time.Duration) Option {
	return func(s *Server) { s.debounce = d }
}

// WithDevDir sets the directory CreateDevPlugin writes into.
func WithDevDir(dir string) Option {
	return func(s *Server) { s.devDir = dir }
}

// WithAutoWatch makes the server watch plugins installed while it runs.
func WithAutoWatch(on bool) Option {
	return func(s *Server) { s.autoWatch = on }
}

// Server reloads plugins whose main file content changes.
type Server struct {
	manager   Manager
	resolver  *source.Resolver
	logger    *logging.Logger
	poll      time.Duration
	debounce  time.Duration
	devDir    string
	autoWatch bool

	mu       sync.Mutex
	entries  map[string]*WatchInfo
	watcher  *fileWatcher
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	unsub    func()
	reloads  int
	failures int
}

// NewServer creates a stopped server for m.
func NewServer(m Manager, opts ...Option) *Server {
	s := &Server{
		manager:  m,
		logger:   logging.NullLogger,
		poll:     DefaultPollInterval,
		debounce: DefaultDebounce,
		entries:  make(map[string]*WatchInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.resolver == nil {
		s.resolver = source.NewResolver("", source.DefaultHTTPTimeout)
	}
	return s
}

// Start begins watching. File notifications are used when available;
// polling runs regardless unless disabled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}

	w, err := newFileWatcher(s.debounce)
	if err != nil {
		s.logger.Warn("file notifications unavailable, polling only: %v", err)
	}
	if w != nil {
		for _, e := range s.entries {
			if err := w.Add(e.Path); err != nil {
				s.logger.WithPlugin(e.PluginID).Warn("watch %s: %v", e.Path, err)
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s.watcher = w
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.unsub = s.manager.Subscribe(s.handleEvent)
	done := s.done
	s.mu.Unlock()

	go s.run(ctx, w, done)
	s.logger.Info("reload server started (poll %s)", s.poll)
	return nil
}

// Stop halts watching. The watch set is kept for a later Start.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done, w, unsub := s.cancel, s.done, s.watcher, s.unsub
	s.watcher = nil
	s.unsub = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	cancel()
	<-done
	if w != nil {
		_ = w.Close()
	}
	s.logger.Info("reload server stopped")
}

func (s *Server) run(ctx context.Context, w *fileWatcher, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if s.poll > 0 {
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		tick = ticker.C
	}

	var events <-chan string
	var errs <-chan error
	if w != nil {
		events = w.Events()
		errs = w.Errors()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case path := <-events:
			s.checkPath(ctx, path)
		case err := <-errs:
			s.logger.Warn("watcher: %v", err)
		case <-tick:
			s.CheckNow(ctx)
		}
	}
}

func (s *Server) handleEvent(e plugin.Event) {
	switch e.Type {
	case plugin.EventPluginUninstalled:
		s.Unwatch(e.PluginID)
	case plugin.EventPluginInstalled:
		if !s.autoWatch {
			return
		}
		for _, info := range s.manager.GetAllPlugins() {
			if info.ID != e.PluginID || info.Descriptor == nil {
				continue
			}
			if path, ok := s.resolver.LocalPath(info.Descriptor.Main); ok {
				if err := s.Watch(e.PluginID, path); err != nil {
					s.logger.WithPlugin(e.PluginID).Warn("auto watch: %v", err)
				}
			}
		}
	}
}

// Watch adds id's main file at path to the watch set, replacing any
// previous entry for id.
func (s *Server) Watch(id, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	hash, err := source.HashFile(abs)
	if err != nil {
		return fmt.Errorf("watch %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[id]; ok {
		if s.watcher != nil {
			s.watcher.Remove(old.Path)
		}
	}
	s.entries[id] = &WatchInfo{
		PluginID:  id,
		Path:      abs,
		Hash:      hash,
		LastCheck: time.Now(),
	}
	if s.watcher != nil {
		if err := s.watcher.Add(abs); err != nil {
			s.logger.WithPlugin(id).Warn("watch %s: %v (polling)", abs, err)
		}
	}
	s.logger.WithPlugin(id).Debug("watching %s", abs)
	return nil
}

// Unwatch removes id from the watch set.
func (s *Server) Unwatch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	delete(s.entries, id)
	if s.watcher != nil {
		s.watcher.Remove(e.Path)
	}
	s.logger.WithPlugin(id).Debug("unwatched")
}

// WatchInstalled watches every installed plugin whose main is a local file
// and returns how many are watched.
func (s *Server) WatchInstalled() (int, error) {
	var errs []error
	n := 0
	for _, info := range s.manager.GetAllPlugins() {
		if info.Descriptor == nil {
			continue
		}
		path, ok := s.resolver.LocalPath(info.Descriptor.Main)
		if !ok {
			continue
		}
		if err := s.Watch(info.ID, path); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Watched returns the watch set, sorted by plugin id.
func (s *Server) Watched() []WatchInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WatchInfo, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PluginID < out[j].PluginID })
	return out
}

// Status returns a snapshot of the server.
func (s *Server) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:      s.running,
		Notify:       s.watcher != nil,
		Watching:     len(s.entries),
		PollInterval: s.poll,
		DevDir:       s.devDir,
		Reloads:      s.reloads,
		Failures:     s.failures,
	}
}

// CheckNow rehashes every watched file and reloads those that changed.
// It returns the ids it reloaded.
func (s *Server) CheckNow(ctx context.Context) []string {
	return s.check(ctx, func(*WatchInfo) bool { return true })
}

func (s *Server) checkPath(ctx context.Context, path string) {
	s.check(ctx, func(e *WatchInfo) bool { return e.Path == path })
}

func (s *Server) check(ctx context.Context, match func(*WatchInfo) bool) []string {
	now := time.Now()
	var changed []string

	s.mu.Lock()
	for id, e := range s.entries {
		if !match(e) {
			continue
		}
		e.LastCheck = now
		hash, err := source.HashFile(e.Path)
		if err != nil {
			// Mid-save or removed; the next event or tick retries.
			continue
		}
		if hash == e.Hash {
			continue
		}
		e.Hash = hash
		changed = append(changed, id)
	}
	s.mu.Unlock()

	sort.Strings(changed)
	for _, id := range changed {
		s.reload(ctx, id)
	}
	return changed
}

func (s *Server) reload(ctx context.Context, id string) {
	logger := s.logger.WithPlugin(id)
	logger.Info("change detected, reloading")
	err := s.manager.Reload(ctx, id)

	s.mu.Lock()
	if e, ok := s.entries[id]; ok {
		e.LastReload = time.Now()
		e.Reloads++
		e.LastError = err
	}
	if err != nil {
		s.failures++
	} else {
		s.reloads++
	}
	s.mu.Unlock()

	if err != nil {
		logger.Error("reload failed: %v", err)
		return
	}
	logger.Info("reloaded")
}
