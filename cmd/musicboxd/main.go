// Package main is the entry point for the MusicBox plugin host daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/dshills/musicbox/internal/config"
	"github.com/dshills/musicbox/internal/host"
	"github.com/dshills/musicbox/internal/logging"
	"github.com/dshills/musicbox/internal/plugin"
	"github.com/dshills/musicbox/internal/plugin/hotreload"
	"github.com/dshills/musicbox/internal/storage"
	"github.com/dshills/musicbox/internal/storage/memory"
	"github.com/dshills/musicbox/internal/storage/sqlite"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// options holds the parsed command line.
type options struct {
	ConfigPath string
	LogLevel   string

	Install   string
	Uninstall string
	Enable    string
	Disable   string
	List      bool
	Exec      string
	Args      []string

	NewPlugin string
	Template  string

	Dev bool
}

// oneShot reports whether the invocation runs a single action and exits.
func (o options) oneShot() bool {
	return o.Install != "" || o.Uninstall != "" || o.Enable != "" ||
		o.Disable != "" || o.List || o.Exec != "" || o.NewPlugin != ""
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger := logging.New(logging.Config{Level: level, Output: os.Stderr, Prefix: "musicboxd"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open storage: %v\n", err)
		return 1
	}
	defer store.Close()

	headless := host.NewHeadless(nil, logger)
	sys := plugin.NewSystem(plugin.SystemConfig{
		PluginDir:          cfg.PluginDir,
		HTTPTimeout:        cfg.Runtime.HTTPTimeout.Std(),
		ExecutionTimeout:   cfg.Runtime.ExecutionTimeout.Std(),
		CallStackSize:      cfg.Runtime.CallStackSize,
		EnforcePermissions: cfg.Runtime.EnforcePermissions,
		Host:               headless.Host(store),
		Store:              store,
		Logger:             logger,
	})
	if err := sys.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize plugins: %v\n", err)
		return 1
	}
	defer func() {
		if err := sys.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown: %v", err)
		}
	}()

	if opts.NewPlugin != "" {
		srv := hotreload.NewServer(sys.Manager(),
			hotreload.WithLogger(logger),
			hotreload.WithResolver(sys.Loader().Resolver()),
			hotreload.WithDevDir(cfg.HotReload.DevDir),
		)
		d, err := srv.CreateDevPlugin(ctx, opts.NewPlugin, opts.Template)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("created %s in %s\n", d.ID, d.Main)
		return 0
	}

	if opts.oneShot() {
		if err := runAction(ctx, sys.Manager(), opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if opts.Dev || cfg.HotReload.Enabled {
		srv := hotreload.NewServer(sys.Manager(),
			hotreload.WithLogger(logger),
			hotreload.WithResolver(sys.Loader().Resolver()),
			hotreload.WithPollInterval(cfg.HotReload.PollInterval.Std()),
			hotreload.WithDebounce(cfg.HotReload.Debounce.Std()),
			hotreload.WithDevDir(cfg.HotReload.DevDir),
			hotreload.WithAutoWatch(true),
		)
		if _, err := srv.WatchInstalled(); err != nil {
			logger.Warn("watch installed plugins: %v", err)
		}
		if err := srv.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start reload server: %v\n", err)
			return 1
		}
		defer srv.Stop()
	}

	stats := sys.Stats()
	logger.Info("running with %d plugins (%d loaded)", stats.Installed, stats.Loaded)
	<-ctx.Done()
	logger.Info("shutting down")
	return 0
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Storage == config.StorageMemory {
		return memory.New(), nil
	}
	return sqlite.Open(ctx, cfg.DatabasePath)
}

func runAction(ctx context.Context, m *plugin.Manager, opts options) error {
	switch {
	case opts.Install != "":
		if err := m.InstallFromFile(ctx, opts.Install); err != nil {
			return err
		}
		fmt.Printf("installed %s\n", opts.Install)
	case opts.Uninstall != "":
		if err := m.Uninstall(ctx, opts.Uninstall); err != nil {
			return err
		}
		fmt.Printf("uninstalled %s\n", opts.Uninstall)
	case opts.Enable != "":
		if err := m.Enable(ctx, opts.Enable); err != nil {
			return err
		}
		fmt.Printf("enabled %s\n", opts.Enable)
	case opts.Disable != "":
		if err := m.Disable(ctx, opts.Disable); err != nil {
			return err
		}
		fmt.Printf("disabled %s\n", opts.Disable)
	case opts.List:
		printPlugins(m.GetAllPlugins())
	case opts.Exec != "":
		args := make([]any, len(opts.Args))
		for i, a := range opts.Args {
			args[i] = a
		}
		result, err := m.ExecuteCommand(ctx, opts.Exec, args...)
		if err != nil {
			return err
		}
		if result != nil {
			fmt.Println(result)
		}
	}
	return nil
}

func printPlugins(plugins []plugin.PluginInfo) {
	if len(plugins) == 0 {
		fmt.Println("no plugins installed")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tVERSION\tSTATE\tMAIN")
	for _, p := range plugins {
		ver, ref := "", ""
		if p.Descriptor != nil {
			ver, ref = p.Descriptor.Version, p.Descriptor.Main
			if strings.HasPrefix(ref, "data:") {
				ref = "(inline)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, ver, p.State, ref)
	}
	_ = w.Flush()
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool
	var showSchema bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (TOML or YAML)")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.Install, "install", "", "Install a plugin from a descriptor file or directory")
	flag.StringVar(&opts.Uninstall, "uninstall", "", "Uninstall a plugin by id")
	flag.StringVar(&opts.Enable, "enable", "", "Enable a plugin by id")
	flag.StringVar(&opts.Disable, "disable", "", "Disable a plugin by id")
	flag.BoolVar(&opts.List, "list", false, "List installed plugins")
	flag.StringVar(&opts.Exec, "exec", "", "Execute a plugin command (<plugin>.<command>); remaining args are passed to it")
	flag.BoolVar(&opts.Dev, "dev", false, "Reload plugins when their files change")
	flag.StringVar(&opts.NewPlugin, "new", "", "Create and install a development plugin with this id")
	flag.StringVar(&opts.Template, "template", "basic", "Template for -new ("+strings.Join(hotreload.Templates(), ", ")+")")
	flag.BoolVar(&showSchema, "schema", false, "Print the plugin descriptor JSON schema")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "musicboxd - MusicBox plugin host\n\n")
		fmt.Fprintf(os.Stderr, "Usage: musicboxd [options] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  musicboxd                           Run the host with enabled plugins\n")
		fmt.Fprintf(os.Stderr, "  musicboxd -dev                      Run with hot reload\n")
		fmt.Fprintf(os.Stderr, "  musicboxd -install ./lyrics         Install the plugin in ./lyrics\n")
		fmt.Fprintf(os.Stderr, "  musicboxd -exec lyrics.show Intro   Run a plugin command\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("musicboxd %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if showSchema {
		schema, err := plugin.DescriptorSchema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(schema))
		os.Exit(0)
	}

	if opts.LogLevel != "" {
		if _, err := logging.ParseLevel(opts.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
			os.Exit(1)
		}
	}

	opts.Args = flag.Args()
	return opts
}
