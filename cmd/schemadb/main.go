// Package main is the entry point for the schemadb server.
//
// schemadb keeps type-definition records in per-workspace collections, each
// backed by a ".types" marker file, and exposes them as a virtual filesystem
// over HTTP. Configuration is read from a YAML file and CLI flags.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/maruel/schemadb/internal/config"
	"github.com/maruel/schemadb/internal/jsonldb"
	"github.com/maruel/schemadb/internal/schema"
	"github.com/maruel/schemadb/internal/server"
	"github.com/maruel/schemadb/internal/server/ratelimit"
	"github.com/maruel/schemadb/internal/store"
	"github.com/maruel/schemadb/internal/vfs"
	"github.com/maruel/schemadb/internal/watcher"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "schemadb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	printSchema := flag.Bool("print-schema", false, "Print the JSON schema of a record and exit")
	configPath := flag.String("config", "schemadb.yaml", "Configuration file")
	httpAddr := flag.String("http", "", "Address to listen on (e.g., localhost:8080, :8080); overrides the configuration file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	dev := flag.Bool("dev", false, "Shut down when the executable is rebuilt")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}

	if *version {
		printVersion()
		return nil
	}
	if *printSchema {
		s, err := jsonldb.SchemaOf[*schema.Record]()
		if err != nil {
			return err
		}
		e := json.NewEncoder(os.Stdout)
		e.SetIndent("", "  ")
		return e.Encode(s)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	switch *logLevel {
	case "debug":
		ll.Set(slog.LevelDebug)
	case "info":
	case "warn":
		ll.Set(slog.LevelWarn)
	case "error":
		ll.Set(slog.LevelError)
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	slog.SetDefault(newLogger(ll))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	if set["http"] {
		cfg.HTTP = *httpAddr
	}
	addr, err := cfg.ListenAddr()
	if err != nil {
		return err
	}

	if *dev {
		if err := watchExecutable(ctx, stop); err != nil {
			return fmt.Errorf("failed to watch executable: %w", err)
		}
	}

	w, err := watcher.New()
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	st, err := store.New(store.Options{Watcher: w, LoadTimeout: cfg.LoadTimeout})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	unsubscribe := st.Subscribe(func(c store.Change) {
		slog.DebugContext(ctx, "Store changed", "kind", c.Kind, "collection", c.Collection)
	})
	defer unsubscribe()
	go w.Run(ctx, st.HandleEvent)
	if err := st.Open(ctx, cfg.Workspaces); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Workspaces registered", "count", len(cfg.Workspaces))

	limiter := ratelimit.NewLimiter(cfg.RateLimits.WritePerMin, time.Minute, cfg.RateLimits.Burst)
	defer limiter.Close()
	buildVersion, _, _, _ := getBuildInfo()
	p := vfs.New(st, cfg.Debounce)
	handler, dispose := server.NewRouter(st, p, server.Options{Version: buildVersion, Limiter: limiter})
	defer dispose()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		// Deliver changes still held by the debounce window.
		p.Flush()
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

// newLogger returns a colored logger on stderr that drops zero-valued
// attributes.
func newLogger(ll *slog.LevelVar) *slog.Logger {
	// systemd adds its own timestamps.
	underSystemd := os.Getenv("JOURNAL_STREAM") != ""
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if underSystemd && a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			skip := false
			switch t := a.Value.Any().(type) {
			case string:
				skip = t == ""
			case bool:
				skip = !t
			case int64:
				skip = t == 0
			case time.Duration:
				skip = t == 0
			case nil:
				skip = true
			}
			if skip {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("schemadb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version = "unknown"
	goVersion = "unknown"
	revision = "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return
}

// watchExecutable calls stop when the running executable is rewritten.
func watchExecutable(ctx context.Context, stop context.CancelFunc) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(exe); err != nil {
		_ = fw.Close()
		return err
	}
	go func() {
		defer func() { _ = fw.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Chmod) {
					slog.InfoContext(ctx, "Executable modified, initiating shutdown")
					stop()
					return
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching executable", "err", err)
			}
		}
	}()
	return nil
}
