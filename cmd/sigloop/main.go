// Package main implements sigloop, a daemon that does periodic work until it
// is interrupted and then shuts down exactly once.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/jonboulle/clockwork"
	"tools.zach/dev/sigloop"
	"tools.zach/dev/sigloop/internal/config"
	"tools.zach/dev/sigloop/internal/interrupt"
	"tools.zach/dev/sigloop/internal/logger"
	"tools.zach/dev/sigloop/internal/paths"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via -ldflags "-X main.version=...". Bare
// builds fall back to the VCS info embedded by the toolchain.
var version = "dev"

// resolveVersion returns [version] when set by ldflags, otherwise
// "dev+<hash>" (with ".dirty" for modified trees) or plain "dev".
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// App
// ///////////////////////////////////////////////

// app carries process-level dependencies so commands can run in tests
// without touching the real terminal, signals or clock.
type app struct {
	stdout io.Writer
	stderr io.Writer
	// registry owns the process interrupt source.
	registry *interrupt.Registry
	// source replaces os/signal when non-nil.
	source interrupt.Source
	clock  clockwork.Clock
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout:   stdout,
		stderr:   stderr,
		registry: interrupt.Default,
		clock:    clockwork.NewRealClock(),
	}
}

// command is one subcommand; it returns the process exit code.
type command struct {
	name    string
	summary string
	run     func(a *app, g globals, args []string) int
}

var commands = []command{
	{"run", "tick and do work until interrupted (default)", (*app).cmdRun},
	{"hooked", "sleep while a background listener reports interrupts", (*app).cmdHooked},
	{"ctrlc", "sleep with a direct interrupt callback", (*app).cmdCtrlC},
	{"stop", "ask a running instance to shut down", (*app).cmdStop},
	{"config", "print the effective configuration", (*app).cmdConfig},
	{"logs", "print the end of the log file", (*app).cmdLogs},
	{"version", "print the version", (*app).cmdVersion},
}

// globals are the flags accepted before the command name.
type globals struct {
	dataDir    string
	configPath string
}

func main() {
	os.Exit(newApp(os.Stdout, os.Stderr).main(os.Args[1:]))
}

// main parses global flags and dispatches to a command.
func (a *app) main(args []string) int {
	fs := flag.NewFlagSet(paths.BinaryName, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	var g globals
	fs.StringVar(&g.dataDir, "data-dir", defaultDataDir(), "data directory for config, logs and the PID file")
	fs.StringVar(&g.configPath, "config", "", "config file (default <data-dir>/config.toml)")
	fs.Usage = func() { a.usage(fs) }
	if err := fs.Parse(args); err != nil {
		return exitCode(err)
	}

	name, rest := "run", fs.Args()
	if len(rest) > 0 {
		name, rest = rest[0], rest[1:]
	}
	for _, c := range commands {
		if c.name == name {
			return c.run(a, g, rest)
		}
	}
	fmt.Fprintf(a.stderr, "%s: unknown command %q\n", paths.BinaryName, name)
	a.usage(fs)
	return 1
}

func (a *app) usage(fs *flag.FlagSet) {
	fmt.Fprintf(a.stderr, "usage: %s [flags] <command> [command flags]\n\ncommands:\n", paths.BinaryName)
	for _, c := range commands {
		fmt.Fprintf(a.stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(a.stderr, "\nflags:")
	fs.PrintDefaults()
}

// exitCode maps a flag parse error to an exit code; -h is not a failure.
func exitCode(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	return 1
}

// fatal prints a startup failure and returns exit code 1.
func (a *app) fatal(format string, args ...any) int {
	fmt.Fprintf(a.stderr, "fatal: "+format+"\n", args...)
	return 1
}

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// defaultDataDir returns ~/.sigloop, or ./.sigloop without a home directory.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// env is the loaded configuration and logger shared by commands.
type env struct {
	dir paths.DataDir
	cfg *config.Config
	log *slog.Logger
	// close flushes the log and restores the previous default logger.
	close func()
}

// loadEnv creates the data directory, seeds the default config on first run,
// loads the config and installs the configured logger as slog's default.
func (a *app) loadEnv(g globals) (*env, error) {
	dir := paths.DataDir{Root: g.dataDir}
	if err := os.MkdirAll(dir.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	var cfg *config.Config
	var err error
	if g.configPath != "" {
		cfg, err = config.LoadFile(g.configPath)
	} else {
		if _, statErr := os.Stat(dir.Config()); os.IsNotExist(statErr) {
			if err := os.WriteFile(dir.Config(), sigloop.DefaultConfigTOML, 0o644); err != nil {
				fmt.Fprintf(a.stderr, "warning: failed to write default config: %v\n", err)
			}
		}
		cfg, err = config.Load(dir.Root)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, closer, err := logger.Open(logger.Options{
		File:      dir.Resolve(cfg.Log.File),
		Level:     cfg.Log.Level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
		Stderr:    a.stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	prev := slog.Default()
	slog.SetDefault(log)

	return &env{
		dir: dir,
		cfg: cfg,
		log: log,
		close: func() {
			slog.SetDefault(prev)
			closer.Close()
		},
	}, nil
}

// register installs the interrupt source with the app's clock and source.
func (a *app) register(e *env, opts ...interrupt.Option) (*interrupt.Notifier, error) {
	opts = append([]interrupt.Option{
		interrupt.WithCapacity(e.cfg.Loop.InterruptCapacity),
		interrupt.WithClock(a.clock),
		interrupt.WithLogger(e.log),
	}, opts...)
	if a.source != nil {
		opts = append(opts, interrupt.WithSource(a.source))
	}
	return a.registry.Register(opts...)
}

// splitList parses a comma-separated flag value, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
