package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/oklog/run"
	"tools.zach/dev/sigloop/internal/config"
	"tools.zach/dev/sigloop/internal/control"
	"tools.zach/dev/sigloop/internal/interrupt"
	"tools.zach/dev/sigloop/internal/logger"
	"tools.zach/dev/sigloop/internal/loop"
	"tools.zach/dev/sigloop/internal/ticker"
	"tools.zach/dev/sigloop/internal/watch"
	"tools.zach/dev/sigloop/internal/work"
)

// ///////////////////////////////////////////////
// run
// ///////////////////////////////////////////////

// cmdRun is the select-loop daemon: periodic ticks run the work unit until an
// interrupt (signal, stop request or timeout) ends the loop with a farewell.
func (a *app) cmdRun(g globals, args []string) int {
	e, err := a.loadEnv(g)
	if err != nil {
		return a.fatal("%v", err)
	}
	defer e.close()

	if code, ok := a.applyRunFlags(e.cfg, args); !ok {
		return code
	}
	if err := e.cfg.Validate(); err != nil {
		return a.fatal("invalid flags: %v", err)
	}

	inst, err := acquireInstance(e.dir.PID())
	if err != nil {
		return a.fatal("%v", err)
	}
	defer inst.release()

	notifier, err := a.register(e)
	if err != nil {
		logger.Fail(e.log, "interrupt registration failed", "error", err)
		return a.fatal("%v", err)
	}
	defer notifier.Close()

	d, err := a.buildDaemon(e, notifier)
	if err != nil {
		logger.Fail(e.log, "startup failed", "error", err)
		return a.fatal("%v", err)
	}
	defer d.cleanup()

	e.log.Info("sigloop starting", "version", resolveVersion(), "data_dir", e.dir.Root,
		"period", e.cfg.Loop.Period.Duration, "work", e.cfg.Work.Kind)

	if err := d.group.Run(); err != nil {
		e.log.Error("stopped with error", "error", err)
		return 1
	}
	e.log.Info("sigloop stopped", "ticks", d.loop.Ticks(),
		"dropped_ticks", d.periodic.Dropped(), "dropped_interrupts", notifier.Dropped())
	return 0
}

// applyRunFlags overrides config values with explicitly set flags. It
// returns ok=false with an exit code when parsing stops the command.
func (a *app) applyRunFlags(cfg *config.Config, args []string) (int, bool) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	period := fs.Duration("period", cfg.Loop.Period.Duration, "time between ticks")
	timeout := fs.Duration("timeout", cfg.Loop.Timeout.Duration, "shut down after this long (0 = never)")
	kind := fs.String("work", cfg.Work.Kind, "work per tick: print, probe or none")
	url := fs.String("url", cfg.Work.URL, "probe URL (with -work probe)")
	watchPaths := fs.String("watch", "", "comma-separated paths whose changes also tick")
	ctl := fs.Bool("control", cfg.Control.Enabled, "serve the stop endpoint")
	if err := fs.Parse(args); err != nil {
		return exitCode(err), false
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "period":
			cfg.Loop.Period.Duration = *period
		case "timeout":
			cfg.Loop.Timeout.Duration = *timeout
		case "work":
			cfg.Work.Kind = *kind
		case "url":
			cfg.Work.URL = *url
		case "watch":
			cfg.Watch.Paths = splitList(*watchPaths)
			cfg.Watch.Enabled = len(cfg.Watch.Paths) > 0
		case "control":
			cfg.Control.Enabled = *ctl
		}
	})
	return 0, true
}

// daemon is the assembled actor group for one run.
type daemon struct {
	group    run.Group
	loop     *loop.Loop
	periodic *ticker.Ticker
	closers  []func()
}

func (d *daemon) cleanup() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildDaemon wires the tick sources, work unit and control endpoint into an
// actor group. Every actor's interrupt funnels into notifier.Trigger, so any
// actor ending shuts the loop down through the same path as a signal.
func (a *app) buildDaemon(e *env, notifier *interrupt.Notifier) (*daemon, error) {
	cfg := e.cfg
	d := &daemon{}
	fail := func(err error) (*daemon, error) {
		d.cleanup()
		return nil, err
	}

	periodic, err := ticker.Start(a.clock, cfg.Loop.Period.Duration)
	if err != nil {
		return fail(fmt.Errorf("start ticker: %w", err))
	}
	d.periodic = periodic
	d.closers = append(d.closers, periodic.Stop)
	logger.Trace(e.log, "ticker started", "period", periodic.Period())

	unit, err := a.workUnit(cfg)
	if err != nil {
		return fail(err)
	}

	opts := []loop.Option{
		loop.WithLogger(e.log),
		loop.WithSource("period", periodic.C(), nil),
		loop.WithOnTick(func(t loop.Tick) {
			logger.Trace(e.log, "tick", "source", t.Source)
			if err := unit.Do(context.Background()); err != nil {
				e.log.Warn("work failed", "source", t.Source, "error", err)
			}
		}),
		loop.WithOnInterrupt(func(ev interrupt.Event) {
			fmt.Fprintln(a.stdout)
			fmt.Fprintln(a.stdout, cfg.Loop.Farewell)
		}),
	}

	if cfg.Loop.Timeout.Duration > 0 {
		deadline, err := ticker.After(a.clock, cfg.Loop.Timeout.Duration)
		if err != nil {
			return fail(fmt.Errorf("start timeout: %w", err))
		}
		d.closers = append(d.closers, deadline.Stop)
		opts = append(opts, loop.WithDeadline(deadline.C(), func(loop.Tick) {
			e.log.Info("timeout reached", "after", cfg.Loop.Timeout.Duration)
			notifier.Trigger()
		}))
	}

	if cfg.Watch.Enabled {
		w, err := a.startWatch(e)
		if err != nil {
			return fail(err)
		}
		d.closers = append(d.closers, func() { w.Close() })
		opts = append(opts, loop.WithSource("watch", w.Events(), nil))
		stop := make(chan struct{})
		d.group.Add(func() error {
			<-stop
			return nil
		}, func(error) {
			close(stop)
			w.Close()
		})
	}

	if cfg.Control.Enabled {
		addr := cfg.Control.Address
		if addr == "" {
			addr = control.DefaultAddress(e.dir.Root)
		}
		srv, err := control.Listen(addr, notifier.Trigger)
		if err != nil {
			return fail(err)
		}
		e.log.Info("control endpoint listening", "address", srv.Addr())
		d.group.Add(srv.Serve, func(error) { srv.Close() })
	}

	d.loop = loop.New(notifier.Events(), opts...)
	d.group.Add(d.loop.Run, func(error) { notifier.Trigger() })
	return d, nil
}

// workUnit builds the configured per-tick unit. Kind "none" only counts ticks.
func (a *app) workUnit(cfg *config.Config) (work.Unit, error) {
	switch cfg.Work.Kind {
	case config.WorkPrint:
		return work.Printer{W: a.stdout, Message: cfg.Work.Message}, nil
	case config.WorkProbe:
		return work.NewProbe(cfg.Work.URL, cfg.Work.RetryMax, cfg.Work.RequestTimeout.Duration), nil
	case config.WorkNone:
		return work.Func(func(context.Context) error { return nil }), nil
	default:
		return nil, fmt.Errorf("unknown work kind %q", cfg.Work.Kind)
	}
}

func (a *app) startWatch(e *env) (*watch.Watcher, error) {
	resolved := make([]string, len(e.cfg.Watch.Paths))
	for i, p := range e.cfg.Watch.Paths {
		resolved[i] = e.dir.Resolve(p)
	}
	w, err := watch.New(watch.Options{
		Paths:        resolved,
		Include:      e.cfg.Watch.Include,
		Exclude:      e.cfg.Watch.Exclude,
		PollInterval: e.cfg.Watch.PollInterval.Duration,
	})
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	if w.Polling() {
		e.log.Info("using polling mode for file watching")
	}
	return w, nil
}
