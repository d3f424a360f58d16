package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"tools.zach/dev/sigloop/internal/interrupt"
	"tools.zach/dev/sigloop/internal/work"
)

// ///////////////////////////////////////////////
// hooked / ctrlc
// ///////////////////////////////////////////////

// sleepFlags parses the -duration flag shared by the sleeping variants.
func (a *app) sleepFlags(name string, args []string) (time.Duration, int, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	d := fs.Duration("duration", 2*time.Second, "how long the work sleeps")
	if err := fs.Parse(args); err != nil {
		return 0, exitCode(err), false
	}
	if *d < 0 {
		fmt.Fprintf(a.stderr, "%s: -duration must be >= 0\n", name)
		return 0, 1, false
	}
	return *d, 0, true
}

// cmdHooked runs a bounded sleep while a background listener prints every
// Ctrl+C. Interrupts are reported, never acted on: the command exits when the
// sleep completes. Only os.Interrupt is hooked, so SIGTERM keeps its default
// behavior.
func (a *app) cmdHooked(g globals, args []string) int {
	d, code, ok := a.sleepFlags("hooked", args)
	if !ok {
		return code
	}
	e, err := a.loadEnv(g)
	if err != nil {
		return a.fatal("%v", err)
	}
	defer e.close()

	notifier, err := a.register(e, interrupt.WithSignals(os.Interrupt))
	if err != nil {
		return a.fatal("%v", err)
	}
	defer notifier.Close()

	sleep := work.Sleep{D: d, Clock: a.clock}
	err = work.RunDetached(context.Background(), sleep, notifier, func(ev interrupt.Event) {
		fmt.Fprintf(a.stdout, "Received signal %s\n", ev)
	})
	if err != nil {
		e.log.Error("work failed", "error", err)
		return 1
	}
	return 0
}

// cmdCtrlC installs a direct callback for raw OS interrupts and sleeps. Like
// hooked, the interrupt does not end the sleep.
func (a *app) cmdCtrlC(g globals, args []string) int {
	d, code, ok := a.sleepFlags("ctrlc", args)
	if !ok {
		return code
	}
	e, err := a.loadEnv(g)
	if err != nil {
		return a.fatal("%v", err)
	}
	defer e.close()

	notifier, err := a.register(e, interrupt.WithHandler(func(interrupt.Event) {
		fmt.Fprintln(a.stdout, "received Ctrl+C!")
	}))
	if err != nil {
		return a.fatal("%v", err)
	}
	defer notifier.Close()

	if err := (work.Sleep{D: d, Clock: a.clock}).Do(context.Background()); err != nil {
		e.log.Error("sleep failed", "error", err)
		return 1
	}
	return 0
}
