package main

import (
	"flag"
	"fmt"

	"tools.zach/dev/sigloop/internal/config"
	"tools.zach/dev/sigloop/internal/control"
	"tools.zach/dev/sigloop/internal/logger"
	"tools.zach/dev/sigloop/internal/paths"
)

// ///////////////////////////////////////////////
// stop / config / logs / version
// ///////////////////////////////////////////////

// cmdStop asks the running instance to shut down through its control
// endpoint. The daemon treats the request exactly like a signal.
func (a *app) cmdStop(g globals, args []string) int {
	if code, ok := a.noFlags("stop", args); !ok {
		return code
	}
	e, err := a.loadEnv(g)
	if err != nil {
		return a.fatal("%v", err)
	}
	defer e.close()

	addr := e.cfg.Control.Address
	if addr == "" {
		addr = control.DefaultAddress(e.dir.Root)
	}
	if err := control.Stop(addr); err != nil {
		fmt.Fprintf(a.stderr, "%s: no running instance reachable: %v\n", paths.BinaryName, err)
		return 1
	}
	fmt.Fprintln(a.stdout, "stop requested")
	return 0
}

// cmdConfig prints the effective configuration, annotated like the default
// config file.
func (a *app) cmdConfig(g globals, args []string) int {
	if code, ok := a.noFlags("config", args); !ok {
		return code
	}
	e, err := a.loadEnv(g)
	if err != nil {
		return a.fatal("%v", err)
	}
	defer e.close()

	out, err := config.Render(e.cfg)
	if err != nil {
		return a.fatal("%v", err)
	}
	a.stdout.Write(out)
	return 0
}

// cmdLogs prints the last -n lines of the log file.
func (a *app) cmdLogs(g globals, args []string) int {
	fs := flag.NewFlagSet("logs", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	n := fs.Int("n", 50, "number of lines")
	if err := fs.Parse(args); err != nil {
		return exitCode(err)
	}
	e, err := a.loadEnv(g)
	if err != nil {
		return a.fatal("%v", err)
	}
	defer e.close()

	if e.cfg.Log.File == paths.StdioLog {
		fmt.Fprintf(a.stderr, "%s: logging to stderr, no log file\n", paths.BinaryName)
		return 1
	}
	tail, err := logger.ReadTail(e.dir.Resolve(e.cfg.Log.File), *n)
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: %v\n", paths.BinaryName, err)
		return 1
	}
	if tail != "" {
		fmt.Fprintln(a.stdout, tail)
	}
	return 0
}

func (a *app) cmdVersion(_ globals, args []string) int {
	if code, ok := a.noFlags("version", args); !ok {
		return code
	}
	fmt.Fprintf(a.stdout, "%s %s\n", paths.BinaryName, resolveVersion())
	return 0
}

// noFlags parses args for a command that takes no flags.
func (a *app) noFlags(name string, args []string) (int, bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	if err := fs.Parse(args); err != nil {
		return exitCode(err), false
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(a.stderr, "%s: unexpected arguments %v\n", name, fs.Args())
		return 1, false
	}
	return 0, true
}
