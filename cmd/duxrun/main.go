// Command duxrun runs a script on the duxcore event loop until no work
// remains, then exits with the script's process.exitCode.
//
// Usage:
//
//	duxrun [flags] script.js [args...]
//
// Flags override the values read from the -config file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/dop251/goja"
	"github.com/joeycumines/go-duxcore/eventloop"
	gojaeventloop "github.com/joeycumines/go-duxcore/goja-eventloop"
	"github.com/joeycumines/go-duxcore/modules"
	"github.com/joeycumines/stumpy"
	"golang.org/x/sync/errgroup"
)

// exitInterrupted is the exit code used when a signal stops the loop.
const exitInterrupted = 130

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run parses args and executes the script, returning the exit code.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	flags := flag.NewFlagSet("duxrun", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		configPath      = flags.String("config", "", "path to a YAML config file")
		baseDir         = flags.String("base-dir", "", "directory top-level requires resolve against")
		logLevel        = flags.String("log-level", "", "log level (err, warning, info, debug, trace)")
		maxWorkers      = flags.Int("max-workers", 0, "maximum concurrent background work items, 0 for unbounded")
		continueOnError = flags.Bool("continue-on-error", false, "keep running after a callback throws")
	)
	flags.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "usage: duxrun [flags] script.js [args...]")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() < 1 {
		flags.Usage()
		return 2
	}

	var cfg Config
	if *configPath != "" {
		var err error
		if cfg, err = LoadConfig(*configPath); err != nil {
			_, _ = fmt.Fprintln(stderr, "duxrun:", err)
			return 2
		}
	}
	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-dir":
			cfg.BaseDir = *baseDir
		case "log-level":
			cfg.LogLevel = *logLevel
		case "max-workers":
			cfg.MaxWorkers = *maxWorkers
		case "continue-on-error":
			cfg.ContinueOnError = *continueOnError
		}
	})
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintln(stderr, "duxrun:", err)
		return 2
	}

	return execute(ctx, cfg, flags.Args(), stderr)
}

// execute runs script (args[0]) and the loop, on one goroutine, while a
// second goroutine interrupts the script and closes the loop if ctx is
// cancelled.
func execute(ctx context.Context, cfg Config, args []string, stderr io.Writer) int {
	level, _ := ParseLevel(cfg.LogLevel)
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	script, err := filepath.Abs(args[0])
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "duxrun:", err)
		return 1
	}
	script = filepath.ToSlash(script)
	if cfg.BaseDir == "" {
		cfg.BaseDir = filepath.Dir(script)
	} else if cfg.BaseDir, err = filepath.Abs(cfg.BaseDir); err != nil {
		_, _ = fmt.Fprintln(stderr, "duxrun:", err)
		return 1
	}

	var failed atomic.Bool
	loop, err := eventloop.New(
		eventloop.WithLogger(logger),
		eventloop.WithMaxWorkers(cfg.MaxWorkers),
		eventloop.WithErrorHandler(func(err error) error {
			if !cfg.ContinueOnError || gojaeventloop.IsExit(err) {
				return err
			}
			failed.Store(true)
			report(stderr, err)
			return nil
		}),
	)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "duxrun:", err)
		return 1
	}
	defer loop.Close()

	adapter, err := gojaeventloop.New(loop, goja.New(),
		gojaeventloop.WithLogger(logger),
		gojaeventloop.WithFileSystem(modules.OSFileSystem{}),
		gojaeventloop.WithBaseDir(filepath.ToSlash(cfg.BaseDir)),
		gojaeventloop.WithArgs(append([]string{"duxrun", script}, args[1:]...)...),
	)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "duxrun:", err)
		return 1
	}
	if err := adapter.Bind(); err != nil {
		_, _ = fmt.Fprintln(stderr, "duxrun:", err)
		return 1
	}

	var interrupted atomic.Bool
	finished := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(finished)
		if err := adapter.RunMain(script); err != nil {
			return err
		}
		return loop.Run(context.Background())
	})
	g.Go(func() error {
		select {
		case <-finished:
		case <-ctx.Done():
			interrupted.Store(true)
			logger.Notice().
				Err(context.Cause(ctx)).
				Log("duxrun: interrupted, closing loop")
			// stops a script that never yields back to the loop
			adapter.Runtime().Interrupt(context.Cause(ctx))
			_ = loop.Close()
		}
		return nil
	})
	err = g.Wait()

	switch {
	case err != nil && gojaeventloop.IsExit(err):
		return adapter.ExitCode()
	case interrupted.Load():
		return exitInterrupted
	case err != nil:
		report(stderr, err)
		return 1
	case failed.Load() && adapter.ExitCode() == 0:
		return 1
	}
	return adapter.ExitCode()
}

// report prints an uncaught error, with the script stack when there is one.
func report(w io.Writer, err error) {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		_, _ = fmt.Fprintln(w, "Uncaught", ex.String())
		return
	}
	_, _ = fmt.Fprintln(w, "duxrun:", err)
}
