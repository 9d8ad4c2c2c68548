// Command mockunit is a scriptable process unit used by smoke tests.
// The hook to run is passed as the last argument. It reads stdin one line
// per message and never to EOF, since answers to its prompts arrive on the
// same stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iambrandonn/projectsetup/internal/protocol"
	"github.com/iambrandonn/projectsetup/pkg/testharness"
)

func main() {
	scriptFile := flag.String("script", "", "Path to hook script file (YAML or JSON)")
	recordFile := flag.String("record", "", "Append one line per hook call to this file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() == 0 {
		logger.Error("missing hook argument")
		os.Exit(2)
	}
	hook := protocol.Hook(flag.Arg(flag.NArg() - 1))
	if !hook.Valid() {
		logger.Error("unknown hook", "hook", hook)
		os.Exit(2)
	}

	script := &testharness.Script{}
	if *scriptFile != "" {
		loaded, err := testharness.LoadScript(*scriptFile)
		if err != nil {
			logger.Error("failed to load script", "error", err)
			os.Exit(1)
		}
		script = loaded
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wd, err := os.Getwd()
	if err != nil {
		logger.Error("failed to get working directory", "error", err)
		os.Exit(1)
	}

	unit := testharness.NewFakeUnit(script, os.Stdin, os.Stdout, logger)
	unit.Record = *recordFile

	logger.Debug("mock unit starting", "hook", hook, "pid", os.Getpid())
	code, err := unit.Serve(ctx, hook, wd)
	if err != nil {
		logger.Error("hook failed", "hook", hook, "error", err)
		if code == 0 {
			code = 1
		}
	}
	cancel()
	os.Exit(code)
}
