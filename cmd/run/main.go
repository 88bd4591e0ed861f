// Package run implements `playertester run` and `playertester show`.
package run

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/saveenergy/playertester/internal/config"
	"github.com/saveenergy/playertester/internal/logging"
	"github.com/saveenergy/playertester/pkg/types"
)

const (
	exitSuccess   = 0
	exitFailure   = 1
	exitUsage     = 2
	exitInterrupt = 130
)

const (
	defaultTimeout = 30 * time.Second
	defaultWait    = 60 * time.Second
)

// Run executes one scenario and returns the process exit code: 0 when the
// player reached Playing, 1 otherwise.
func Run(args []string, version string) int {
	return run(args, version, os.Stdout, os.Stderr)
}

func run(args []string, version string, stdout, stderr io.Writer) int {
	flagConfig, flagsSet, err := parseFlags(args, stdout)
	if err != nil {
		if errors.Is(err, errHelp) {
			return exitSuccess
		}
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "playertester run: error: %v\n", err)
		}
		return exitUsage
	}

	configFile, err := loadConfigFile(flagConfig.ConfigPath)
	if err != nil {
		if flagConfig.ConfigPath != "" {
			fmt.Fprintf(stderr, "playertester run: error: %v\n", err)
			return exitUsage
		}
		fmt.Fprintf(stderr, "playertester run: warning: failed to load config file: %v\n", err)
	}
	opts := mergeConfig(flagConfig, configFile, flagsSet, stderr)

	if !opts.JSON && !opts.Plain && !isTerminal(stdout) {
		opts.Plain = true
	}
	formatter := createFormatter(opts, stdout, stderr)

	cfg, err := serverConfig(opts)
	if err != nil {
		formatter.FormatError(err)
		return exitUsage
	}
	logging.Init(cfg.LogLevel)
	logging.GetLogger().SetLevel(cfg.LogLevel)

	h, err := startHarness(cfg, version)
	if err != nil {
		formatter.FormatError(err)
		return exitFailure
	}
	defer h.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, ladder, err := h.execute(ctx, opts, formatter)
	if err != nil {
		formatter.FormatError(err)
		if ctx.Err() != nil {
			return exitInterrupt
		}
		return exitFailure
	}
	formatter.FormatComplete(rec, ladder)

	switch {
	case rec.Reason == types.FinishCancelled && ctx.Err() != nil:
		return exitInterrupt
	case rec.LastState != types.StatePlaying:
		return exitFailure
	}
	return exitSuccess
}

// serverConfig applies the run options on top of the PT_* environment.
func serverConfig(opts *Options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	if opts.Addr != "" {
		host, port, err := net.SplitHostPort(opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("invalid --addr %q: %w", opts.Addr, err)
		}
		if host != "" {
			cfg.BindAddress = host
		}
		cfg.Port = port
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.Wait > 0 {
		cfg.PageWaitTimeout = opts.Wait
	} else {
		opts.Wait = cfg.PageWaitTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
