package run

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/saveenergy/playertester/internal/config"
	"github.com/saveenergy/playertester/internal/results"
)

// Show prints a stored run.
func Show(args []string, version string) int {
	return show(args, os.Stdout, os.Stderr)
}

func show(args []string, stdout, stderr io.Writer) int {
	opts := &Options{}
	flagSet := flag.NewFlagSet("playertester show", flag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.DataDir, "data-dir", "", "Directory for the run database")
	flagSet.BoolVar(&opts.JSON, "json", false, "Output the run as JSON")
	flagSet.BoolVar(&opts.NoColor, "no-color", false, "Disable color output")
	flagSet.Usage = func() {
		fmt.Fprintf(stderr, "Usage: playertester show [flags] <run-id>\n\nFlags:\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if flagSet.NArg() != 1 {
		flagSet.Usage()
		return exitUsage
	}
	id := flagSet.Arg(0)

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(stderr, "playertester show: error: %v\n", err)
		return exitUsage
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	opts.Plain = !opts.JSON && !isTerminal(stdout)
	formatter := createFormatter(opts, stdout, stderr)

	store, err := results.New(filepath.Join(cfg.DataDir, "runs.db"), cfg.MaxStoredRuns)
	if err != nil {
		formatter.FormatError(err)
		return exitFailure
	}
	defer store.Close()

	rec, err := store.Get(id)
	if err != nil {
		formatter.FormatError(err)
		return exitFailure
	}
	if rec == nil {
		formatter.FormatError(fmt.Errorf("run %s not found", id))
		return exitFailure
	}
	formatter.FormatComplete(rec, nil)
	return exitSuccess
}
