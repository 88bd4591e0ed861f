package run

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"
)

// Options is the merged run configuration.
type Options struct {
	ManifestURL string
	ConfigPath  string

	Timeout    time.Duration
	LowLatency bool
	FinishOn   string
	Poll       time.Duration

	Addr    string
	Wait    time.Duration
	DataDir string

	JSON        bool
	Plain       bool
	NoColor     bool
	NoPreflight bool
}

var errHelp = errors.New("help requested")

func parseFlags(args []string, stdout io.Writer) (*Options, map[string]bool, error) {
	config := &Options{}
	flagsSet := make(map[string]bool)

	flagSet := flag.NewFlagSet("playertester run", flag.ContinueOnError)
	flagSet.SetOutput(stdout)
	flagSet.DurationVar(&config.Timeout, "timeout", defaultTimeout, "Scenario length before it finishes")
	flagSet.DurationVar(&config.Timeout, "t", defaultTimeout, "Scenario length (short)")
	flagSet.BoolVar(&config.LowLatency, "low-latency", true, "Enable the player's low-latency streaming mode")
	flagSet.StringVar(&config.FinishOn, "finish-on", "", "Also finish on: ended, error (comma list)")
	flagSet.DurationVar(&config.Poll, "poll", 0, "Buffer poll interval (default 100ms)")
	flagSet.StringVar(&config.Addr, "addr", "", "Listen address for the player page and API (default 127.0.0.1:8090)")
	flagSet.DurationVar(&config.Wait, "wait", defaultWait, "How long to wait for a player page to connect")
	flagSet.StringVar(&config.DataDir, "data-dir", "", "Directory for the run database")
	flagSet.StringVar(&config.ConfigPath, "config", "", "Config file (default $XDG_CONFIG_HOME/playertester/config.yaml)")
	flagSet.BoolVar(&config.JSON, "json", false, "Output the run as JSON")
	flagSet.BoolVar(&config.Plain, "plain", false, "Plain key=value output")
	flagSet.BoolVar(&config.NoColor, "no-color", false, "Disable color output")
	flagSet.BoolVar(&config.NoPreflight, "no-preflight", false, "Skip fetching the manifest before the run")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	flagSet.Usage = func() {
		fmt.Fprintf(stdout, "Usage: playertester run [flags] <manifest-url>\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}
	if *help {
		flagSet.Usage()
		return nil, nil, errHelp
	}

	flagSet.Visit(func(f *flag.Flag) {
		flagsSet[f.Name] = true
		if f.Name == "t" {
			flagsSet["timeout"] = true
		}
	})

	switch flagSet.NArg() {
	case 0:
		return nil, nil, fmt.Errorf("manifest URL is required")
	case 1:
		config.ManifestURL = flagSet.Arg(0)
	default:
		return nil, nil, fmt.Errorf("expected one manifest URL, got %d arguments", flagSet.NArg())
	}

	return config, flagsSet, nil
}
