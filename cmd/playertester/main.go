package main

import (
	"fmt"
	"os"
	"strings"

	mcpcmd "github.com/saveenergy/playertester/cmd/mcp"
	runcmd "github.com/saveenergy/playertester/cmd/run"
)

var version = "dev"

var (
	runScenario = runcmd.Run
	runShow     = runcmd.Show
	runMCP      = mcpcmd.Run
)

func main() {
	os.Exit(run(os.Args[1:], version))
}

func run(args []string, version string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "run":
		return runScenario(args[1:], version)
	case "show":
		return runShow(args[1:], version)
	case "mcp":
		return runMCP(args[1:], version)
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version":
		fmt.Printf("playertester %s\n", version)
		return 0
	default:
		if strings.HasPrefix(args[0], "-") {
			fmt.Fprintf(os.Stderr, "playertester: unknown flag %q\n\n", args[0])
		} else {
			fmt.Fprintf(os.Stderr, "playertester: unknown command %q\n\n", args[0])
		}
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: playertester <command> [args]

Commands:
  run       Drive a browser player against a manifest and record telemetry
  show      Print a stored run
  mcp       Run as MCP server (stdio transport, for AI agents)

Examples:
  playertester run -t 30s https://cdn.example.com/live/manifest.mpd
  playertester run --json --finish-on ended https://cdn.example.com/vod/master.m3u8
  playertester show 2f1c9a4e-0d7b-4c57-a1a4-6d2b0c3e9f10
  playertester mcp
`)
}
