// Package mcp implements the `playertester mcp` subcommand, an MCP (Model
// Context Protocol) server over stdio transport. Agents can spawn this process
// to read the runs recorded by `playertester run`.
package mcp

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/saveenergy/playertester/internal/config"
	"github.com/saveenergy/playertester/internal/results"
	"github.com/saveenergy/playertester/pkg/types"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// Run starts the MCP stdio server. Blocks until stdin closes or signal received.
func Run(args []string, version string) int {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "playertester mcp: error: %v\n", err)
		return 2
	}
	flagSet := flag.NewFlagSet("playertester mcp", flag.ContinueOnError)
	flagSet.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for the run database")
	if err := flagSet.Parse(args); err != nil {
		return 2
	}

	store, err := results.New(filepath.Join(cfg.DataDir, "runs.db"), cfg.MaxStoredRuns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "playertester mcp: error: %v\n", err)
		return 1
	}
	defer store.Close()

	s := server.NewMCPServer(
		"playertester",
		version,
		server.WithToolCapabilities(true),
	)
	h := &toolHandler{store: store}
	tools := ToolDefinitions()
	s.AddTool(tools[0], h.listRuns)
	s.AddTool(tools[1], h.getRun)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "playertester mcp: error: %v\n", err)
		return 1
	}
	return 0
}

// ToolDefinitions returns list_runs and get_run, in that order.
func ToolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("list_runs",
			mcp.WithDescription("List recorded player runs, newest first. Each entry has the manifest URL, why the run finished, the last player state reached, and per-label telemetry stats (videoBitrate, audioBitrate, bufferSize, playbackRate)."),
			mcp.WithNumber("limit",
				mcp.Description("Maximum runs to return, 1-500 (default: 20)"),
			),
		),
		mcp.NewTool("get_run",
			mcp.WithDescription("Get one recorded player run by ID. Set include_samples to also return every telemetry sample in emission order."),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Run ID as printed by `playertester run`"),
			),
			mcp.WithBoolean("include_samples",
				mcp.Description("Include the raw sample sequence (default: false)"),
			),
		),
	}
}

type toolHandler struct {
	store *results.Store
}

func (h *toolHandler) listRuns(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultListLimit)
	if limit < 1 {
		limit = 1
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	runs, err := h.store.List(limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Listing runs failed: %v", err)), nil
	}
	if runs == nil {
		runs = []results.Run{}
	}
	return jsonResult(map[string]interface{}{"runs": runs})
}

type runDetail struct {
	*results.Run
	Samples []types.Sample `json:"samples,omitempty"`
}

func (h *toolHandler) getRun(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	run, err := h.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Reading run failed: %v", err)), nil
	}
	if run == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Run %s not found", id)), nil
	}

	detail := runDetail{Run: run}
	if req.GetBool("include_samples", false) {
		detail.Samples, err = h.store.Samples(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Reading samples failed: %v", err)), nil
		}
	}
	return jsonResult(detail)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
