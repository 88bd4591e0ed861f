package run

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/saveenergy/playertester/internal/manifest"
	"github.com/saveenergy/playertester/internal/results"
	"github.com/saveenergy/playertester/pkg/types"
)

type OutputFormatter interface {
	FormatWaiting(pageURL string)
	FormatLadder(ladder *manifest.Ladder)
	FormatComplete(run *results.Run, ladder *manifest.Ladder)
	FormatError(err error)
}

type JSONFormatter struct {
	writer io.Writer
	errw   io.Writer
}

type PlainFormatter struct {
	writer io.Writer
	errw   io.Writer
}

type InteractiveFormatter struct {
	writer  io.Writer
	errw    io.Writer
	noColor bool
}

type jsonReport struct {
	Run    *results.Run     `json:"run"`
	Ladder *manifest.Ladder `json:"ladder,omitempty"`
}

func (f *JSONFormatter) FormatWaiting(string) {}

func (f *JSONFormatter) FormatLadder(*manifest.Ladder) {}

func (f *JSONFormatter) FormatComplete(run *results.Run, ladder *manifest.Ladder) {
	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	enc.Encode(jsonReport{Run: run, Ladder: ladder})
}

func (f *JSONFormatter) FormatError(err error) {
	fmt.Fprintf(f.errw, "playertester: error: %v\n", err)
}

func (f *PlainFormatter) FormatWaiting(pageURL string) {
	fmt.Fprintf(f.errw, "waiting for player page at %s\n", pageURL)
}

func (f *PlainFormatter) FormatLadder(*manifest.Ladder) {}

func (f *PlainFormatter) FormatComplete(run *results.Run, ladder *manifest.Ladder) {
	fmt.Fprintf(f.writer, "run_id=%s\n", run.ID)
	fmt.Fprintf(f.writer, "manifest=%s\n", run.ManifestURL)
	fmt.Fprintf(f.writer, "reason=%s\n", run.Reason)
	fmt.Fprintf(f.writer, "last_state=%s\n", run.LastState)
	fmt.Fprintf(f.writer, "low_latency=%t\n", run.LowLatency)
	fmt.Fprintf(f.writer, "finish_on=%s\n", run.FinishOn)
	fmt.Fprintf(f.writer, "duration_ms=%d\n", run.DurationMs)
	fmt.Fprintf(f.writer, "samples=%d\n", run.SampleCount)
	if run.LoadError != "" {
		fmt.Fprintf(f.writer, "load_error=%q\n", run.LoadError)
	}
	if run.PlayerError != "" {
		fmt.Fprintf(f.writer, "player_error=%q\n", run.PlayerError)
	}
	for _, label := range types.Labels {
		stats, ok := run.Summary[label]
		if !ok {
			continue
		}
		fmt.Fprintf(f.writer, "%s_count=%d\n", label, stats.Count)
		fmt.Fprintf(f.writer, "%s_min=%g\n", label, stats.Min)
		fmt.Fprintf(f.writer, "%s_max=%g\n", label, stats.Max)
		fmt.Fprintf(f.writer, "%s_avg=%g\n", label, stats.Avg)
		fmt.Fprintf(f.writer, "%s_last=%g\n", label, stats.Last)
	}
	if ladder != nil {
		fmt.Fprintf(f.writer, "ladder_format=%s\n", ladder.Format)
		fmt.Fprintf(f.writer, "ladder_variants=%d\n", len(ladder.Variants))
	}
}

func (f *PlainFormatter) FormatError(err error) {
	fmt.Fprintf(f.errw, "playertester: error: %v\n", err)
}

func (f *InteractiveFormatter) color(code, s string) string {
	if f.noColor {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (f *InteractiveFormatter) FormatWaiting(pageURL string) {
	fmt.Fprintf(f.writer, "Open %s in a browser to attach the player...\n", f.color("36", pageURL))
}

func (f *InteractiveFormatter) FormatLadder(ladder *manifest.Ladder) {
	if ladder == nil {
		return
	}
	kind := "VOD"
	if ladder.Live {
		kind = "live"
	}
	fmt.Fprintf(f.writer, "Manifest: %s %s, %d variants\n", ladder.Format, kind, len(ladder.Variants))
	for _, v := range ladder.Variants {
		res := ""
		if v.Width > 0 {
			res = fmt.Sprintf(" %dx%d", v.Width, v.Height)
		}
		fmt.Fprintf(f.writer, "  %-6s %10s%s\n", v.Kind, formatBitrate(float64(v.Bandwidth)), res)
	}
}

func (f *InteractiveFormatter) FormatComplete(run *results.Run, _ *manifest.Ladder) {
	fmt.Fprintln(f.writer, "\nRun:")
	fmt.Fprintf(f.writer, " ID:        %s\n", run.ID)
	fmt.Fprintf(f.writer, " Manifest:  %s\n", run.ManifestURL)

	state := string(run.Reason) + " (reached " + run.LastState.String() + ")"
	if run.LastState == types.StatePlaying {
		state = f.color("32", state)
	} else {
		state = f.color("31", state)
	}
	fmt.Fprintf(f.writer, " Finished:  %s after %s\n", state, (time.Duration(run.DurationMs) * time.Millisecond).String())
	if run.LoadError != "" {
		fmt.Fprintf(f.writer, " %s %s\n", f.color("31", "Load error:"), run.LoadError)
	}
	if run.PlayerError != "" {
		fmt.Fprintf(f.writer, " %s %s\n", f.color("33", "Player error:"), run.PlayerError)
	}

	fmt.Fprintf(f.writer, " Samples:   %d\n", run.SampleCount)
	for _, label := range types.Labels {
		if stats, ok := run.Summary[label]; ok {
			fmt.Fprintf(f.writer, "  %-13s %s\n", label, formatStats(label, stats))
		}
	}
}

func (f *InteractiveFormatter) FormatError(err error) {
	fmt.Fprintf(f.errw, "%s %v\n", f.color("31", "playertester: error:"), err)
}

func formatStats(label types.Label, s types.LabelStats) string {
	switch label {
	case types.LabelVideoBitrate, types.LabelAudioBitrate:
		return fmt.Sprintf("n=%d min=%s max=%s last=%s", s.Count, formatBitrate(s.Min), formatBitrate(s.Max), formatBitrate(s.Last))
	case types.LabelBufferSize:
		return fmt.Sprintf("n=%d min=%.2fs avg=%.2fs max=%.2fs", s.Count, s.Min, s.Avg, s.Max)
	default:
		return fmt.Sprintf("n=%d min=%.2f avg=%.2f max=%.2f", s.Count, s.Min, s.Avg, s.Max)
	}
}

func formatBitrate(bps float64) string {
	switch {
	case bps >= 1_000_000:
		return fmt.Sprintf("%.2f Mbps", bps/1_000_000)
	case bps >= 1_000:
		return fmt.Sprintf("%.0f kbps", bps/1_000)
	default:
		return fmt.Sprintf("%.0f bps", bps)
	}
}

func createFormatter(opts *Options, stdout, stderr io.Writer) OutputFormatter {
	if opts.JSON {
		return &JSONFormatter{writer: stdout, errw: stderr}
	}
	if opts.Plain {
		return &PlainFormatter{writer: stdout, errw: stderr}
	}
	return &InteractiveFormatter{writer: stdout, errw: stderr, noColor: opts.NoColor}
}
