package run

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveenergy/playertester/internal/manifest"
	"github.com/saveenergy/playertester/internal/results"
	"github.com/saveenergy/playertester/pkg/types"
)

func sampleRun() *results.Run {
	return &results.Run{
		ID:          "run-1",
		ManifestURL: "http://cdn/a.mpd",
		Reason:      types.FinishTimeout,
		LastState:   types.StatePlaying,
		LowLatency:  true,
		DurationMs:  30000,
		SampleCount: 3,
		Summary: map[types.Label]types.LabelStats{
			types.LabelVideoBitrate: {Count: 2, Min: 1e6, Max: 3e6, Avg: 2e6, Last: 3e6},
			types.LabelBufferSize:   {Count: 1, Min: 1.5, Max: 1.5, Avg: 1.5, Last: 1.5},
		},
	}
}

func TestPlainFormatterComplete(t *testing.T) {
	var out, errw bytes.Buffer
	f := createFormatter(&Options{Plain: true}, &out, &errw)
	f.FormatComplete(sampleRun(), &manifest.Ladder{Format: manifest.FormatDASH, Variants: make([]manifest.Variant, 4)})

	got := out.String()
	assert.Contains(t, got, "run_id=run-1\n")
	assert.Contains(t, got, "reason=timeout\n")
	assert.Contains(t, got, "last_state=playing\n")
	assert.Contains(t, got, "videoBitrate_count=2\n")
	assert.Contains(t, got, "videoBitrate_last=3e+06\n")
	assert.Contains(t, got, "bufferSize_avg=1.5\n")
	assert.NotContains(t, got, "audioBitrate_")
	assert.Contains(t, got, "ladder_variants=4\n")
	assert.Empty(t, errw.String())
}

func TestJSONFormatterComplete(t *testing.T) {
	var out bytes.Buffer
	f := createFormatter(&Options{JSON: true}, &out, &bytes.Buffer{})
	f.FormatWaiting("http://127.0.0.1:8090/")
	f.FormatComplete(sampleRun(), nil)

	var doc struct {
		Run    results.Run      `json:"run"`
		Ladder *manifest.Ladder `json:"ladder"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, "run-1", doc.Run.ID)
	assert.Equal(t, 2, doc.Run.Summary[types.LabelVideoBitrate].Count)
	assert.Nil(t, doc.Ladder)
}

func TestInteractiveFormatterNoColor(t *testing.T) {
	var out, errw bytes.Buffer
	f := createFormatter(&Options{NoColor: true}, &out, &errw)
	f.FormatComplete(sampleRun(), nil)
	f.FormatError(errors.New("boom"))

	assert.NotContains(t, out.String(), "\033[")
	assert.Contains(t, out.String(), "timeout (reached playing)")
	assert.Contains(t, out.String(), "3.00 Mbps")
	assert.Contains(t, errw.String(), "boom")
}

func TestFormatBitrate(t *testing.T) {
	assert.Equal(t, "2.50 Mbps", formatBitrate(2_500_000))
	assert.Equal(t, "128 kbps", formatBitrate(128_000))
	assert.Equal(t, "900 bps", formatBitrate(900))
}
