package run

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var out bytes.Buffer
	opts, set, err := parseFlags([]string{"-t", "5s", "--finish-on", "ended", "--low-latency=false", "http://cdn/live.m3u8"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "http://cdn/live.m3u8", opts.ManifestURL)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, "ended", opts.FinishOn)
	assert.False(t, opts.LowLatency)
	assert.True(t, set["timeout"], "short flag marks the long name")
	assert.True(t, set["low-latency"])
	assert.False(t, set["wait"])
}

func TestParseFlagsArguments(t *testing.T) {
	var out bytes.Buffer
	_, _, err := parseFlags(nil, &out)
	assert.ErrorContains(t, err, "manifest URL is required")

	_, _, err = parseFlags([]string{"a.mpd", "b.mpd"}, &out)
	assert.ErrorContains(t, err, "expected one manifest URL")

	_, _, err = parseFlags([]string{"--bogus", "a.mpd"}, &out)
	assert.Error(t, err)
}

func TestParseFlagsHelp(t *testing.T) {
	var out bytes.Buffer
	_, _, err := parseFlags([]string{"--help"}, &out)
	assert.True(t, errors.Is(err, errHelp))
	assert.Contains(t, out.String(), "Usage: playertester run")
}

func TestRunUsageExitCodes(t *testing.T) {
	clearRunEnv(t)
	var stdout, stderr bytes.Buffer

	assert.Equal(t, exitUsage, run(nil, "test", &stdout, &stderr))
	assert.Contains(t, stderr.String(), "manifest URL is required")

	assert.Equal(t, exitSuccess, run([]string{"-h"}, "test", &stdout, &stderr))

	stderr.Reset()
	code := run([]string{"--config", "/nonexistent/config.yaml", "a.mpd"}, "test", &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "read config file")
}

func TestServerConfig(t *testing.T) {
	t.Setenv("PT_PORT", "")
	t.Setenv("PT_BIND_ADDRESS", "")
	t.Setenv("PT_PAGE_WAIT", "")
	t.Setenv("PT_DATA_DIR", "")

	opts := &Options{Addr: "localhost:9999", DataDir: "/tmp/pt"}
	cfg, err := serverConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.BindAddress)
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "/tmp/pt", cfg.DataDir)
	assert.Equal(t, cfg.PageWaitTimeout, opts.Wait)

	_, err = serverConfig(&Options{Addr: "no-port"})
	assert.ErrorContains(t, err, "invalid --addr")
}
