package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "bind", LevelWarn)

	l.Info("dropped")
	l.Warn("kept", F("run", "abc"))

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "[bind] ")
	assert.Contains(t, out, "[WARN] kept run=abc")
}

func TestLoggerWithCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "", LevelDebug).With(F("run", "r1"))

	l.Error("load failed", F("error", errors.New("404 not found")))

	assert.Contains(t, buf.String(), `[ERROR] load failed run=r1 error="404 not found"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("nope"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "1.50", FormatValue(1.5))
	assert.Equal(t, "42", FormatValue(42))
	assert.Equal(t, "100ms", FormatValue(100*time.Millisecond))
	assert.Equal(t, "<nil>", FormatValue(nil))
	assert.Equal(t, "true", FormatValue(true))
}
