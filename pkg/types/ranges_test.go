package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeRangesBufferSize(t *testing.T) {
	ranges := TimeRanges{{Start: 0, End: 4}, {Start: 10, End: 18.5}}

	tests := []struct {
		name     string
		position float64
		want     float64
	}{
		{"start of first range", 0, 4},
		{"inside first range", 1.5, 2.5},
		{"gap between ranges", 6, 0},
		{"inside second range", 12, 6.5},
		{"at end of range", 18.5, 0},
		{"before everything", -1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, ranges.BufferSize(tt.position), 1e-9)
		})
	}
}

func TestTimeRangesBufferSizeEmpty(t *testing.T) {
	var ranges TimeRanges
	assert.Zero(t, ranges.BufferSize(3))
}

func TestStateTextRoundTrip(t *testing.T) {
	for _, s := range []State{StateIdle, StateLoading, StatePlaying, StateFinished} {
		b, err := s.MarshalText()
		assert.NoError(t, err)
		var got State
		assert.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, s, got)
	}
	_, err := ParseState("paused")
	assert.Error(t, err)
}

func TestAllowedOrigin(t *testing.T) {
	assert.True(t, AllowedOrigin("", "example.com", nil))
	assert.True(t, AllowedOrigin("http://localhost:3000", "localhost:8080", nil))
	assert.False(t, AllowedOrigin("http://evil.test", "localhost:8080", nil))
	assert.True(t, AllowedOrigin("https://a.example.com", "x", []string{"*.example.com"}))
	assert.True(t, AllowedOrigin("https://foo.example.com:8443", "x", []string{"foo.example.com"}))
	assert.True(t, AllowedOrigin("https://anything.test", "x", []string{"*"}))
	assert.False(t, AllowedOrigin("https://other.test", "x", []string{"example.com"}))
}
