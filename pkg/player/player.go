// Package player defines what the harness needs from an adaptive-streaming
// player, the media element it renders into, and the sink that receives
// telemetry. Implementations live elsewhere: the browser bridge in
// internal/bridge and the stubs in pkg/playertest.
package player

import (
	"context"

	"github.com/saveenergy/playertester/pkg/types"
)

type EventName string

const (
	// EventAdaptation fires on the player when the active variant changes.
	EventAdaptation EventName = "adaptation"
	// EventError fires on the player for playback errors.
	EventError EventName = "error"
	// EventRateChange fires on the media element when playbackRate changes.
	EventRateChange EventName = "ratechange"
	// EventEnded fires on the media element at natural end of stream.
	EventEnded EventName = "ended"
)

type Event struct {
	Name EventName
	Err  error
}

type Handler func(Event)

type Player interface {
	Load(ctx context.Context, url string) error
	Configure(opts Options) error
	VariantTracks() []types.VariantTrack
	On(name EventName, h Handler) Subscription
	Destroy() error
}

type MediaElement interface {
	Play() error
	PlaybackRate() float64
	CurrentTime() float64
	Buffered() types.TimeRanges
	On(name EventName, h Handler) Subscription
}

// Sink receives labeled telemetry. Calls are fire-and-forget.
type Sink interface {
	RegisterEvent(label types.Label, value float64)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(label types.Label, value float64)

func (f SinkFunc) RegisterEvent(label types.Label, value float64) { f(label, value) }

// Factory prepares the environment and builds players bound to a media element.
type Factory interface {
	InstallShims(ctx context.Context) error
	NewPlayer(ctx context.Context, media MediaElement) (Player, error)
}

type Options struct {
	Streaming StreamingOptions `json:"streaming"`
}

type StreamingOptions struct {
	LowLatencyMode bool `json:"lowLatencyMode"`
}
