package types

import "time"

// Label names the telemetry channel a sample belongs to.
type Label string

const (
	LabelVideoBitrate Label = "videoBitrate"
	LabelAudioBitrate Label = "audioBitrate"
	LabelBufferSize   Label = "bufferSize"
	LabelPlaybackRate Label = "playbackRate"
)

// Labels lists every label in display order.
var Labels = []Label{LabelVideoBitrate, LabelAudioBitrate, LabelBufferSize, LabelPlaybackRate}

func (l Label) Valid() bool {
	switch l {
	case LabelVideoBitrate, LabelAudioBitrate, LabelBufferSize, LabelPlaybackRate:
		return true
	default:
		return false
	}
}

type Sample struct {
	Label Label     `json:"label"`
	Value float64   `json:"value"`
	At    time.Time `json:"at"`
}

// LabelStats summarizes the samples recorded for one label.
type LabelStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Last  float64 `json:"last"`
}
