package types

// VariantTrack is one selectable video/audio quality combination as reported
// by the player. Bandwidths are in bits per second; zero (or null on the
// wire) means the variant has no such channel.
type VariantTrack struct {
	ID             int     `json:"id"`
	Active         bool    `json:"active"`
	VideoBandwidth float64 `json:"videoBandwidth"`
	AudioBandwidth float64 `json:"audioBandwidth"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
}

func (t VariantTrack) HasVideo() bool { return t.VideoBandwidth > 0 }

func (t VariantTrack) HasAudio() bool { return t.AudioBandwidth > 0 }
