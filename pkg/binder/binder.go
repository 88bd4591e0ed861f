// Package binder relays a player's telemetry into a player.Sink.
//
// A Binding samples playbackRate and bufferSize once at construction, then
// follows the player's adaptation events, the media element's ratechange
// events and a buffer-size poll until Unbind.
package binder

import (
	"sync"
	"time"

	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

const DefaultPollInterval = 100 * time.Millisecond

type Option func(*Binding)

// WithPollInterval sets the buffer-size poll period. Non-positive values keep
// the default.
func WithPollInterval(d time.Duration) Option {
	return func(b *Binding) {
		if d > 0 {
			b.pollInterval = d
		}
	}
}

type Binding struct {
	player       player.Player
	media        player.MediaElement
	sink         player.Sink
	pollInterval time.Duration

	mu     sync.Mutex
	closed bool
	// Last emitted bandwidths. Unset until the first active track is seen.
	videoBandwidth *float64
	audioBandwidth *float64

	subs   player.Subscriptions
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Bind attaches to p and m and starts forwarding samples to sink. Handles are
// not validated; a nil player or media element panics on first use.
func Bind(p player.Player, m player.MediaElement, sink player.Sink, opts ...Option) *Binding {
	b := &Binding{
		player:       p,
		media:        m,
		sink:         sink,
		pollInterval: DefaultPollInterval,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	// Baseline points precede any subscription.
	b.mu.Lock()
	b.emitPlaybackRate()
	b.emitBufferSize()
	b.mu.Unlock()

	b.subs.Add(p.On(player.EventAdaptation, func(player.Event) { b.onAdaptation() }))
	b.subs.Add(m.On(player.EventRateChange, func(player.Event) { b.onRateChange() }))

	b.wg.Add(1)
	go b.pollLoop()

	return b
}

// Unbind stops the poll, emits a closing playbackRate sample and releases
// both subscriptions. Later calls do nothing. No sample reaches the sink once
// Unbind has returned.
func (b *Binding) Unbind() {
	b.once.Do(func() {
		close(b.stopCh)
		b.wg.Wait()

		b.mu.Lock()
		b.emitPlaybackRate()
		b.closed = true
		b.mu.Unlock()

		b.subs.Close()
	})
}

func (b *Binding) onAdaptation() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for _, t := range b.player.VariantTracks() {
		if !t.Active {
			continue
		}
		if t.HasVideo() && (b.videoBandwidth == nil || *b.videoBandwidth != t.VideoBandwidth) {
			v := t.VideoBandwidth
			b.videoBandwidth = &v
			b.sink.RegisterEvent(types.LabelVideoBitrate, v)
		}
		if t.HasAudio() && (b.audioBandwidth == nil || *b.audioBandwidth != t.AudioBandwidth) {
			a := t.AudioBandwidth
			b.audioBandwidth = &a
			b.sink.RegisterEvent(types.LabelAudioBitrate, a)
		}
	}
}

func (b *Binding) onRateChange() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.emitPlaybackRate()
}

func (b *Binding) pollLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
			b.mu.Lock()
			if !b.closed {
				b.emitBufferSize()
			}
			b.mu.Unlock()
		}
	}
}

// Callers hold b.mu.
func (b *Binding) emitPlaybackRate() {
	b.sink.RegisterEvent(types.LabelPlaybackRate, b.media.PlaybackRate())
}

func (b *Binding) emitBufferSize() {
	b.sink.RegisterEvent(types.LabelBufferSize, b.media.Buffered().BufferSize(b.media.CurrentTime()))
}
