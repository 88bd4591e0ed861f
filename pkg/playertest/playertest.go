// Package playertest provides in-process stand-ins for a player, its media
// element and a factory, for tests of code that drives a player.Player.
package playertest

import (
	"context"
	"sync"
	"time"

	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

// Media is a stub media element with directly settable state.
type Media struct {
	player.Emitter

	mu          sync.Mutex
	rate        float64
	currentTime float64
	buffered    types.TimeRanges
	plays       int
	playErr     error
	playGate    <-chan struct{}
}

func NewMedia() *Media {
	return &Media{rate: 1}
}

func (m *Media) Play() error {
	m.mu.Lock()
	gate := m.playGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.plays++
	return m.playErr
}

func (m *Media) PlaybackRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

func (m *Media) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentTime
}

func (m *Media) Buffered() types.TimeRanges {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append(types.TimeRanges(nil), m.buffered...)
}

// SetRate changes playbackRate and fires ratechange.
func (m *Media) SetRate(rate float64) {
	m.mu.Lock()
	m.rate = rate
	m.mu.Unlock()
	m.Emit(player.Event{Name: player.EventRateChange})
}

func (m *Media) SetPosition(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTime = seconds
}

func (m *Media) SetBuffered(ranges ...types.TimeRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffered = append(types.TimeRanges(nil), ranges...)
}

// HoldPlay makes Play block until gate is closed.
func (m *Media) HoldPlay(gate <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playGate = gate
}

func (m *Media) SetPlayError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playErr = err
}

// End fires the ended event.
func (m *Media) End() {
	m.Emit(player.Event{Name: player.EventEnded})
}

func (m *Media) Plays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.plays
}

// Player is a stub player. Load returns LoadErr after LoadDelay, or earlier
// if ctx is cancelled.
type Player struct {
	player.Emitter

	mu         sync.Mutex
	loadErr    error
	loadDelay  time.Duration
	tracks     []types.VariantTrack
	options    []player.Options
	loadedURLs []string
	destroys   int
}

func NewPlayer() *Player {
	return &Player{}
}

func (p *Player) SetLoadResult(err error, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadErr = err
	p.loadDelay = delay
}

func (p *Player) Load(ctx context.Context, url string) error {
	p.mu.Lock()
	p.loadedURLs = append(p.loadedURLs, url)
	err, delay := p.loadErr, p.loadDelay
	p.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func (p *Player) Configure(opts player.Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.options = append(p.options, opts)
	return nil
}

func (p *Player) VariantTracks() []types.VariantTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.VariantTrack(nil), p.tracks...)
}

func (p *Player) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroys++
	return nil
}

// SetTracks replaces the variant list without firing an event.
func (p *Player) SetTracks(tracks ...types.VariantTrack) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append([]types.VariantTrack(nil), tracks...)
}

// Adapt replaces the variant list and fires adaptation.
func (p *Player) Adapt(tracks ...types.VariantTrack) {
	p.SetTracks(tracks...)
	p.Emit(player.Event{Name: player.EventAdaptation})
}

// Fail fires a player error event.
func (p *Player) Fail(err error) {
	p.Emit(player.Event{Name: player.EventError, Err: err})
}

func (p *Player) Destroys() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroys
}

func (p *Player) Options() []player.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]player.Options(nil), p.options...)
}

func (p *Player) LoadedURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loadedURLs...)
}

// Factory hands out a fixed Player.
type Factory struct {
	Player *Player

	ShimErr   error
	PlayerErr error

	mu    sync.Mutex
	shims int
	media []player.MediaElement
}

func NewFactory(p *Player) *Factory {
	return &Factory{Player: p}
}

func (f *Factory) InstallShims(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shims++
	return f.ShimErr
}

func (f *Factory) NewPlayer(ctx context.Context, media player.MediaElement) (player.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PlayerErr != nil {
		return nil, f.PlayerErr
	}
	f.media = append(f.media, media)
	return f.Player, nil
}

func (f *Factory) ShimInstalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shims
}

// Recorder is a Sink that keeps every sample in order.
type Recorder struct {
	mu      sync.Mutex
	samples []types.Sample
}

func (r *Recorder) RegisterEvent(label types.Label, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, types.Sample{Label: label, Value: value, At: time.Now()})
}

func (r *Recorder) Samples() []types.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Sample(nil), r.samples...)
}

// Values returns the values recorded under label, in order.
func (r *Recorder) Values(label types.Label) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []float64
	for _, s := range r.samples {
		if s.Label == label {
			out = append(out, s.Value)
		}
	}
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

var (
	_ player.Player       = (*Player)(nil)
	_ player.MediaElement = (*Media)(nil)
	_ player.Factory      = (*Factory)(nil)
	_ player.Sink         = (*Recorder)(nil)
)
