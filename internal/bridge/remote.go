package bridge

import (
	"context"

	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/types"
)

// remotePlayer proxies player.Player to the page.
type remotePlayer struct {
	page *Page
}

// Load is bounded by ctx and the connection only; the command timeout does
// not apply.
func (r *remotePlayer) Load(ctx context.Context, url string) error {
	return r.page.await(ctx, methodLoad, loadParams{URL: url})
}

func (r *remotePlayer) Configure(opts player.Options) error {
	return r.page.call(context.Background(), methodConfigure, opts)
}

func (r *remotePlayer) VariantTracks() []types.VariantTrack {
	r.page.mu.Lock()
	defer r.page.mu.Unlock()
	return append([]types.VariantTrack(nil), r.page.tracks...)
}

func (r *remotePlayer) On(name player.EventName, h player.Handler) player.Subscription {
	return r.page.playerEvents.On(name, h)
}

func (r *remotePlayer) Destroy() error {
	return r.page.call(context.Background(), methodDestroy, nil)
}

// remoteMedia proxies player.MediaElement to the page's video element.
type remoteMedia struct {
	page *Page
}

func (m *remoteMedia) Play() error {
	return m.page.call(context.Background(), methodPlay, nil)
}

func (m *remoteMedia) PlaybackRate() float64 {
	m.page.mu.Lock()
	defer m.page.mu.Unlock()
	return m.page.media.PlaybackRate
}

func (m *remoteMedia) CurrentTime() float64 {
	m.page.mu.Lock()
	defer m.page.mu.Unlock()
	return m.page.media.CurrentTime
}

func (m *remoteMedia) Buffered() types.TimeRanges {
	m.page.mu.Lock()
	defer m.page.mu.Unlock()
	return append(types.TimeRanges(nil), m.page.media.Buffered...)
}

func (m *remoteMedia) On(name player.EventName, h player.Handler) player.Subscription {
	return m.page.mediaEvents.On(name, h)
}

var (
	_ player.Factory      = (*Page)(nil)
	_ player.Player       = (*remotePlayer)(nil)
	_ player.MediaElement = (*remoteMedia)(nil)
)
