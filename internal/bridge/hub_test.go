package bridge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveenergy/playertester/internal/bridge"
	"github.com/saveenergy/playertester/pkg/errors"
	"github.com/saveenergy/playertester/pkg/player"
	"github.com/saveenergy/playertester/pkg/playertest"
	"github.com/saveenergy/playertester/pkg/scenario"
	"github.com/saveenergy/playertester/pkg/types"
)

type command struct {
	Type   string          `json:"type"`
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakePage plays the browser side of the bridge.
type fakePage struct {
	t    *testing.T
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	commands []command
	failures map[string]string
	silent   map[string]bool
	delays   map[string]time.Duration
}

func dialPage(t *testing.T, srv *httptest.Server) *fakePage {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/bridge"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	fp := &fakePage{
		t:        t,
		conn:     conn,
		failures: map[string]string{},
		silent:   map[string]bool{},
		delays:   map[string]time.Duration{},
	}
	go fp.loop()
	t.Cleanup(func() { conn.Close() })
	return fp
}

func (fp *fakePage) loop() {
	for {
		var cmd command
		if err := fp.conn.ReadJSON(&cmd); err != nil {
			return
		}
		fp.mu.Lock()
		fp.commands = append(fp.commands, cmd)
		failure := fp.failures[cmd.Method]
		silent := fp.silent[cmd.Method]
		delay := fp.delays[cmd.Method]
		fp.mu.Unlock()
		if silent {
			continue
		}
		answer := map[string]interface{}{"type": "reply", "id": cmd.ID, "error": failure}
		if delay > 0 {
			time.AfterFunc(delay, func() { fp.send(answer) })
			continue
		}
		fp.send(answer)
	}
}

func (fp *fakePage) send(v interface{}) {
	fp.writeMu.Lock()
	defer fp.writeMu.Unlock()
	_ = fp.conn.WriteJSON(v)
}

func (fp *fakePage) fail(method, msg string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.failures[method] = msg
}

func (fp *fakePage) hang(method string) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.silent[method] = true
}

func (fp *fakePage) slow(method string, d time.Duration) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.delays[method] = d
}

func (fp *fakePage) methods() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	out := make([]string, 0, len(fp.commands))
	for _, c := range fp.commands {
		out = append(out, c.Method)
	}
	return out
}

func (fp *fakePage) last(method string) command {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for i := len(fp.commands) - 1; i >= 0; i-- {
		if fp.commands[i].Method == method {
			return fp.commands[i]
		}
	}
	return command{}
}

func newHubServer(t *testing.T) (*bridge.Hub, *httptest.Server) {
	t.Helper()
	return newHubServerTimeout(t, 2*time.Second)
}

func newHubServerTimeout(t *testing.T, commandTimeout time.Duration) (*bridge.Hub, *httptest.Server) {
	t.Helper()
	hub := bridge.NewHub()
	hub.SetCommandTimeout(commandTimeout)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bridge", hub.HandleBridge)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, srv
}

func connect(t *testing.T) (*bridge.Page, *fakePage) {
	t.Helper()
	return connectTimeout(t, 2*time.Second)
}

func connectTimeout(t *testing.T, commandTimeout time.Duration) (*bridge.Page, *fakePage) {
	t.Helper()
	hub, srv := newHubServerTimeout(t, commandTimeout)
	fp := dialPage(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	page, err := hub.WaitForPage(ctx)
	require.NoError(t, err)
	return page, fp
}

func TestWaitForPageTimeout(t *testing.T) {
	hub, _ := newHubServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := hub.WaitForPage(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodePlayerUnavailable))
}

func TestCommandsRoundTrip(t *testing.T) {
	page, fp := connect(t)
	ctx := context.Background()

	require.NoError(t, page.InstallShims(ctx))
	media := page.Media()
	p, err := page.NewPlayer(ctx, media)
	require.NoError(t, err)
	require.NoError(t, p.Configure(player.Options{Streaming: player.StreamingOptions{LowLatencyMode: true}}))
	require.NoError(t, p.Load(ctx, "https://cdn.example.com/live.mpd"))
	require.NoError(t, media.Play())
	require.NoError(t, p.Destroy())

	assert.Equal(t, []string{"installShims", "createPlayer", "configure", "load", "play", "destroy"}, fp.methods())
	assert.JSONEq(t, `{"streaming":{"lowLatencyMode":true}}`, string(fp.last("configure").Params))
	assert.JSONEq(t, `{"url":"https://cdn.example.com/live.mpd"}`, string(fp.last("load").Params))
}

func TestCommandErrorReply(t *testing.T) {
	page, fp := connect(t)
	fp.fail("load", "manifest 404")

	p, err := page.NewPlayer(context.Background(), page.Media())
	require.NoError(t, err)

	err = p.Load(context.Background(), "https://cdn.example.com/missing.mpd")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCommandFailed))
	assert.Contains(t, err.Error(), "load: manifest 404")
}

func TestLoadHonorsContext(t *testing.T) {
	page, fp := connect(t)
	fp.hang("load")

	p, err := page.NewPlayer(context.Background(), page.Media())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err = p.Load(ctx, "https://cdn.example.com/slow.mpd")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadOutlastsCommandTimeout(t *testing.T) {
	page, fp := connectTimeout(t, 100*time.Millisecond)
	fp.slow("load", 300*time.Millisecond)

	cfg := scenario.DefaultConfig()
	cfg.ManifestURL = "https://cdn.example.com/live.mpd"
	cfg.Timeout = time.Second
	res, err := scenario.NewRunner(page).Run(context.Background(), page.Media(), &playertest.Recorder{}, cfg)
	require.NoError(t, err)

	assert.Equal(t, types.StatePlaying, res.LastState)
	assert.Empty(t, res.LoadError)
	assert.Equal(t, types.FinishTimeout, res.Reason)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(
			[]string{"installShims", "createPlayer", "configure", "load", "play", "destroy"},
			fp.methods())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsRefreshSnapshotAndDispatch(t *testing.T) {
	page, fp := connect(t)
	media := page.Media()
	p, err := page.NewPlayer(context.Background(), media)
	require.NoError(t, err)

	adapted := make(chan []types.VariantTrack, 1)
	p.On(player.EventAdaptation, func(player.Event) {
		adapted <- p.VariantTracks()
	})
	rates := make(chan float64, 1)
	media.On(player.EventRateChange, func(player.Event) {
		rates <- media.PlaybackRate()
	})

	fp.send(map[string]interface{}{
		"type": "event",
		"name": "adaptation",
		"tracks": []map[string]interface{}{
			{"id": 1, "active": false, "videoBandwidth": 500000, "audioBandwidth": 64000},
			{"id": 2, "active": true, "videoBandwidth": 2000000, "audioBandwidth": 128000},
		},
	})
	select {
	case tracks := <-adapted:
		require.Len(t, tracks, 2)
		assert.True(t, tracks[1].Active)
		assert.Equal(t, 2000000.0, tracks[1].VideoBandwidth)
	case <-time.After(2 * time.Second):
		t.Fatal("adaptation not dispatched")
	}

	fp.send(map[string]interface{}{
		"type":  "event",
		"name":  "ratechange",
		"media": map[string]interface{}{"playbackRate": 1.05, "currentTime": 4, "buffered": []map[string]float64{{"start": 0, "end": 6.5}}},
	})
	select {
	case rate := <-rates:
		assert.Equal(t, 1.05, rate)
	case <-time.After(2 * time.Second):
		t.Fatal("ratechange not dispatched")
	}
	assert.Equal(t, 4.0, media.CurrentTime())
	assert.InDelta(t, 2.5, media.Buffered().BufferSize(media.CurrentTime()), 1e-9)
}

func TestStateEventOnlyRefreshes(t *testing.T) {
	page, fp := connect(t)
	media := page.Media()

	fp.send(map[string]interface{}{
		"type":  "event",
		"name":  "state",
		"media": map[string]interface{}{"playbackRate": 0.95, "currentTime": 10, "buffered": []map[string]float64{{"start": 8, "end": 12}}},
	})
	assert.Eventually(t, func() bool { return media.CurrentTime() == 10 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.95, media.PlaybackRate())
}

func TestHandlerMayIssueCommands(t *testing.T) {
	page, fp := connect(t)
	media := page.Media()
	p, err := page.NewPlayer(context.Background(), media)
	require.NoError(t, err)

	destroyed := make(chan error, 1)
	media.On(player.EventEnded, func(player.Event) {
		destroyed <- p.Destroy()
	})
	fp.send(map[string]interface{}{"type": "event", "name": "ended"})

	select {
	case err := <-destroyed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("destroy from handler did not complete")
	}
}

func TestDisconnectFailsPendingCommands(t *testing.T) {
	page, fp := connect(t)
	fp.hang("load")

	p, err := page.NewPlayer(context.Background(), page.Media())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- p.Load(context.Background(), "https://cdn.example.com/live.mpd") }()
	require.Eventually(t, func() bool {
		return len(fp.methods()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	fp.conn.Close()

	select {
	case err := <-errCh:
		assert.True(t, errors.HasCode(err, errors.ErrCodeBridgeDisconnected))
	case <-time.After(2 * time.Second):
		t.Fatal("pending command not failed")
	}
	<-page.Done()
	assert.True(t, errors.HasCode(p.Destroy(), errors.ErrCodeBridgeDisconnected))
}

func TestNewerPageReplacesOlder(t *testing.T) {
	hub, srv := newHubServer(t)
	dialPage(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	first, err := hub.WaitForPage(ctx)
	require.NoError(t, err)

	dialPage(t, srv)
	select {
	case <-first.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("older page not closed")
	}
	second, err := hub.WaitForPage(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestOriginCheck(t *testing.T) {
	hub, srv := newHubServer(t)
	hub.SetAllowedOrigins([]string{"*.example.com"})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/bridge"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.test"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://player.example.com"}})
	require.NoError(t, err)
	conn.Close()
}
