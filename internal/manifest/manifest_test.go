package manifest_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saveenergy/playertester/internal/manifest"
)

const liveMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="dynamic" profiles="urn:mpeg:dash:profile:isoff-live:2011" minimumUpdatePeriod="PT2S" availabilityStartTime="1970-01-01T00:00:00Z">
  <Period id="p0" start="PT0S">
    <AdaptationSet contentType="video" mimeType="video/mp4" segmentAlignment="true">
      <Representation id="v720" bandwidth="3000000" width="1280" height="720" codecs="avc1.64001f"/>
      <Representation id="v360" bandwidth="800000" width="640" height="360" codecs="avc1.64001e"/>
    </AdaptationSet>
    <AdaptationSet contentType="audio" mimeType="audio/mp4" lang="en">
      <Representation id="a128" bandwidth="128000" codecs="mp4a.40.2"/>
    </AdaptationSet>
  </Period>
</MPD>`

const masterM3U8 = `#EXTM3U
#EXT-X-VERSION:6
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,CODECS="avc1.64001f,mp4a.40.2"
720p.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=600000,RESOLUTION=640x360,CODECS="avc1.64001e,mp4a.40.2"
360p.m3u8
`

const mediaM3U8 = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:2
#EXT-X-MEDIA-SEQUENCE:10
#EXTINF:2.000,
seg10.ts
#EXTINF:2.000,
seg11.ts
`

func serve(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestInspectDASH(t *testing.T) {
	srv := serve(t, map[string]string{"/live/manifest.mpd": liveMPD})

	ladder, err := manifest.Inspect(context.Background(), srv.URL+"/live/manifest.mpd")
	require.NoError(t, err)
	assert.Equal(t, manifest.FormatDASH, ladder.Format)
	assert.True(t, ladder.Live)
	require.Len(t, ladder.Variants, 3)
	assert.Equal(t, 2, ladder.Count(manifest.KindVideo))
	assert.Equal(t, 1, ladder.Count(manifest.KindAudio))

	audio := ladder.Variants[0]
	assert.Equal(t, manifest.KindAudio, audio.Kind)
	assert.Equal(t, uint32(128000), audio.Bandwidth)

	low := ladder.Variants[1]
	assert.Equal(t, "v360", low.ID)
	assert.Equal(t, 640, low.Width)
	assert.Equal(t, 360, low.Height)
	assert.Equal(t, uint32(3000000), ladder.Variants[2].Bandwidth)
}

func TestInspectHLSMaster(t *testing.T) {
	srv := serve(t, map[string]string{"/vod/master.m3u8": masterM3U8})

	ladder, err := manifest.Inspect(context.Background(), srv.URL+"/vod/master.m3u8")
	require.NoError(t, err)
	assert.Equal(t, manifest.FormatHLS, ladder.Format)
	require.Len(t, ladder.Variants, 2)
	assert.Equal(t, uint32(600000), ladder.Variants[0].Bandwidth)
	assert.Equal(t, "360p.m3u8", ladder.Variants[0].ID)
	assert.Equal(t, 1280, ladder.Variants[1].Width)
	assert.Equal(t, manifest.KindMuxed, ladder.Variants[1].Kind)
}

func TestInspectHLSMediaPlaylist(t *testing.T) {
	srv := serve(t, map[string]string{"/live/chunks.m3u8": mediaM3U8})

	ladder, err := manifest.Inspect(context.Background(), srv.URL+"/live/chunks.m3u8")
	require.NoError(t, err)
	assert.True(t, ladder.Live)
	require.Len(t, ladder.Variants, 1)
	assert.Equal(t, manifest.KindMuxed, ladder.Variants[0].Kind)
}

func TestInspectUnknownFormat(t *testing.T) {
	srv := serve(t, map[string]string{"/index.html": "<html></html>"})

	_, err := manifest.Inspect(context.Background(), srv.URL+"/index.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized manifest format")
}

func TestInspectNotFound(t *testing.T) {
	srv := serve(t, map[string]string{})

	_, err := manifest.Inspect(context.Background(), srv.URL+"/missing.mpd")
	require.Error(t, err)
	var fe *manifest.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, fe.Error(), "status 404")
}

func TestInspectRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(masterM3U8))
	}))
	defer srv.Close()

	in := manifest.NewInspector(manifest.WithRetryMax(3), manifest.WithRetryWait(time.Millisecond, 5*time.Millisecond))
	ladder, err := in.Inspect(context.Background(), srv.URL+"/master.m3u8")
	require.NoError(t, err)
	assert.Len(t, ladder.Variants, 2)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInspectHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := manifest.NewInspector().Inspect(ctx, srv.URL+"/live.mpd")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
