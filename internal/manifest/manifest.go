// Package manifest fetches a DASH or HLS manifest and reports its bitrate
// ladder. The run command uses it as a preflight check before handing the
// URL to the player.
package manifest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Eyevinn/dash-mpd/mpd"
	"github.com/grafov/m3u8"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/saveenergy/playertester/internal/logging"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetryWaitMin   = 200 * time.Millisecond
	defaultRetryWaitMax   = 2 * time.Second
	defaultRetryMax       = 3
	maxManifestSize       = 8 << 20
)

type Format string

const (
	FormatDASH Format = "dash"
	FormatHLS  Format = "hls"
)

type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindMuxed Kind = "muxed"
	KindOther Kind = "other"
)

// Variant is one rung of the ladder. Bandwidth is in bits per second.
type Variant struct {
	ID        string `json:"id,omitempty"`
	Kind      Kind   `json:"kind"`
	Bandwidth uint32 `json:"bandwidth"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Codecs    string `json:"codecs,omitempty"`
}

type Ladder struct {
	URL      string    `json:"url"`
	Format   Format    `json:"format"`
	Live     bool      `json:"live"`
	Variants []Variant `json:"variants"`
}

// Count returns how many variants have the given kind.
func (l *Ladder) Count(kind Kind) int {
	n := 0
	for _, v := range l.Variants {
		if v.Kind == kind {
			n++
		}
	}
	return n
}

// FetchError reports a manifest that could not be retrieved.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type Inspector struct {
	client *retryablehttp.Client
}

type Option func(*retryablehttp.Client)

// WithRetryMax overrides how many times a failed fetch is retried.
func WithRetryMax(n int) Option {
	return func(c *retryablehttp.Client) { c.RetryMax = n }
}

// WithRetryWait bounds the backoff between retries.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *retryablehttp.Client) {
		c.RetryWaitMin = min
		c.RetryWaitMax = max
	}
}

// WithHTTPClient sets the underlying client, e.g. a test server's client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *retryablehttp.Client) { c.HTTPClient = hc }
}

func NewInspector(opts ...Option) *Inspector {
	c := retryablehttp.NewClient()
	c.HTTPClient.Timeout = defaultRequestTimeout
	c.RetryWaitMin = defaultRetryWaitMin
	c.RetryWaitMax = defaultRetryWaitMax
	c.RetryMax = defaultRetryMax
	c.Logger = nil
	c.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			logging.Debug("Retrying manifest fetch",
				logging.F("url", req.URL.String()),
				logging.F("attempt", attempt))
		}
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	for _, opt := range opts {
		opt(c)
	}
	return &Inspector{client: c}
}

// Inspect fetches manifestURL and parses its ladder.
func Inspect(ctx context.Context, manifestURL string) (*Ladder, error) {
	return NewInspector().Inspect(ctx, manifestURL)
}

func (i *Inspector) Inspect(ctx context.Context, manifestURL string) (*Ladder, error) {
	body, err := i.fetch(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	switch detect(manifestURL, body) {
	case FormatDASH:
		return parseDASH(manifestURL, body)
	case FormatHLS:
		return parseHLS(manifestURL, body)
	default:
		return nil, fmt.Errorf("%s: unrecognized manifest format", manifestURL)
	}
}

func (i *Inspector) fetch(ctx context.Context, manifestURL string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return nil, &FetchError{manifestURL, fmt.Errorf("create request: %w", err)}
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return nil, &FetchError{manifestURL, err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{manifestURL, fmt.Errorf("remote server returned status %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, &FetchError{manifestURL, fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

func detect(manifestURL string, body []byte) Format {
	head := bytes.TrimSpace(body)
	if len(head) > 512 {
		head = head[:512]
	}
	switch {
	case bytes.HasPrefix(head, []byte("#EXTM3U")):
		return FormatHLS
	case bytes.Contains(head, []byte("<MPD")):
		return FormatDASH
	}

	path := manifestURL
	if u, err := url.Parse(manifestURL); err == nil {
		path = u.Path
	}
	switch {
	case strings.HasSuffix(path, ".mpd"):
		return FormatDASH
	case strings.HasSuffix(path, ".m3u8"):
		return FormatHLS
	}
	return ""
}

func parseDASH(manifestURL string, body []byte) (*Ladder, error) {
	m, err := mpd.ReadFromString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse MPD: %w", err)
	}

	ladder := &Ladder{URL: manifestURL, Format: FormatDASH}
	if m.Type != nil && *m.Type == "dynamic" {
		ladder.Live = true
	}
	if len(m.Periods) == 0 {
		return ladder, nil
	}

	// Only the first period describes what the player starts on.
	for _, as := range m.Periods[0].AdaptationSets {
		for _, rep := range as.Representations {
			mime := rep.MimeType
			if mime == "" {
				mime = as.MimeType
			}
			width, height := int(rep.Width), int(rep.Height)
			if width == 0 {
				width, height = int(as.Width), int(as.Height)
			}
			codecs := rep.Codecs
			if codecs == "" {
				codecs = as.Codecs
			}
			ladder.Variants = append(ladder.Variants, Variant{
				ID:        rep.Id,
				Kind:      dashKind(string(as.ContentType), mime),
				Bandwidth: rep.Bandwidth,
				Width:     width,
				Height:    height,
				Codecs:    codecs,
			})
		}
	}
	sortVariants(ladder.Variants)
	return ladder, nil
}

func dashKind(contentType, mime string) Kind {
	switch {
	case contentType == "video" || strings.HasPrefix(mime, "video/"):
		return KindVideo
	case contentType == "audio" || strings.HasPrefix(mime, "audio/"):
		return KindAudio
	default:
		return KindOther
	}
}

func parseHLS(manifestURL string, body []byte) (*Ladder, error) {
	p, listType, err := m3u8.DecodeFrom(bufio.NewReader(bytes.NewReader(body)), false)
	if err != nil {
		return nil, fmt.Errorf("parse playlist: %w", err)
	}

	ladder := &Ladder{URL: manifestURL, Format: FormatHLS}
	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		for _, v := range master.Variants {
			if v == nil || v.Iframe {
				continue
			}
			width, height := parseResolution(v.Resolution)
			ladder.Variants = append(ladder.Variants, Variant{
				ID:        v.URI,
				Kind:      hlsKind(v.Codecs, v.Resolution),
				Bandwidth: v.Bandwidth,
				Width:     width,
				Height:    height,
				Codecs:    v.Codecs,
			})
		}
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		ladder.Live = !media.Closed
		ladder.Variants = append(ladder.Variants, Variant{Kind: KindMuxed})
	}
	sortVariants(ladder.Variants)
	return ladder, nil
}

func hlsKind(codecs, resolution string) Kind {
	if resolution != "" {
		if strings.Contains(codecs, "mp4a") || codecs == "" {
			return KindMuxed
		}
		return KindVideo
	}
	if codecs != "" && !strings.Contains(codecs, "avc") && !strings.Contains(codecs, "hvc") && !strings.Contains(codecs, "hev") {
		return KindAudio
	}
	return KindMuxed
}

func parseResolution(s string) (int, int) {
	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return 0, 0
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0
	}
	return width, height
}

func sortVariants(vs []Variant) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Kind != vs[j].Kind {
			return vs[i].Kind < vs[j].Kind
		}
		return vs[i].Bandwidth < vs[j].Bandwidth
	})
}
