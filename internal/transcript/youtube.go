package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNoCaptions indicates that YouTube has no captions for the video in any
// of the requested languages. Callers should fall back to speech-to-text.
var ErrNoCaptions = errors.New("transcript: no captions available")

const defaultTimedTextURL = "https://www.youtube.com/api/timedtext"

// YouTubeOption is a functional option for configuring a [YouTubeClient].
type YouTubeOption func(*YouTubeClient)

// WithHTTPClient replaces the HTTP client. Default: a client with a 30 s
// timeout.
func WithHTTPClient(c *http.Client) YouTubeOption {
	return func(y *YouTubeClient) {
		y.httpClient = c
	}
}

// WithBaseURL overrides the timedtext endpoint. Intended for tests.
func WithBaseURL(u string) YouTubeOption {
	return func(y *YouTubeClient) {
		y.baseURL = u
	}
}

// WithLanguages sets the caption languages to try, in preference order.
// Default: ["en"].
func WithLanguages(langs ...string) YouTubeOption {
	return func(y *YouTubeClient) {
		y.languages = langs
	}
}

// YouTubeClient fetches captions from YouTube's timedtext API in the json3
// format. The client is safe for concurrent use.
type YouTubeClient struct {
	httpClient *http.Client
	baseURL    string
	languages  []string
}

// NewYouTubeClient constructs a [YouTubeClient] with the supplied options.
func NewYouTubeClient(opts ...YouTubeOption) *YouTubeClient {
	y := &YouTubeClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultTimedTextURL,
		languages:  []string{"en"},
	}
	for _, o := range opts {
		o(y)
	}
	return y
}

// timedTextResponse mirrors the json3 payload of the timedtext API. Events
// without text segments (styling and window events) are skipped.
type timedTextResponse struct {
	Events []struct {
		StartMs    int64 `json:"tStartMs"`
		DurationMs int64 `json:"dDurationMs"`
		Segs       []struct {
			UTF8 string `json:"utf8"`
		} `json:"segs"`
	} `json:"events"`
}

// Fetch retrieves the captions for videoID, trying each configured language
// in order. It returns [ErrNoCaptions] when no language yields captions.
func (y *YouTubeClient) Fetch(ctx context.Context, videoID string) (Transcript, error) {
	var lastErr error
	for _, lang := range y.languages {
		t, err := y.fetchLanguage(ctx, videoID, lang)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, ErrNoCaptions) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return Transcript{}, lastErr
	}
	return Transcript{}, fmt.Errorf("%w: video %s", ErrNoCaptions, videoID)
}

func (y *YouTubeClient) fetchLanguage(ctx context.Context, videoID, lang string) (Transcript, error) {
	q := url.Values{}
	q.Set("v", videoID)
	q.Set("lang", lang)
	q.Set("fmt", "json3")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcript: build request: %w", err)
	}

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return Transcript{}, fmt.Errorf("transcript: timedtext request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Transcript{}, ErrNoCaptions
	}
	if resp.StatusCode != http.StatusOK {
		return Transcript{}, fmt.Errorf("transcript: timedtext status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Transcript{}, fmt.Errorf("transcript: read body: %w", err)
	}
	// YouTube answers 200 with an empty body when the video has no
	// captions in the requested language.
	if len(strings.TrimSpace(string(body))) == 0 {
		return Transcript{}, ErrNoCaptions
	}

	var tt timedTextResponse
	if err := json.Unmarshal(body, &tt); err != nil {
		return Transcript{}, fmt.Errorf("transcript: decode timedtext: %w", err)
	}

	segments := make([]Segment, 0, len(tt.Events))
	for _, ev := range tt.Events {
		var b strings.Builder
		for _, seg := range ev.Segs {
			b.WriteString(seg.UTF8)
		}
		text := strings.TrimSpace(strings.ReplaceAll(b.String(), "\n", " "))
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Start:    time.Duration(ev.StartMs) * time.Millisecond,
			Duration: time.Duration(ev.DurationMs) * time.Millisecond,
		})
	}
	if len(segments) == 0 {
		return Transcript{}, ErrNoCaptions
	}

	return Transcript{
		VideoID:  videoID,
		Segments: segments,
		Source:   SourceYouTubeAPI,
		Language: lang,
	}, nil
}
