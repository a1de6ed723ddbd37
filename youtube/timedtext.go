package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	httpclient "ytaccess/http"
)

// DefaultTimedtextURL is YouTube's caption endpoint.
const DefaultTimedtextURL = "https://www.youtube.com/api/timedtext"

// TimedtextClient fetches captions straight from the timedtext endpoint.
// It is the last transcript tier, used when the library cannot read the
// caption tracks.
type TimedtextClient struct {
	httpClient *httpclient.Client
	baseURL    string
}

// NewTimedtextClient creates a timedtext client. An empty baseURL means
// DefaultTimedtextURL.
func NewTimedtextClient(client *httpclient.Client, baseURL string) *TimedtextClient {
	if baseURL == "" {
		baseURL = DefaultTimedtextURL
	}
	return &TimedtextClient{httpClient: client, baseURL: baseURL}
}

// timedtextResponse is the json3 caption format.
type timedtextResponse struct {
	Events []timedtextEvent `json:"events"`
}

type timedtextEvent struct {
	TStartMs    int64 `json:"tStartMs"`
	DDurationMs int64 `json:"dDurationMs"`
	Segs        []struct {
		UTF8 string `json:"utf8"`
	} `json:"segs,omitempty"`
}

// Fetch returns the transcript of videoID in lang. YouTube answers 200 with
// an empty body when the track does not exist; that and a 404 both yield
// ErrNotFound.
func (tc *TimedtextClient) Fetch(ctx context.Context, videoID, lang string) (*Transcript, error) {
	if videoID == "" {
		return nil, fmt.Errorf("%w: video id is required", ErrInvalidURL)
	}
	if lang == "" {
		lang = "en"
	}

	params := url.Values{}
	params.Set("v", videoID)
	params.Set("lang", lang)
	params.Set("fmt", "json3")

	resp, err := tc.httpClient.Get(ctx, tc.baseURL+"?"+params.Encode())
	if err != nil {
		if httpclient.IsNotFound(err) {
			return nil, fmt.Errorf("%w: captions for %s in %s", ErrNotFound, videoID, lang)
		}
		return nil, fmt.Errorf("timedtext request failed: %w", err)
	}
	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return nil, fmt.Errorf("%w: captions for %s in %s", ErrNotFound, videoID, lang)
	}

	segments, err := parseTimedtext(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse timedtext response: %w", err)
	}
	return NewTranscript(videoID, lang, segments, TierScrape), nil
}

func parseTimedtext(data []byte) ([]TranscriptSegment, error) {
	var resp timedtextResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	var segments []TranscriptSegment
	for _, event := range resp.Events {
		if len(event.Segs) == 0 {
			continue
		}
		var text strings.Builder
		for _, seg := range event.Segs {
			text.WriteString(seg.UTF8)
		}
		line := strings.TrimSpace(text.String())
		if line == "" {
			continue
		}
		segments = append(segments, TranscriptSegment{
			Start:    float64(event.TStartMs) / 1000.0,
			Duration: float64(event.DDurationMs) / 1000.0,
			Text:     line,
		})
	}
	return segments, nil
}

// NewTranscript builds a transcript whose Text has one "[seconds] text"
// line per segment.
func NewTranscript(videoID, lang string, segments []TranscriptSegment, source string) *Transcript {
	lines := make([]string, 0, len(segments))
	for _, s := range segments {
		lines = append(lines, fmt.Sprintf("[%d] %s", int(s.Start), s.Text))
	}
	return &Transcript{
		VideoID:  videoID,
		Language: lang,
		Text:     strings.Join(lines, "\n"),
		Segments: segments,
		Source:   source,
	}
}
