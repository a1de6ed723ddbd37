// Package library is the last-resort tier. Playlists, videos and caption
// tracks come from github.com/kkdai/youtube/v2; channel lookups use the
// Innertube search endpoint.
package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	kkdai "github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
)

// Backend is the part of *kkdai.Client the tier uses.
type Backend interface {
	GetVideoContext(ctx context.Context, url string) (*kkdai.Video, error)
	GetPlaylistContext(ctx context.Context, url string) (*kkdai.Playlist, error)
	GetTranscriptCtx(ctx context.Context, video *kkdai.Video, lang string) (kkdai.VideoTranscript, error)
}

// Library reads YouTube without an API key.
type Library struct {
	yt     Backend
	inner  *innertube.Client
	logger *zap.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithBackend replaces the kkdai client.
func WithBackend(b Backend) Option {
	return func(l *Library) {
		l.yt = b
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Library) {
		l.logger = logger
	}
}

// New returns a library tier. httpClient carries the kkdai requests; inner
// serves channel searches.
func New(httpClient *http.Client, inner *innertube.Client, opts ...Option) *Library {
	l := &Library{
		inner:  inner,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.yt == nil {
		l.yt = &kkdai.Client{HTTPClient: httpClient}
	}
	l.logger = l.logger.Named("library")
	return l
}

// Channel finds the channel through a channel search for its id. A search
// that does not return the channel yields an empty record.
func (l *Library) Channel(ctx context.Context, channelID string) (*youtube.Channel, error) {
	resp, err := l.inner.Search(ctx, channelID, innertube.ChannelSearchParams)
	if err != nil {
		return nil, err
	}
	for _, r := range innertube.Channels(resp) {
		if r.ChannelID == channelID {
			ch := r.ToChannel()
			ch.Source = youtube.TierLibrary
			return ch, nil
		}
	}
	l.logger.Debug("channel search missed", zap.String("channel_id", channelID))
	return youtube.NewChannel(channelID), nil
}

// ChannelVideos lists up to maxResults entries of the channel's uploads
// playlist. Entries carry no publish date or statistics.
func (l *Library) ChannelVideos(ctx context.Context, channelID string, maxResults int) ([]youtube.Video, error) {
	playlistID := youtube.UploadsPlaylistID(channelID)
	if playlistID == "" {
		return nil, fmt.Errorf("%w: not a channel id: %q", youtube.ErrInvalidURL, channelID)
	}

	playlist, err := l.yt.GetPlaylistContext(ctx, "https://www.youtube.com/playlist?list="+playlistID)
	if err != nil {
		return nil, classify(err)
	}

	n := len(playlist.Videos)
	if maxResults > 0 {
		n = min(n, maxResults)
	}
	videos := make([]youtube.Video, 0, n)
	for _, entry := range playlist.Videos {
		if maxResults > 0 && len(videos) >= maxResults {
			break
		}
		v := youtube.Video{
			ID:           entry.ID,
			Title:        entry.Title,
			ChannelID:    channelID,
			ChannelTitle: entry.Author,
			ThumbnailURL: bestThumbnail(entry.Thumbnails),
			Source:       youtube.TierLibrary,
		}
		if entry.Duration > 0 {
			v.SetDuration(youtube.FormatDuration(int(entry.Duration.Seconds())))
		}
		videos = append(videos, v)
	}
	return videos, nil
}

// Video fetches one video's player metadata.
func (l *Library) Video(ctx context.Context, videoID string) (*youtube.Video, error) {
	v, err := l.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, classify(err)
	}
	out := toVideo(v)
	return &out, nil
}

// VideoDuration returns the video's length in seconds. Live streams report 0.
func (l *Library) VideoDuration(ctx context.Context, videoID string) (int, error) {
	v, err := l.Video(ctx, videoID)
	if err != nil {
		return 0, err
	}
	return v.DurationSeconds, nil
}

// Transcript reads the caption track in lang. Videos without captions
// yield youtube.ErrNotFound.
func (l *Library) Transcript(ctx context.Context, videoID, lang string) (*youtube.Transcript, error) {
	if lang == "" {
		lang = "en"
	}
	v, err := l.yt.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, classify(err)
	}
	track, err := l.yt.GetTranscriptCtx(ctx, v, lang)
	if err != nil {
		return nil, classify(err)
	}
	if len(track) == 0 {
		return nil, fmt.Errorf("%w: no %s captions for %s", youtube.ErrNotFound, lang, videoID)
	}

	segments := make([]youtube.TranscriptSegment, 0, len(track))
	for _, seg := range track {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, youtube.TranscriptSegment{
			Start:    float64(seg.StartMs) / 1000,
			Duration: float64(seg.Duration) / 1000,
			Text:     text,
		})
	}
	t := youtube.NewTranscript(videoID, lang, segments, youtube.TierLibrary)
	t.DurationSeconds = int(v.Duration / time.Second)
	return t, nil
}

// ResolveChannelID looks a handle URL up through a channel search. A card
// showing the same handle wins; otherwise the top result is used. URLs
// without a handle, and searches with no channel, yield "".
func (l *Library) ResolveChannelID(ctx context.Context, rawURL string) (string, error) {
	handle := youtube.HandleFromURL(rawURL)
	if handle == "" {
		return "", nil
	}
	resp, err := l.inner.Search(ctx, "@"+handle, innertube.ChannelSearchParams)
	if err != nil {
		return "", err
	}
	channels := innertube.Channels(resp)
	if len(channels) == 0 {
		return "", nil
	}
	for _, c := range channels {
		if strings.EqualFold(c.Handle(), handle) {
			return c.ChannelID, nil
		}
	}
	return channels[0].ChannelID, nil
}

func toVideo(v *kkdai.Video) youtube.Video {
	out := youtube.Video{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		ChannelID:    v.ChannelID,
		ChannelTitle: v.Author,
		ViewCount:    int64(v.Views),
		ThumbnailURL: bestThumbnail(v.Thumbnails),
		Source:       youtube.TierLibrary,
	}
	if !v.PublishDate.IsZero() {
		out.PublishedAt = youtube.FormatDate(v.PublishDate)
	}
	if v.Duration > 0 {
		out.SetDuration(youtube.FormatDuration(int(v.Duration / time.Second)))
	}
	return out
}

func bestThumbnail(thumbs kkdai.Thumbnails) string {
	best := ""
	var width uint
	for _, th := range thumbs {
		if th.URL != "" && (best == "" || th.Width > width) {
			best, width = th.URL, th.Width
		}
	}
	return best
}

// classify maps the library's errors onto the shared sentinels. Private,
// removed and unplayable videos count as not found.
func classify(err error) error {
	var status *kkdai.ErrPlayabiltyStatus
	var playlist kkdai.ErrPlaylistStatus
	var code kkdai.ErrUnexpectedStatusCode
	switch {
	case errors.Is(err, kkdai.ErrVideoPrivate),
		errors.Is(err, kkdai.ErrLoginRequired),
		errors.Is(err, kkdai.ErrNotPlayableInEmbed),
		errors.Is(err, kkdai.ErrInvalidPlaylist),
		errors.Is(err, kkdai.ErrTranscriptDisabled),
		errors.As(err, &status),
		errors.As(err, &playlist),
		errors.As(err, &code) && int(code) == http.StatusNotFound:
		return fmt.Errorf("%w: %w", youtube.ErrNotFound, err)
	case errors.Is(err, kkdai.ErrInvalidCharactersInVideoID),
		errors.Is(err, kkdai.ErrVideoIDMinLength):
		return fmt.Errorf("%w: %w", youtube.ErrInvalidURL, err)
	}
	return err
}
