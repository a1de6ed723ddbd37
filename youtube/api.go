package youtube

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	ytapi "google.golang.org/api/youtube/v3"
)

// maxPageSize is the Data API's per-page ceiling for list calls.
const maxPageSize = 50

// API is the Data API v3 tier. Every request goes through the Executor, so
// each one is paid for in the quota ledger before it is sent.
type API struct {
	exec   *Executor
	logger *zap.Logger
	now    func() time.Time
}

// NewAPI returns an API tier dispatching through exec.
func NewAPI(exec *Executor, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		exec:   exec,
		logger: logger.Named("api"),
		now:    time.Now,
	}
}

// Channel fetches channel metadata with channels.list. A channel the API
// does not know yields ErrNotFound.
func (a *API) Channel(ctx context.Context, channelID string) (*Channel, error) {
	var resp *ytapi.ChannelListResponse
	err := a.exec.Execute(ctx, "channels.list", CostList, func(ctx context.Context, svc *ytapi.Service) error {
		var err error
		resp, err = svc.Channels.List([]string{"snippet", "statistics"}).
			Id(channelID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return a.channelFromAPI(resp.Items[0]), nil
}

func (a *API) channelFromAPI(item *ytapi.Channel) *Channel {
	ch := NewChannel(item.Id)
	if s := item.Snippet; s != nil {
		ch.Title = s.Title
		ch.Description = s.Description
		if s.PublishedAt != "" {
			ch.JoinDate = FormatDate(ParseDate(s.PublishedAt, a.now()))
		}
		if s.Country != "" {
			ch.Country = s.Country
		}
		if t := s.Thumbnails; t != nil {
			for size, th := range map[string]*ytapi.Thumbnail{"default": t.Default, "medium": t.Medium, "high": t.High} {
				if th != nil && th.Url != "" {
					ch.Thumbnails[size] = th.Url
				}
			}
		}
	}
	if st := item.Statistics; st != nil {
		ch.SubscriberCount = int64(st.SubscriberCount)
		ch.VideoCount = int64(st.VideoCount)
		ch.ViewCount = int64(st.ViewCount)
	}
	ch.Source = TierAPI
	return ch
}

// ChannelVideos lists up to maxResults uploads of a channel, newest first.
// The uploads playlist is derived from the channel id, and the listing is
// then enriched with videos.list for durations and statistics.
func (a *API) ChannelVideos(ctx context.Context, channelID string, maxResults int) ([]Video, error) {
	playlistID := UploadsPlaylistID(channelID)
	if playlistID == "" {
		return nil, fmt.Errorf("%w: not a channel id: %q", ErrInvalidURL, channelID)
	}

	var ids []string
	pageToken := ""
	for len(ids) < maxResults {
		size := min(maxPageSize, maxResults-len(ids))
		var resp *ytapi.PlaylistItemListResponse
		err := a.exec.Execute(ctx, "playlistItems.list", CostList, func(ctx context.Context, svc *ytapi.Service) error {
			var err error
			resp, err = svc.PlaylistItems.List([]string{"contentDetails"}).
				PlaylistId(playlistID).
				MaxResults(int64(size)).
				PageToken(pageToken).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
				ids = append(ids, item.ContentDetails.VideoId)
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}

	a.logger.Debug("listed uploads",
		zap.String("channel_id", channelID),
		zap.Int("count", len(ids)))
	return a.Videos(ctx, ids)
}

// Videos fetches full records for ids in batches of 50. Ids the API does not
// return are skipped. Order follows ids.
func (a *API) Videos(ctx context.Context, ids []string) ([]Video, error) {
	byID := make(map[string]Video, len(ids))
	for start := 0; start < len(ids); start += maxPageSize {
		batch := ids[start:min(start+maxPageSize, len(ids))]
		var resp *ytapi.VideoListResponse
		err := a.exec.Execute(ctx, "videos.list", CostList, func(ctx context.Context, svc *ytapi.Service) error {
			var err error
			resp, err = svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
				Id(strings.Join(batch, ",")).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			byID[item.Id] = a.videoFromAPI(item)
		}
	}

	videos := make([]Video, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			videos = append(videos, v)
		}
	}
	return videos, nil
}

// Video fetches one video. A video the API does not know yields ErrNotFound.
func (a *API) Video(ctx context.Context, videoID string) (*Video, error) {
	videos, err := a.Videos(ctx, []string{videoID})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	return &videos[0], nil
}

// VideoDuration returns a video's length in seconds from contentDetails.
func (a *API) VideoDuration(ctx context.Context, videoID string) (int, error) {
	var resp *ytapi.VideoListResponse
	err := a.exec.Execute(ctx, "videos.list", CostList, func(ctx context.Context, svc *ytapi.Service) error {
		var err error
		resp, err = svc.Videos.List([]string{"contentDetails"}).
			Id(videoID).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return 0, err
	}
	if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil {
		return 0, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	return ParseDuration(resp.Items[0].ContentDetails.Duration), nil
}

func (a *API) videoFromAPI(item *ytapi.Video) Video {
	v := Video{ID: item.Id, Source: TierAPI}
	if s := item.Snippet; s != nil {
		v.Title = s.Title
		v.Description = s.Description
		v.ChannelID = s.ChannelId
		v.ChannelTitle = s.ChannelTitle
		v.PublishedAt = FormatDate(ParseDate(s.PublishedAt, a.now()))
		v.ThumbnailURL = bestThumbnail(s.Thumbnails)
	}
	if cd := item.ContentDetails; cd != nil {
		v.SetDuration(cd.Duration)
	}
	if st := item.Statistics; st != nil {
		v.ViewCount = int64(st.ViewCount)
		v.LikeCount = int64(st.LikeCount)
		v.CommentCount = int64(st.CommentCount)
	}
	return v
}

// Search runs search.list restricted to videos. Results carry no duration.
func (a *API) Search(ctx context.Context, q SearchQuery) (*SearchPage, error) {
	var resp *ytapi.SearchListResponse
	err := a.exec.Execute(ctx, "search.list", CostSearch, func(ctx context.Context, svc *ytapi.Service) error {
		call := svc.Search.List([]string{"snippet"}).
			Q(q.Query).
			Type("video").
			MaxResults(int64(clampPageSize(q.MaxResults)))
		if q.Order != "" {
			call = call.Order(q.Order)
		}
		if !q.PublishedAfter.IsZero() {
			call = call.PublishedAfter(q.PublishedAfter.UTC().Format(time.RFC3339))
		}
		if q.PageToken != "" {
			call = call.PageToken(q.PageToken)
		}
		var err error
		resp, err = call.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	page := &SearchPage{NextPageToken: resp.NextPageToken, Source: TierAPI}
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		v := Video{ID: item.Id.VideoId, Source: TierAPI}
		if s := item.Snippet; s != nil {
			v.Title = s.Title
			v.Description = s.Description
			v.ChannelID = s.ChannelId
			v.ChannelTitle = s.ChannelTitle
			v.PublishedAt = FormatDate(ParseDate(s.PublishedAt, a.now()))
			v.ThumbnailURL = bestThumbnail(s.Thumbnails)
		}
		page.Videos = append(page.Videos, v)
	}
	return page, nil
}

// ChannelIDByHandle resolves "@handle" with search.list type=channel.
// It is the most expensive way to resolve a handle and runs last.
func (a *API) ChannelIDByHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(handle, "@")
	var resp *ytapi.SearchListResponse
	err := a.exec.Execute(ctx, "search.list", CostSearch, func(ctx context.Context, svc *ytapi.Service) error {
		var err error
		resp, err = svc.Search.List([]string{"id"}).
			Q("@" + handle).
			Type("channel").
			MaxResults(1).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].Id == nil || resp.Items[0].Id.ChannelId == "" {
		return "", fmt.Errorf("%w: handle @%s", ErrNotFound, handle)
	}
	return resp.Items[0].Id.ChannelId, nil
}

// VideoComments lists up to maxResults top-level comments with
// commentThreads.list, most relevant first, as plain text. Each page costs
// one unit. A video with comments turned off fails permanently with
// ErrNotFound.
func (a *API) VideoComments(ctx context.Context, videoID string, maxResults int) ([]Comment, error) {
	if maxResults <= 0 {
		maxResults = 20
	}

	var comments []Comment
	pageToken := ""
	for len(comments) < maxResults {
		size := min(maxPageSize, maxResults-len(comments))
		var resp *ytapi.CommentThreadListResponse
		err := a.exec.Execute(ctx, "commentThreads.list", CostList, func(ctx context.Context, svc *ytapi.Service) error {
			var err error
			resp, err = svc.CommentThreads.List([]string{"snippet"}).
				VideoId(videoID).
				MaxResults(int64(size)).
				TextFormat("plainText").
				PageToken(pageToken).
				Context(ctx).
				Do()
			return err
		})
		if err != nil {
			if hasReason(err, "commentsDisabled") {
				return nil, fmt.Errorf("%w: comments disabled on %s: %w", ErrNotFound, videoID, err)
			}
			return nil, err
		}
		for _, item := range resp.Items {
			if c, ok := a.commentFromAPI(item); ok {
				comments = append(comments, c)
			}
		}
		pageToken = resp.NextPageToken
		if pageToken == "" || len(resp.Items) == 0 {
			break
		}
	}
	if len(comments) > maxResults {
		comments = comments[:maxResults]
	}

	a.logger.Debug("listed comments",
		zap.String("video_id", videoID),
		zap.Int("count", len(comments)))
	return comments, nil
}

func (a *API) commentFromAPI(item *ytapi.CommentThread) (Comment, bool) {
	if item.Snippet == nil || item.Snippet.TopLevelComment == nil || item.Snippet.TopLevelComment.Snippet == nil {
		return Comment{}, false
	}
	s := item.Snippet.TopLevelComment.Snippet
	c := Comment{
		ID:          item.Id,
		Text:        s.TextDisplay,
		Author:      s.AuthorDisplayName,
		LikeCount:   s.LikeCount,
		ReplyCount:  item.Snippet.TotalReplyCount,
		PublishedAt: FormatDate(ParseDate(s.PublishedAt, a.now())),
		Source:      TierAPI,
	}
	if c.Text == "" {
		c.Text = s.TextOriginal
	}
	if s.AuthorChannelId != nil {
		c.AuthorChannelID = s.AuthorChannelId.Value
	}
	return c, true
}

func bestThumbnail(t *ytapi.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, th := range []*ytapi.Thumbnail{t.High, t.Medium, t.Default} {
		if th != nil && th.Url != "" {
			return th.Url
		}
	}
	return ""
}

func clampPageSize(n int) int {
	if n <= 0 {
		return 25
	}
	return min(n, maxPageSize)
}
