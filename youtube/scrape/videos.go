package scrape

import (
	"context"

	"go.uber.org/zap"

	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
)

// ChannelVideos lists up to maxResults uploads of a channel. The Videos tab
// is tried first, then the channel home page, then a direct browse request.
// When every page is missing the error wraps youtube.ErrNotFound; when the
// pages load but list nothing the result is empty with a nil error.
func (s *Scraper) ChannelVideos(ctx context.Context, channelID string, maxResults int) ([]youtube.Video, error) {
	log := s.logger.With(zap.String("channel_id", channelID))

	var notFound error
	pagesLoaded := 0
	for _, path := range []string{"/channel/" + channelID + "/videos", "/channel/" + channelID} {
		p, err := s.fetch(ctx, path)
		if err != nil {
			if isNotFound(err) {
				notFound = err
				continue
			}
			return nil, err
		}
		pagesLoaded++

		data, ok := p.initialData()
		if !ok {
			log.Warn("no initial data in page", zap.String("path", path))
			continue
		}

		renderers, err := innertube.Paginate(ctx, data, s.inner.Continue, maxResults, s.logger)
		if err != nil {
			log.Warn("continuation failed", zap.String("path", path), zap.Error(err))
		}
		if len(renderers) > 0 {
			return s.toVideos(renderers, channelID, channelTitle(data)), nil
		}
	}

	if pagesLoaded == 0 && notFound != nil {
		return nil, notFound
	}

	renderers, err := s.inner.ChannelVideos(ctx, channelID, maxResults)
	if err != nil {
		return nil, err
	}
	if len(renderers) == 0 {
		log.Warn("channel pages listed no videos")
		return nil, nil
	}
	return s.toVideos(renderers, channelID, ""), nil
}

func channelTitle(data map[string]any) string {
	var m innertube.ChannelMetadataRenderer
	if innertube.FindAs(data, "channelMetadataRenderer", &m) {
		return m.Title
	}
	return ""
}

func (s *Scraper) toVideos(renderers []innertube.VideoRenderer, channelID, title string) []youtube.Video {
	now := s.now()
	videos := make([]youtube.Video, 0, len(renderers))
	for _, r := range renderers {
		v := r.ToVideo(now)
		if v.ChannelID == "" {
			v.ChannelID = channelID
		}
		if v.ChannelTitle == "" {
			v.ChannelTitle = title
		}
		v.Source = youtube.TierScrape
		videos = append(videos, v)
	}
	return videos
}
