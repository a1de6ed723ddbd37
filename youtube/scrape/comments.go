package scrape

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
)

// VideoComments lists up to maxResults top-level comments of a video. The
// comments loader is read from the watch page; when the page does not carry
// one, the watch-next endpoint is asked directly. A video without comments
// yields an empty result and a nil error.
func (s *Scraper) VideoComments(ctx context.Context, videoID string, maxResults int) ([]youtube.Comment, error) {
	log := s.logger.With(zap.String("video_id", videoID))
	now := s.now()

	var comments []youtube.Comment
	p, err := s.fetch(ctx, "/watch?v="+url.QueryEscape(videoID))
	if err != nil {
		return nil, err
	}

	token := ""
	if data, ok := p.initialData(); ok {
		token = innertube.CommentsToken(data)
	}
	if token != "" {
		comments, err = innertube.PaginateComments(ctx, token, s.inner.NextContinuation, maxResults, now, s.logger)
		if err != nil {
			log.Warn("comment continuation failed", zap.Int("collected", len(comments)), zap.Error(err))
			if len(comments) == 0 {
				return nil, err
			}
		}
	} else {
		log.Debug("no comments loader in watch page")
		comments, err = s.inner.VideoComments(ctx, videoID, maxResults, now)
		if err != nil {
			return nil, err
		}
	}

	for i := range comments {
		comments[i].Source = youtube.TierScrape
	}
	return comments, nil
}
