package scrape

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
)

// sortParams maps an API search order to the results page "sp" filter.
// Relevance is the page default and needs none.
var sortParams = map[string]string{
	"date":      "CAI%3D",
	"viewCount": "CAM%3D",
	"rating":    "CAE%3D",
}

// Search reads one page of video results from /results. A PageToken from a
// previous page continues through Innertube. PublishedAfter is applied to
// the parsed publish times, which are only as precise as the page's
// relative dates.
func (s *Scraper) Search(ctx context.Context, q youtube.SearchQuery) (*youtube.SearchPage, error) {
	var data map[string]any
	if q.PageToken != "" {
		var err error
		data, err = s.inner.SearchContinuation(ctx, q.PageToken)
		if err != nil {
			return nil, err
		}
	} else {
		params := url.Values{}
		params.Set("search_query", q.Query)
		if sp, ok := sortParams[q.Order]; ok {
			params.Set("sp", sp)
		}
		p, err := s.fetch(ctx, "/results?"+params.Encode())
		if err != nil {
			return nil, err
		}
		var ok bool
		data, ok = p.initialData()
		if !ok {
			s.logger.Warn("no initial data in results page", zap.String("query", q.Query))
			return &youtube.SearchPage{}, nil
		}
	}

	now := s.now()
	page := &youtube.SearchPage{NextPageToken: innertube.ContinuationToken(data)}
	for _, r := range innertube.Videos(data) {
		if q.MaxResults > 0 && len(page.Videos) >= q.MaxResults {
			break
		}
		v := r.ToVideo(now)
		if !q.PublishedAfter.IsZero() && v.PublishedAt != "" &&
			youtube.ParseDate(v.PublishedAt, now).Before(q.PublishedAfter) {
			continue
		}
		v.Source = youtube.TierScrape
		page.Videos = append(page.Videos, v)
	}
	if len(page.Videos) > 0 {
		page.Source = youtube.TierScrape
	}
	return page, nil
}
