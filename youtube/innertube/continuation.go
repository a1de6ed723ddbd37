package innertube

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// maxPages bounds one pagination run.
const maxPages = 50

// PageFunc loads the page behind a continuation token.
type PageFunc func(ctx context.Context, token string) (map[string]any, error)

// Paginate collects videos from first and keeps following continuation
// tokens through next until limit videos are collected, the tokens run out,
// or a page adds nothing new. On error the videos collected so far are
// returned along with it.
func Paginate(ctx context.Context, first any, next PageFunc, limit int, logger *zap.Logger) ([]VideoRenderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := map[string]bool{}
	var out []VideoRenderer
	add := func(page any) int {
		added := 0
		for _, v := range Videos(page) {
			if seen[v.VideoID] || (limit > 0 && len(out) >= limit) {
				continue
			}
			seen[v.VideoID] = true
			out = append(out, v)
			added++
		}
		return added
	}

	add(first)
	token := ContinuationToken(first)
	tokens := map[string]bool{}

	for page := 1; token != "" && page < maxPages; page++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		if tokens[token] {
			logger.Debug("continuation token repeated", zap.Int("page", page))
			break
		}
		tokens[token] = true

		if err := ctx.Err(); err != nil {
			return out, err
		}
		resp, err := next(ctx, token)
		if err != nil {
			return out, fmt.Errorf("continuation page %d: %w", page, err)
		}
		added := add(resp)
		logger.Debug("continuation page",
			zap.Int("page", page),
			zap.Int("added", added),
			zap.Int("total", len(out)))
		if added == 0 {
			break
		}
		token = ContinuationToken(resp)
	}
	return out, nil
}

// Continue loads the next page of a browse listing.
func (c *Client) Continue(ctx context.Context, token string) (map[string]any, error) {
	return c.Browse(ctx, "", "", token)
}

// ChannelVideos lists up to limit uploads of a channel through the browse
// endpoint's Videos tab, newest first.
func (c *Client) ChannelVideos(ctx context.Context, channelID string, limit int) ([]VideoRenderer, error) {
	first, err := c.Browse(ctx, channelID, VideosTabParams, "")
	if err != nil {
		return nil, err
	}
	return Paginate(ctx, first, c.Continue, limit, c.logger)
}
