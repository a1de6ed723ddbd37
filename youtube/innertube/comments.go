package innertube

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ytaccess/youtube"
)

// commentsSectionID marks the item section of a watch page that holds the
// comments loader.
const commentsSectionID = "comment-item-section"

type nextRequest struct {
	Context      requestContext `json:"context"`
	VideoID      string         `json:"videoId,omitempty"`
	Continuation string         `json:"continuation,omitempty"`
}

// Next fetches the watch-next response of a video. It carries the token
// that loads the comments, not the comments themselves.
func (c *Client) Next(ctx context.Context, videoID string) (map[string]any, error) {
	return c.post(ctx, "next", nextRequest{Context: c.context(), VideoID: videoID})
}

// NextContinuation loads the page behind a token taken from a watch-next
// response, such as a page of comments.
func (c *Client) NextContinuation(ctx context.Context, token string) (map[string]any, error) {
	return c.post(ctx, "next", nextRequest{Context: c.context(), Continuation: token})
}

// VideoComments lists up to limit top-level comments of a video through the
// next endpoint. A video without a comments section yields nil.
func (c *Client) VideoComments(ctx context.Context, videoID string, limit int, now time.Time) ([]youtube.Comment, error) {
	first, err := c.Next(ctx, videoID)
	if err != nil {
		return nil, err
	}
	token := CommentsToken(first)
	if token == "" {
		c.logger.Debug("no comments section", zap.String("video_id", videoID))
		return nil, nil
	}
	return PaginateComments(ctx, token, c.NextContinuation, limit, now, c.logger)
}

// CommentsToken returns the token that loads the first page of comments
// from a watch page's initial data or a watch-next response, or "".
func CommentsToken(node any) string {
	for _, raw := range Collect(node, "itemSectionRenderer") {
		section, ok := raw.(map[string]any)
		if !ok || section["sectionIdentifier"] != commentsSectionID {
			continue
		}
		if token := ContinuationToken(section); token != "" {
			return token
		}
	}
	return ""
}

// nextCommentsToken returns the token of the following comment page. It sits
// in the trailing continuationItemRenderer of a continuationItems list;
// reply loaders are nested inside threads and are not considered.
func nextCommentsToken(page any) string {
	for _, raw := range Collect(page, "continuationItems") {
		items, ok := raw.([]any)
		if !ok || len(items) == 0 {
			continue
		}
		last, ok := items[len(items)-1].(map[string]any)
		if !ok {
			continue
		}
		r, ok := last["continuationItemRenderer"]
		if !ok {
			continue
		}
		if cmd, ok := Find(r, "continuationCommand"); ok {
			if m, ok := cmd.(map[string]any); ok {
				if token, ok := m["token"].(string); ok && token != "" {
					return token
				}
			}
		}
	}
	return ""
}

// PaginateComments collects comments starting with the page behind token
// until limit comments are collected, the tokens run out, or a page adds
// nothing new. On error the comments collected so far are returned along
// with it.
func PaginateComments(ctx context.Context, token string, next PageFunc, limit int, now time.Time, logger *zap.Logger) ([]youtube.Comment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	seen := map[string]bool{}
	tokens := map[string]bool{}
	var out []youtube.Comment

	for page := 0; token != "" && page < maxPages; page++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		if tokens[token] {
			logger.Debug("comment token repeated", zap.Int("page", page))
			break
		}
		tokens[token] = true

		if err := ctx.Err(); err != nil {
			return out, err
		}
		resp, err := next(ctx, token)
		if err != nil {
			return out, fmt.Errorf("comment page %d: %w", page, err)
		}

		added := 0
		for _, c := range Comments(resp, now) {
			if seen[c.ID] || (limit > 0 && len(out) >= limit) {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			added++
		}
		logger.Debug("comment page",
			zap.Int("page", page),
			zap.Int("added", added),
			zap.Int("total", len(out)))
		if added == 0 {
			break
		}
		token = nextCommentsToken(resp)
	}
	return out, nil
}

// Comments returns the top-level comments in one page. Current pages keep
// comment bodies in frameworkUpdates entity payloads and only reference
// them from the threads; older pages inline a commentRenderer per thread.
// Thread order is kept in both cases.
func Comments(node any, now time.Time) []youtube.Comment {
	payloads := map[string]CommentEntityPayload{}
	var payloadOrder []string
	for _, raw := range Collect(node, "commentEntityPayload") {
		var p CommentEntityPayload
		if err := Decode(raw, &p); err != nil || p.Properties.CommentID == "" {
			continue
		}
		if _, dup := payloads[p.Properties.CommentID]; !dup {
			payloadOrder = append(payloadOrder, p.Properties.CommentID)
		}
		payloads[p.Properties.CommentID] = p
	}

	var out []youtube.Comment
	if len(payloads) > 0 {
		var threadOrder []string
		for _, raw := range Collect(node, "commentViewModel") {
			if id, ok := Find(raw, "commentId"); ok {
				if s, ok := id.(string); ok {
					threadOrder = append(threadOrder, s)
				}
			}
		}
		if len(threadOrder) == 0 {
			threadOrder = payloadOrder
		}
		for _, id := range threadOrder {
			if p, ok := payloads[id]; ok {
				out = append(out, p.ToComment(now))
			}
		}
		return out
	}

	for _, raw := range Collect(node, "commentRenderer") {
		var r CommentRenderer
		if err := Decode(raw, &r); err != nil || r.CommentID == "" {
			continue
		}
		out = append(out, r.ToComment(now))
	}
	return out
}
