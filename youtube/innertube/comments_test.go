package innertube

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytaccess/youtube"
)

const watchNext = `{"contents": {"twoColumnWatchNextResults": {
  "results": {"results": {"contents": [
    {"videoPrimaryInfoRenderer": {"title": {"runs": [{"text": "A video"}]}}},
    {"itemSectionRenderer": {"sectionIdentifier": "comment-item-section", "contents": [
      {"continuationItemRenderer": {"continuationEndpoint": {"continuationCommand": {"token": "CMT-1"}}}}
    ]}}
  ]}},
  "secondaryResults": {"secondaryResults": {"results": [
    {"itemSectionRenderer": {"sectionIdentifier": "watch-next-results", "contents": [
      {"continuationItemRenderer": {"continuationEndpoint": {"continuationCommand": {"token": "RELATED"}}}}
    ]}}
  ]}}
}}}`

// entityPage is a current-layout comment page: threads reference comment
// ids, bodies sit in frameworkUpdates in a different order.
const entityPage = `{
  "onResponseReceivedEndpoints": [
    {"reloadContinuationItemsCommand": {"slot": "RELOAD_CONTINUATION_SLOT_HEADER", "continuationItems": [
      {"commentsHeaderRenderer": {"sortMenu": {"sortFilterSubMenuRenderer": {"subMenuItems": [
        {"serviceEndpoint": {"continuationCommand": {"token": "SORT-NEWEST"}}}
      ]}}}}
    ]}},
    {"reloadContinuationItemsCommand": {"slot": "RELOAD_CONTINUATION_SLOT_BODY", "continuationItems": [
      {"commentThreadRenderer": {
        "commentViewModel": {"commentViewModel": {"commentId": "Ugy2", "commentKey": "k2"}},
        "replies": {"commentRepliesRenderer": {"contents": [
          {"continuationItemRenderer": {"continuationEndpoint": {"continuationCommand": {"token": "REPLIES"}}}}
        ]}}
      }},
      {"commentThreadRenderer": {"commentViewModel": {"commentViewModel": {"commentId": "Ugy1", "commentKey": "k1"}}}},
      {"continuationItemRenderer": {"continuationEndpoint": {"continuationCommand": {"token": "CMT-2"}}}}
    ]}}
  ],
  "frameworkUpdates": {"entityBatchUpdate": {"mutations": [
    {"payload": {"commentEntityPayload": {
      "properties": {"commentId": "Ugy1", "content": {"content": "First!"}, "publishedTime": "2 days ago"},
      "author": {"channelId": "UCone", "displayName": "@one"},
      "toolbar": {"likeCountNotliked": "1.2K", "replyCount": "4"}
    }}},
    {"payload": {"commentEntityPayload": {
      "properties": {"commentId": "Ugy2", "content": {"content": "Second"}, "publishedTime": "3 hours ago (edited)"},
      "author": {"channelId": "UCtwo", "displayName": "@two"},
      "toolbar": {"likeCountNotliked": "", "replyCount": ""}
    }}}
  ]}}
}`

// rendererPage is an older-layout page with the body inline.
const rendererPage = `{"onResponseReceivedEndpoints": [{"appendContinuationItemsAction": {"continuationItems": [
  {"commentThreadRenderer": {"comment": {"commentRenderer": {
    "commentId": "Ugy3",
    "contentText": {"runs": [{"text": "Old "}, {"text": "layout"}]},
    "authorText": {"simpleText": "@three"},
    "authorEndpoint": {"browseEndpoint": {"browseId": "UCthree"}},
    "voteCount": {"simpleText": "15"},
    "publishedTimeText": {"runs": [{"text": "1 week ago"}]},
    "replyCount": 2
  }}}},
  {"commentThreadRenderer": {"comment": {"commentRenderer": {"commentId": "Ugy1", "contentText": {"simpleText": "again"}}}}}
]}}]}`

var commentsNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type nextServer struct {
	mu       sync.Mutex
	requests []nextRequest
	// pages is keyed by continuation, or "video:" + id for the first call.
	pages map[string]string
}

func (s *nextServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req nextRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	key := req.Continuation
	if key == "" {
		key = "video:" + req.VideoID
	}
	page, ok := s.pages[key]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = io.WriteString(w, page)
}

func TestCommentsToken(t *testing.T) {
	assert.Equal(t, "CMT-1", CommentsToken(decodeFixture(t, watchNext)))
	assert.Empty(t, CommentsToken(decodeFixture(t, gridPage)))
}

func TestComments_EntityLayoutKeepsThreadOrder(t *testing.T) {
	comments := Comments(decodeFixture(t, entityPage), commentsNow)
	require.Len(t, comments, 2)

	assert.Equal(t, youtube.Comment{
		ID:              "Ugy2",
		Text:            "Second",
		Author:          "@two",
		AuthorChannelID: "UCtwo",
		PublishedAt:     "2024-06-10T09:00:00Z",
	}, comments[0])
	assert.Equal(t, youtube.Comment{
		ID:              "Ugy1",
		Text:            "First!",
		Author:          "@one",
		AuthorChannelID: "UCone",
		LikeCount:       1200,
		ReplyCount:      4,
		PublishedAt:     "2024-06-08T12:00:00Z",
	}, comments[1])
}

func TestComments_RendererLayout(t *testing.T) {
	comments := Comments(decodeFixture(t, rendererPage), commentsNow)
	require.Len(t, comments, 2)

	assert.Equal(t, youtube.Comment{
		ID:              "Ugy3",
		Text:            "Old layout",
		Author:          "@three",
		AuthorChannelID: "UCthree",
		LikeCount:       15,
		ReplyCount:      2,
		PublishedAt:     "2024-06-03T12:00:00Z",
	}, comments[0])
}

func TestNextCommentsToken(t *testing.T) {
	assert.Equal(t, "CMT-2", nextCommentsToken(decodeFixture(t, entityPage)),
		"sort menu and reply loaders are not the next page")
	assert.Empty(t, nextCommentsToken(decodeFixture(t, rendererPage)))
}

func TestClient_VideoComments(t *testing.T) {
	ns := &nextServer{pages: map[string]string{
		"video:dQw4w9WgXcQ": watchNext,
		"CMT-1":             entityPage,
		"CMT-2":             rendererPage,
	}}
	server := httptest.NewServer(ns)
	defer server.Close()

	c := NewClient(testHTTPClient(), WithBaseURL(server.URL))
	comments, err := c.VideoComments(context.Background(), "dQw4w9WgXcQ", 0, commentsNow)
	require.NoError(t, err)

	var ids []string
	for _, cm := range comments {
		ids = append(ids, cm.ID)
	}
	assert.Equal(t, []string{"Ugy2", "Ugy1", "Ugy3"}, ids, "duplicates across pages are dropped")

	require.Len(t, ns.requests, 3)
	assert.Equal(t, "dQw4w9WgXcQ", ns.requests[0].VideoID)
	assert.Equal(t, "WEB", ns.requests[0].Context.Client.ClientName)
	assert.Equal(t, "CMT-1", ns.requests[1].Continuation)
	assert.Empty(t, ns.requests[1].VideoID)
	assert.Equal(t, "CMT-2", ns.requests[2].Continuation)
}

func TestClient_VideoCommentsStopsAtLimit(t *testing.T) {
	ns := &nextServer{pages: map[string]string{
		"video:dQw4w9WgXcQ": watchNext,
		"CMT-1":             entityPage,
	}}
	server := httptest.NewServer(ns)
	defer server.Close()

	c := NewClient(testHTTPClient(), WithBaseURL(server.URL))
	comments, err := c.VideoComments(context.Background(), "dQw4w9WgXcQ", 1, commentsNow)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Ugy2", comments[0].ID)
	assert.Len(t, ns.requests, 2)
}

func TestClient_VideoCommentsWithoutSection(t *testing.T) {
	ns := &nextServer{pages: map[string]string{"video:dQw4w9WgXcQ": `{"contents": {}}`}}
	server := httptest.NewServer(ns)
	defer server.Close()

	c := NewClient(testHTTPClient(), WithBaseURL(server.URL))
	comments, err := c.VideoComments(context.Background(), "dQw4w9WgXcQ", 10, commentsNow)
	require.NoError(t, err)
	assert.Nil(t, comments)
	assert.Len(t, ns.requests, 1)
}

func TestPaginateComments_ReturnsPartialOnError(t *testing.T) {
	boom := errors.New("boom")
	next := func(_ context.Context, token string) (map[string]any, error) {
		if token == "CMT-1" {
			return decodeFixture(t, entityPage), nil
		}
		return nil, boom
	}

	comments, err := PaginateComments(context.Background(), "CMT-1", next, 0, commentsNow, nil)
	require.ErrorIs(t, err, boom)
	assert.Len(t, comments, 2)
}
