package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytaccess/quota"
)

// fakeDataAPI serves the handful of Data API v3 endpoints the API tier uses.
type fakeDataAPI struct {
	mu       sync.Mutex
	keys     []string
	requests []string
	// exhausted keys answer every call with quotaExceeded.
	exhausted map[string]bool
}

func (f *fakeDataAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := q.Get("key")
	endpoint := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.requests = append(f.requests, endpoint)
	exhausted := f.exhausted[key]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if exhausted {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded","domain":"youtube.quota"}]}}`)
		return
	}

	switch endpoint {
	case "channels":
		if q.Get("id") == "UCmissing0000000000000000" {
			fmt.Fprint(w, `{"items":[]}`)
			return
		}
		fmt.Fprintf(w, `{"items":[{"id":%q,"snippet":{"title":"Chan","description":"About","publishedAt":"2015-05-01T10:00:00.123Z","country":"GB","thumbnails":{"high":{"url":"https://i/h.jpg"}}},"statistics":{"subscriberCount":"1200","videoCount":"34","viewCount":"56789"}}]}`, q.Get("id"))
	case "playlistItems":
		if q.Get("playlistId") == "UUgone00000000000000000000" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"code":404,"message":"nf","errors":[{"reason":"playlistNotFound"}]}}`)
			return
		}
		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"items":[{"contentDetails":{"videoId":"vid00000001"}},{"contentDetails":{"videoId":"vid00000002"}}],"nextPageToken":"p2"}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"contentDetails":{"videoId":"vid00000003"}}]}`)
	case "videos":
		var items []map[string]any
		for _, id := range strings.Split(q.Get("id"), ",") {
			if id == "" || id == "gone0000000" {
				continue
			}
			items = append(items, map[string]any{
				"id": id,
				"snippet": map[string]any{
					"title":        "Video " + id,
					"channelId":    "UCchan",
					"channelTitle": "Chan",
					"publishedAt":  "2024-01-02T03:04:05Z",
				},
				"contentDetails": map[string]any{"duration": "PT4M13S"},
				"statistics":     map[string]any{"viewCount": "100", "likeCount": "7", "commentCount": "2"},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items})
	case "commentThreads":
		if q.Get("videoId") == "nocomments0" {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":{"code":403,"message":"disabled","errors":[{"reason":"commentsDisabled"}]}}`)
			return
		}
		if q.Get("textFormat") != "plainText" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if q.Get("pageToken") == "" {
			fmt.Fprint(w, `{"nextPageToken":"c2","items":[
				{"id":"thread-1","snippet":{"totalReplyCount":3,"topLevelComment":{"snippet":{"textDisplay":"Great video","authorDisplayName":"@viewer","authorChannelId":{"value":"UCviewer"},"likeCount":42,"publishedAt":"2024-03-01T12:00:00Z"}}}},
				{"id":"thread-2","snippet":{"topLevelComment":{"snippet":{"textOriginal":"raw text","authorDisplayName":"@other"}}}}
			]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"thread-3","snippet":{"topLevelComment":{"snippet":{"textDisplay":"Third"}}}}]}`)
	case "search":
		if q.Get("type") == "channel" {
			fmt.Fprint(w, `{"items":[{"id":{"kind":"youtube#channel","channelId":"UChandle0000000000000000"}}]}`)
			return
		}
		fmt.Fprintf(w, `{"nextPageToken":"NEXT","items":[{"id":{"kind":"youtube#video","videoId":"srch0000001"},"snippet":{"title":"%s order=%s","channelId":"UCx","channelTitle":"X","publishedAt":"2024-02-01T00:00:00Z"}}]}`,
			q.Get("q"), q.Get("order"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAPI(t *testing.T, keys ...string) (*API, *fakeDataAPI) {
	t.Helper()
	fake := &fakeDataAPI{exhausted: map[string]bool{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ledger := quota.NewLedger(keys, quota.Config{})
	exec := NewExecutor(ledger, ExecutorConfig{
		Factory: NewServiceFactory(srv.Client(), srv.URL+"/"),
		Sleep:   func(context.Context, time.Duration) error { return nil },
	})
	return NewAPI(exec, nil), fake
}

func TestAPI_Channel(t *testing.T) {
	api, fake := newTestAPI(t, "key-1")

	ch, err := api.Channel(context.Background(), "UCabc")
	require.NoError(t, err)

	assert.Equal(t, "UCabc", ch.ID)
	assert.Equal(t, "Chan", ch.Title)
	assert.Equal(t, int64(1200), ch.SubscriberCount)
	assert.Equal(t, int64(34), ch.VideoCount)
	assert.Equal(t, int64(56789), ch.ViewCount)
	assert.Equal(t, "2015-05-01T10:00:00Z", ch.JoinDate)
	assert.Equal(t, "GB", ch.Country)
	assert.Equal(t, "https://i/h.jpg", ch.Thumbnails["high"])
	assert.Equal(t, TierAPI, ch.Source)
	assert.Equal(t, []string{"key-1"}, fake.keys)
}

func TestAPI_ChannelNotFound(t *testing.T) {
	api, _ := newTestAPI(t, "key-1")

	_, err := api.Channel(context.Background(), "UCmissing0000000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAPI_RotatesKeysOnQuotaExceeded(t *testing.T) {
	api, fake := newTestAPI(t, "key-1", "key-2")
	fake.exhausted["key-1"] = true

	_, err := api.Channel(context.Background(), "UCabc")
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1", "key-2"}, fake.keys)

	snap := api.exec.Ledger().Snapshot()
	assert.Equal(t, 0, snap[0].Remaining)
	assert.False(t, snap[0].CooldownUntil.IsZero())
}

func TestAPI_AllKeysExhausted(t *testing.T) {
	api, fake := newTestAPI(t, "key-1", "key-2")
	fake.exhausted["key-1"] = true
	fake.exhausted["key-2"] = true

	_, err := api.Channel(context.Background(), "UCabc")
	assert.ErrorIs(t, err, ErrQuotaExhausted)
}

func TestAPI_ChannelVideosPagesAndEnriches(t *testing.T) {
	api, fake := newTestAPI(t, "key-1")

	videos, err := api.ChannelVideos(context.Background(), "UCchan", 10)
	require.NoError(t, err)
	require.Len(t, videos, 3)

	assert.Equal(t, "vid00000001", videos[0].ID)
	assert.Equal(t, "PT4M13S", videos[0].Duration)
	assert.Equal(t, 253, videos[0].DurationSeconds)
	assert.Equal(t, int64(100), videos[0].ViewCount)
	assert.Equal(t, int64(7), videos[0].LikeCount)
	assert.Equal(t, "2024-01-02T03:04:05Z", videos[0].PublishedAt)
	assert.Equal(t, []string{"playlistItems", "playlistItems", "videos"}, fake.requests)
}

func TestAPI_ChannelVideosRespectsMax(t *testing.T) {
	api, fake := newTestAPI(t, "key-1")

	videos, err := api.ChannelVideos(context.Background(), "UCchan", 2)
	require.NoError(t, err)
	assert.Len(t, videos, 2)
	assert.Equal(t, []string{"playlistItems", "videos"}, fake.requests)
}

func TestAPI_ChannelVideosMissingPlaylist(t *testing.T) {
	api, _ := newTestAPI(t, "key-1")

	_, err := api.ChannelVideos(context.Background(), "UCgone00000000000000000000", 5)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAPI_ChannelVideosRejectsNonChannelID(t *testing.T) {
	api, _ := newTestAPI(t, "key-1")

	_, err := api.ChannelVideos(context.Background(), "@someone", 5)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestAPI_Search(t *testing.T) {
	api, _ := newTestAPI(t, "key-1")

	page, err := api.Search(context.Background(), SearchQuery{Query: "go", MaxResults: 5, Order: "date"})
	require.NoError(t, err)

	assert.Equal(t, "NEXT", page.NextPageToken)
	require.Len(t, page.Videos, 1)
	assert.Equal(t, "srch0000001", page.Videos[0].ID)
	assert.Equal(t, "go order=date", page.Videos[0].Title)
	assert.Empty(t, page.Videos[0].Duration)

	assert.Equal(t, 10000-CostSearch, api.exec.Ledger().Snapshot()[0].Remaining)
}

func TestAPI_VideoAndDuration(t *testing.T) {
	api, _ := newTestAPI(t, "key-1")
	ctx := context.Background()

	seconds, err := api.VideoDuration(ctx, "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, 253, seconds)

	v, err := api.Video(ctx, "abcdefghijk")
	require.NoError(t, err)
	assert.Equal(t, "Video abcdefghijk", v.Title)

	_, err = api.Video(ctx, "gone0000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAPI_ChannelIDByHandle(t *testing.T) {
	api, _ := newTestAPI(t, "key-1")

	id, err := api.ChannelIDByHandle(context.Background(), "@someone")
	require.NoError(t, err)
	assert.Equal(t, "UChandle0000000000000000", id)
}

func TestAPI_VideoComments(t *testing.T) {
	api, fake := newTestAPI(t, "key-1")
	api.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

	comments, err := api.VideoComments(context.Background(), "vid00000001", 10)
	require.NoError(t, err)
	require.Len(t, comments, 3)

	assert.Equal(t, Comment{
		ID:              "thread-1",
		Text:            "Great video",
		Author:          "@viewer",
		AuthorChannelID: "UCviewer",
		LikeCount:       42,
		ReplyCount:      3,
		PublishedAt:     "2024-03-01T12:00:00Z",
		Source:          TierAPI,
	}, comments[0])
	assert.Equal(t, "raw text", comments[1].Text)
	assert.Equal(t, "thread-3", comments[2].ID)
	assert.Equal(t, []string{"commentThreads", "commentThreads"}, fake.requests)
	assert.Equal(t, quota.DefaultDailyCeiling-2*CostList, api.exec.Ledger().Snapshot()[0].Remaining, "one unit per page")
}

func TestAPI_VideoCommentsStopsAtMax(t *testing.T) {
	api, fake := newTestAPI(t, "key-1")

	comments, err := api.VideoComments(context.Background(), "vid00000001", 2)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
	assert.Equal(t, []string{"commentThreads"}, fake.requests)
}

func TestAPI_VideoCommentsDisabled(t *testing.T) {
	api, fake := newTestAPI(t, "key-1", "key-2")

	_, err := api.VideoComments(context.Background(), "nocomments0", 10)
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"key-1"}, fake.keys, "disabled comments are not retried on another key")
}
