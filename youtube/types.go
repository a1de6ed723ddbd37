// Package youtube provides the canonical YouTube records, the normalizers that
// build them, and the quota-aware Data API tier.
package youtube

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by every tier.
var (
	ErrNotFound       = errors.New("youtube: not found")
	ErrInvalidURL     = errors.New("youtube: invalid URL")
	ErrQuotaExhausted = errors.New("youtube: api quota exhausted")
	ErrRateLimited    = errors.New("youtube: rate limited")
	ErrTransient      = errors.New("youtube: transient network error")
)

// Tier names as they appear in records, logs and metrics.
const (
	TierAPI     = "api"
	TierScrape  = "scrape"
	TierLibrary = "library"
	TierPattern = "pattern"
)

// UnknownCountry is used when no tier knows the channel's country.
const UnknownCountry = "Unknown"

// Channel is the canonical channel record. Every tier fills the same shape;
// fields a tier cannot see stay at their zero value.
type Channel struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	SubscriberCount int64             `json:"subscriberCount"`
	VideoCount      int64             `json:"videoCount"`
	ViewCount       int64             `json:"viewCount"`
	JoinDate        string            `json:"joinDate"`
	Thumbnails      map[string]string `json:"thumbnails"`
	Country         string            `json:"country"`

	// Source is the tier that produced the record, empty when none did.
	Source string `json:"source,omitempty"`
}

// NewChannel returns a channel record with the defaults every tier starts from.
func NewChannel(id string) *Channel {
	return &Channel{
		ID:         id,
		Thumbnails: map[string]string{},
		Country:    UnknownCountry,
	}
}

// IsEmpty reports whether the record carries nothing beyond its id.
func (c *Channel) IsEmpty() bool {
	return c == nil || c.Title == ""
}

// Video is the canonical video record. Search listings leave Duration empty.
type Video struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ChannelID       string `json:"channelId"`
	ChannelTitle    string `json:"channelTitle"`
	PublishedAt     string `json:"publishedAt"`
	Duration        string `json:"duration,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	ViewCount       int64  `json:"viewCount"`
	LikeCount       int64  `json:"likeCount"`
	CommentCount    int64  `json:"commentCount"`
	ThumbnailURL    string `json:"thumbnailUrl"`
	Source          string `json:"source,omitempty"`
}

// SetDuration stores an ISO-8601 duration and derives DurationSeconds from it.
// It is the only place DurationSeconds is written.
func (v *Video) SetDuration(iso string) {
	v.Duration = iso
	v.DurationSeconds = ParseDuration(iso)
}

// URL returns the watch URL for the video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// SearchQuery describes one search request.
type SearchQuery struct {
	Query          string
	MaxResults     int
	Order          string // relevance, date, viewCount or rating
	PublishedAfter time.Time
	PageToken      string
}

// SearchPage is one page of search results.
type SearchPage struct {
	Videos        []Video `json:"videos"`
	NextPageToken string  `json:"nextPageToken"`
	Source        string  `json:"source,omitempty"`
}

// TranscriptSegment is one timed caption line.
type TranscriptSegment struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Transcript is the caption text of a video.
type Transcript struct {
	VideoID         string              `json:"videoId"`
	Language        string              `json:"language"`
	Text            string              `json:"transcript"`
	Segments        []TranscriptSegment `json:"segments,omitempty"`
	DurationSeconds int                 `json:"duration"`
	Source          string              `json:"source,omitempty"`
}

// Comment is one top-level comment on a video. Replies are not fetched.
type Comment struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	Author          string `json:"author"`
	AuthorChannelID string `json:"author_channel_id,omitempty"`
	LikeCount       int64  `json:"like_count"`
	ReplyCount      int64  `json:"reply_count"`
	PublishedAt     string `json:"published_at"`
	Source          string `json:"source,omitempty"`
}

// TierError records which tier failed during which operation.
// Use errors.As() to extract it:
//
//	var tierErr *youtube.TierError
//	if errors.As(err, &tierErr) {
//		fmt.Printf("%s failed in %s: %v\n", tierErr.Tier, tierErr.Op, tierErr.Err)
//	}
type TierError struct {
	Tier string
	Op   string
	Err  error
}

// Error returns a string representation of the tier error.
func (e *TierError) Error() string {
	return fmt.Sprintf("youtube: %s tier %s: %v", e.Tier, e.Op, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *TierError) Unwrap() error { return e.Err }
