package innertube

import (
	"encoding/json"
	"strings"
	"time"

	"ytaccess/youtube"
)

// Text is YouTube's formatted string: either a simpleText or a list of runs.
type Text struct {
	SimpleText string `json:"simpleText,omitempty"`
	Runs       []Run  `json:"runs,omitempty"`
	Content    string `json:"content,omitempty"`
}

// Run is one fragment of a Text, optionally linking somewhere.
type Run struct {
	Text               string              `json:"text"`
	NavigationEndpoint *NavigationEndpoint `json:"navigationEndpoint,omitempty"`
}

// NavigationEndpoint is the link target of a run.
type NavigationEndpoint struct {
	BrowseEndpoint *struct {
		BrowseID         string `json:"browseId"`
		CanonicalBaseURL string `json:"canonicalBaseUrl,omitempty"`
	} `json:"browseEndpoint,omitempty"`
}

// UnmarshalJSON also accepts a plain string, which some renderers use.
func (t *Text) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.SimpleText)
	}
	type plain Text
	return json.Unmarshal(data, (*plain)(t))
}

// String flattens the text.
func (t Text) String() string {
	switch {
	case t.SimpleText != "":
		return t.SimpleText
	case t.Content != "":
		return t.Content
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// BrowseID returns the first channel id linked from the text's runs.
func (t Text) BrowseID() string {
	for _, r := range t.Runs {
		if r.NavigationEndpoint != nil && r.NavigationEndpoint.BrowseEndpoint != nil {
			if id := r.NavigationEndpoint.BrowseEndpoint.BrowseID; strings.HasPrefix(id, "UC") {
				return id
			}
		}
	}
	return ""
}

// Thumbnail is one image variant.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ThumbnailList holds the variants of one image.
type ThumbnailList struct {
	Thumbnails []Thumbnail `json:"thumbnails"`
}

// Best returns the URL of the widest variant.
func (l ThumbnailList) Best() string {
	best := -1
	for i, th := range l.Thumbnails {
		if th.URL == "" {
			continue
		}
		if best < 0 || th.Width > l.Thumbnails[best].Width {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return absoluteURL(l.Thumbnails[best].URL)
}

// Sized maps the variants to default/medium/high in listed order, which is
// smallest first.
func (l ThumbnailList) Sized() map[string]string {
	out := map[string]string{}
	names := []string{"default", "medium", "high"}
	n := 0
	for _, th := range l.Thumbnails {
		if th.URL == "" || n >= len(names) {
			continue
		}
		out[names[n]] = absoluteURL(th.URL)
		n++
	}
	return out
}

func absoluteURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

// VideoRenderer is the union of the video-shaped renderers YouTube uses on
// grids, lists, search results and shorts shelves. Each layout fills a
// different subset of the fields.
type VideoRenderer struct {
	VideoID            string        `json:"videoId"`
	Title              Text          `json:"title"`
	Headline           Text          `json:"headline"`
	DescriptionSnippet Text          `json:"descriptionSnippet"`
	LengthText         Text          `json:"lengthText"`
	ViewCountText      Text          `json:"viewCountText"`
	ShortViewCountText Text          `json:"shortViewCountText"`
	PublishedTimeText  Text          `json:"publishedTimeText"`
	OwnerText          Text          `json:"ownerText"`
	LongBylineText     Text          `json:"longBylineText"`
	ShortBylineText    Text          `json:"shortBylineText"`
	Thumbnail          ThumbnailList `json:"thumbnail"`
	ThumbnailOverlays  []struct {
		TimeStatus *struct {
			Text Text `json:"text"`
		} `json:"thumbnailOverlayTimeStatusRenderer,omitempty"`
	} `json:"thumbnailOverlays"`
	DetailedMetadataSnippets []struct {
		SnippetText Text `json:"snippetText"`
	} `json:"detailedMetadataSnippets"`
}

// DisplayTitle returns the title, or the headline shorts use instead.
func (r VideoRenderer) DisplayTitle() string {
	if s := r.Title.String(); s != "" {
		return s
	}
	return r.Headline.String()
}

// LengthSeconds reads the clock-style length from lengthText or the time
// overlay. Live streams and shorts without a length yield 0.
func (r VideoRenderer) LengthSeconds() int {
	if s := r.LengthText.String(); s != "" {
		return youtube.ParseClockDuration(s)
	}
	for _, o := range r.ThumbnailOverlays {
		if o.TimeStatus != nil {
			if n := youtube.ParseClockDuration(o.TimeStatus.Text.String()); n > 0 {
				return n
			}
		}
	}
	return 0
}

func (r VideoRenderer) owner() Text {
	for _, t := range []Text{r.OwnerText, r.LongBylineText, r.ShortBylineText} {
		if t.String() != "" {
			return t
		}
	}
	return Text{}
}

// ToVideo normalizes the renderer into a canonical record. Relative publish
// times are resolved against now.
func (r VideoRenderer) ToVideo(now time.Time) youtube.Video {
	owner := r.owner()
	v := youtube.Video{
		ID:           r.VideoID,
		Title:        r.DisplayTitle(),
		ChannelID:    owner.BrowseID(),
		ChannelTitle: owner.String(),
		ThumbnailURL: r.Thumbnail.Best(),
	}
	if v.ThumbnailURL == "" {
		v.ThumbnailURL = "https://i.ytimg.com/vi/" + r.VideoID + "/hqdefault.jpg"
	}

	v.Description = r.DescriptionSnippet.String()
	if v.Description == "" && len(r.DetailedMetadataSnippets) > 0 {
		v.Description = r.DetailedMetadataSnippets[0].SnippetText.String()
	}

	views := r.ViewCountText.String()
	if views == "" {
		views = r.ShortViewCountText.String()
	}
	v.ViewCount = youtube.ParseCount(views)

	if published := r.PublishedTimeText.String(); published != "" {
		v.PublishedAt = youtube.FormatDate(youtube.ParseRelativeDate(published, now))
	}
	if n := r.LengthSeconds(); n > 0 {
		v.SetDuration(youtube.FormatDuration(n))
	}
	return v
}

// ChannelRenderer is a channel card in search results.
type ChannelRenderer struct {
	ChannelID           string        `json:"channelId"`
	Title               Text          `json:"title"`
	DescriptionSnippet  Text          `json:"descriptionSnippet"`
	SubscriberCountText Text          `json:"subscriberCountText"`
	VideoCountText      Text          `json:"videoCountText"`
	Thumbnail           ThumbnailList `json:"thumbnail"`
}

// Handle returns the card's "@handle" without the "@", if it shows one.
// Newer layouts put the handle where the subscriber count used to be.
func (r ChannelRenderer) Handle() string {
	for _, t := range []Text{r.SubscriberCountText, r.VideoCountText} {
		if s := t.String(); strings.HasPrefix(s, "@") {
			return strings.TrimPrefix(s, "@")
		}
	}
	return ""
}

// Subscribers returns the subscriber count shown on the card.
func (r ChannelRenderer) Subscribers() int64 {
	for _, t := range []Text{r.SubscriberCountText, r.VideoCountText} {
		if s := t.String(); strings.Contains(strings.ToLower(s), "subscriber") {
			return youtube.ParseCount(s)
		}
	}
	return 0
}

// ToChannel normalizes the card into a channel record.
func (r ChannelRenderer) ToChannel() *youtube.Channel {
	ch := youtube.NewChannel(r.ChannelID)
	ch.Title = r.Title.String()
	ch.Description = r.DescriptionSnippet.String()
	ch.SubscriberCount = r.Subscribers()
	ch.Thumbnails = r.Thumbnail.Sized()
	if s := r.VideoCountText.String(); strings.Contains(strings.ToLower(s), "video") {
		ch.VideoCount = youtube.ParseCount(s)
	}
	return ch
}

// C4TabbedHeaderRenderer is the classic channel page header.
type C4TabbedHeaderRenderer struct {
	ChannelID           string        `json:"channelId"`
	Title               string        `json:"title"`
	Avatar              ThumbnailList `json:"avatar"`
	SubscriberCountText Text          `json:"subscriberCountText"`
	VideosCountText     Text          `json:"videosCountText"`
}

// PageHeaderRenderer is the view-model header of the current channel layout.
type PageHeaderRenderer struct {
	PageTitle string `json:"pageTitle"`
	Content   struct {
		PageHeaderViewModel struct {
			Title struct {
				DynamicTextViewModel struct {
					Text Text `json:"text"`
				} `json:"dynamicTextViewModel"`
			} `json:"title"`
			Image struct {
				DecoratedAvatarViewModel struct {
					Avatar struct {
						AvatarViewModel struct {
							Image struct {
								Sources []Thumbnail `json:"sources"`
							} `json:"image"`
						} `json:"avatarViewModel"`
					} `json:"avatar"`
				} `json:"decoratedAvatarViewModel"`
			} `json:"image"`
			Metadata struct {
				ContentMetadataViewModel struct {
					MetadataRows []struct {
						MetadataParts []struct {
							Text Text `json:"text"`
						} `json:"metadataParts"`
					} `json:"metadataRows"`
				} `json:"contentMetadataViewModel"`
			} `json:"metadata"`
		} `json:"pageHeaderViewModel"`
	} `json:"content"`
}

// DisplayTitle returns the channel name shown in the header.
func (r PageHeaderRenderer) DisplayTitle() string {
	if s := r.Content.PageHeaderViewModel.Title.DynamicTextViewModel.Text.String(); s != "" {
		return s
	}
	return r.PageTitle
}

// Avatar returns the header's avatar variants.
func (r PageHeaderRenderer) Avatar() ThumbnailList {
	return ThumbnailList{Thumbnails: r.Content.PageHeaderViewModel.Image.DecoratedAvatarViewModel.Avatar.AvatarViewModel.Image.Sources}
}

// MetadataParts returns the header's metadata line fragments, such as
// "@handle", "1.2M subscribers" and "345 videos".
func (r PageHeaderRenderer) MetadataParts() []string {
	var parts []string
	for _, row := range r.Content.PageHeaderViewModel.Metadata.ContentMetadataViewModel.MetadataRows {
		for _, p := range row.MetadataParts {
			if s := p.Text.String(); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return parts
}

// ChannelMetadataRenderer is the page-level channel metadata present on
// every channel page regardless of header layout.
type ChannelMetadataRenderer struct {
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	ExternalID       string        `json:"externalId"`
	ChannelURL       string        `json:"channelUrl"`
	VanityChannelURL string        `json:"vanityChannelUrl"`
	Avatar           ThumbnailList `json:"avatar"`
}

// ChannelAboutFullMetadataRenderer is the classic About tab.
type ChannelAboutFullMetadataRenderer struct {
	ChannelID      string `json:"channelId"`
	Description    Text   `json:"description"`
	ViewCountText  Text   `json:"viewCountText"`
	JoinedDateText Text   `json:"joinedDateText"`
	Country        Text   `json:"country"`
}

// AboutChannelViewModel is the About dialog of the current layout.
type AboutChannelViewModel struct {
	ChannelID           string `json:"channelId"`
	Description         string `json:"description"`
	ViewCountText       string `json:"viewCountText"`
	SubscriberCountText string `json:"subscriberCountText"`
	VideoCountText      string `json:"videoCountText"`
	Country             string `json:"country"`
	JoinedDateText      Text   `json:"joinedDateText"`
}

// ParseJoinedDate reads "Joined Mar 5, 2012" style text.
func ParseJoinedDate(text string) (time.Time, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "Joined"))
	for _, layout := range []string{"Jan 2, 2006", "January 2, 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CommentRenderer is a comment as older pages inline it in its thread.
type CommentRenderer struct {
	CommentID         string             `json:"commentId"`
	ContentText       Text               `json:"contentText"`
	AuthorText        Text               `json:"authorText"`
	AuthorEndpoint    NavigationEndpoint `json:"authorEndpoint"`
	VoteCount         Text               `json:"voteCount"`
	PublishedTimeText Text               `json:"publishedTimeText"`
	ReplyCount        int64              `json:"replyCount"`
}

// ToComment normalizes the renderer. Relative publish times are resolved
// against now.
func (r CommentRenderer) ToComment(now time.Time) youtube.Comment {
	c := youtube.Comment{
		ID:          r.CommentID,
		Text:        r.ContentText.String(),
		Author:      r.AuthorText.String(),
		LikeCount:   youtube.ParseCount(r.VoteCount.String()),
		ReplyCount:  r.ReplyCount,
		PublishedAt: youtube.FormatDate(youtube.ParseRelativeDate(r.PublishedTimeText.String(), now)),
	}
	if b := r.AuthorEndpoint.BrowseEndpoint; b != nil {
		c.AuthorChannelID = b.BrowseID
	}
	return c
}

// CommentEntityPayload is a comment body as current pages ship it, in the
// frameworkUpdates mutations beside the threads that reference it.
type CommentEntityPayload struct {
	Properties struct {
		CommentID string `json:"commentId"`
		Content   struct {
			Content string `json:"content"`
		} `json:"content"`
		PublishedTime string `json:"publishedTime"`
	} `json:"properties"`
	Author struct {
		ChannelID   string `json:"channelId"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Toolbar struct {
		LikeCountNotliked string `json:"likeCountNotliked"`
		ReplyCount        string `json:"replyCount"`
	} `json:"toolbar"`
}

// ToComment normalizes the payload. Counts arrive as display text ("1.2K").
func (p CommentEntityPayload) ToComment(now time.Time) youtube.Comment {
	return youtube.Comment{
		ID:              p.Properties.CommentID,
		Text:            p.Properties.Content.Content,
		Author:          p.Author.DisplayName,
		AuthorChannelID: p.Author.ChannelID,
		LikeCount:       youtube.ParseCount(p.Toolbar.LikeCountNotliked),
		ReplyCount:      youtube.ParseCount(p.Toolbar.ReplyCount),
		PublishedAt:     youtube.FormatDate(youtube.ParseRelativeDate(p.Properties.PublishedTime, now)),
	}
}
