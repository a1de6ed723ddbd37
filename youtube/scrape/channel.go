package scrape

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
)

// channelStrategy reads the channel header from one page layout. It reports
// whether the layout was present.
type channelStrategy struct {
	name  string
	parse func(data map[string]any, ch *youtube.Channel) bool
}

// channelStrategies are tried in order; the first layout found wins.
var channelStrategies = []channelStrategy{
	{name: "c4TabbedHeader", parse: parseC4Header},
	{name: "pageHeader", parse: parsePageHeader},
	{name: "channelMetadata", parse: parseChannelMetadata},
}

// Channel reads a channel's metadata from its About page. A page without
// any known layout yields an empty record (no Source) and a nil error.
func (s *Scraper) Channel(ctx context.Context, channelID string) (*youtube.Channel, error) {
	p, err := s.fetch(ctx, "/channel/"+channelID+"/about")
	if err != nil {
		return nil, err
	}

	ch := youtube.NewChannel(channelID)
	log := s.logger.With(zap.String("channel_id", channelID))

	data, ok := p.initialData()
	if !ok {
		log.Warn("no initial data in channel page")
		return ch, nil
	}

	matched := ""
	for _, strategy := range channelStrategies {
		if strategy.parse(data, ch) {
			matched = strategy.name
			break
		}
	}
	if matched == "" {
		log.Warn("no channel header layout matched")
		return ch, nil
	}

	enrichFromMetadata(data, ch)
	enrichFromAbout(data, ch)
	ch.Source = youtube.TierScrape

	log.Debug("parsed channel page", zap.String("strategy", matched))
	return ch, nil
}

func parseC4Header(data map[string]any, ch *youtube.Channel) bool {
	var h innertube.C4TabbedHeaderRenderer
	if !innertube.FindAs(data, "c4TabbedHeaderRenderer", &h) || h.Title == "" {
		return false
	}
	ch.Title = h.Title
	ch.SubscriberCount = youtube.ParseCount(h.SubscriberCountText.String())
	ch.VideoCount = youtube.ParseCount(h.VideosCountText.String())
	if thumbs := h.Avatar.Sized(); len(thumbs) > 0 {
		ch.Thumbnails = thumbs
	}
	return true
}

func parsePageHeader(data map[string]any, ch *youtube.Channel) bool {
	var h innertube.PageHeaderRenderer
	if !innertube.FindAs(data, "pageHeaderRenderer", &h) || h.DisplayTitle() == "" {
		return false
	}
	ch.Title = h.DisplayTitle()
	applyCountParts(h.MetadataParts(), ch)
	if thumbs := h.Avatar().Sized(); len(thumbs) > 0 {
		ch.Thumbnails = thumbs
	}
	return true
}

func parseChannelMetadata(data map[string]any, ch *youtube.Channel) bool {
	var m innertube.ChannelMetadataRenderer
	if !innertube.FindAs(data, "channelMetadataRenderer", &m) || m.Title == "" {
		return false
	}
	ch.Title = m.Title
	ch.Description = m.Description
	if thumbs := m.Avatar.Sized(); len(thumbs) > 0 {
		ch.Thumbnails = thumbs
	}
	return true
}

// applyCountParts reads "1.2M subscribers" and "345 videos" fragments.
func applyCountParts(parts []string, ch *youtube.Channel) {
	for _, part := range parts {
		lower := strings.ToLower(part)
		switch {
		case strings.Contains(lower, "subscriber") && ch.SubscriberCount == 0:
			ch.SubscriberCount = youtube.ParseCount(part)
		case strings.Contains(lower, "video") && ch.VideoCount == 0:
			ch.VideoCount = youtube.ParseCount(part)
		case strings.Contains(lower, "view") && ch.ViewCount == 0:
			ch.ViewCount = youtube.ParseCount(part)
		}
	}
}

func enrichFromMetadata(data map[string]any, ch *youtube.Channel) {
	var m innertube.ChannelMetadataRenderer
	if !innertube.FindAs(data, "channelMetadataRenderer", &m) {
		return
	}
	if ch.Description == "" {
		ch.Description = m.Description
	}
	if len(ch.Thumbnails) == 0 {
		ch.Thumbnails = m.Avatar.Sized()
	}
}

// enrichFromAbout fills view count, join date and country from whichever
// About layout the page carries.
func enrichFromAbout(data map[string]any, ch *youtube.Channel) {
	var vm innertube.AboutChannelViewModel
	if innertube.FindAs(data, "aboutChannelViewModel", &vm) {
		applyCountParts([]string{vm.ViewCountText, vm.SubscriberCountText, vm.VideoCountText}, ch)
		applyAbout(vm.JoinedDateText.String(), vm.Country, vm.Description, ch)
		return
	}

	var full innertube.ChannelAboutFullMetadataRenderer
	if innertube.FindAs(data, "channelAboutFullMetadataRenderer", &full) {
		applyCountParts([]string{full.ViewCountText.String()}, ch)
		applyAbout(full.JoinedDateText.String(), full.Country.String(), full.Description.String(), ch)
	}
}

func applyAbout(joined, country, description string, ch *youtube.Channel) {
	if t, ok := innertube.ParseJoinedDate(joined); ok {
		ch.JoinDate = youtube.FormatDate(t)
	}
	if country != "" {
		ch.Country = country
	}
	if ch.Description == "" {
		ch.Description = description
	}
}
