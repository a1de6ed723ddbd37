package scrape

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"ytaccess/youtube"
)

var (
	externalIDRegex  = regexp.MustCompile(`"externalId"\s*:\s*"(UC[\w-]+)"`)
	channelPathRegex = regexp.MustCompile(`/channel/(UC[\w-]+)`)
)

// ResolveChannelID loads a channel URL (handle, /c/, /user/ or custom) and
// reads the channel id off the page. It returns "" and a nil error when the
// page names no channel.
func (s *Scraper) ResolveChannelID(ctx context.Context, rawURL string) (string, error) {
	path, err := pagePath(rawURL)
	if err != nil {
		return "", err
	}
	p, err := s.fetch(ctx, path)
	if err != nil {
		return "", err
	}

	id, how := channelIDFromPage(p)
	if id == "" {
		s.logger.Warn("no channel id in page", zap.String("url", rawURL))
		return "", nil
	}
	s.logger.Debug("resolved channel id", zap.String("url", rawURL), zap.String("via", how))
	return id, nil
}

// pagePath reduces a YouTube URL to the rooted path and query to load from
// the base URL. A bare "@handle" and scheme-less URLs are accepted.
func pagePath(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if strings.HasPrefix(s, "@") {
		return "/" + s, nil
	}
	u, err := youtube.ParseURL(s)
	if err != nil || strings.Trim(u.Path, "/") == "" {
		return "", fmt.Errorf("%w: %q", youtube.ErrInvalidURL, rawURL)
	}
	if u.Host == "" && !strings.HasPrefix(u.Path, "/") {
		// "foo.com/@x" with an unknown host: not a YouTube page.
		return "", fmt.Errorf("%w: %q", youtube.ErrInvalidURL, rawURL)
	}
	path := "/" + strings.TrimPrefix(u.Path, "/")
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path, nil
}

// channelIDFromPage tries, in order, the page state, the microdata and
// canonical link, and finally any channel link in the markup.
func channelIDFromPage(p *page) (string, string) {
	if m := externalIDRegex.FindSubmatch(p.body); m != nil {
		return string(m[1]), "externalId"
	}

	for _, sel := range []string{`meta[itemprop="identifier"]`, `meta[itemprop="channelId"]`} {
		if v, ok := p.doc.Find(sel).Attr("content"); ok && strings.HasPrefix(v, "UC") {
			return v, "meta"
		}
	}
	if href, ok := p.doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if id := youtube.ChannelIDFromURL(href); id != "" {
			return id, "canonical"
		}
	}

	if m := channelPathRegex.FindSubmatch(p.body); m != nil {
		return string(m[1]), "link"
	}
	return "", ""
}
