package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	ythttp "ytaccess/http"
	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
)

// DefaultBaseURL is the site pages are loaded from.
const DefaultBaseURL = "https://www.youtube.com"

// Scraper reads channels, uploads and search results from public pages and
// follows their listings through Innertube continuations.
type Scraper struct {
	http    *ythttp.Client
	inner   *innertube.Client
	baseURL string
	now     func() time.Time
	logger  *zap.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithBaseURL loads pages from another origin.
func WithBaseURL(u string) Option {
	return func(s *Scraper) {
		s.baseURL = u
	}
}

// WithInnertube sets the client used for continuation pages.
func WithInnertube(c *innertube.Client) Option {
	return func(s *Scraper) {
		s.inner = c
	}
}

// WithClock sets the time relative dates are resolved against.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		s.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scraper) {
		s.logger = l
	}
}

// New returns a scraper fetching through client.
func New(client *ythttp.Client, opts ...Option) *Scraper {
	s := &Scraper{
		http:    client,
		baseURL: DefaultBaseURL,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scrape")
	if s.inner == nil {
		s.inner = innertube.NewClient(client, innertube.WithLogger(s.logger))
	}
	return s
}

// fetch loads path from the base URL. A 404 yields youtube.ErrNotFound.
func (s *Scraper) fetch(ctx context.Context, path string) (*page, error) {
	resp, err := s.http.Get(ctx, s.baseURL+path)
	if err != nil {
		if ythttp.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", youtube.ErrNotFound, path)
		}
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}
	p, err := parsePage(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return p, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, youtube.ErrNotFound)
}
