package ytaccess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ytaccess/config"
	ythttp "ytaccess/http"
	"ytaccess/internal/storage"
	"ytaccess/quota"
	"ytaccess/youtube"
	"ytaccess/youtube/innertube"
	"ytaccess/youtube/library"
	"ytaccess/youtube/scrape"
)

// Operation names. Each guarded operation runs inside the circuit of the
// same name.
const (
	OpFetchChannel        = "FetchChannel"
	OpFetchChannelVideos  = "FetchChannelVideos"
	OpSearchVideos        = "SearchVideos"
	OpGetChannelIDFromURL = "GetChannelIDFromURL"
	OpGetVideoDuration    = "GetVideoDuration"
	OpGetVideoTranscript  = "GetVideoTranscript"
	OpFetchVideo          = "FetchVideo"
	OpFetchVideoComments  = "FetchVideoComments"
)

const (
	defaultMaxResults = 50
	maxChannelVideos  = 500
	defaultComments   = 20
	maxComments       = 500
)

// APITier is the quota-backed Data API tier.
type APITier interface {
	Channel(ctx context.Context, channelID string) (*youtube.Channel, error)
	ChannelVideos(ctx context.Context, channelID string, maxResults int) ([]youtube.Video, error)
	Search(ctx context.Context, q youtube.SearchQuery) (*youtube.SearchPage, error)
	Video(ctx context.Context, videoID string) (*youtube.Video, error)
	VideoDuration(ctx context.Context, videoID string) (int, error)
	ChannelIDByHandle(ctx context.Context, handle string) (string, error)
	VideoComments(ctx context.Context, videoID string, maxResults int) ([]youtube.Comment, error)
}

// ScrapeTier reads public pages.
type ScrapeTier interface {
	Channel(ctx context.Context, channelID string) (*youtube.Channel, error)
	ChannelVideos(ctx context.Context, channelID string, maxResults int) ([]youtube.Video, error)
	Search(ctx context.Context, q youtube.SearchQuery) (*youtube.SearchPage, error)
	ResolveChannelID(ctx context.Context, rawURL string) (string, error)
	VideoComments(ctx context.Context, videoID string, maxResults int) ([]youtube.Comment, error)
}

// LibraryTier is the last-resort tier.
type LibraryTier interface {
	Channel(ctx context.Context, channelID string) (*youtube.Channel, error)
	ChannelVideos(ctx context.Context, channelID string, maxResults int) ([]youtube.Video, error)
	Video(ctx context.Context, videoID string) (*youtube.Video, error)
	VideoDuration(ctx context.Context, videoID string) (int, error)
	Transcript(ctx context.Context, videoID, lang string) (*youtube.Transcript, error)
	ResolveChannelID(ctx context.Context, rawURL string) (string, error)
}

// CaptionTier reads caption tracks directly.
type CaptionTier interface {
	Fetch(ctx context.Context, videoID, lang string) (*youtube.Transcript, error)
}

// Service is the entry point of the package. It answers every operation
// through a fallback chain of tiers and is safe for concurrent use.
type Service struct {
	cfg     *config.Config
	logger  *zap.Logger
	now     func() time.Time
	metrics *metrics

	http    *ythttp.Client
	ledger  *quota.Ledger
	store   *storage.LedgerStore
	breaker *ythttp.CircuitBreaker
	cache   *resultCache
	rdb     *redis.Client

	api      APITier
	scraper  ScrapeTier
	library  LibraryTier
	captions CaptionTier
}

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	now        func() time.Time
	httpClient *ythttp.Client
	rdb        *redis.Client
	api        APITier
	scraper    ScrapeTier
	library    LibraryTier
	captions   CaptionTier
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger. Default: zap.NewNop()
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegisterer registers the service's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock replaces time.Now for quota, circuits and relative dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHTTPClient sets the page fetcher shared by the keyless tiers.
func WithHTTPClient(c *ythttp.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRedis uses rdb as the shared result cache instead of dialing
// config.RedisURL.
func WithRedis(rdb *redis.Client) Option {
	return func(o *options) { o.rdb = rdb }
}

// WithAPI replaces the Data API tier.
func WithAPI(t APITier) Option {
	return func(o *options) { o.api = t }
}

// WithScraper replaces the scrape tier.
func WithScraper(t ScrapeTier) Option {
	return func(o *options) { o.scraper = t }
}

// WithLibrary replaces the library tier.
func WithLibrary(t LibraryTier) Option {
	return func(o *options) { o.library = t }
}

// WithCaptions replaces the timedtext tier.
func WithCaptions(t CaptionTier) Option {
	return func(o *options) { o.captions = t }
}

// New builds a service from cfg. A nil cfg means config.DefaultConfig().
// Without API keys the Data API tier is skipped.
func New(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	m, err := newMetrics(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	httpc := o.httpClient
	if httpc == nil {
		hc := ythttp.DefaultConfig()
		hc.Timeout = cfg.RequestTimeout
		hc.RateLimiter.PageRPS = cfg.ScrapeRPS
		if len(cfg.UserAgents) > 0 {
			hc.UserAgents = cfg.UserAgents
		}
		hc.Logger = logger
		httpc = ythttp.New(hc)
	}

	ledger := quota.NewLedger(cfg.APIKeys, quota.Config{
		DailyCeiling:  cfg.DailyQuota,
		ResetInterval: cfg.QuotaResetInterval,
		Cooldown:      cfg.KeyCooldown,
		Now:           o.now,
		Logger:        logger,
	})

	s := &Service{
		cfg:     cfg,
		logger:  logger.Named("ytaccess"),
		now:     o.now,
		metrics: m,
		http:    httpc,
		ledger:  ledger,
	}

	if cfg.LedgerPath != "" {
		s.store = storage.NewLedgerStore(cfg.LedgerPath)
		s.restoreLedger()
	}

	s.breaker = ythttp.NewCircuitBreaker(ythttp.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		RecoveryTimeout:  cfg.BreakerRecovery,
		IsFailure:        isChainFailure,
		Now:              o.now,
		OnStateChange: func(name string, from, to ythttp.CircuitState) {
			s.logger.Warn("circuit state changed",
				zap.String("op", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
		},
	})

	s.api = o.api
	if s.api == nil && ledger.Len() > 0 {
		exec := youtube.NewExecutor(ledger, youtube.ExecutorConfig{
			MaxAttempts: cfg.MaxAttempts,
			Factory:     youtube.NewServiceFactory(httpc.HTTPClient(), cfg.APIEndpoint),
			OnRetry:     m.observeRetry,
			OnReserve:   m.observeReservation,
			Logger:      logger,
		})
		s.api = youtube.NewAPI(exec, logger)
	}

	inner := innertube.NewClient(httpc, innertube.WithLogger(logger))
	s.scraper = o.scraper
	if s.scraper == nil {
		s.scraper = scrape.New(httpc,
			scrape.WithInnertube(inner),
			scrape.WithClock(o.now),
			scrape.WithLogger(logger))
	}
	s.library = o.library
	if s.library == nil {
		s.library = library.New(httpc.HTTPClient(), inner, library.WithLogger(logger))
	}
	s.captions = o.captions
	if s.captions == nil {
		s.captions = youtube.NewTimedtextClient(httpc, "")
	}

	s.rdb = o.rdb
	if s.rdb == nil {
		s.rdb = connectRedis(cfg.RedisURL, s.logger)
	}
	s.cache = newResultCache(cfg.CacheSize, cfg.CacheTTL, s.rdb, m, s.logger)

	s.logger.Info("service ready",
		zap.Int("api_keys", ledger.Len()),
		zap.Bool("api_tier", s.api != nil),
		zap.Bool("redis", s.rdb != nil),
		zap.Bool("ledger_snapshots", s.store != nil))
	return s, nil
}

// FetchChannel returns channel metadata. When every tier answers but none
// knows the channel, the record carries only its id and an empty Source.
// Complete records are cached.
func (s *Service) FetchChannel(ctx context.Context, channelID string) (*youtube.Channel, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}

	key := "channel:" + channelID
	var cached youtube.Channel
	if s.cache.get(ctx, key, &cached) {
		return &cached, nil
	}

	run := s.begin(OpFetchChannel)
	empty := func(ch *youtube.Channel) bool { return ch.IsEmpty() }

	var tiers []tier[*youtube.Channel]
	if s.api != nil {
		tiers = append(tiers, tier[*youtube.Channel]{youtube.TierAPI, func(ctx context.Context) (*youtube.Channel, error) {
			return s.api.Channel(ctx, channelID)
		}, empty})
	}
	tiers = append(tiers,
		tier[*youtube.Channel]{youtube.TierScrape, func(ctx context.Context) (*youtube.Channel, error) {
			return s.scraper.Channel(ctx, channelID)
		}, empty},
		tier[*youtube.Channel]{youtube.TierLibrary, func(ctx context.Context) (*youtube.Channel, error) {
			return s.library.Channel(ctx, channelID)
		}, empty},
	)

	var ch *youtube.Channel
	err := s.guarded(ctx, run, func() error {
		var status TierStatus
		var err error
		ch, status, err = runChain(ctx, run, tiers)
		if status == TierEmpty {
			ch = youtube.NewChannel(channelID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if ch.Source != "" {
		s.cache.set(ctx, key, ch)
	}
	return ch, nil
}

// FetchChannelVideos lists a channel's uploads, newest first. maxResults
// defaults to 50 and is capped at 500.
func (s *Service) FetchChannelVideos(ctx context.Context, channelID string, maxResults int) ([]youtube.Video, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("%w: channel id is required", ErrInvalidArgument)
	}
	switch {
	case maxResults <= 0:
		maxResults = defaultMaxResults
	case maxResults > maxChannelVideos:
		maxResults = maxChannelVideos
	}

	run := s.begin(OpFetchChannelVideos)
	empty := func(v []youtube.Video) bool { return len(v) == 0 }

	var tiers []tier[[]youtube.Video]
	if s.api != nil {
		tiers = append(tiers, tier[[]youtube.Video]{youtube.TierAPI, func(ctx context.Context) ([]youtube.Video, error) {
			return s.api.ChannelVideos(ctx, channelID, maxResults)
		}, empty})
	}
	tiers = append(tiers,
		tier[[]youtube.Video]{youtube.TierScrape, func(ctx context.Context) ([]youtube.Video, error) {
			return s.scraper.ChannelVideos(ctx, channelID, maxResults)
		}, empty},
		tier[[]youtube.Video]{youtube.TierLibrary, func(ctx context.Context) ([]youtube.Video, error) {
			return s.library.ChannelVideos(ctx, channelID, maxResults)
		}, empty},
	)

	var videos []youtube.Video
	err := s.guarded(ctx, run, func() error {
		var err error
		videos, _, err = runChain(ctx, run, tiers)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(videos) > maxResults {
		videos = videos[:maxResults]
	}
	return videos, nil
}

// SearchVideos searches for videos. Scraped results have no page token
// unless a continuation was found.
func (s *Service) SearchVideos(ctx context.Context, q youtube.SearchQuery) (*youtube.SearchPage, error) {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" && q.PageToken == "" {
		return nil, fmt.Errorf("%w: search query is required", ErrInvalidArgument)
	}
	if q.MaxResults <= 0 {
		q.MaxResults = defaultMaxResults
	}

	run := s.begin(OpSearchVideos)
	empty := func(p *youtube.SearchPage) bool { return p == nil || len(p.Videos) == 0 }

	var tiers []tier[*youtube.SearchPage]
	if s.api != nil {
		tiers = append(tiers, tier[*youtube.SearchPage]{youtube.TierAPI, func(ctx context.Context) (*youtube.SearchPage, error) {
			return s.api.Search(ctx, q)
		}, empty})
	}
	tiers = append(tiers, tier[*youtube.SearchPage]{youtube.TierScrape, func(ctx context.Context) (*youtube.SearchPage, error) {
		return s.scraper.Search(ctx, q)
	}, empty})

	var page *youtube.SearchPage
	err := s.guarded(ctx, run, func() error {
		var err error
		page, _, err = runChain(ctx, run, tiers)
		return err
	})
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &youtube.SearchPage{}
	}
	return page, nil
}

// GetChannelIDFromURL resolves a channel URL or "@handle" to its UC… id.
// It returns "" and a nil error when no tier can resolve it.
func (s *Service) GetChannelIDFromURL(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidArgument)
	}

	key := "resolve:" + rawURL
	var cached string
	if s.cache.get(ctx, key, &cached) && cached != "" {
		return cached, nil
	}

	run := s.begin(OpGetChannelIDFromURL)
	empty := func(id string) bool { return id == "" }

	tiers := []tier[string]{
		{youtube.TierPattern, func(context.Context) (string, error) {
			return youtube.ChannelIDFromURL(rawURL), nil
		}, empty},
		{youtube.TierScrape, func(ctx context.Context) (string, error) {
			return s.scraper.ResolveChannelID(ctx, rawURL)
		}, empty},
		{youtube.TierLibrary, func(ctx context.Context) (string, error) {
			return s.library.ResolveChannelID(ctx, rawURL)
		}, empty},
	}
	if handle := youtube.HandleFromURL(rawURL); handle != "" && s.api != nil {
		tiers = append(tiers, tier[string]{youtube.TierAPI, func(ctx context.Context) (string, error) {
			return s.api.ChannelIDByHandle(ctx, handle)
		}, empty})
	}

	var id string
	err := s.guarded(ctx, run, func() error {
		var err error
		id, _, err = runChain(ctx, run, tiers)
		return err
	})
	if err != nil {
		if errors.Is(err, youtube.ErrNotFound) {
			return "", nil
		}
		return "", err
	}

	if id != "" {
		s.cache.set(ctx, key, id)
	}
	return id, nil
}

// GetVideoDuration returns a video's length in seconds. videoID may also be
// a watch URL. Live streams and unknown lengths yield 0.
func (s *Service) GetVideoDuration(ctx context.Context, videoID string) (int, error) {
	id, err := youtube.ExtractVideoID(videoID)
	if err != nil {
		return 0, err
	}

	run := s.begin(OpGetVideoDuration)
	empty := func(d int) bool { return d <= 0 }

	var tiers []tier[int]
	if s.api != nil {
		tiers = append(tiers, tier[int]{youtube.TierAPI, func(ctx context.Context) (int, error) {
			return s.api.VideoDuration(ctx, id)
		}, empty})
	}
	tiers = append(tiers, tier[int]{youtube.TierLibrary, func(ctx context.Context) (int, error) {
		return s.library.VideoDuration(ctx, id)
	}, empty})

	d, _, err := runChain(ctx, run, tiers)
	return d, err
}

// FetchVideo returns one video's metadata and statistics. videoID may also
// be a watch URL.
func (s *Service) FetchVideo(ctx context.Context, videoID string) (*youtube.Video, error) {
	id, err := youtube.ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}

	run := s.begin(OpFetchVideo)
	empty := func(v *youtube.Video) bool { return v == nil || v.Title == "" }

	var tiers []tier[*youtube.Video]
	if s.api != nil {
		tiers = append(tiers, tier[*youtube.Video]{youtube.TierAPI, func(ctx context.Context) (*youtube.Video, error) {
			return s.api.Video(ctx, id)
		}, empty})
	}
	tiers = append(tiers, tier[*youtube.Video]{youtube.TierLibrary, func(ctx context.Context) (*youtube.Video, error) {
		return s.library.Video(ctx, id)
	}, empty})

	v, status, err := runChain(ctx, run, tiers)
	if err != nil {
		return nil, err
	}
	if status == TierEmpty || v == nil {
		return &youtube.Video{ID: id}, nil
	}
	return v, nil
}

// FetchVideoComments returns up to maxResults top-level comments of a video,
// most relevant first. videoID may also be a watch URL. A video whose
// comments are off or that no tier knows yields an error wrapping
// youtube.ErrNotFound; a video nobody has commented on yields an empty
// slice.
func (s *Service) FetchVideoComments(ctx context.Context, videoID string, maxResults int) ([]youtube.Comment, error) {
	id, err := youtube.ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}
	switch {
	case maxResults <= 0:
		maxResults = defaultComments
	case maxResults > maxComments:
		maxResults = maxComments
	}

	run := s.begin(OpFetchVideoComments)
	empty := func(c []youtube.Comment) bool { return len(c) == 0 }

	var tiers []tier[[]youtube.Comment]
	if s.api != nil {
		tiers = append(tiers, tier[[]youtube.Comment]{youtube.TierAPI, func(ctx context.Context) ([]youtube.Comment, error) {
			return s.api.VideoComments(ctx, id, maxResults)
		}, empty})
	}
	tiers = append(tiers, tier[[]youtube.Comment]{youtube.TierScrape, func(ctx context.Context) ([]youtube.Comment, error) {
		return s.scraper.VideoComments(ctx, id, maxResults)
	}, empty})

	var comments []youtube.Comment
	err = s.guarded(ctx, run, func() error {
		var err error
		comments, _, err = runChain(ctx, run, tiers)
		return err
	})
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []youtube.Comment{}
	}
	if len(comments) > maxResults {
		comments = comments[:maxResults]
	}
	return comments, nil
}

// GetVideoTranscript returns the captions of a video in lang (default: the
// configured transcript language). A transcript whose tier did not know the
// video length gets it from GetVideoDuration.
func (s *Service) GetVideoTranscript(ctx context.Context, videoID, lang string) (*youtube.Transcript, error) {
	id, err := youtube.ExtractVideoID(videoID)
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = s.cfg.TranscriptLanguage
	}

	run := s.begin(OpGetVideoTranscript)
	empty := func(t *youtube.Transcript) bool { return t == nil || t.Text == "" }

	t, status, err := runChain(ctx, run, []tier[*youtube.Transcript]{
		{youtube.TierLibrary, func(ctx context.Context) (*youtube.Transcript, error) {
			return s.library.Transcript(ctx, id, lang)
		}, empty},
		{youtube.TierScrape, func(ctx context.Context) (*youtube.Transcript, error) {
			return s.captions.Fetch(ctx, id, lang)
		}, empty},
	})
	if err != nil {
		return nil, err
	}
	if status == TierEmpty || t == nil {
		return nil, fmt.Errorf("%w: no %s transcript for %s", youtube.ErrNotFound, lang, id)
	}

	if t.DurationSeconds == 0 {
		d, err := s.GetVideoDuration(ctx, id)
		if err != nil {
			run.logger.Debug("transcript duration unknown", zap.Error(err))
		}
		t.DurationSeconds = d
	}
	return t, nil
}

// FetchChannels fetches several channels concurrently, at most
// config.Concurrency at a time. Channels that fail are left out of the map
// and their errors are aggregated.
func (s *Service) FetchChannels(ctx context.Context, channelIDs []string) (map[string]*youtube.Channel, error) {
	var (
		mu   sync.Mutex
		out  = make(map[string]*youtube.Channel, len(channelIDs))
		errs *multierror.Error
		seen = make(map[string]bool, len(channelIDs))
	)

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, id := range channelIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		g.Go(func() error {
			ch, err := s.FetchChannel(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("channel %s: %w", id, err))
				return nil
			}
			out[id] = ch
			return nil
		})
	}
	_ = g.Wait()

	if errs != nil {
		errs.ErrorFormat = joinErrors
	}
	return out, errs.ErrorOrNil()
}

// QuotaSnapshot returns the state of every API key.
func (s *Service) QuotaSnapshot() []quota.KeyRecord {
	return s.ledger.Snapshot()
}

// CircuitStats returns the circuit of a guarded operation.
func (s *Service) CircuitStats(op string) ythttp.CircuitStats {
	return s.breaker.Stats(op)
}

// ResetCircuits closes every circuit.
func (s *Service) ResetCircuits() {
	s.breaker.ResetAll()
}

// PurgeCache drops the in-process cached results. Entries in Redis expire
// on their own.
func (s *Service) PurgeCache() {
	s.cache.purge()
}

// Close saves the quota ledger when snapshots are configured and releases
// connections.
func (s *Service) Close() error {
	var errs *multierror.Error

	if s.store != nil && s.ledger.Len() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		snap, err := s.store.Save(ctx, s.ledger.Snapshot())
		cancel()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("save quota ledger: %w", err))
		} else {
			s.logger.Debug("quota ledger saved", zap.String("snapshot_id", snap.ID))
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if err := s.http.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if errs != nil {
		errs.ErrorFormat = joinErrors
	}
	return errs.ErrorOrNil()
}

func (s *Service) restoreLedger() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	snap, err := s.store.Load(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return
	case err != nil:
		s.logger.Warn("quota ledger not restored", zap.String("path", s.store.Path()), zap.Error(err))
		return
	}
	s.ledger.Restore(snap.Keys)
	s.logger.Info("quota ledger restored",
		zap.String("snapshot_id", snap.ID),
		zap.Time("saved_at", snap.SavedAt))
}

// begin tags one operation call with a fresh id for log correlation.
func (s *Service) begin(op string) chainRun {
	return chainRun{
		op:      op,
		logger:  s.logger.With(zap.String("op", op), zap.String("op_id", uuid.NewString())),
		metrics: s.metrics,
	}
}

// guarded runs fn inside the operation's circuit. Rejections wrap
// ythttp.ErrCircuitOpen.
func (s *Service) guarded(ctx context.Context, run chainRun, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ran := false
	err := s.breaker.Execute(run.op, func() error {
		ran = true
		return fn()
	})
	if !ran && errors.Is(err, ythttp.ErrCircuitOpen) {
		s.metrics.circuitRejections.WithLabelValues(run.op).Inc()
		run.logger.Warn("circuit open, call rejected")
		return fmt.Errorf("ytaccess: %s: %w", run.op, err)
	}
	return err
}

// isChainFailure counts only whole-chain failures against a circuit.
// Not-found answers and cancellations leave it alone.
func isChainFailure(err error) bool {
	var chainErr *ChainError
	return errors.As(err, &chainErr)
}
