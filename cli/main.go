// Command ytaccess queries YouTube through the fallback chain and prints
// JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ytaccess"
	"ytaccess/config"
	"ytaccess/quota"
	"ytaccess/youtube"
)

type globalFlags struct {
	configPath string
	debug      bool
	timeout    time.Duration
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ytaccess",
		Short: "Quota-aware YouTube data access",
		Long: `ytaccess reads YouTube channels, videos, searches and transcripts.
It tries the Data API first and falls back to page scraping and a
keyless library when quota runs out or requests fail.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: ytaccess.yaml or ytaccess.json)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "human readable debug logging")
	root.PersistentFlags().DurationVar(&flags.timeout, "timeout", 2*time.Minute, "overall command timeout")

	root.AddCommand(
		newChannelCmd(flags),
		newVideosCmd(flags),
		newSearchCmd(flags),
		newResolveCmd(flags),
		newDurationCmd(flags),
		newTranscriptCmd(flags),
		newVideoCmd(flags),
		newCommentsCmd(flags),
		newQuotaCmd(flags),
	)
	return root
}

// run loads configuration, builds a service and hands it to fn. The
// service is closed afterwards so the quota ledger is saved.
func run(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, svc *ytaccess.Service) (any, error)) error {
	cfg, err := config.LoadFile(flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel, flags.debug)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	svc, err := ytaccess.New(cfg, ytaccess.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
	defer cancel()

	result, err := fn(ctx, svc)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// channelArg accepts a channel id or any channel URL.
func channelArg(ctx context.Context, svc *ytaccess.Service, arg string) (string, error) {
	if id := youtube.ChannelIDFromURL(arg); id != "" {
		return id, nil
	}
	if len(arg) == 24 && arg[:2] == "UC" {
		return arg, nil
	}
	id, err := svc.GetChannelIDFromURL(ctx, arg)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: cannot resolve channel %q", youtube.ErrNotFound, arg)
	}
	return id, nil
}

func newChannelCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "channel [ID or URL]...",
		Short: "Fetch channel metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					id, err := channelArg(ctx, svc, arg)
					if err != nil {
						return nil, err
					}
					ids = append(ids, id)
				}
				if len(ids) == 1 {
					return svc.FetchChannel(ctx, ids[0])
				}
				return svc.FetchChannels(ctx, ids)
			})
		},
	}
}

func newVideosCmd(flags *globalFlags) *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "videos [ID or URL]",
		Short: "List a channel's uploads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				id, err := channelArg(ctx, svc, args[0])
				if err != nil {
					return nil, err
				}
				return svc.FetchChannelVideos(ctx, id, maxResults)
			})
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 50, "maximum videos to list (at most 500)")
	return cmd
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		maxResults int
		order      string
		since      string
		pageToken  string
	)
	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search videos",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := youtube.SearchQuery{MaxResults: maxResults, Order: order, PageToken: pageToken}
			if len(args) > 0 {
				q.Query = args[0]
			}
			switch order {
			case "", "relevance", "date", "viewCount", "rating":
			default:
				return fmt.Errorf("invalid --order value %q (use relevance, date, viewCount or rating)", order)
			}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since value: %w (use RFC3339 format)", err)
				}
				q.PublishedAfter = t
			}
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				return svc.SearchVideos(ctx, q)
			})
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 25, "maximum results")
	cmd.Flags().StringVar(&order, "order", "", "relevance, date, viewCount or rating")
	cmd.Flags().StringVar(&since, "since", "", "only videos published after this time (RFC3339)")
	cmd.Flags().StringVar(&pageToken, "page", "", "page token from a previous search")
	return cmd
}

func newResolveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [URL or @handle]",
		Short: "Resolve a channel URL to its channel id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				id, err := svc.GetChannelIDFromURL(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]string{"url": args[0], "channelId": id}, nil
			})
		},
	}
}

func newDurationCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "duration [VIDEO ID or URL]",
		Short: "Get a video's length",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				d, err := svc.GetVideoDuration(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"duration_seconds": d,
					"duration":         youtube.FormatDuration(d),
					"category":         youtube.CategorizeDuration(d),
				}, nil
			})
		},
	}
}

func newTranscriptCmd(flags *globalFlags) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "transcript [VIDEO ID or URL]",
		Short: "Get a video's captions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				return svc.GetVideoTranscript(ctx, args[0], lang)
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "caption language (default from config)")
	return cmd
}

func newVideoCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "video [VIDEO ID or URL]",
		Short: "Fetch one video's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				return svc.FetchVideo(ctx, args[0])
			})
		},
	}
}

func newCommentsCmd(flags *globalFlags) *cobra.Command {
	var maxResults int
	cmd := &cobra.Command{
		Use:   "comments [VIDEO ID or URL]",
		Short: "List a video's top-level comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(ctx context.Context, svc *ytaccess.Service) (any, error) {
				return svc.FetchVideoComments(ctx, args[0], maxResults)
			})
		},
	}
	cmd.Flags().IntVar(&maxResults, "max", 20, "maximum comments to list (at most 500)")
	return cmd
}

func newQuotaCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the quota left on every API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags, func(_ context.Context, svc *ytaccess.Service) (any, error) {
				return quotaReport(svc.QuotaSnapshot()), nil
			})
		},
	}
}

type keyReport struct {
	Index         int       `json:"index"`
	Key           string    `json:"key"`
	Remaining     int       `json:"remaining"`
	ResetAt       time.Time `json:"reset_at"`
	CooldownUntil time.Time `json:"cooldown_until,omitzero"`
}

// quotaReport lists the ledger with keys masked down to their last four
// characters.
func quotaReport(records []quota.KeyRecord) []keyReport {
	out := make([]keyReport, len(records))
	for i, r := range records {
		key := r.Key
		if len(key) > 4 {
			key = "..." + key[len(key)-4:]
		}
		out[i] = keyReport{
			Index:         i,
			Key:           key,
			Remaining:     r.Remaining,
			ResetAt:       r.ResetAt,
			CooldownUntil: r.CooldownUntil,
		}
	}
	return out
}
