// Package ytaccess is a resilient, quota-aware YouTube data-access layer.
//
// Every operation runs a fallback chain of tiers: the official Data API,
// scraping of public pages, and a third-party library. The Data API tier
// spends quota from a ledger of API keys and rotates to the next key when
// one runs dry. Whole operations run inside named circuits, so a YouTube
// outage fails fast instead of piling up retries.
//
// Overview
//
// A Service answers:
//
//   - FetchChannel: channel metadata and statistics
//   - FetchChannelVideos: a channel's uploads, newest first
//   - SearchVideos: video search
//   - GetChannelIDFromURL: resolve a channel URL or @handle to its id
//   - GetVideoDuration, FetchVideo: single video lookups
//   - GetVideoTranscript: caption text
//   - FetchVideoComments: top-level comments
//
// Every record carries the tier that produced it in its Source field.
//
// Quick Start
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	svc, err := ytaccess.New(cfg, ytaccess.WithLogger(logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	ch, err := svc.FetchChannel(ctx, "UCxxxxxxxxxxxxxxxxxxxxxx")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(ch.Title, ch.SubscriberCount, ch.Source)
//
// Error Handling
//
// An operation fails only when no tier can answer. Then the error is a
// *ChainError matching ErrAllTiersFailed, or wraps ErrNotFound when every
// tier reported the entity missing. When tiers answer but know nothing the
// result is an empty record with a nil error. See errors.go for the full
// list of exported errors.
//
// Configuration
//
// config.Load reads ytaccess.yaml or ytaccess.json and YTACCESS_*
// environment variables. YOUTUBE_API_KEYS takes a comma separated key list.
//
// Thread Safety
//
// A Service is safe for concurrent use by multiple goroutines.
package ytaccess
