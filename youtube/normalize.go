package youtube

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the absolute timestamp layout used by the Data API and by
// every record this package produces.
const DateLayout = "2006-01-02T15:04:05Z"

var (
	isoDurationRegex  = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
	relativeRegex     = regexp.MustCompile(`(\d+)\s+(second|minute|hour|day|week|month|year)s?\s+ago`)
	articleRegex      = regexp.MustCompile(`\ban?\s+(second|minute|hour|day|week|month|year)\s+ago`)
	firstNumberRegex  = regexp.MustCompile(`(\d+)`)
	countRegex        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([kmb])?\b`)
	channelURLRegex   = regexp.MustCompile(`/channel/(UC[\w-]+)`)
	videoIDRegex      = regexp.MustCompile(`^[\w-]{11}$`)
	videoIDQueryRegex = regexp.MustCompile(`[?&]v=([\w-]{11})`)
	videoIDPathRegex  = regexp.MustCompile(`(?:youtu\.be/|/shorts/|/embed/|/live/)([\w-]{11})`)
)

// relativeUnits maps a unit word to its length. A month counts as 30 days and a
// year as 365 days.
var relativeUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseDuration converts an ISO-8601 duration such as "PT1H2M3S" to seconds.
// Missing components count as zero; malformed input yields 0.
func ParseDuration(iso string) int {
	m := isoDurationRegex.FindStringSubmatch(strings.TrimSpace(iso))
	if m == nil {
		return 0
	}
	var total int
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}

// FormatDuration renders seconds as a canonical ISO-8601 duration.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "PT0S"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	var b strings.Builder
	b.WriteString("PT")
	if h > 0 {
		fmt.Fprintf(&b, "%dH", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, "%dM", m)
	}
	if s > 0 {
		fmt.Fprintf(&b, "%dS", s)
	}
	return b.String()
}

// ParseClockDuration converts "MM:SS" or "H:MM:SS" to seconds, 0 when unparsable.
func ParseClockDuration(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// ParseDate parses an absolute API timestamp, with or without fractional
// seconds, and falls back to relative text ("3 days ago"). Empty or
// unparsable input yields now: callers only use the value for recency filtering.
func ParseDate(s string, now time.Time) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return now
	}
	abs := s
	if i := strings.IndexByte(abs, '.'); i > 0 && strings.Contains(abs, "T") {
		abs = abs[:i] + "Z"
	}
	if t, err := time.Parse(DateLayout, abs); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return ParseRelativeDate(s, now)
}

// ParseRelativeDate converts text such as "3 days ago", "an hour ago",
// "Streamed 2 weeks ago" or "yesterday" to an absolute time relative to now.
// Anything it cannot read yields now.
func ParseRelativeDate(text string, now time.Time) time.Time {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" || strings.Contains(s, "just now") {
		return now
	}

	if m := relativeRegex.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return now.Add(-time.Duration(n) * relativeUnits[m[2]])
	}

	switch {
	case strings.Contains(s, "today"):
		return now
	case strings.Contains(s, "yesterday"):
		return now.Add(-24 * time.Hour)
	}

	if m := articleRegex.FindStringSubmatch(s); m != nil {
		return now.Add(-relativeUnits[m[1]])
	}

	for _, unit := range []string{"second", "minute", "hour"} {
		if !strings.Contains(s, unit) {
			continue
		}
		if m := firstNumberRegex.FindStringSubmatch(s); m != nil {
			n, _ := strconv.Atoi(m[1])
			return now.Add(-time.Duration(n) * relativeUnits[unit])
		}
		break
	}

	return now
}

// FormatDate renders t in DateLayout (UTC).
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseCount converts human counts such as "1.23M subscribers", "12,345 views"
// or "4.5K" to an integer. Unparsable text yields 0.
func ParseCount(text string) int64 {
	s := strings.ToLower(strings.ReplaceAll(text, ",", ""))
	m := countRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "k":
		value *= 1e3
	case "m":
		value *= 1e6
	case "b":
		value *= 1e9
	}
	return int64(math.Round(value))
}

// CategorizeDuration buckets a video length the way content planning does.
func CategorizeDuration(seconds int) string {
	switch {
	case seconds <= 60:
		return "Shorts"
	case seconds >= 240 && seconds <= 1200:
		return "Medium"
	case seconds > 1200 && seconds <= 3600:
		return "Long"
	case seconds > 3600:
		return "MEGA Long"
	default:
		return "Uncategorized"
	}
}

// ViewVelocity returns views per hour since publication. Videos younger than an
// hour are treated as one hour old.
func ViewVelocity(views int64, publishedAt, now time.Time) float64 {
	hours := now.Sub(publishedAt).Hours()
	if hours < 1 {
		hours = 1
	}
	return float64(views) / hours
}

// ChannelIDFromURL returns the id in a "/channel/UC..." URL, or "".
func ChannelIDFromURL(rawURL string) string {
	if m := channelURLRegex.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

// youtubeHosts are the hosts accepted without a scheme.
var youtubeHosts = []string{"youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be"}

// ParseURL parses a YouTube URL, adding "https://" when the input starts with
// a YouTube host but has no scheme ("youtube.com/@name").
func ParseURL(rawURL string) (*url.URL, error) {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		host, _, _ := strings.Cut(s, "/")
		for _, h := range youtubeHosts {
			if strings.EqualFold(host, h) {
				s = "https://" + s
				break
			}
		}
	}
	return url.Parse(s)
}

// HandleFromURL returns the "@handle" (or legacy /c/ and /user/ name) of a
// channel URL, without the leading "@". It returns "" for other URLs.
func HandleFromURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if strings.HasPrefix(s, "@") {
		name, _, _ := strings.Cut(s[1:], "/")
		return name
	}
	if u, err := ParseURL(s); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		switch {
		case strings.HasPrefix(segments[0], "@"):
			return strings.TrimPrefix(segments[0], "@")
		case (segments[0] == "c" || segments[0] == "user") && len(segments) > 1:
			return segments[1]
		}
	}
	// Anything else carrying "/@name" is taken at its word.
	if _, rest, ok := strings.Cut(s, "/@"); ok {
		name, _, _ := strings.Cut(rest, "/")
		name, _, _ = strings.Cut(name, "?")
		return name
	}
	return ""
}

// ExtractVideoID returns the 11-character id of a watch, youtu.be, shorts,
// embed or live URL. A bare id is returned unchanged.
func ExtractVideoID(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if videoIDRegex.MatchString(s) {
		return s, nil
	}
	if m := videoIDQueryRegex.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if m := videoIDPathRegex.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	return "", fmt.Errorf("%w: no video id in %q", ErrInvalidURL, rawURL)
}

// UploadsPlaylistID derives a channel's uploads playlist ("UC..." → "UU...").
func UploadsPlaylistID(channelID string) string {
	if !strings.HasPrefix(channelID, "UC") {
		return ""
	}
	return "UU" + channelID[2:]
}
