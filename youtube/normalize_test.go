package youtube

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT10M", 600},
		{"PT2H", 7200},
		{"P1DT1S", 86401},
		{"PT0S", 0},
		{"", 0},
		{"garbage", 0},
		{"1:02:03", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseDuration(tt.in); got != tt.want {
				t.Errorf("ParseDuration(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatDurationRoundTrip(t *testing.T) {
	for _, seconds := range []int{1, 59, 60, 61, 3599, 3600, 3723, 86399} {
		iso := FormatDuration(seconds)
		if got := ParseDuration(iso); got != seconds {
			t.Errorf("ParseDuration(FormatDuration(%d)=%q) = %d", seconds, iso, got)
		}
	}
	if got := FormatDuration(0); got != "PT0S" {
		t.Errorf("FormatDuration(0) = %q, want PT0S", got)
	}
}

func TestParseClockDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"4:13", 253},
		{"1:02:03", 3723},
		{"0:59", 59},
		{"12", 0},
		{"a:b", 0},
	}

	for _, tt := range tests {
		if got := ParseClockDuration(tt.in); got != tt.want {
			t.Errorf("ParseClockDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"absolute", "2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"fractional", "2024-01-02T03:04:05.123Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"offset", "2024-01-02T05:04:05+02:00", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"relative", "3 days ago", testNow.Add(-72 * time.Hour)},
		{"empty", "", testNow},
		{"unparsable", "sometime", testNow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.in, testNow); !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRelativeDate(t *testing.T) {
	day := 24 * time.Hour
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"5 seconds ago", 5 * time.Second},
		{"1 minute ago", time.Minute},
		{"2 hours ago", 2 * time.Hour},
		{"Streamed 2 weeks ago", 14 * day},
		{"3 months ago", 90 * day},
		{"1 year ago", 365 * day},
		{"an hour ago", time.Hour},
		{"a day ago", day},
		{"yesterday", day},
		{"today", 0},
		{"just now", 0},
		{"Premieres soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseRelativeDate(tt.in, testNow)
			if want := testNow.Add(-tt.want); !got.Equal(want) {
				t.Errorf("ParseRelativeDate(%q) = %v, want %v", tt.in, got, want)
			}
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1.23M subscribers", 1230000},
		{"12,345 views", 12345},
		{"4.5K", 4500},
		{"2B", 2000000000},
		{"No views", 0},
		{"", 0},
	}

	for _, tt := range tests {
		if got := ParseCount(tt.in); got != tt.want {
			t.Errorf("ParseCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCategorizeDuration(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "Shorts"},
		{60, "Shorts"},
		{61, "Uncategorized"},
		{239, "Uncategorized"},
		{240, "Medium"},
		{1200, "Medium"},
		{1201, "Long"},
		{3600, "Long"},
		{3601, "MEGA Long"},
	}

	for _, tt := range tests {
		if got := CategorizeDuration(tt.seconds); got != tt.want {
			t.Errorf("CategorizeDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestViewVelocity(t *testing.T) {
	if got := ViewVelocity(1000, testNow.Add(-10*time.Hour), testNow); got != 100 {
		t.Errorf("ViewVelocity over 10h = %v, want 100", got)
	}
	if got := ViewVelocity(50, testNow.Add(-time.Minute), testNow); got != 50 {
		t.Errorf("ViewVelocity under 1h = %v, want 50", got)
	}
}

func TestChannelURLHelpers(t *testing.T) {
	const id = "UCabcdefghijklmnopqrstuv"

	if got := ChannelIDFromURL("https://www.youtube.com/channel/" + id + "/videos"); got != id {
		t.Errorf("ChannelIDFromURL = %q, want %q", got, id)
	}
	if got := ChannelIDFromURL("https://www.youtube.com/@someone"); got != "" {
		t.Errorf("ChannelIDFromURL(handle) = %q, want empty", got)
	}

	handles := map[string]string{
		"https://www.youtube.com/@someone":        "someone",
		"https://www.youtube.com/@someone/videos": "someone",
		"@someone":                                "someone",
		"https://www.youtube.com/c/LegacyName":    "LegacyName",
		"https://www.youtube.com/user/olduser":    "olduser",
		"https://www.youtube.com/watch?v=abc":     "",
		"youtube.com/@SomeCreator":                "SomeCreator",
		"www.youtube.com/@SomeCreator/videos":     "SomeCreator",
		"www.youtube.com/c/Foo":                   "Foo",
		"@someone/videos":                         "someone",
		"example.com/@someone?x=1":                "someone",
		"youtube.com":                             "",
	}
	for in, want := range handles {
		if got := HandleFromURL(in); got != want {
			t.Errorf("HandleFromURL(%q) = %q, want %q", in, got, want)
		}
	}

	for in, host := range map[string]string{
		"youtube.com/@a":       "youtube.com",
		"WWW.YouTube.com/@a":   "WWW.YouTube.com",
		"youtu.be/dQw4w9WgXcQ": "youtu.be",
		"https://x.test/@a":    "x.test",
		"example.com/@a":       "",
	} {
		u, err := ParseURL(in)
		if err != nil || u.Host != host {
			t.Errorf("ParseURL(%q) host = %q (err %v), want %q", in, u.Host, err, host)
		}
	}

	if got := UploadsPlaylistID(id); got != "UU"+id[2:] {
		t.Errorf("UploadsPlaylistID = %q", got)
	}
	if got := UploadsPlaylistID("bogus"); got != "" {
		t.Errorf("UploadsPlaylistID(bogus) = %q, want empty", got)
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/watch?list=x&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"dQw4w9WgXcQ", "dQw4w9WgXcQ", false},
		{"https://example.com/", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExtractVideoID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("ExtractVideoID(%q) error = %v, want ErrInvalidURL", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ExtractVideoID(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestVideoSetDuration(t *testing.T) {
	var v Video
	v.SetDuration("PT4M13S")
	if v.Duration != "PT4M13S" || v.DurationSeconds != 253 {
		t.Errorf("SetDuration = %q/%d", v.Duration, v.DurationSeconds)
	}
}
