package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const sampleFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Example Show</title>
    <description>A show about examples</description>
    <item>
      <title>Episode One</title>
      <description>The first episode</description>
      <link>https://example.com/ep1</link>
      <guid>ep-1</guid>
      <pubDate>Mon, 02 Jan 2026 03:00:00 +0000</pubDate>
      <enclosure url="https://example.com/ep1.mp3" length="1000" type="audio/mpeg"/>
      <duration>1830</duration>
    </item>
    <item>
      <title>Episode Two (video only)</title>
      <link>https://example.com/ep2</link>
      <pubDate>Tue, 03 Jan 2026 03:00:00 +0000</pubDate>
      <enclosure url="https://example.com/ep2.mp4" length="1000" type="video/mp4"/>
    </item>
    <item>
      <title>Episode Three (bad date)</title>
      <link>https://example.com/ep3</link>
      <pubDate>not-a-date</pubDate>
      <enclosure url="https://example.com/ep3.mp3" length="1000" type="audio/mpeg"/>
    </item>
  </channel>
</rss>`

func TestFetchParsesItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer server.Close()

	podcast, items, err := Fetch(context.Background(), server.Client(), server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if podcast.Title != "Example Show" {
		t.Errorf("unexpected podcast title: %q", podcast.Title)
	}
	// Episode Three is dropped: its pubDate can't be parsed by any layout
	// or by dateparse's fallback.
	if len(items) != 2 {
		t.Fatalf("expected 2 parseable items, got %d: %+v", len(items), items)
	}

	first := items[0]
	if first.GUID != "ep-1" {
		t.Errorf("expected guid ep-1, got %q", first.GUID)
	}
	if first.AudioURL != "https://example.com/ep1.mp3" {
		t.Errorf("expected audio enclosure, got %q", first.AudioURL)
	}
	if first.Duration != 1830*time.Second {
		t.Errorf("expected duration 1830s, got %v", first.Duration)
	}

	second := items[1]
	if second.AudioURL != "" {
		t.Errorf("expected video enclosure to be rejected, got %q", second.AudioURL)
	}
}

func TestParseDurationFormats(t *testing.T) {
	cases := map[string]time.Duration{
		"":         0,
		"90":       90 * time.Second,
		"01:30":    90 * time.Second,
		"01:01:30": time.Hour + time.Minute + 30*time.Second,
		"garbage":  0,
	}
	for input, want := range cases {
		if got := parseDuration(input); got != want {
			t.Errorf("parseDuration(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseTimeFallsBackToDateparse(t *testing.T) {
	got, err := parseTime("2026-01-02 03:04:05")
	if err != nil {
		t.Fatalf("parseTime: %v", err)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("parseTime = %v, want %v", got, want)
	}
}
