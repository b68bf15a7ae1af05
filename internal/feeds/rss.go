// Package feeds fetches and parses the RSS feeds that make up C2's primary
// episode source, extracting the richer field set spec.md §4.2 requires:
// transcript URLs, durations, and a dateparse fallback for feeds
// with nonstandard pubDate formatting.
package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Podcast describes metadata read from a feed's channel element.
type Podcast struct {
	Title       string
	Description string
}

// Item is one parsed <item> entry, prior to dedup/merge in internal/discovery.
type Item struct {
	GUID          string
	Title         string
	Description   string
	Link          string
	PublishedAt   time.Time
	AudioURL      string
	TranscriptURL string
	Duration      time.Duration
}

// Fetch retrieves and parses an RSS feed. It sets no timeout of its own;
// the request is bounded only by ctx and by client.
func Fetch(ctx context.Context, client *http.Client, url string) (Podcast, []Item, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Podcast{}, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Podcast{}, nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Podcast{}, nil, fmt.Errorf("fetch feed failed: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Podcast{}, nil, fmt.Errorf("read feed: %w", err)
	}

	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Podcast{}, nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]Item, 0, len(doc.Channel.Items))
	for _, raw := range doc.Channel.Items {
		item, ok := convertItem(doc.Channel.Title, raw)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	return Podcast{
		Title:       strings.TrimSpace(doc.Channel.Title),
		Description: strings.TrimSpace(doc.Channel.Description),
	}, items, nil
}

func convertItem(channelTitle string, item rssItem) (Item, bool) {
	published, err := parseTime(item.PubDate)
	if err != nil {
		return Item{}, false
	}

	guid := strings.TrimSpace(item.GUID.Value)
	if guid == "" {
		guid = strings.TrimSpace(item.Enclosure.URL)
	}
	if guid == "" {
		guid = strings.TrimSpace(item.Link)
	}
	if guid == "" {
		guid = fmt.Sprintf("%s:%s", channelTitle, item.Title)
	}

	return Item{
		GUID:          guid,
		Title:         strings.TrimSpace(item.Title),
		Description:   strings.TrimSpace(item.Description),
		Link:          strings.TrimSpace(item.Link),
		PublishedAt:   published,
		AudioURL:      preferredEnclosure(item),
		TranscriptURL: strings.TrimSpace(item.Transcript.URL),
		Duration:      parseDuration(item.Duration),
	}, true
}

// preferredEnclosure returns item.Enclosure.URL only when it looks like
// audio, per spec.md §4.2 ("prefer audio/* MIME"); a non-audio enclosure
// (e.g. a chapters JSON or video file) is not treated as the audio source.
func preferredEnclosure(item rssItem) string {
	url := strings.TrimSpace(item.Enclosure.URL)
	if url == "" {
		return ""
	}
	mime := strings.ToLower(strings.TrimSpace(item.Enclosure.Type))
	if mime != "" && !strings.HasPrefix(mime, "audio/") {
		return ""
	}
	return url
}

func parseDuration(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	parts := strings.Split(value, ":")
	var total time.Duration
	multiplier := []time.Duration{time.Second, time.Minute, time.Hour}
	for i := 0; i < len(parts) && i < len(multiplier); i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1-i]))
		if err != nil {
			return 0
		}
		total += time.Duration(n) * multiplier[i]
	}
	return total
}

// parseTime tries the feed-standard layouts first, then falls back to
// dateparse's lenient detector for feeds with nonstandard formatting.
func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := dateparse.ParseAny(value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unable to parse time: %s", value)
}

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title       string    `xml:"title"`
	Description string    `xml:"description"`
	Items       []rssItem `xml:"item"`
}

type rssItem struct {
	GUID        rssGUID       `xml:"guid"`
	Title       string        `xml:"title"`
	Description string        `xml:"description"`
	Link        string        `xml:"link"`
	PubDate     string        `xml:"pubDate"`
	Enclosure   rssEnclosure  `xml:"enclosure"`
	Transcript  rssTranscript `xml:"transcript"`
	Duration    string        `xml:"duration"`
}

type rssGUID struct {
	Value string `xml:",chardata"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length string `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// rssTranscript maps the podcast namespace's <podcast:transcript> tag,
// which several feed generators alias to a bare <transcript> element.
type rssTranscript struct {
	URL string `xml:"url,attr"`
}
