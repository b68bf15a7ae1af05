// Package itunes wraps the iTunes Search/Lookup API, used by C2 for feed
// discovery and by C3/C4 to resolve an Apple-advertised enclosure URL for
// ApplePodcasts-strategy downloads.
package itunes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Client interacts with the iTunes Search API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a client using the provided HTTP client. baseURL can be
// overridden for testing; empty uses the public API endpoint.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://itunes.apple.com"
	}
	return &Client{httpClient: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

// Podcast represents a podcast returned by the iTunes API.
type Podcast struct {
	ID      string
	Title   string
	Author  string
	FeedURL string
	Genre   string
}

// Episode represents one entry returned by a podcastEpisode lookup.
type Episode struct {
	TrackID     int64
	Title       string
	EpisodeURL  string
	ReleaseDate string
}

// Search queries the API for podcasts matching term.
func (c *Client) Search(ctx context.Context, term string, limit int) ([]Podcast, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("search term cannot be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	body, err := c.get(ctx, "/search", url.Values{
		"media": {"podcast"},
		"term":  {term},
		"limit": {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(body, "results").Array()
	podcasts := make([]Podcast, 0, len(results))
	for _, item := range results {
		podcasts = append(podcasts, Podcast{
			ID:      item.Get("collectionId").String(),
			Title:   item.Get("collectionName").String(),
			Author:  item.Get("artistName").String(),
			FeedURL: item.Get("feedUrl").String(),
			Genre:   item.Get("primaryGenreName").String(),
		})
	}
	return podcasts, nil
}

// LookupPodcast retrieves metadata for a single podcast by its collection ID.
func (c *Client) LookupPodcast(ctx context.Context, id string) (Podcast, error) {
	body, err := c.get(ctx, "/lookup", url.Values{"id": {id}})
	if err != nil {
		return Podcast{}, err
	}

	results := gjson.GetBytes(body, "results").Array()
	if len(results) == 0 {
		return Podcast{}, fmt.Errorf("podcast not found: %s", id)
	}
	item := results[0]
	return Podcast{
		ID:      item.Get("collectionId").String(),
		Title:   item.Get("collectionName").String(),
		Author:  item.Get("artistName").String(),
		FeedURL: item.Get("feedUrl").String(),
		Genre:   item.Get("primaryGenreName").String(),
	}, nil
}

// LookupEpisodes retrieves the episode list for an Apple podcast id,
// used by C3's Apple-lookup candidate path and C4's ApplePodcasts strategy
// to recover an episode's Apple-hosted enclosure URL (episodeUrl).
func (c *Client) LookupEpisodes(ctx context.Context, podcastID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 200
	}
	body, err := c.get(ctx, "/lookup", url.Values{
		"id":     {podcastID},
		"entity": {"podcastEpisode"},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(body, "results").Array()
	episodes := make([]Episode, 0, len(results))
	for _, item := range results {
		if item.Get("wrapperType").String() != "podcastEpisode" {
			continue
		}
		episodes = append(episodes, Episode{
			TrackID:     item.Get("trackId").Int(),
			Title:       item.Get("trackName").String(),
			EpisodeURL:  item.Get("episodeUrl").String(),
			ReleaseDate: item.Get("releaseDate").String(),
		})
	}
	return episodes, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("itunes request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("itunes request failed: %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
