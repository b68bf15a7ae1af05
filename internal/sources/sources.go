// Package sources implements C3, the Audio Source Finder: given an episode
// and its podcast's retry strategy, it produces an ordered, deduplicated
// list of candidate audio URLs for C4 to attempt in turn.
package sources

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"digestpipe/internal/domain"
	"digestpipe/internal/fuzzy"
	"digestpipe/internal/itunes"
)

// Finder builds candidate URL lists per spec.md §4.3.
type Finder struct {
	HTTPClient *http.Client
	ITunes     *itunes.Client
	Curated    CuratedLookup
	Lister     VideoLister
}

// CuratedLookup resolves a curated video URL for an episode; Candidates
// consults it before every other source. DefaultCuratedLookup (curated.go)
// keys a built-in table by podcast name and extracted episode number.
type CuratedLookup func(podcast domain.Podcast, ep domain.Episode) (string, bool)

// Candidates returns the ordered, deduplicated candidate URL list for ep.
func (f *Finder) Candidates(ctx context.Context, podcast domain.Podcast, ep domain.Episode) []string {
	var ordered []string
	seen := make(map[string]bool)

	push := func(url string) {
		url = strings.TrimSpace(url)
		if url == "" || seen[url] {
			return
		}
		seen[url] = true
		ordered = append(ordered, url)
	}

	strategy := podcast.RetryStrategy

	if f.Curated != nil {
		if url, ok := f.Curated(podcast, ep); ok {
			push(url)
		}
	}

	if strategy.ForceApple || strategy.Primary == domain.StrategyApplePodcasts {
		if url := f.resolveApple(ctx, podcast, ep); url != "" {
			push(url)
		}
	}

	if url := f.probePlatformRewrite(ctx, ep.AudioURL); url != "" {
		push(url)
	}

	if ep.Link != "" {
		if url := f.scrapeEpisodePage(ctx, ep.Link); url != "" {
			push(url)
		}
	}

	if strategy.Fallback == domain.StrategyCDNAlternatives && ep.AudioURL != "" {
		for _, alt := range cdnAlternatives(ctx, f.HTTPClient, ep.AudioURL) {
			push(alt)
		}
	}

	wantsYouTubeSearch := strategy.Primary == domain.StrategyYouTubeSearch ||
		strategy.Fallback == domain.StrategyYouTubeSearch ||
		strategy.YouTubeChannel != ""
	if wantsYouTubeSearch {
		if url := f.searchYouTube(ctx, podcast, ep); url != "" {
			push(url)
		}
	}

	if !strategy.SkipRSS {
		push(ep.AudioURL)
	}

	return ordered
}

// resolveApple resolves the Apple-advertised episodeUrl for ep by fuzzy
// title/date matching against the podcast's Apple episode list.
func (f *Finder) resolveApple(ctx context.Context, podcast domain.Podcast, ep domain.Episode) string {
	if podcast.AppleID == "" || f.ITunes == nil {
		return ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	episodes, err := f.ITunes.LookupEpisodes(lookupCtx, podcast.AppleID, 0)
	if err != nil {
		return ""
	}

	var (
		bestURL   string
		bestScore float64
	)
	for _, candidate := range episodes {
		published, _ := time.Parse(time.RFC3339, candidate.ReleaseDate)
		score, ok := fuzzy.MatchEpisode(
			fuzzy.MatchCandidate{Title: candidate.Title, Published: published, EpisodeNumber: ep.Metadata.EpisodeNumber},
			ep.Title, ep.Published, ep.Metadata.EpisodeNumber,
		)
		if ok && score > bestScore && candidate.EpisodeURL != "" {
			bestScore = score
			bestURL = candidate.EpisodeURL
		}
	}
	return bestURL
}

// platformHandlers probes known hosting platforms with the header
// adjustments they require to expose a direct, stable URL; see
// internal/sources/platforms.go.
var platformHandlers = []platformHandler{
	megaphoneHandler{},
	libsynHandler{},
}

type platformHandler interface {
	matches(url string) bool
	probe(ctx context.Context, client *http.Client, url string) (string, bool)
}

func (f *Finder) probePlatformRewrite(ctx context.Context, audioURL string) string {
	if audioURL == "" {
		return ""
	}
	for _, handler := range platformHandlers {
		if !handler.matches(audioURL) {
			continue
		}
		if rewritten, ok := handler.probe(ctx, f.HTTPClient, audioURL); ok {
			return rewritten
		}
	}
	return ""
}

// validateCandidate issues a HEAD or ranged GET to confirm a candidate URL
// resolves without downloading the full body, per spec.md §4.3 ("may
// issue HEAD or 1-byte range GET requests to validate candidates").
func validateCandidate(ctx context.Context, client *http.Client, url string) bool {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return true
	}

	// Some CDNs reject HEAD; fall back to a 1-byte ranged GET.
	req, err = http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err = client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}
