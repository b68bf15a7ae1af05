// Package discovery implements C2, the Episode Fetcher: it resolves a
// podcast's configured sources, fetches each independently, parses and
// merges entries into a deduplicated, normalized Episode list.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"digestpipe/internal/domain"
	"digestpipe/internal/feeds"
	"digestpipe/internal/itunes"
)

// SourceError records a non-fatal failure fetching one source, per
// spec.md §4.2 ("records feed parse errors but does not abort on any
// single source").
type SourceError struct {
	Source string
	Err    error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

// Fetcher resolves and merges episodes for one podcast.
type Fetcher struct {
	HTTPClient *http.Client
	ITunes     *itunes.Client
	DaysBack   int
	Logger     zerolog.Logger
}

type sourceTag int

const (
	sourceRSS sourceTag = iota
	sourceApple
	sourceDirectory
)

type mergeCandidate struct {
	episode domain.Episode
	source  sourceTag
}

// Fetch resolves every configured source for podcast, fetches each with an
// independent error boundary, and returns the deduplicated, merged,
// cutoff-filtered episode list along with any per-source errors.
func (f *Fetcher) Fetch(ctx context.Context, podcast domain.Podcast) ([]domain.Episode, []SourceError) {
	var (
		candidates []mergeCandidate
		errs       []SourceError
	)

	cutoff := time.Now().UTC().AddDate(0, 0, -daysBackOrDefault(f.DaysBack))

	for _, feedURL := range podcast.RSSFeeds {
		items, err := f.fetchOneFeed(ctx, feedURL)
		if err != nil {
			errs = append(errs, SourceError{Source: feedURL, Err: err})
			continue
		}
		for _, item := range items {
			candidates = append(candidates, mergeCandidate{
				episode: episodeFromFeedItem(podcast.Name, item),
				source:  sourceRSS,
			})
		}
	}

	if podcast.AppleID != "" && f.ITunes != nil {
		episodes, err := f.fetchFromApple(ctx, podcast)
		if err != nil {
			errs = append(errs, SourceError{Source: "apple:" + podcast.AppleID, Err: err})
		} else {
			for _, ep := range episodes {
				candidates = append(candidates, mergeCandidate{episode: ep, source: sourceApple})
			}
		}
	}

	merged := mergeCandidates(candidates)

	out := make([]domain.Episode, 0, len(merged))
	for _, ep := range merged {
		if ep.Published.Before(cutoff) {
			continue
		}
		if ep.AudioURL == "" && ep.TranscriptURL == "" {
			f.logDropped(ep)
			continue
		}
		ep.Metadata = extractMetadata(ep.Title, ep.AudioURL)
		out = append(out, ep)
	}

	return out, errs
}

func (f *Fetcher) logDropped(ep domain.Episode) {
	if f.Logger.GetLevel() > zerolog.DebugLevel {
		return
	}
	f.Logger.Debug().Str("podcast", ep.Podcast).Str("title", ep.Title).Msg("dropping episode with no audio or transcript url")
}

func (f *Fetcher) fetchOneFeed(ctx context.Context, feedURL string) ([]feeds.Item, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, items, err := feeds.Fetch(fetchCtx, f.HTTPClient, feedURL)
	return items, err
}

func (f *Fetcher) fetchFromApple(ctx context.Context, podcast domain.Podcast) ([]domain.Episode, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	episodes, err := f.ITunes.LookupEpisodes(fetchCtx, podcast.AppleID, 0)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Episode, 0, len(episodes))
	for _, ep := range episodes {
		published, _ := time.Parse(time.RFC3339, ep.ReleaseDate)
		out = append(out, domain.Episode{
			Podcast:        podcast.Name,
			Title:          ep.Title,
			Published:      published.UTC(),
			AudioURL:       ep.EpisodeURL,
			ApplePodcastID: podcast.AppleID,
		})
	}
	return out, nil
}

func episodeFromFeedItem(podcastName string, item feeds.Item) domain.Episode {
	return domain.Episode{
		Podcast:       podcastName,
		Title:         item.Title,
		Published:     item.PublishedAt.UTC(),
		AudioURL:      item.AudioURL,
		TranscriptURL: item.TranscriptURL,
		Description:   item.Description,
		Link:          item.Link,
		GUID:          item.GUID,
		Duration:      item.Duration,
	}
}

// mergeCandidates deduplicates by (a) matching guid, then (b) matching
// (normalized title, date within 1 day), merging non-empty fields and
// preferring sources in order RSS > Apple > directory, per spec.md §4.2.
func mergeCandidates(candidates []mergeCandidate) []domain.Episode {
	byGUID := make(map[string]int) // guid -> index into result
	result := make([]domain.Episode, 0, len(candidates))

	titleDateIndex := func(title string, published time.Time) (int, bool) {
		norm := normalizeTitle(title)
		for i, ep := range result {
			if normalizeTitle(ep.Title) != norm {
				continue
			}
			delta := ep.Published.Sub(published)
			if delta < 0 {
				delta = -delta
			}
			if delta <= 24*time.Hour {
				return i, true
			}
		}
		return 0, false
	}

	for _, c := range candidates {
		ep := c.episode

		var idx int
		var found bool
		if ep.GUID != "" {
			if i, ok := byGUID[ep.GUID]; ok {
				idx, found = i, true
			}
		}
		if !found {
			idx, found = titleDateIndex(ep.Title, ep.Published)
		}

		if !found {
			result = append(result, ep)
			if ep.GUID != "" {
				byGUID[ep.GUID] = len(result) - 1
			}
			continue
		}

		result[idx] = mergeEpisode(result[idx], ep, c.source)
		if ep.GUID != "" {
			byGUID[ep.GUID] = idx
		}
	}

	return result
}

// mergeEpisode fills empty fields of existing from incoming, never
// overwriting a value already present from a higher-precedence source
// (RSS > Apple > directory, enforced by call order in Fetch).
func mergeEpisode(existing, incoming domain.Episode, incomingSource sourceTag) domain.Episode {
	if existing.AudioURL == "" {
		existing.AudioURL = incoming.AudioURL
	}
	if existing.TranscriptURL == "" {
		existing.TranscriptURL = incoming.TranscriptURL
	}
	if existing.Description == "" {
		existing.Description = incoming.Description
	}
	if existing.Link == "" {
		existing.Link = incoming.Link
	}
	if existing.GUID == "" {
		existing.GUID = incoming.GUID
	}
	if existing.Duration == 0 {
		existing.Duration = incoming.Duration
	}
	if existing.ApplePodcastID == "" {
		existing.ApplePodcastID = incoming.ApplePodcastID
	}
	if existing.Published.IsZero() {
		existing.Published = incoming.Published
	}
	return existing
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

var episodeNumberPattern = regexp.MustCompile(`(?i)(?:#|ep(?:isode)?\.?\s*)(\d{1,4})\b`)

// extractMetadata pulls an episode number and guest name heuristically
// from the title, and a file extension from the audio URL.
func extractMetadata(title, audioURL string) domain.EpisodeMetadata {
	meta := domain.EpisodeMetadata{}

	if m := episodeNumberPattern.FindStringSubmatch(title); len(m) == 2 {
		meta.EpisodeNumber = m[1]
	}

	if idx := strings.Index(title, " with "); idx >= 0 {
		guest := title[idx+len(" with "):]
		if cut := strings.IndexAny(guest, "|-—"); cut >= 0 {
			guest = guest[:cut]
		}
		meta.GuestName = strings.TrimSpace(guest)
	}

	if audioURL != "" {
		ext := path.Ext(audioURL)
		if qIdx := strings.IndexByte(ext, '?'); qIdx >= 0 {
			ext = ext[:qIdx]
		}
		meta.FileExtension = strings.ToLower(ext)
	}

	return meta
}

func daysBackOrDefault(daysBack int) int {
	if daysBack <= 0 {
		return 7
	}
	return daysBack
}
