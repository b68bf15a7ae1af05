package sources

import (
	"context"
	"time"

	"digestpipe/internal/domain"
	"digestpipe/internal/exectools"
	"digestpipe/internal/fuzzy"
)

// VideoLister enumerates candidate videos from a channel URL or a
// "ytsearch{N}:query" expression without downloading them; implemented by
// *internal/exectools.Runner.
type VideoLister interface {
	ListVideos(ctx context.Context, target string, limit int) ([]exectools.VideoEntry, error)
}

// searchYouTube resolves a video URL for ep by listing (a) a
// podcast-specific channel hint, then (b) a "ytsearch10:" query made of the
// channel name (or podcast name) and the full episode title, scoring every
// listed candidate with fuzzy.MatchEpisode and keeping the best match above
// spec.md's word-overlap threshold. The query is not built from a guest
// name or episode number extracted from the title.
func (f *Finder) searchYouTube(ctx context.Context, podcast domain.Podcast, ep domain.Episode) string {
	if f.Lister == nil {
		return ""
	}

	searchCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	var targets []string
	if channel := podcast.RetryStrategy.YouTubeChannel; channel != "" {
		targets = append(targets, channel)
	}
	targets = append(targets, "ytsearch10:"+searchQuery(podcast, ep))

	var (
		bestURL   string
		bestScore float64
	)
	for _, target := range targets {
		entries, err := f.Lister.ListVideos(searchCtx, target, 10)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			score, ok := fuzzy.MatchEpisode(
				fuzzy.MatchCandidate{Title: entry.Title, Published: entry.Published, EpisodeNumber: ep.Metadata.EpisodeNumber},
				ep.Title, ep.Published, ep.Metadata.EpisodeNumber,
			)
			if ok && score > bestScore {
				bestScore = score
				bestURL = entry.URL
			}
		}
		if bestURL != "" {
			return bestURL
		}
	}
	return bestURL
}

func searchQuery(podcast domain.Podcast, ep domain.Episode) string {
	name := podcast.RetryStrategy.YouTubeChannelName
	if name == "" {
		name = podcast.Name
	}
	return name + " " + ep.Title
}
