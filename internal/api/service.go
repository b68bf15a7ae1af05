// Package api implements the UI boundary spec.md §6 documents as
// out-of-core: a small synchronous facade a local web UI drives through
// two calls (list then process) plus a fire-and-forget cancel.
package api

import (
	"context"
	"sort"
	"sync"
	"time"

	"digestpipe/internal/discovery"
	"digestpipe/internal/domain"
	"digestpipe/internal/pipeline"
)

// DiscoveryProgress reports fetch progress across the selected podcasts.
type DiscoveryProgress struct {
	Podcast string
	Index   int
	Total   int

	// Missing lists episodes Apple Podcasts advertises for this podcast
	// that didn't show up in the merged RSS/Apple result set, per
	// spec.md §4.2's Apple cross-check. Observability only: it is never
	// folded back into the returned episode list. Populated only when
	// both VerifyApplePodcasts and FetchMissingEpisodes are enabled.
	Missing []discovery.MissingEpisode
}

// EpisodeProgress reports one episode's pipeline progress.
type EpisodeProgress = pipeline.ProgressEvent

// Fetcher is the subset of internal/discovery.Fetcher the service drives.
type Fetcher interface {
	Fetch(ctx context.Context, podcast domain.Podcast) ([]domain.Episode, []discovery.SourceError)
}

// Processor is the subset of internal/pipeline.Orchestrator the service
// drives; its progress callback is wired per-call via runWithProgress.
type Processor interface {
	Run(ctx context.Context, podcast domain.Podcast, episodes []domain.Episode, mode domain.Mode) []pipeline.Result
	Cancel()
}

// ApplePodcastsVerifier cross-checks a podcast's merged episode list
// against its Apple Podcasts feed, returning episodes Apple advertises
// that merged is missing (spec.md §4.2). Implemented by a closure over
// internal/discovery.VerifyAgainstApple and an *internal/itunes.Client in
// cmd/digest/main.go, kept as a function field here so this package
// doesn't need to import internal/itunes just to wire the check.
type ApplePodcastsVerifier func(ctx context.Context, podcast domain.Podcast, merged []domain.Episode, cutoff time.Time) ([]discovery.MissingEpisode, error)

// Service is the concrete UI boundary: list_recent_episodes,
// process_episodes and cancel, per spec.md §6.
type Service struct {
	Catalog   []domain.Podcast
	Fetcher   Fetcher
	Processor Processor

	// VerifyApplePodcasts and FetchMissingEpisodes jointly gate the
	// Apple cross-check (spec.md §4.2): both must be enabled, since the
	// check costs an extra Apple Lookup API call per podcast on every
	// list_recent_episodes call.
	VerifyApplePodcasts  bool
	FetchMissingEpisodes bool
	Verify               ApplePodcastsVerifier

	mu        sync.Mutex
	cancelled bool
}

// PodcastSummary is one entry in a processed batch's output.
type PodcastSummary struct {
	Paragraph string `json:"paragraph"`
	Long      string `json:"long"`
}

// ListRecentEpisodes resolves each selected podcast against the catalog,
// fetches its recent episodes, and reports progress as each podcast
// completes, per spec.md's `list_recent_episodes(selected_podcasts,
// days_back) -> [Episode]`.
func (s *Service) ListRecentEpisodes(ctx context.Context, selectedPodcasts []string, daysBack int, onProgress func(DiscoveryProgress)) ([]domain.Episode, error) {
	podcasts := s.resolvePodcasts(selectedPodcasts)
	cutoff := time.Now().UTC().AddDate(0, 0, -daysBackOrDefault(daysBack))

	var all []domain.Episode
	for i, podcast := range podcasts {
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		episodes, _ := s.Fetcher.Fetch(ctx, podcast)
		all = append(all, episodes...)

		var missing []discovery.MissingEpisode
		if s.VerifyApplePodcasts && s.FetchMissingEpisodes && s.Verify != nil && podcast.AppleID != "" {
			missing, _ = s.Verify(ctx, podcast, episodes, cutoff)
		}

		if onProgress != nil {
			onProgress(DiscoveryProgress{Podcast: podcast.Name, Index: i + 1, Total: len(podcasts), Missing: missing})
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Published.After(all[j].Published) })
	return all, nil
}

// ProcessEpisodes runs the given episodes through the pipeline grouped by
// podcast, returning each podcast's latest generated products, per
// spec.md's `process_episodes(episodes, mode) -> {podcast: {paragraph,
// long}}`.
func (s *Service) ProcessEpisodes(ctx context.Context, episodes []domain.Episode, mode domain.Mode, onProgress func(EpisodeProgress)) map[string]PodcastSummary {
	byPodcast := groupByPodcast(episodes)

	out := make(map[string]PodcastSummary, len(byPodcast))
	for name, group := range byPodcast {
		if s.isCancelled() {
			break
		}
		podcast, ok := catalogFind(s.Catalog, name)
		if !ok {
			podcast = domain.Podcast{Name: name}
		}

		results := s.runWithProgress(ctx, podcast, group, mode, onProgress)
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			out[name] = PodcastSummary{Paragraph: r.Products.Paragraph, Long: r.Products.Long}
		}
	}
	return out
}

// runWithProgress is split out only so tests can substitute a Processor
// whose Run signature doesn't itself accept a progress callback; real
// wiring configures the orchestrator's OnProgress field directly.
func (s *Service) runWithProgress(ctx context.Context, podcast domain.Podcast, episodes []domain.Episode, mode domain.Mode, onProgress func(EpisodeProgress)) []pipeline.Result {
	if orch, ok := s.Processor.(*pipeline.Orchestrator); ok && onProgress != nil {
		prior := orch.OnProgress
		orch.OnProgress = func(evt pipeline.ProgressEvent) {
			if prior != nil {
				prior(evt)
			}
			onProgress(evt)
		}
		defer func() { orch.OnProgress = prior }()
	}
	return s.Processor.Run(ctx, podcast, episodes, mode)
}

// Cancel raises the idempotent, fire-and-forget cancellation signal.
// Repeated calls are no-ops.
func (s *Service) Cancel() {
	s.mu.Lock()
	already := s.cancelled
	s.cancelled = true
	s.mu.Unlock()
	if already {
		return
	}
	s.Processor.Cancel()
}

func (s *Service) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// daysBackOrDefault mirrors internal/discovery's own default window so the
// Apple cross-check's cutoff agrees with the request's actual lookback.
func daysBackOrDefault(daysBack int) int {
	if daysBack <= 0 {
		return 7
	}
	return daysBack
}

func (s *Service) resolvePodcasts(selected []string) []domain.Podcast {
	if len(selected) == 0 {
		return s.Catalog
	}
	out := make([]domain.Podcast, 0, len(selected))
	for _, name := range selected {
		if p, ok := catalogFind(s.Catalog, name); ok {
			out = append(out, p)
		}
	}
	return out
}

func catalogFind(podcasts []domain.Podcast, name string) (domain.Podcast, bool) {
	for _, p := range podcasts {
		if p.Name == name {
			return p, true
		}
	}
	return domain.Podcast{}, false
}

func groupByPodcast(episodes []domain.Episode) map[string][]domain.Episode {
	out := make(map[string][]domain.Episode)
	for _, ep := range episodes {
		out[ep.Podcast] = append(out[ep.Podcast], ep)
	}
	return out
}
