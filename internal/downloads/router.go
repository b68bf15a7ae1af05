package downloads

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"digestpipe/internal/domain"
	"digestpipe/internal/sources"
)

// HistoryStore is the subset of internal/repository.Store the router
// needs for MRU strategy-history bookkeeping.
type HistoryStore interface {
	LoadStrategyHistory(ctx context.Context, podcast string) ([]string, error)
	RecordDownloadStrategy(ctx context.Context, podcast, strategy string) error
}

// FailureRecorder is the subset of internal/repository.Store used to log
// per-attempt failures.
type FailureRecorder interface {
	AppendFailure(ctx context.Context, rec domain.FailureRecord) error
}

// CandidateFinder is the subset of internal/sources.Finder the router
// needs to build per-episode candidate URL lists.
type CandidateFinder interface {
	Candidates(ctx context.Context, podcast domain.Podcast, ep domain.Episode) []string
}

var _ CandidateFinder = (*sources.Finder)(nil)

// Router implements C4's strategy selection and execution contract.
type Router struct {
	Strategies   []Strategy
	Finder       CandidateFinder
	History      HistoryStore
	Failures     FailureRecorder
	StageTimeout time.Duration
	Backoff      time.Duration
	NewID        func() string
}

// routingRules mirrors the original router's ROUTING_RULES table:
// podcast-specific orderings learned from real delivery failures, keyed by
// the exact catalog podcast name. "default" supplies the chain for
// everything else, per spec.md §4.4 step 1.
var routingRules = map[string][]string{
	"American Optimist":    {domain.StrategyYouTube, domain.StrategyBrowser},
	"Dwarkesh Podcast":     {domain.StrategyYouTube, domain.StrategyApplePodcasts, domain.StrategyBrowser},
	"The Drive":            {domain.StrategyApplePodcasts, domain.StrategyYouTube, domain.StrategyDirect},
	"A16Z":                 {domain.StrategyApplePodcasts, domain.StrategyDirect, domain.StrategyYouTube},
	"BG2 Pod":              {domain.StrategyDirect, domain.StrategyApplePodcasts},
	"All-In":               {domain.StrategyDirect, domain.StrategyApplePodcasts, domain.StrategyYouTube},
	"The Tim Ferriss Show": {domain.StrategyDirect, domain.StrategyApplePodcasts, domain.StrategyYouTube},
	"Lex Fridman":          {domain.StrategyDirect, domain.StrategyApplePodcasts, domain.StrategyYouTube},
	"Huberman Lab":         {domain.StrategyDirect, domain.StrategyApplePodcasts, domain.StrategyYouTube},
	"default":              {domain.StrategyDirect, domain.StrategyApplePodcasts, domain.StrategyYouTube, domain.StrategyBrowser},
}

// strategyNameFor translates the catalog vocabulary used by
// domain.RetryStrategy.Primary/Fallback (domain.StrategyYouTubeSearch,
// StrategyBrowserAutomation, StrategyCDNAlternatives, plus the strategy
// names already shared with the router) into the Strategy.Name() values
// actually registered in Download()'s byName map. CDN alternatives aren't
// a distinct registered strategy — internal/sources.Finder already folds
// CDN-alternative URLs into the candidate list Direct consumes — so it
// maps to Direct.
func strategyNameFor(catalogName string) string {
	switch catalogName {
	case domain.StrategyYouTubeSearch:
		return domain.StrategyYouTube
	case domain.StrategyBrowserAutomation:
		return domain.StrategyBrowser
	case domain.StrategyCDNAlternatives:
		return domain.StrategyDirect
	default:
		return catalogName
	}
}

func chainFor(podcast domain.Podcast) []string {
	if chain, ok := routingRules[podcast.Name]; ok {
		return chain
	}

	chain := make([]string, 0, 4)
	if name := strategyNameFor(podcast.RetryStrategy.Primary); name != "" {
		chain = append(chain, name)
	}
	if name := strategyNameFor(podcast.RetryStrategy.Fallback); name != "" {
		chain = append(chain, name)
	}
	chain = append(chain, routingRules["default"]...)
	return chain
}

// SelectionOrder builds the ordered, deduplicated strategy name sequence
// for one episode, applying (in order): per-podcast default chain,
// YouTube-URL override, MRU history prepend, and the Cloudflare/Substack
// direct-skip, per spec.md §4.4 step 2-4 and §8 properties 2-3.
func (r *Router) SelectionOrder(ctx context.Context, podcast domain.Podcast, audioURL string) []string {
	substackProtected := sources.IsSubstackProtected(podcast.Name) || isCloudflareProtectedDomain(audioURL)

	var base []string
	switch {
	case isYouTubeURL(audioURL):
		base = []string{domain.StrategyYouTube, domain.StrategyBrowser}
	case substackProtected:
		// spec.md's Special handling clause: Direct is disabled entirely
		// and the router begins with YouTube, falling back to Browser —
		// not merely the default chain with Direct stripped out.
		base = []string{domain.StrategyYouTube, domain.StrategyBrowser}
	default:
		base = chainFor(podcast)
	}

	var history []string
	if r.History != nil {
		history, _ = r.History.LoadStrategyHistory(ctx, podcast.Name)
	}

	ordered := make([]string, 0, len(history)+len(base))
	seen := make(map[string]bool)
	for _, s := range history {
		if !seen[s] {
			seen[s] = true
			ordered = append(ordered, s)
		}
	}
	for _, s := range base {
		if !seen[s] {
			seen[s] = true
			ordered = append(ordered, s)
		}
	}

	if substackProtected {
		filtered := ordered[:0]
		for _, s := range ordered {
			if s != domain.StrategyDirect {
				filtered = append(filtered, s)
			}
		}
		ordered = filtered
	}

	return ordered
}

// Download runs C4's full strategy-selection and execution contract for
// one episode, returning the validated output path or a structured
// all_strategies_failed error.
func (r *Router) Download(ctx context.Context, podcast domain.Podcast, ep domain.Episode, outputPath string) (string, error) {
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		return outputPath, nil
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o700); err != nil {
		return "", err
	}

	var candidates []string
	if r.Finder != nil {
		candidates = r.Finder.Candidates(ctx, podcast, ep)
	}
	primaryURL := ep.AudioURL
	if len(candidates) > 0 {
		primaryURL = candidates[0]
	}

	order := r.SelectionOrder(ctx, podcast, primaryURL)
	byName := make(map[string]Strategy, len(r.Strategies))
	for _, s := range r.Strategies {
		byName[s.Name()] = s
	}

	stageTimeout := r.StageTimeout
	if stageTimeout <= 0 {
		stageTimeout = 5 * time.Minute
	}
	backoff := r.Backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var attempts []Attempt
	for _, name := range order {
		strategy, ok := byName[name]
		if !ok {
			continue
		}

		url := selectURLForStrategy(name, candidates, primaryURL)
		if !strategy.CanHandle(url, podcast) {
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, stageTimeout)
		info := EpisodeInfo{Podcast: podcast, Episode: ep, OutputPath: outputPath}
		err := strategy.Download(attemptCtx, url, info)
		cancel()

		if err == nil {
			ok, validateErr := ValidateAudioFile(ctx, outputPath, nil)
			if validateErr == nil && ok {
				if r.History != nil {
					r.History.RecordDownloadStrategy(ctx, podcast.Name, name)
				}
				return outputPath, nil
			}
			os.Remove(outputPath)
			err = &Error{Kind: ErrorKindValidationFailed, Component: "downloads", Podcast: podcast.Name, EpisodeID: ep.GUID, Retryable: false, Message: "downloaded file failed audio validation"}
		}

		attempts = append(attempts, Attempt{Strategy: name, Err: err})
		r.recordFailure(ctx, podcast, ep, name, err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", &Error{
		Kind:      ErrorKindAllStrategies,
		Component: "downloads",
		Podcast:   podcast.Name,
		EpisodeID: ep.GUID,
		Retryable: false,
		Message:   "no strategy produced a validated audio file",
		Attempts:  attempts,
	}
}

func selectURLForStrategy(name string, candidates []string, fallback string) string {
	if name == domain.StrategyDirect && len(candidates) > 0 {
		return candidates[0]
	}
	return fallback
}

func (r *Router) recordFailure(ctx context.Context, podcast domain.Podcast, ep domain.Episode, strategy string, err error) {
	if r.Failures == nil {
		return
	}
	id := ""
	if r.NewID != nil {
		id = r.NewID()
	}
	r.Failures.AppendFailure(ctx, domain.FailureRecord{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Component: "downloads",
		Podcast:   podcast.Name,
		Title:     ep.Title,
		ErrorKind: domain.FailureKind(strategy),
		ErrorMsg:  err.Error(),
		Mode:      domain.ModeFull,
	})
}
