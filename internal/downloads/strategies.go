package downloads

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"digestpipe/internal/domain"
	"digestpipe/internal/exectools"
	"digestpipe/internal/itunes"
	"digestpipe/internal/sources"
)

// EpisodeInfo carries the fields strategies need beyond the raw URL.
type EpisodeInfo struct {
	Podcast    domain.Podcast
	Episode    domain.Episode
	CookieFile string
	OutputPath string
}

// Strategy implements one of C4's download approaches.
type Strategy interface {
	Name() string
	CanHandle(url string, podcast domain.Podcast) bool
	Download(ctx context.Context, url string, info EpisodeInfo) error
}

// DirectStrategy performs a plain HTTP GET with progress-based timeout
// semantics, grounded on the teacher's downloads.Service.downloadOnce.
type DirectStrategy struct {
	HTTPClient *http.Client
	Params     ProgressParams
	Runner     *exectools.Runner
}

func (s *DirectStrategy) Name() string { return domain.StrategyDirect }

func (s *DirectStrategy) CanHandle(url string, podcast domain.Podcast) bool {
	if sources.IsSubstackProtected(podcast.Name) {
		return false
	}
	if isCloudflareProtectedDomain(url) {
		return false
	}
	return url != ""
}

func (s *DirectStrategy) Download(ctx context.Context, url string, info EpisodeInfo) error {
	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	params := s.Params
	if params == (ProgressParams{}) {
		params = DefaultProgressParams()
	}

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return httpError(info.Podcast.Name, info.Episode.GUID, resp.StatusCode)
	}

	file, err := os.OpenFile(info.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()

	progress := NewProgressReader(resp.Body, params)

	watchdogDone := make(chan struct{})
	go func() {
		defer close(watchdogDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-reqCtx.Done():
				return
			case <-ticker.C:
				if progress.Stalled() || progress.Expired() {
					cancel()
					return
				}
			}
		}
	}()

	// 32 KB chunks per spec.md §5's memory-resource policy.
	_, copyErr := io.CopyBuffer(file, progress, make([]byte, 32*1024))
	<-watchdogDone

	if copyErr != nil {
		os.Remove(info.OutputPath)
		if progress.Expired() {
			return &Error{Kind: ErrorKindMaxTimeout, Component: "downloads", Podcast: info.Podcast.Name, EpisodeID: info.Episode.GUID, Retryable: false, Message: "max_timeout exceeded"}
		}
		if progress.Stalled() {
			return &Error{Kind: ErrorKindStalled, Component: "downloads", Podcast: info.Podcast.Name, EpisodeID: info.Episode.GUID, Retryable: true, Message: "stream stalled below min_speed"}
		}
		return copyErr
	}

	return nil
}

// ApplePodcastsStrategy resolves the episode through iTunes Lookup and
// downloads the resulting enclosure URL via Direct.
type ApplePodcastsStrategy struct {
	ITunes *itunes.Client
	Direct *DirectStrategy
}

func (s *ApplePodcastsStrategy) Name() string { return domain.StrategyApplePodcasts }

func (s *ApplePodcastsStrategy) CanHandle(url string, podcast domain.Podcast) bool {
	return podcast.AppleID != "" && s.ITunes != nil
}

func (s *ApplePodcastsStrategy) Download(ctx context.Context, url string, info EpisodeInfo) error {
	if url == "" {
		return fmt.Errorf("apple_podcasts: no resolved enclosure url")
	}
	return s.Direct.Download(ctx, url, info)
}

// YouTubeStrategy downloads via an external media extractor, converting
// to MP3 if the extracted container isn't already one.
type YouTubeStrategy struct {
	Runner *exectools.Runner
}

func (s *YouTubeStrategy) Name() string { return domain.StrategyYouTube }

func (s *YouTubeStrategy) CanHandle(url string, podcast domain.Podcast) bool {
	return isYouTubeURL(url) && s.Runner != nil
}

func (s *YouTubeStrategy) Download(ctx context.Context, url string, info EpisodeInfo) error {
	if !s.Runner.Available(exectools.ToolYTDLP) {
		return fmt.Errorf("youtube: media extractor tool not installed")
	}

	tmp := info.OutputPath + ".ytdlp.tmp"
	if err := s.Runner.DownloadMedia(ctx, url, tmp, info.CookieFile); err != nil {
		return err
	}
	defer os.Remove(tmp)

	if ok, _ := ValidateAudioFile(ctx, tmp, s.Runner); ok {
		return os.Rename(tmp, info.OutputPath)
	}

	if !s.Runner.Available(exectools.ToolFFmpeg) {
		return fmt.Errorf("youtube: downloaded file is not valid audio and no converter is available")
	}
	return s.Runner.ConvertToMP3(ctx, tmp, info.OutputPath)
}

// BrowserStrategy launches a headless browser to recover an audio URL the
// other strategies could not reach directly. The actual browser
// automation is an out-of-process dependency (see DESIGN.md); this
// implementation resolves the best network-observed candidate handed to
// it by the caller and downloads it via Direct, which is the portion of
// spec.md §4.4's Browser strategy expressible without a vendored browser
// automation stack.
type BrowserStrategy struct {
	Direct  *DirectStrategy
	Observe func(ctx context.Context, pageURL string) (string, error)
}

func (s *BrowserStrategy) Name() string { return domain.StrategyBrowser }

func (s *BrowserStrategy) CanHandle(url string, podcast domain.Podcast) bool {
	return s.Observe != nil
}

func (s *BrowserStrategy) Download(ctx context.Context, url string, info EpisodeInfo) error {
	observed, err := s.Observe(ctx, info.Episode.Link)
	if err != nil {
		return err
	}
	return s.Direct.Download(ctx, observed, info)
}

var cloudflareProtectedDomains = []string{
	"api.substack.com",
}

func isCloudflareProtectedDomain(url string) bool {
	for _, domain := range cloudflareProtectedDomains {
		if strings.Contains(url, domain) {
			return true
		}
	}
	return false
}

func isYouTubeURL(url string) bool {
	return strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be")
}
