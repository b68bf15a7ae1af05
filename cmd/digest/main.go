package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"digestpipe/internal/api"
	"digestpipe/internal/asr"
	"digestpipe/internal/catalog"
	"digestpipe/internal/discovery"
	"digestpipe/internal/domain"
	"digestpipe/internal/downloads"
	"digestpipe/internal/exectools"
	"digestpipe/internal/itunes"
	"digestpipe/internal/logging"
	"digestpipe/internal/pipeline"
	"digestpipe/internal/progress"
	"digestpipe/internal/repository"
	"digestpipe/internal/settings"
	"digestpipe/internal/sources"
	"digestpipe/internal/storage"
	"digestpipe/internal/summarize"
	"digestpipe/internal/transcripts"
)

func main() {
	baseDir := flag.String("base-dir", defaultBaseDir(), "root directory for audio, transcripts, cache and the database")
	catalogPath := flag.String("catalog", "podcasts.yaml", "path to the podcast catalog file")
	settingsPath := flag.String("settings", "", "optional YAML overrides file for runtime settings")
	addr := flag.String("addr", "127.0.0.1:8765", "address the local operator API listens on")
	watch := flag.Bool("watch", false, "render a live terminal view of pipeline progress instead of serving the API")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, dir := range []string{"audio", "transcripts", "summaries", "cache", "temp"} {
		if err := os.MkdirAll(filepath.Join(*baseDir, dir), 0o700); err != nil {
			log.Fatalf("failed to create %s directory: %v", dir, err)
		}
	}

	logger := logging.Configure(logging.Options{
		Path:    filepath.Join(*baseDir, "digest.log"),
		Console: true,
	})

	cfg, err := settings.Load(*settingsPath)
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	podcasts, err := catalog.Ensure(*catalogPath)
	if err != nil {
		log.Fatalf("failed to load catalog: %v", err)
	}

	if cfg.AudioCacheMaxAgeDays > 0 {
		if removed, evictErr := pipeline.EvictStaleAudio(filepath.Join(*baseDir, "audio"), time.Duration(cfg.AudioCacheMaxAgeDays)*24*time.Hour); evictErr != nil {
			logger.Warn().Err(evictErr).Msg("audio cache eviction sweep failed")
		} else if removed > 0 {
			logger.Info().Int("removed", removed).Msg("evicted stale cached audio files")
		}
	}

	db, err := storage.Open(filepath.Join(*baseDir, "podcast_data.db"))
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	store := repository.New(db)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	runner := exectools.NewRunner()
	itunesClient := itunes.NewClient(httpClient, "")

	fetcher := &discovery.Fetcher{
		HTTPClient: httpClient,
		ITunes:     itunesClient,
		DaysBack:   7,
		Logger:     logger.With().Str("component", "discovery").Logger(),
	}

	finder := &sources.Finder{HTTPClient: httpClient, ITunes: itunesClient, Curated: sources.DefaultCuratedLookup, Lister: runner}

	direct := &downloads.DirectStrategy{HTTPClient: httpClient, Runner: runner}
	router := &downloads.Router{
		Strategies: []downloads.Strategy{
			direct,
			&downloads.ApplePodcastsStrategy{ITunes: itunesClient, Direct: direct},
			&downloads.YouTubeStrategy{Runner: runner},
			&downloads.BrowserStrategy{Direct: direct},
		},
		Finder:   finder,
		History:  store,
		Failures: store,
		NewID:    newULID,
	}

	transcriptFinder := &transcripts.Finder{Store: store, HTTPClient: httpClient}

	asrClient := &asr.HTTPClient{HTTPClient: httpClient, BaseURL: "https://api.assemblyai.com", APIKey: cfg.AssemblyAIAPIKey}
	asrOptions := asr.DefaultOptions()
	asrOptions.MaxTestMinutes = cfg.MaxTranscriptionMinutes
	transcriber := asr.New(asrClient, runner, asrOptions)

	llmClient := &summarize.HTTPLLMClient{HTTPClient: httpClient, BaseURL: "https://api.openai.com", APIKey: cfg.OpenAIAPIKey, Model: "gpt-4o-mini"}
	summarizer := summarize.New(llmClient, summarize.DefaultOptions())

	progressBuffer := progress.NewBuffer(256)
	orchestrator := pipeline.New(pipeline.Orchestrator{
		Transcripts: transcriptFinder,
		Downloads:   router,
		ASR:         transcriber,
		Summarizer:  summarizer,
		Store:       store,
		WorkDir:     filepath.Join(*baseDir, "audio"),
		OnProgress: func(evt pipeline.ProgressEvent) {
			select {
			case progressBuffer <- evt:
			default:
			}
		},
	})

	service := &api.Service{
		Catalog:              podcasts,
		Fetcher:              fetcher,
		Processor:            orchestrator,
		VerifyApplePodcasts:  cfg.VerifyApplePodcasts,
		FetchMissingEpisodes: cfg.FetchMissingEpisodes,
		Verify: func(ctx context.Context, podcast domain.Podcast, merged []domain.Episode, cutoff time.Time) ([]discovery.MissingEpisode, error) {
			return discovery.VerifyAgainstApple(ctx, itunesClient, podcast, merged, cutoff)
		},
	}

	if *watch {
		if err := progress.Watch(ctx, progressBuffer); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	server := api.NewServer(*addr, service, logger)
	go func() {
		<-ctx.Done()
		orchestrator.Cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func defaultBaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".digestpipe"
	}
	return filepath.Join(home, ".digestpipe")
}

func newULID() string {
	return ulid.Make().String()
}
