package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"digestpipe/internal/asr"
	"digestpipe/internal/domain"
	"digestpipe/internal/downloads"
	"digestpipe/internal/summarize"
)

type stubFinder struct {
	text string
	ok   bool
}

func (f *stubFinder) Find(ctx context.Context, podcast domain.Podcast, ep domain.Episode, mode domain.Mode) (string, domain.TranscriptSource, bool) {
	return f.text, domain.SourceAPIDirect, f.ok
}

type stubDownloader struct {
	mu      sync.Mutex
	calls   int
	path    string
	err     error
	started chan struct{}
}

func (d *stubDownloader) Download(ctx context.Context, podcast domain.Podcast, ep domain.Episode, outputPath string) (string, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	if d.started != nil {
		close(d.started)
		<-ctx.Done()
		return "", ctx.Err()
	}
	if d.err != nil {
		return "", d.err
	}
	return d.path, nil
}

type stubTranscriber struct {
	mu    sync.Mutex
	calls int
	text  string
	errs  []error
}

func (t *stubTranscriber) Transcribe(ctx context.Context, podcast domain.Podcast, ep domain.Episode, audioPath string, mode domain.Mode) (string, error) {
	t.mu.Lock()
	idx := t.calls
	t.calls++
	t.mu.Unlock()
	if idx < len(t.errs) && t.errs[idx] != nil {
		return "", t.errs[idx]
	}
	return t.text, nil
}

type stubSummarizer struct {
	mu       sync.Mutex
	calls    int
	products summarize.Products
	err      error
}

func (s *stubSummarizer) Summarize(ctx context.Context, podcast domain.Podcast, ep domain.Episode, transcript string) (summarize.Products, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.products, s.err
}

type stubStore struct {
	mu          sync.Mutex
	transcripts int
	summaries   int
	failures    []domain.FailureRecord
}

func (s *stubStore) SaveTranscript(ctx context.Context, ep domain.Episode, mode domain.Mode, text string, source domain.TranscriptSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts++
	return nil
}

func (s *stubStore) SaveSummary(ctx context.Context, ep domain.Episode, mode domain.Mode, paragraph, long string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries++
	return nil
}

func (s *stubStore) AppendFailure(ctx context.Context, rec domain.FailureRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, rec)
	return nil
}

func testOrchestrator(o Orchestrator) *Orchestrator {
	o.Limits = Limits{Download: 2, Transcription: 2, Summarization: 2}
	o.MaxRetries = 2
	o.WorkDir = "/tmp/digest-test"
	return New(o)
}

func TestProcessEpisodeSkipsDownloadOnCacheHit(t *testing.T) {
	finder := &stubFinder{text: "cached transcript", ok: true}
	downloader := &stubDownloader{}
	transcriber := &stubTranscriber{}
	summarizer := &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}}
	store := &stubStore{}

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         transcriber,
		Summarizer:  summarizer,
		Store:       store,
	})

	result := orch.processEpisode(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1"}, domain.ModeTest)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if downloader.calls != 0 {
		t.Fatalf("expected download to be skipped on cache hit, got %d calls", downloader.calls)
	}
	if store.transcripts != 0 {
		t.Fatalf("expected no transcript re-save on cache hit, got %d", store.transcripts)
	}
	if store.summaries != 1 {
		t.Fatalf("expected one summary save, got %d", store.summaries)
	}
}

func TestProcessEpisodeRunsFullChainOnCacheMiss(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{path: "/tmp/audio.mp3"}
	transcriber := &stubTranscriber{text: "fresh transcript"}
	summarizer := &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}}
	store := &stubStore{}

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         transcriber,
		Summarizer:  summarizer,
		Store:       store,
	})

	result := orch.processEpisode(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1"}, domain.ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if downloader.calls != 1 || transcriber.calls != 1 {
		t.Fatalf("expected download and transcribe to run once each, got download=%d transcribe=%d", downloader.calls, transcriber.calls)
	}
	if store.transcripts != 1 || store.summaries != 1 {
		t.Fatalf("expected one transcript and one summary save, got transcripts=%d summaries=%d", store.transcripts, store.summaries)
	}
}

func TestProcessEpisodeRecordsFailureOnDownloadError(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{err: &downloads.Error{Kind: downloads.ErrorKindAllStrategies, Retryable: false, Message: "no strategy worked"}}
	store := &stubStore{}

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         &stubTranscriber{},
		Summarizer:  &stubSummarizer{},
		Store:       store,
	})

	result := orch.processEpisode(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1"}, domain.ModeTest)
	if result.Err == nil {
		t.Fatal("expected an error")
	}
	if len(store.failures) != 1 {
		t.Fatalf("expected one recorded failure, got %d", len(store.failures))
	}
	if store.failures[0].Component != "downloads" {
		t.Fatalf("Component = %q", store.failures[0].Component)
	}
}

func TestProcessEpisodeRetriesRetryableTranscribeError(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{path: "/tmp/audio.mp3"}
	transcriber := &stubTranscriber{
		text: "transcript after retry",
		errs: []error{&asr.Error{Kind: asr.ErrorKindUpload, Retryable: true, Message: "transient"}},
	}
	summarizer := &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}}
	store := &stubStore{}

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         transcriber,
		Summarizer:  summarizer,
		Store:       store,
	})

	result := orch.processEpisode(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1"}, domain.ModeTest)
	if result.Err != nil {
		t.Fatalf("unexpected error after retry: %v", result.Err)
	}
	if transcriber.calls != 2 {
		t.Fatalf("expected one retry (2 calls total), got %d", transcriber.calls)
	}
}

func TestProcessEpisodeStopsAtNextSafePointWhenCancelled(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{path: "/tmp/audio.mp3"}
	summarizer := &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}}
	store := &stubStore{}

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         &stubTranscriber{text: "t"},
		Summarizer:  summarizer,
		Store:       store,
	})
	orch.Cancel()

	result := orch.processEpisode(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1", GUID: "g1"}, domain.ModeTest)
	if result.Err == nil {
		t.Fatal("expected cancellation error")
	}
	se, ok := result.Err.(*StageError)
	if !ok || se.Kind != ErrorKindCancelled {
		t.Fatalf("Err = %#v, want *StageError with ErrorKindCancelled", result.Err)
	}
	if summarizer.calls != 0 {
		t.Fatalf("expected no stage to run once cancelled, got %d summarize calls", summarizer.calls)
	}
}

func TestCancelAbortsInFlightDownloadContext(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{path: "/tmp/audio.mp3", started: make(chan struct{})}
	store := &stubStore{}

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         &stubTranscriber{text: "t"},
		Summarizer:  &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}},
		Store:       store,
	})

	done := make(chan []Result, 1)
	go func() {
		done <- orch.Run(context.Background(), domain.Podcast{Name: "Show"}, []domain.Episode{{Title: "Ep 1", GUID: "g1"}}, domain.ModeTest)
	}()

	select {
	case <-downloader.started:
	case <-time.After(2 * time.Second):
		t.Fatal("download never started")
	}

	orch.Cancel()

	select {
	case results := <-done:
		if len(results) != 1 || results[0].Err == nil {
			t.Fatalf("expected cancellation error once Cancel aborts the in-flight download, got %+v", results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cancel did not abort the in-flight download's context within the timeout")
	}
}

func TestRunCompletesEveryEpisodeUnderStageLimits(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{path: "/tmp/audio.mp3"}
	transcriber := &stubTranscriber{text: "t"}
	summarizer := &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}}
	store := &stubStore{}

	orch := New(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         transcriber,
		Summarizer:  summarizer,
		Store:       store,
		Limits:      Limits{Download: 2, Transcription: 2, Summarization: 2},
		WorkDir:     "/tmp/digest-test",
	})

	episodes := make([]domain.Episode, 6)
	for i := range episodes {
		episodes[i] = domain.Episode{Title: "Ep", Published: time.Now()}
	}

	results := orch.Run(context.Background(), domain.Podcast{Name: "Show"}, episodes, domain.ModeTest)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
	}
	if store.summaries != 6 {
		t.Fatalf("expected 6 summaries saved, got %d", store.summaries)
	}
}

func TestProgressEventsReportStageTransitions(t *testing.T) {
	finder := &stubFinder{ok: false}
	downloader := &stubDownloader{path: "/tmp/audio.mp3"}
	transcriber := &stubTranscriber{text: "t"}
	summarizer := &stubSummarizer{products: summarize.Products{Paragraph: "p", Long: "l"}}
	store := &stubStore{}

	var mu sync.Mutex
	var events []ProgressEvent

	orch := testOrchestrator(Orchestrator{
		Transcripts: finder,
		Downloads:   downloader,
		ASR:         transcriber,
		Summarizer:  summarizer,
		Store:       store,
		OnProgress: func(evt ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, evt)
		},
	})

	orch.processEpisode(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1"}, domain.ModeTest)

	var sawDownloadStart, sawSummarizeDone bool
	for _, evt := range events {
		if evt.Stage == StageDownload && evt.State == StateStarted {
			sawDownloadStart = true
		}
		if evt.Stage == StageSummarize && evt.State == StateSucceeded {
			sawSummarizeDone = true
		}
	}
	if !sawDownloadStart || !sawSummarizeDone {
		t.Fatalf("missing expected progress events: %+v", events)
	}
}
