// Package asr implements C6, the Transcriber: uploads a local audio file
// to an external speech recognition service, polls for completion with
// bounded exponential backoff, and formats the result, guarded by a local
// concurrency limit and a circuit breaker.
package asr

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	gobreaker "github.com/sony/gobreaker/v2"

	"digestpipe/internal/domain"
	"digestpipe/internal/exectools"
)

// Options configures a Transcriber's policy knobs.
type Options struct {
	MaxTestMinutes      int
	TestConcurrency     int
	FullConcurrency     int
	ConsecutiveFailures uint32
	BreakerCooldown     time.Duration
	PollInitial         time.Duration
	PollMultiplier      float64
	PollMax             time.Duration
	PollOverallCap      time.Duration
}

// DefaultOptions matches spec.md §4.6's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxTestMinutes:      15,
		TestConcurrency:     10,
		FullConcurrency:     4,
		ConsecutiveFailures: 5,
		BreakerCooldown:     5 * time.Minute,
		PollInitial:         2 * time.Second,
		PollMultiplier:      1.5,
		PollMax:             30 * time.Second,
		PollOverallCap:      8 * time.Minute,
	}
}

// Transcriber implements C6.
type Transcriber struct {
	Client  Client
	Runner  *exectools.Runner
	Options Options

	testSem chan struct{}
	fullSem chan struct{}
	breaker *gobreaker.CircuitBreaker[JobStatus]
}

// New constructs a Transcriber with its concurrency semaphores and circuit
// breaker wired per opts.
func New(client Client, runner *exectools.Runner, opts Options) *Transcriber {
	if opts.TestConcurrency <= 0 {
		opts.TestConcurrency = 10
	}
	if opts.FullConcurrency <= 0 {
		opts.FullConcurrency = 4
	}
	if opts.ConsecutiveFailures == 0 {
		opts.ConsecutiveFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 5 * time.Minute
	}

	t := &Transcriber{
		Client:  client,
		Runner:  runner,
		Options: opts,
		testSem: make(chan struct{}, opts.TestConcurrency),
		fullSem: make(chan struct{}, opts.FullConcurrency),
	}

	t.breaker = gobreaker.NewCircuitBreaker[JobStatus](gobreaker.Settings{
		Name:    "asr",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.ConsecutiveFailures
		},
	})

	return t
}

// Transcribe runs the full C6 pipeline for one episode's local audio file.
func (t *Transcriber) Transcribe(ctx context.Context, podcast domain.Podcast, ep domain.Episode, audioPath string, mode domain.Mode) (string, error) {
	sem := t.fullSem
	if mode == domain.ModeTest {
		sem = t.testSem
	}

	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	uploadPath := audioPath
	trimmed := false
	if mode == domain.ModeTest {
		trimmedPath, err := t.trim(ctx, audioPath)
		if err != nil {
			return "", newError(ErrorKindUpload, podcast.Name, ep.GUID, true, fmt.Sprintf("test-mode trim failed: %v", err))
		}
		if trimmedPath != "" {
			uploadPath = trimmedPath
			trimmed = true
		}
	}
	if trimmed {
		defer os.Remove(uploadPath)
	}

	status, err := t.breaker.Execute(func() (JobStatus, error) {
		return t.runJob(ctx, podcast, ep, uploadPath)
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if de, ok := err.(*Error); ok {
			return "", de
		}
		return "", newError(ErrorKindJobFailed, podcast.Name, ep.GUID, true, err.Error())
	}

	return formatTranscript(status), nil
}

// trim produces a MAX_TEST_MINUTES-bounded copy of audioPath for test mode,
// preferring a stream-copy external tool per spec.md §4.6 step 1. It
// returns "" if the audio tool is unavailable (the original file is used
// unmodified rather than failing the stage).
func (t *Transcriber) trim(ctx context.Context, audioPath string) (string, error) {
	if t.Runner == nil || !t.Runner.Available(exectools.ToolFFmpeg) {
		return "", nil
	}
	maxSeconds := t.Options.MaxTestMinutes * 60
	if maxSeconds <= 0 {
		maxSeconds = 15 * 60
	}
	dst := audioPath + ".trimmed.mp3"
	if err := t.Runner.TrimAudio(ctx, audioPath, dst, maxSeconds); err != nil {
		return "", err
	}
	return dst, nil
}

// runJob creates the ASR job and polls it to completion with bounded
// exponential backoff, per spec.md §4.6 steps 2-3.
func (t *Transcriber) runJob(ctx context.Context, podcast domain.Podcast, ep domain.Episode, audioPath string) (JobStatus, error) {
	jobID, err := t.Client.CreateJob(ctx, audioPath, JobOptions{SpeakerLabels: true, Punctuation: true, AutoLanguage: true})
	if err != nil {
		return JobStatus{}, newError(ErrorKindUpload, podcast.Name, ep.GUID, true, err.Error())
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.Options.PollInitial
	b.Multiplier = t.Options.PollMultiplier
	b.MaxInterval = t.Options.PollMax
	b.MaxElapsedTime = t.Options.PollOverallCap
	b.Reset()

	for {
		status, err := t.Client.PollJob(ctx, jobID)
		if err != nil {
			return JobStatus{}, newError(ErrorKindJobFailed, podcast.Name, ep.GUID, true, err.Error())
		}

		switch status.Status {
		case "completed":
			return status, nil
		case "error":
			return JobStatus{}, newError(ErrorKindJobFailed, podcast.Name, ep.GUID, false, status.ErrorMsg)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return JobStatus{}, newError(ErrorKindTimeout, podcast.Name, ep.GUID, true, "poll exceeded overall cap")
		}

		select {
		case <-ctx.Done():
			return JobStatus{}, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// formatTranscript renders utterance-level speaker labels as "Speaker X: ..."
// blocks separated by blank lines when available, else returns plain text.
func formatTranscript(status JobStatus) string {
	if len(status.Utterances) == 0 {
		return strings.TrimSpace(status.Text)
	}
	var b strings.Builder
	for i, u := range status.Utterances {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(fmt.Sprintf("Speaker %s: %s", u.Speaker, strings.TrimSpace(u.Text)))
	}
	return b.String()
}
