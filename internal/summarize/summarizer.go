// Package summarize implements C7, the Summarizer: two LLM-generated
// products per episode (a short paragraph and a structured long summary),
// preceded by a deterministic-then-LLM entity correction pass and guarded
// by a global rate limiter and bounded retries.
package summarize

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"digestpipe/internal/domain"
)

// Options configures a Summarizer's policy knobs.
type Options struct {
	Temperature        float64
	MaxRetries         int
	RetryInitial       time.Duration
	RetryMax           time.Duration
	RateLimitPerMin    float64
	RunEntityValidator bool
}

// DefaultOptions matches spec.md §4.7 and §5's documented defaults. The
// effective rate of 45/min leaves headroom under a typical 50/min vendor
// quota.
func DefaultOptions() Options {
	return Options{
		Temperature:        0.2,
		MaxRetries:         2,
		RetryInitial:       time.Second,
		RetryMax:           20 * time.Second,
		RateLimitPerMin:    45,
		RunEntityValidator: true,
	}
}

// Products holds the two LLM-generated summary outputs for one episode.
type Products struct {
	Paragraph string
	Long      string
}

// Summarizer implements C7.
type Summarizer struct {
	Client  LLMClient
	Options Options
	limiter *rate.Limiter
}

// New constructs a Summarizer with its global token-bucket rate limiter.
func New(client LLMClient, opts Options) *Summarizer {
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 45
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	perSecond := opts.RateLimitPerMin / 60.0
	return &Summarizer{
		Client:  client,
		Options: opts,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Summarize runs the full C7 pipeline: entity correction, two LLM
// completions, returning whichever products succeeded even if the other
// failed, per spec.md §4.7's partial-failure rule.
func (s *Summarizer) Summarize(ctx context.Context, podcast domain.Podcast, ep domain.Episode, transcript string) (Products, error) {
	corrected, _ := ApplyHighConfidenceCorrections(transcript)
	if s.Options.RunEntityValidator {
		if llmCorrections, err := ValidateEntities(ctx, s.Client, corrected, podcast.Name); err == nil {
			corrected = ApplyCorrections(corrected, llmCorrections)
		}
	}

	guest := ExtractGuestName(ep.Title)

	var products Products
	var firstErr error

	paragraph, err := s.generate(ctx, corrected, podcast.Name, ep.Title, guest, paragraphPrompt)
	if err != nil {
		firstErr = err
	} else {
		products.Paragraph = paragraph
	}

	long, err := s.generate(ctx, corrected, podcast.Name, ep.Title, guest, longPrompt)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		products.Long = long
	}

	if products.Paragraph == "" && products.Long == "" {
		return products, firstErr
	}
	return products, nil
}

// generate runs one product's LLM call under the global rate limiter with
// bounded exponential-backoff retries on retryable errors.
func (s *Summarizer) generate(ctx context.Context, transcript, podcastName, title, guest string, buildPrompt func(transcript, podcastName, title, guest string) string) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Options.RetryInitial
	b.MaxInterval = s.Options.RetryMax
	b.MaxElapsedTime = 0
	b.Reset()

	prompt := buildPrompt(transcript, podcastName, title, guest)

	var lastErr error
	for attempt := 0; attempt <= s.Options.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}

		text, err := s.Client.Complete(ctx, CompletionRequest{
			System:      summarizerSystemPrompt,
			User:        prompt,
			Temperature: s.Options.Temperature,
			MaxTokens:   1536,
		})
		if err == nil {
			return text, nil
		}
		lastErr = err

		se, ok := err.(*Error)
		if !ok || !se.Retryable || attempt == s.Options.MaxRetries {
			return "", err
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return "", err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

const summarizerSystemPrompt = "You are a precise podcast-episode summarizer. Use only facts present in the transcript. Do not speculate."

func paragraphPrompt(transcript, podcastName, title, guest string) string {
	guestLine := ""
	if guest != "" {
		guestLine = fmt.Sprintf("Guest: %s\n", guest)
	}
	return fmt.Sprintf(
		"Podcast: %s\nEpisode: %s\n%sWrite a single paragraph of about 150 words summarizing this episode's key points.\n\nTRANSCRIPT:\n%s",
		podcastName, title, guestLine, transcript,
	)
}

func longPrompt(transcript, podcastName, title, guest string) string {
	guestLine := ""
	if guest != "" {
		guestLine = fmt.Sprintf("Guest: %s\n", guest)
	}
	return fmt.Sprintf(
		"Podcast: %s\nEpisode: %s\n%sWrite a structured summary with markdown-style headings covering the episode's main topics, key claims, and any notable quotes.\n\nTRANSCRIPT:\n%s",
		podcastName, title, guestLine, transcript,
	)
}
