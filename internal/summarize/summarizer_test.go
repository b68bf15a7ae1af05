package summarize

import (
	"context"
	"strings"
	"testing"
	"time"

	"digestpipe/internal/domain"
)

type stubLLM struct {
	calls     int
	responses []string
	errs      []error
}

func (s *stubLLM) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return "", s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	return "", nil
}

func fastSummarizeOptions() Options {
	opts := DefaultOptions()
	opts.RunEntityValidator = false
	opts.RateLimitPerMin = 6000
	opts.RetryInitial = time.Millisecond
	opts.RetryMax = 2 * time.Millisecond
	return opts
}

func TestSummarizeReturnsBothProducts(t *testing.T) {
	client := &stubLLM{responses: []string{"paragraph summary", "long summary"}}
	summarizer := New(client, fastSummarizeOptions())

	products, err := summarizer.Summarize(context.Background(), domain.Podcast{Name: "Show"}, domain.Episode{Title: "Ep 1: Someone on Things"}, "a transcript with enough content")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if products.Paragraph != "paragraph summary" || products.Long != "long summary" {
		t.Fatalf("products = %+v", products)
	}
}

func TestSummarizeKeepsSuccessfulProductWhenOtherFails(t *testing.T) {
	client := &stubLLM{
		responses: []string{"paragraph summary", ""},
		errs:      []error{nil, &Error{Kind: ErrorKindInvalidOutput, Retryable: false, Message: "bad output"}},
	}
	summarizer := New(client, fastSummarizeOptions())

	products, err := summarizer.Summarize(context.Background(), domain.Podcast{}, domain.Episode{}, "transcript")
	if err != nil {
		t.Fatalf("unexpected error when one product succeeds: %v", err)
	}
	if products.Paragraph != "paragraph summary" {
		t.Fatalf("Paragraph = %q", products.Paragraph)
	}
	if products.Long != "" {
		t.Fatalf("Long = %q, want empty", products.Long)
	}
}

func TestSummarizeRetriesRetryableErrors(t *testing.T) {
	client := &stubLLM{
		responses: []string{"", "paragraph after retry", "long summary"},
		errs:      []error{&Error{Kind: ErrorKindRateLimited, Retryable: true, Message: "rate limited"}, nil, nil},
	}
	summarizer := New(client, fastSummarizeOptions())

	products, err := summarizer.Summarize(context.Background(), domain.Podcast{}, domain.Episode{}, "transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if products.Paragraph != "paragraph after retry" {
		t.Fatalf("Paragraph = %q", products.Paragraph)
	}
}

func TestSummarizeFailsWhenBothProductsFail(t *testing.T) {
	client := &stubLLM{
		errs: []error{
			&Error{Kind: ErrorKindInvalidOutput, Retryable: false, Message: "bad"},
			&Error{Kind: ErrorKindInvalidOutput, Retryable: false, Message: "bad"},
		},
	}
	summarizer := New(client, fastSummarizeOptions())

	_, err := summarizer.Summarize(context.Background(), domain.Podcast{}, domain.Episode{}, "transcript")
	if err == nil {
		t.Fatal("expected error when both products fail")
	}
}

func TestPromptsIncludeGuestAndPodcastContext(t *testing.T) {
	prompt := paragraphPrompt("transcript text", "My Show", "Ep 1: Jane Doe on AI", "Jane Doe")
	if !strings.Contains(prompt, "My Show") || !strings.Contains(prompt, "Jane Doe") || !strings.Contains(prompt, "transcript text") {
		t.Fatalf("prompt missing expected context: %q", prompt)
	}
}
