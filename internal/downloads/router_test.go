package downloads

import (
	"context"
	"testing"

	"digestpipe/internal/domain"
)

type stubHistory struct {
	history  []string
	recorded []string
}

func (s *stubHistory) LoadStrategyHistory(ctx context.Context, podcast string) ([]string, error) {
	return s.history, nil
}

func (s *stubHistory) RecordDownloadStrategy(ctx context.Context, podcast, strategy string) error {
	s.recorded = append(s.recorded, strategy)
	return nil
}

func TestSelectionOrderPrependsHistoryAndDedupes(t *testing.T) {
	routingRules["__router_test_podcast__"] = []string{domain.StrategyDirect, domain.StrategyApplePodcasts, domain.StrategyYouTube}
	defer delete(routingRules, "__router_test_podcast__")

	history := &stubHistory{history: []string{domain.StrategyApplePodcasts, domain.StrategyBrowser}}
	router := &Router{History: history}

	podcast := domain.Podcast{Name: "__router_test_podcast__"}
	order := router.SelectionOrder(context.Background(), podcast, "https://example.com/ep.mp3")

	want := []string{domain.StrategyApplePodcasts, domain.StrategyBrowser, domain.StrategyDirect, domain.StrategyYouTube}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, s := range want {
		if order[i] != s {
			t.Fatalf("order[%d] = %q, want %q (full: %v)", i, order[i], s, order)
		}
	}
}

func TestSelectionOrderTranslatesCatalogRetryStrategyVocabulary(t *testing.T) {
	router := &Router{}
	podcast := domain.Podcast{
		Name: "Unrouted Show",
		RetryStrategy: domain.RetryStrategy{
			Primary:  domain.StrategyYouTubeSearch,
			Fallback: domain.StrategyBrowserAutomation,
		},
	}

	order := router.SelectionOrder(context.Background(), podcast, "https://example.com/ep.mp3")

	want := []string{domain.StrategyYouTube, domain.StrategyBrowser, domain.StrategyDirect, domain.StrategyApplePodcasts}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, s := range want {
		if order[i] != s {
			t.Fatalf("order[%d] = %q, want %q (full: %v); catalog retry_strategy vocabulary must translate to registered strategy names", i, order[i], s, order)
		}
	}
}

func TestSelectionOrderYouTubeURLOverride(t *testing.T) {
	router := &Router{}
	podcast := domain.Podcast{Name: "Some Show"}

	order := router.SelectionOrder(context.Background(), podcast, "https://www.youtube.com/watch?v=abc123")

	want := []string{domain.StrategyYouTube, domain.StrategyBrowser}
	if len(order) != len(want) || order[0] != want[0] || order[1] != want[1] {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestSelectionOrderDropsDirectForSubstackProtected(t *testing.T) {
	router := &Router{}
	podcast := domain.Podcast{Name: "American Optimist"}

	order := router.SelectionOrder(context.Background(), podcast, "https://api.substack.com/feed/ep.mp3")

	for _, s := range order {
		if s == domain.StrategyDirect {
			t.Fatalf("order = %v, expected direct strategy dropped for substack-protected podcast", order)
		}
	}

	want := []string{domain.StrategyYouTube, domain.StrategyBrowser}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, s := range want {
		if order[i] != s {
			t.Fatalf("order[%d] = %q, want %q (full: %v); substack-protected podcasts must begin with youtube, not apple_podcasts", i, order[i], s, order)
		}
	}
}

func TestSelectionOrderPrependsHistoryAheadOfSubstackForcedBase(t *testing.T) {
	history := &stubHistory{history: []string{domain.StrategyApplePodcasts}}
	router := &Router{History: history}
	podcast := domain.Podcast{Name: "Dwarkesh Podcast"}

	order := router.SelectionOrder(context.Background(), podcast, "https://api.substack.com/feed/ep.mp3")

	want := []string{domain.StrategyApplePodcasts, domain.StrategyYouTube, domain.StrategyBrowser}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i, s := range want {
		if order[i] != s {
			t.Fatalf("order[%d] = %q, want %q (full: %v)", i, order[i], s, order)
		}
	}
}

func TestSelectionOrderDropsDirectForCloudflareDomain(t *testing.T) {
	router := &Router{}
	podcast := domain.Podcast{Name: "Unrelated Show"}

	order := router.SelectionOrder(context.Background(), podcast, "https://api.substack.com/cdn/ep.mp3")

	for _, s := range order {
		if s == domain.StrategyDirect {
			t.Fatalf("order = %v, expected direct strategy dropped for cloudflare-protected domain", order)
		}
	}
}

type failingStrategy struct {
	name string
	err  error
}

func (s *failingStrategy) Name() string { return s.name }
func (s *failingStrategy) CanHandle(url string, podcast domain.Podcast) bool {
	return true
}
func (s *failingStrategy) Download(ctx context.Context, url string, info EpisodeInfo) error {
	return s.err
}

func TestDownloadReturnsAllStrategiesFailedWhenExhausted(t *testing.T) {
	routingRules["__router_test_fail__"] = []string{"one", "two"}
	defer delete(routingRules, "__router_test_fail__")

	router := &Router{
		Strategies: []Strategy{
			&failingStrategy{name: "one", err: &Error{Kind: ErrorKindHTTP, Message: "boom"}},
			&failingStrategy{name: "two", err: &Error{Kind: ErrorKindHTTP, Message: "boom again"}},
		},
		Backoff: 1,
	}

	podcast := domain.Podcast{Name: "__router_test_fail__"}
	ep := domain.Episode{GUID: "guid-1", AudioURL: "https://example.com/a.mp3"}

	_, err := router.Download(context.Background(), podcast, ep, t.TempDir()+"/out.mp3")
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	de, ok := err.(*Error)
	if !ok {
		t.Fatalf("expected *Error, got %T", err)
	}
	if de.Kind != ErrorKindAllStrategies {
		t.Fatalf("Kind = %v, want %v", de.Kind, ErrorKindAllStrategies)
	}
	if len(de.Attempts) != 2 {
		t.Fatalf("Attempts = %v, want 2 entries", de.Attempts)
	}
}
